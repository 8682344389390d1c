// Package devserver is a fixture-backed implementation of the BusNaama
// backend API, bundled so the client and CLI have something real to talk
// to during development. State lives in memory and resets on restart.
package devserver

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/abdullahnizamani/Bus-Tracking-App/internal/model"
)

var (
	ErrInvalidCredentials = errors.New("devserver: invalid credentials")
	ErrNotFound           = errors.New("devserver: not found")
)

// Account is one seeded login with its role record.
type Account struct {
	User         model.User
	PasswordHash []byte
	Student      *model.Student
	Driver       *model.Driver
}

// Store holds fixture accounts, buses, and issued session tokens.
type Store struct {
	mu       sync.Mutex
	accounts map[int]*Account // by user id
	byName   map[string]int   // username -> user id
	buses    map[int]*model.Bus
	tokens   map[string]int // opaque token -> user id
}

func NewStore() *Store {
	return &Store{
		accounts: make(map[int]*Account),
		byName:   make(map[string]int),
		buses:    make(map[int]*model.Bus),
		tokens:   make(map[string]int),
	}
}

func (s *Store) AddAccount(account Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := account
	s.accounts[account.User.ID] = &copied
	s.byName[account.User.Username] = account.User.ID
}

func (s *Store) AddBus(bus model.Bus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := bus
	s.buses[bus.ID] = &copied
}

// Authenticate checks a username/password pair and issues an opaque
// session token on success.
func (s *Store) Authenticate(username, password string) (*Account, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byName[username]
	if !ok {
		return nil, "", ErrInvalidCredentials
	}
	account := s.accounts[id]
	if err := bcrypt.CompareHashAndPassword(account.PasswordHash, []byte(password)); err != nil {
		return nil, "", ErrInvalidCredentials
	}

	token := uuid.NewString()
	s.tokens[token] = id
	return account, token, nil
}

// AccountByToken resolves a session token, or ErrNotFound for unknown or
// revoked tokens.
func (s *Store) AccountByToken(token string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.tokens[token]
	if !ok {
		return nil, ErrNotFound
	}
	return s.accounts[id], nil
}

// RevokeToken drops a session token. Revoking an unknown token is a no-op.
func (s *Store) RevokeToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
}

func (s *Store) BusByID(id int) (*model.Bus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bus, ok := s.buses[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *bus
	return &copied, nil
}

// StudentBus returns the bus assigned to a student account, or ErrNotFound
// when the account has no assignment.
func (s *Store) StudentBus(userID int) (*model.Bus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[userID]
	if !ok || account.Student == nil || account.Student.BusID == nil {
		return nil, ErrNotFound
	}
	bus, ok := s.buses[*account.Student.BusID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *bus
	return &copied, nil
}

// DriverBus returns the bus a driver account is assigned to, or
// ErrNotFound.
func (s *Store) DriverBus(userID int) (*model.Bus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[userID]
	if !ok || account.Driver == nil {
		return nil, ErrNotFound
	}
	for _, bus := range s.buses {
		if bus.DriverID != nil && *bus.DriverID == account.Driver.ID {
			copied := *bus
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (s *Store) SetBusActive(id int, isActive bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bus, ok := s.buses[id]
	if !ok {
		return ErrNotFound
	}
	bus.IsActive = isActive
	return nil
}

// ChangePassword verifies the current password and replaces the stored
// hash.
func (s *Store) ChangePassword(userID int, current, next string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[userID]
	if !ok {
		return ErrNotFound
	}
	if err := bcrypt.CompareHashAndPassword(account.PasswordHash, []byte(current)); err != nil {
		return ErrInvalidCredentials
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	account.PasswordHash = hash
	return nil
}
