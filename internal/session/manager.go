// Package session owns the authentication lifecycle: login and logout
// against the REST backend, the exchange with the realtime identity
// provider, and the locally persisted token and profile blob. The manager
// is an explicit object handed to the flows that need it; there is no
// package-level state.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"

	"github.com/abdullahnizamani/Bus-Tracking-App/internal/api"
	"github.com/abdullahnizamani/Bus-Tracking-App/internal/credstore"
	"github.com/abdullahnizamani/Bus-Tracking-App/internal/identity"
	"github.com/abdullahnizamani/Bus-Tracking-App/internal/model"
)

type State int

const (
	StateLoading State = iota
	StateUnauthenticated
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

var ErrLoginFailed = errors.New("session: login failed")

type Manager struct {
	api      *api.Client
	provider *identity.Provider
	creds    *credstore.Store

	mu      sync.Mutex
	state   State
	token   string
	profile model.Profile

	cancelListener func()
}

func NewManager(apiClient *api.Client, provider *identity.Provider, creds *credstore.Store) *Manager {
	m := &Manager{
		api:      apiClient,
		provider: provider,
		creds:    creds,
		state:    StateLoading,
	}
	// The identity provider is the source of truth for forced sign-outs:
	// if it reports signed-out while a token is still cached locally, the
	// local session is cleared.
	m.cancelListener = provider.OnAuthStateChanged(func(signedIn bool) {
		if signedIn {
			return
		}
		m.mu.Lock()
		hadToken := m.token != ""
		m.mu.Unlock()
		if hadToken {
			log.Printf("session: identity provider reported sign-out, clearing local session")
			m.clear()
		}
	})
	return m
}

// Close detaches the manager from the identity provider. The session
// itself lives for the process lifetime.
func (m *Manager) Close() {
	if m.cancelListener != nil {
		m.cancelListener()
	}
}

// Load restores a persisted session on cold start. With no stored token
// the state settles on unauthenticated.
func (m *Manager) Load(ctx context.Context) {
	token, err := m.creds.Get(credstore.KeyToken)
	if err != nil {
		m.mu.Lock()
		m.state = StateUnauthenticated
		m.mu.Unlock()
		return
	}

	var profile model.Profile
	if blob, err := m.creds.Get(credstore.KeyProfile); err == nil {
		if err := json.Unmarshal(blob, &profile); err != nil {
			profile = model.Profile{}
		}
	}

	m.mu.Lock()
	m.token = string(token)
	m.profile = profile
	m.state = StateAuthenticated
	m.mu.Unlock()
}

// Login authenticates against the backend, persists the token before the
// identity exchange so a crash mid-flow still leaves a usable token, then
// establishes the realtime provider session and caches the profile.
func (m *Manager) Login(ctx context.Context, username, password string) error {
	resp, err := m.api.Login(ctx, username, password)
	if err != nil {
		return ErrLoginFailed
	}

	if err := m.creds.Put(credstore.KeyToken, []byte(resp.Token)); err != nil {
		return err
	}

	if err := m.provider.SignInWithToken(resp.RealtimeToken); err != nil {
		return err
	}

	m.mu.Lock()
	m.token = resp.Token
	m.profile = model.Profile{}
	m.state = StateAuthenticated
	m.mu.Unlock()

	return m.RefreshUser(ctx, resp.Token)
}

// Logout invalidates the server-side token on a best-effort basis, signs
// out of the identity provider, and clears local state unconditionally.
// It never returns an error.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	token := m.token
	m.mu.Unlock()

	if token != "" {
		if err := m.api.Logout(ctx, token); err != nil {
			log.Printf("session: backend logout failed (ignored): %v", err)
		}
	}
	m.provider.SignOut()
	m.clear()
}

// RefreshUser fetches and caches the current profile using tokenOverride
// when given, otherwise the held token. Without a token it is a no-op. A
// non-success response is silently ignored and the stale cached profile
// remains.
func (m *Manager) RefreshUser(ctx context.Context, tokenOverride string) error {
	token := tokenOverride
	if token == "" {
		m.mu.Lock()
		token = m.token
		m.mu.Unlock()
	}
	if token == "" {
		return nil
	}

	profile, err := m.api.Me(ctx, token)
	if err != nil {
		log.Printf("session: profile refresh failed (stale profile kept): %v", err)
		return nil
	}

	blob, err := json.Marshal(profile)
	if err != nil {
		return err
	}
	if err := m.creds.Put(credstore.KeyProfile, blob); err != nil {
		return err
	}

	m.mu.Lock()
	m.profile = *profile
	m.mu.Unlock()
	return nil
}

func (m *Manager) clear() {
	if err := m.creds.Delete(credstore.KeyToken); err != nil {
		log.Printf("session: token delete failed: %v", err)
	}
	if err := m.creds.Delete(credstore.KeyProfile); err != nil {
		log.Printf("session: profile delete failed: %v", err)
	}

	m.mu.Lock()
	m.token = ""
	m.profile = model.Profile{}
	m.state = StateUnauthenticated
	m.mu.Unlock()
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

func (m *Manager) Profile() model.Profile {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.profile
}
