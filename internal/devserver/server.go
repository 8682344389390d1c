package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/abdullahnizamani/Bus-Tracking-App/internal/config"
	"github.com/abdullahnizamani/Bus-Tracking-App/internal/identity"
	"github.com/abdullahnizamani/Bus-Tracking-App/internal/model"
)

const minPasswordLength = 8

type Server struct {
	cfg   config.Config
	store *Store
}

func NewServer(cfg config.Config, store *Store) *Server {
	return &Server{cfg: cfg, store: store}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login/", s.handleLogin)
		r.With(s.authMiddleware).Post("/auth/logout/", s.handleLogout)
		r.With(s.authMiddleware).Get("/auth/me/", s.handleMe)
		r.With(s.authMiddleware).Post("/auth/change-password/", s.handleChangePassword)

		r.With(s.authMiddleware).Get("/student/bus/", s.handleStudentBus)
		r.With(s.authMiddleware).Get("/driver/bus/", s.handleDriverBus)
		r.With(s.authMiddleware).Get("/buses/{busID}/", s.handleGetBus)
		r.With(s.authMiddleware).Patch("/buses/{busID}/", s.handlePatchBus)
	})

	return r
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token         string `json:"token"`
	RealtimeToken string `json:"realtime_token"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing_credentials")
		return
	}

	account, token, err := s.store.Authenticate(req.Username, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}

	realtimeToken, err := identity.NewToken(
		s.cfg.RealtimeSecret,
		s.cfg.RealtimeIssuer,
		s.cfg.RealtimeTokenTTL,
		account.User.ID,
		account.User.Role,
	)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token_error")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Token:         token,
		RealtimeToken: realtimeToken,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.store.RevokeToken(tokenFromContext(r.Context()))
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type meResponse struct {
	model.User
	Student *model.Student `json:"student"`
	Driver  *model.Driver  `json:"driver"`
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	account := accountFromContext(r.Context())
	writeJSON(w, http.StatusOK, meResponse{
		User:    account.User,
		Student: account.Student,
		Driver:  account.Driver,
	})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	account := accountFromContext(r.Context())

	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}
	if len(req.NewPassword) < minPasswordLength {
		writeError(w, http.StatusBadRequest, "password_too_short")
		return
	}

	if err := s.store.ChangePassword(account.User.ID, req.CurrentPassword, req.NewPassword); err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			writeError(w, http.StatusBadRequest, "invalid_current_password")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStudentBus(w http.ResponseWriter, r *http.Request) {
	account := accountFromContext(r.Context())
	bus, err := s.store.StudentBus(account.User.ID)
	if err != nil {
		writeError(w, http.StatusNotFound, "bus_not_found")
		return
	}
	writeJSON(w, http.StatusOK, bus)
}

func (s *Server) handleDriverBus(w http.ResponseWriter, r *http.Request) {
	account := accountFromContext(r.Context())
	bus, err := s.store.DriverBus(account.User.ID)
	if err != nil {
		writeError(w, http.StatusNotFound, "bus_not_found")
		return
	}
	writeJSON(w, http.StatusOK, bus)
}

func (s *Server) handleGetBus(w http.ResponseWriter, r *http.Request) {
	busID, err := strconv.Atoi(chi.URLParam(r, "busID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_bus_id")
		return
	}
	bus, err := s.store.BusByID(busID)
	if err != nil {
		writeError(w, http.StatusNotFound, "bus_not_found")
		return
	}
	writeJSON(w, http.StatusOK, bus)
}

type patchBusRequest struct {
	Status bool `json:"status"`
}

func (s *Server) handlePatchBus(w http.ResponseWriter, r *http.Request) {
	busID, err := strconv.Atoi(chi.URLParam(r, "busID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_bus_id")
		return
	}

	var req patchBusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	if err := s.store.SetBusActive(busID, req.Status); err != nil {
		writeError(w, http.StatusNotFound, "bus_not_found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := headerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing_token")
			return
		}

		account, err := s.store.AccountByToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_token")
			return
		}

		ctx := context.WithValue(r.Context(), accountKey{}, account)
		ctx = context.WithValue(ctx, tokenKey{}, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type accountKey struct{}
type tokenKey struct{}

func accountFromContext(ctx context.Context) *Account {
	account, _ := ctx.Value(accountKey{}).(*Account)
	return account
}

func tokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

// headerToken extracts the credential from an "Authorization: Token x"
// header, the scheme the mobile client sends.
func headerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "token" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
