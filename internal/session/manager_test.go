package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/abdullahnizamani/Bus-Tracking-App/internal/api"
	"github.com/abdullahnizamani/Bus-Tracking-App/internal/credstore"
	"github.com/abdullahnizamani/Bus-Tracking-App/internal/identity"
	"github.com/abdullahnizamani/Bus-Tracking-App/internal/model"
)

const (
	testSecret = "test-secret"
	testIssuer = "test-issuer"
)

type backendOptions struct {
	loginStatus  int
	logoutStatus int
	meStatus     int
}

func newBackend(t *testing.T, initial backendOptions) (*httptest.Server, *backendOptions) {
	t.Helper()
	opts := &initial
	mux := http.NewServeMux()

	mux.HandleFunc("/api/auth/login/", func(w http.ResponseWriter, r *http.Request) {
		if opts.loginStatus != 0 {
			w.WriteHeader(opts.loginStatus)
			return
		}
		realtimeToken, err := identity.NewToken(testSecret, testIssuer, time.Minute, 1, model.RoleDriver)
		if err != nil {
			t.Errorf("mint token: %v", err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"token":          "opaque-token",
			"realtime_token": realtimeToken,
		})
	})

	mux.HandleFunc("/api/auth/logout/", func(w http.ResponseWriter, r *http.Request) {
		if opts.logoutStatus != 0 {
			w.WriteHeader(opts.logoutStatus)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/api/auth/me/", func(w http.ResponseWriter, r *http.Request) {
		if opts.meStatus != 0 {
			w.WriteHeader(opts.meStatus)
			return
		}
		if r.Header.Get("Authorization") != "Token opaque-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":         1,
			"username":   "driver1",
			"email":      "driver1@example.com",
			"first_name": "Asad",
			"last_name":  "Khan",
			"role":       "driver",
			"driver": map[string]interface{}{
				"id":          10,
				"employee_id": "EMP-10",
			},
		})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, opts
}

func newManager(t *testing.T, backendURL string) (*Manager, *credstore.Store, *identity.Provider) {
	t.Helper()
	creds, err := credstore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("credstore open error: %v", err)
	}
	provider := identity.NewProvider(testSecret, testIssuer)
	manager := NewManager(api.NewClient(backendURL), provider, creds)
	t.Cleanup(manager.Close)
	return manager, creds, provider
}

func TestLoginSuccess(t *testing.T) {
	backend, _ := newBackend(t, backendOptions{})
	manager, creds, provider := newManager(t, backend.URL)

	if err := manager.Login(context.Background(), "driver1", "pw"); err != nil {
		t.Fatalf("login error: %v", err)
	}
	if manager.State() != StateAuthenticated {
		t.Fatalf("expected authenticated, got %s", manager.State())
	}
	if manager.Token() != "opaque-token" {
		t.Fatalf("unexpected token %q", manager.Token())
	}
	if !provider.SignedIn() {
		t.Fatalf("expected identity provider session")
	}

	stored, err := creds.Get(credstore.KeyToken)
	if err != nil || string(stored) != "opaque-token" {
		t.Fatalf("expected persisted token, got %q err %v", stored, err)
	}
	profile := manager.Profile()
	if profile.User == nil || profile.User.Username != "driver1" || profile.Driver == nil {
		t.Fatalf("expected cached driver profile, got %+v", profile)
	}
}

func TestLoginFailurePersistsNothing(t *testing.T) {
	backend, _ := newBackend(t, backendOptions{loginStatus: http.StatusUnauthorized})
	manager, creds, provider := newManager(t, backend.URL)
	manager.Load(context.Background())

	err := manager.Login(context.Background(), "driver1", "wrong")
	if !errors.Is(err, ErrLoginFailed) {
		t.Fatalf("expected ErrLoginFailed, got %v", err)
	}
	if manager.State() != StateUnauthenticated {
		t.Fatalf("expected unauthenticated, got %s", manager.State())
	}
	if _, err := creds.Get(credstore.KeyToken); !errors.Is(err, credstore.ErrNotFound) {
		t.Fatalf("expected no persisted token, got %v", err)
	}
	if provider.SignedIn() {
		t.Fatalf("expected no identity session")
	}
}

func TestLogoutAlwaysClears(t *testing.T) {
	backend, _ := newBackend(t, backendOptions{logoutStatus: http.StatusInternalServerError})
	manager, creds, _ := newManager(t, backend.URL)

	if err := manager.Login(context.Background(), "driver1", "pw"); err != nil {
		t.Fatalf("login error: %v", err)
	}

	manager.Logout(context.Background())

	if manager.State() != StateUnauthenticated {
		t.Fatalf("expected unauthenticated after logout, got %s", manager.State())
	}
	if _, err := creds.Get(credstore.KeyToken); !errors.Is(err, credstore.ErrNotFound) {
		t.Fatalf("expected token cleared, got %v", err)
	}
	if _, err := creds.Get(credstore.KeyProfile); !errors.Is(err, credstore.ErrNotFound) {
		t.Fatalf("expected profile cleared, got %v", err)
	}
}

func TestForcedSignOutClearsSession(t *testing.T) {
	backend, _ := newBackend(t, backendOptions{})
	manager, creds, provider := newManager(t, backend.URL)

	if err := manager.Login(context.Background(), "driver1", "pw"); err != nil {
		t.Fatalf("login error: %v", err)
	}

	// Revocation observed via the identity provider, not a local logout.
	provider.SignOut()

	if manager.State() != StateUnauthenticated {
		t.Fatalf("expected unauthenticated after forced sign-out, got %s", manager.State())
	}
	if _, err := creds.Get(credstore.KeyToken); !errors.Is(err, credstore.ErrNotFound) {
		t.Fatalf("expected token cleared, got %v", err)
	}
}

func TestRefreshUserKeepsStaleProfileOnFailure(t *testing.T) {
	backend, opts := newBackend(t, backendOptions{})
	manager, _, _ := newManager(t, backend.URL)

	if err := manager.Login(context.Background(), "driver1", "pw"); err != nil {
		t.Fatalf("login error: %v", err)
	}
	before := manager.Profile()
	if before.User == nil {
		t.Fatalf("expected cached profile after login")
	}

	opts.meStatus = http.StatusBadGateway
	if err := manager.RefreshUser(context.Background(), ""); err != nil {
		t.Fatalf("refresh error: %v", err)
	}
	after := manager.Profile()
	if after.User == nil || before.User.ID != after.User.ID {
		t.Fatalf("expected stale profile kept, before %+v after %+v", before, after)
	}
}

func TestRefreshUserNoTokenIsNoop(t *testing.T) {
	backend, _ := newBackend(t, backendOptions{})
	manager, _, _ := newManager(t, backend.URL)
	manager.Load(context.Background())

	if err := manager.RefreshUser(context.Background(), ""); err != nil {
		t.Fatalf("expected no-op, got %v", err)
	}
	if manager.Profile().User != nil {
		t.Fatalf("expected empty profile")
	}
}

func TestColdStartRestore(t *testing.T) {
	backend, _ := newBackend(t, backendOptions{})
	dir := t.TempDir()

	creds, err := credstore.Open(dir)
	if err != nil {
		t.Fatalf("credstore open error: %v", err)
	}
	first := NewManager(api.NewClient(backend.URL), identity.NewProvider(testSecret, testIssuer), creds)
	if err := first.Login(context.Background(), "driver1", "pw"); err != nil {
		t.Fatalf("login error: %v", err)
	}
	first.Close()

	reopened, err := credstore.Open(dir)
	if err != nil {
		t.Fatalf("credstore reopen error: %v", err)
	}
	second := NewManager(api.NewClient(backend.URL), identity.NewProvider(testSecret, testIssuer), reopened)
	defer second.Close()

	second.Load(context.Background())
	if second.State() != StateAuthenticated {
		t.Fatalf("expected restored session, got %s", second.State())
	}
	if second.Token() != "opaque-token" {
		t.Fatalf("unexpected restored token %q", second.Token())
	}
	if second.Profile().User == nil || second.Profile().User.Username != "driver1" {
		t.Fatalf("expected restored profile, got %+v", second.Profile())
	}
}

func TestColdStartWithoutToken(t *testing.T) {
	backend, _ := newBackend(t, backendOptions{})
	manager, _, _ := newManager(t, backend.URL)

	manager.Load(context.Background())
	if manager.State() != StateUnauthenticated {
		t.Fatalf("expected unauthenticated cold start, got %s", manager.State())
	}
}
