// Package identity models the third-party identity provider that backs
// the realtime store. Signing in with the credential minted at login
// establishes a provider session; the provider is the source of truth for
// forced sign-outs, so session expiry or an explicit sign-out is pushed to
// registered state listeners.
package identity

import (
	"sync"
	"time"
)

type Provider struct {
	secret string
	issuer string

	mu        sync.Mutex
	claims    *Claims
	timer     *time.Timer
	listeners map[int]func(signedIn bool)
	nextID    int
}

func NewProvider(secret, issuer string) *Provider {
	return &Provider{
		secret:    secret,
		issuer:    issuer,
		listeners: make(map[int]func(signedIn bool)),
	}
}

// SignInWithToken verifies the credential and establishes a session. When
// the credential expires the provider signs itself out and notifies
// listeners, mirroring a remote revocation.
func (p *Provider) SignInWithToken(tokenString string) error {
	claims, err := ParseToken(p.secret, p.issuer, tokenString)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.claims = claims
	if p.timer != nil {
		p.timer.Stop()
	}
	if claims.ExpiresAt != nil {
		p.timer = time.AfterFunc(time.Until(claims.ExpiresAt.Time), p.expire)
	}
	fns := p.snapshotListeners()
	p.mu.Unlock()

	for _, fn := range fns {
		fn(true)
	}
	return nil
}

// SignOut tears down the provider session. Signing out while already
// signed out is a no-op.
func (p *Provider) SignOut() {
	p.mu.Lock()
	if p.claims == nil {
		p.mu.Unlock()
		return
	}
	p.claims = nil
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	fns := p.snapshotListeners()
	p.mu.Unlock()

	for _, fn := range fns {
		fn(false)
	}
}

func (p *Provider) expire() {
	p.mu.Lock()
	if p.claims == nil {
		p.mu.Unlock()
		return
	}
	p.claims = nil
	p.timer = nil
	fns := p.snapshotListeners()
	p.mu.Unlock()

	for _, fn := range fns {
		fn(false)
	}
}

// SignedIn reports whether a provider session is currently established.
func (p *Provider) SignedIn() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.claims != nil
}

// UserID returns the signed-in user id, or zero when signed out.
func (p *Provider) UserID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.claims == nil {
		return 0
	}
	return p.claims.UserID
}

// OnAuthStateChanged registers fn to run on every sign-in/sign-out
// transition. It returns a cancel function; cancelling twice is safe.
// Listeners fire on transitions only, so a cold start with no provider
// session does not emit a spurious signed-out event.
func (p *Provider) OnAuthStateChanged(fn func(signedIn bool)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.listeners, id)
			p.mu.Unlock()
		})
	}
}

func (p *Provider) snapshotListeners() []func(signedIn bool) {
	fns := make([]func(signedIn bool), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	return fns
}
