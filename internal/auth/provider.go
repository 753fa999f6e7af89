package auth

import (
	"context"
	"sync"

	"github.com/gsis-platform/gsis-dashboard/internal/domain"
)

// Session identifies the authenticated principal for the current dashboard
// session. Exactly one role is active per session.
type Session struct {
	Principal string      `json:"principal"`
	Email     string      `json:"email"`
	Role      domain.Role `json:"role"`
}

// Provider resolves the current session and notifies subscribers when it
// changes. Implementations must be safe for concurrent use.
type Provider interface {
	// Session returns the current session, or nil when unauthenticated.
	Session(ctx context.Context) (*Session, error)
	// SignOut invalidates the session. Afterwards dependent state must
	// treat the role as viewer until a session is re-resolved.
	SignOut(ctx context.Context) error
	// OnChange registers a callback invoked with the new session (nil on
	// sign-out). The returned function removes the subscription.
	OnChange(fn func(*Session)) (unsubscribe func())
}

// CurrentRole resolves the effective role from a provider. It fails soft:
// a nil provider, a resolution error, no session, or an unknown role all
// yield the viewer role. It never panics, so consumers composed without an
// authorization context still work.
func CurrentRole(ctx context.Context, p Provider) domain.Role {
	if p == nil {
		return domain.RoleViewer
	}
	sess, err := p.Session(ctx)
	if err != nil || sess == nil || !sess.Role.Valid() {
		return domain.RoleViewer
	}
	return sess.Role
}

// StaticProvider is an in-process session provider used in development and
// tests. SetSession replaces the current session and fans the change out
// to subscribers.
type StaticProvider struct {
	mu      sync.Mutex
	session *Session
	subs    map[int]func(*Session)
	nextSub int
}

// NewStaticProvider builds a provider holding the given session, which may
// be nil for an unauthenticated start.
func NewStaticProvider(s *Session) *StaticProvider {
	return &StaticProvider{session: s, subs: make(map[int]func(*Session))}
}

func (p *StaticProvider) Session(_ context.Context) (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session, nil
}

// SetSession replaces the current session and notifies subscribers.
func (p *StaticProvider) SetSession(s *Session) {
	p.mu.Lock()
	p.session = s
	subs := make([]func(*Session), 0, len(p.subs))
	for _, fn := range p.subs {
		subs = append(subs, fn)
	}
	p.mu.Unlock()

	for _, fn := range subs {
		fn(s)
	}
}

func (p *StaticProvider) SignOut(_ context.Context) error {
	p.SetSession(nil)
	return nil
}

func (p *StaticProvider) OnChange(fn func(*Session)) func() {
	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
}
