package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const (
	// DefaultSessionTTL mirrors the server's cookie Max-Age.
	DefaultSessionTTL = 15 * time.Minute
	refreshMargin     = 60 * time.Second
	refreshTimeout    = 10 * time.Second
)

// Authenticator is the server surface AuthState drives. *Client implements it.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (User, error)
	Register(ctx context.Context, name, email, password string) (User, error)
	Logout(ctx context.Context) error
	Me(ctx context.Context) (User, error)
	Refresh(ctx context.Context) (User, error)
}

// UserCache is any local state scoped to the signed-in user, such as a cart.
// It is cleared whenever that user stops being the current one.
type UserCache interface {
	Clear()
}

// Listener receives the new identity, or nil once signed out.
type Listener func(u *User)

// AuthState is the single client-side cache of the current identity. Create
// one per session with NewAuthState, Start it, and Stop it on teardown.
type AuthState struct {
	api      Authenticator
	interval time.Duration
	log      zerolog.Logger

	mu        sync.RWMutex
	user      *User
	caches    []UserCache
	listeners map[int]Listener
	nextID    int

	// session serializes the calls that rewrite the server cookie.
	session sync.Mutex

	lifecycle sync.Mutex
	cron      *cron.Cron
	ctx       context.Context
	cancel    context.CancelFunc
}

// StateOption customises an AuthState.
type StateOption func(*AuthState)

// WithSessionTTL sets the server token TTL the refresh cadence derives from.
func WithSessionTTL(ttl time.Duration) StateOption {
	return func(s *AuthState) { s.interval = refreshInterval(ttl) }
}

// WithStateLogger attaches a logger. Defaults to a no-op logger.
func WithStateLogger(log zerolog.Logger) StateOption {
	return func(s *AuthState) { s.log = log }
}

// WithUserCaches registers caches cleared on logout or session loss.
func WithUserCaches(caches ...UserCache) StateOption {
	return func(s *AuthState) { s.caches = append(s.caches, caches...) }
}

func NewAuthState(api Authenticator, opts ...StateOption) *AuthState {
	s := &AuthState{
		api:       api,
		interval:  refreshInterval(DefaultSessionTTL),
		log:       zerolog.Nop(),
		listeners: make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// refreshInterval keeps refreshes a minute ahead of expiry. Short TTLs fall
// back to half the TTL; cron cannot tick faster than once a second.
func refreshInterval(ttl time.Duration) time.Duration {
	d := ttl - refreshMargin
	if d <= 0 {
		d = ttl / 2
	}
	if d < time.Second {
		d = time.Second
	}
	return d
}

// Start loads the current identity from the server and schedules the
// session refresh. A missing session is not an error.
func (s *AuthState) Start(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.cron != nil {
		return nil
	}

	u, err := s.api.Me(ctx)
	switch {
	case err == nil:
		s.set(&u)
	case errors.Is(err, ErrUnauthenticated):
		s.set(nil)
	default:
		return fmt.Errorf("load identity: %w", err)
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	c := cron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", s.interval), func() { s.refresh(s.ctx) }); err != nil {
		s.cancel()
		return fmt.Errorf("schedule refresh: %w", err)
	}
	c.Start()
	s.cron = c

	_, signedIn := s.Current()
	s.log.Debug().Dur("interval", s.interval).Bool("signed_in", signedIn).Msg("auth state started")
	return nil
}

// Stop cancels the refresh schedule and waits for a running refresh.
func (s *AuthState) Stop() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.cron == nil {
		return
	}
	s.cancel()
	<-s.cron.Stop().Done()
	s.cron = nil
	s.log.Debug().Msg("auth state stopped")
}

// refresh runs on every tick. Any failure means the session is gone; the
// state goes to signed-out and later ticks are no-ops until a new login.
func (s *AuthState) refresh(ctx context.Context) {
	s.session.Lock()
	defer s.session.Unlock()

	if _, ok := s.Current(); !ok {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()

	u, err := s.api.Refresh(ctx)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}
		s.log.Warn().Err(err).Msg("session refresh failed, signing out")
		s.set(nil)
		return
	}
	s.set(&u)
}

// Current returns the cached identity.
func (s *AuthState) Current() (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.user == nil {
		return User{}, false
	}
	return *s.user, true
}

// Login updates the cache once the server has set the cookie.
func (s *AuthState) Login(ctx context.Context, email, password string) (User, error) {
	s.session.Lock()
	defer s.session.Unlock()

	u, err := s.api.Login(ctx, email, password)
	if err != nil {
		return User{}, err
	}
	s.set(&u)
	return u, nil
}

// Register updates the cache once the server has set the cookie.
func (s *AuthState) Register(ctx context.Context, name, email, password string) (User, error) {
	s.session.Lock()
	defer s.session.Unlock()

	u, err := s.api.Register(ctx, name, email, password)
	if err != nil {
		return User{}, err
	}
	s.set(&u)
	return u, nil
}

// Logout clears the cache and every user-scoped cache, but only after the
// server confirmed the cookie was cleared. A refresh already in flight
// finishes first so it cannot sign the user back in.
func (s *AuthState) Logout(ctx context.Context) error {
	s.session.Lock()
	defer s.session.Unlock()

	if err := s.api.Logout(ctx); err != nil {
		return err
	}
	s.set(nil)
	return nil
}

// Subscribe registers fn for identity changes and returns its cancel func.
func (s *AuthState) Subscribe(fn Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// set swaps the cached identity. User caches are cleared when the previous
// user goes away, and listeners run only on an actual change.
func (s *AuthState) set(next *User) {
	s.mu.Lock()
	prev := s.user
	if sameUser(prev, next) {
		s.user = next
		s.mu.Unlock()
		return
	}
	s.user = next

	var stale []UserCache
	if prev != nil && (next == nil || next.ID != prev.ID) {
		stale = append(stale, s.caches...)
	}
	listeners := make([]Listener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, c := range stale {
		c.Clear()
	}
	for _, fn := range listeners {
		if next == nil {
			fn(nil)
			continue
		}
		u := *next
		fn(&u)
	}
}

func sameUser(a, b *User) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
