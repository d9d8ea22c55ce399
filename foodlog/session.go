// ABOUTME: Session is the identity bridge: current user, change notifications
// ABOUTME: and fresh access tokens. Unconfigured sessions are always signed out.
package foodlog

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"
)

// IdentityListener is called with the new identity, or ok=false on sign-out.
type IdentityListener func(user UserIdentity, ok bool)

// IdentityProvider is what the Coordinator needs from the auth layer.
type IdentityProvider interface {
	Current() (UserIdentity, bool)
	Subscribe(fn IdentityListener) (unsubscribe func())
	TokenSource
}

// Session holds the signed-in user's credentials and fans out identity
// changes. It is passed explicitly to the components that need it.
type Session struct {
	auth   *AuthClient // nil when no provider is configured
	logger *log.Logger
	now    func() time.Time

	mu        sync.Mutex
	creds     *Credentials
	listeners map[int]IdentityListener
	nextID    int
	onCreds   func(creds Credentials, signedIn bool)

	// notifyMu orders identity notifications: a subscriber's initial call
	// and every swap's fan-out run one at a time, in the order the
	// credentials changed. Listeners must not sign in or out synchronously.
	notifyMu  sync.Mutex
	refreshMu sync.Mutex
}

// NewSession builds a session for the given provider config.
func NewSession(cfg AuthConfig) *Session {
	s := &Session{
		logger:    log.Default(),
		now:       time.Now,
		listeners: make(map[int]IdentityListener),
	}
	if cfg.Configured() {
		s.auth = NewAuthClient(cfg)
	}
	return s
}

// SetLogger redirects session diagnostics.
func (s *Session) SetLogger(l *log.Logger) {
	if l != nil {
		s.logger = l
	}
}

// OnCredentials registers a hook called whenever credentials are issued,
// rotated or dropped. Callers use it to persist tokens.
func (s *Session) OnCredentials(fn func(creds Credentials, signedIn bool)) {
	s.mu.Lock()
	s.onCreds = fn
	s.mu.Unlock()
}

// Configured reports whether an identity provider is available.
func (s *Session) Configured() bool { return s.auth != nil }

// Current returns a snapshot of the signed-in identity.
func (s *Session) Current() (UserIdentity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.creds == nil {
		return UserIdentity{}, false
	}
	return s.creds.User, true
}

// Subscribe registers fn and immediately calls it with the current identity.
// After that fn runs once per sign-in or sign-out.
func (s *Session) Subscribe(fn IdentityListener) func() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	var user UserIdentity
	ok := s.creds != nil
	if ok {
		user = s.creds.User
	}
	s.mu.Unlock()

	fn(user, ok)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// Restore installs previously saved credentials without a network call.
func (s *Session) Restore(creds Credentials) {
	if s.auth == nil || creds.AccessToken == "" || creds.User.ID == "" {
		return
	}
	if creds.Expires.IsZero() {
		if exp, err := TokenExpiry(creds.AccessToken); err == nil {
			creds.Expires = exp
		}
	}
	s.swap(s.currentCreds(), &creds)
}

// SignIn authenticates and switches to the new identity.
func (s *Session) SignIn(ctx context.Context, email, password string) (UserIdentity, error) {
	if s.auth == nil {
		return UserIdentity{}, ErrNotConfigured
	}
	creds, err := s.auth.SignIn(ctx, email, password)
	if err != nil {
		return UserIdentity{}, err
	}
	s.swap(s.currentCreds(), &creds)
	return creds.User, nil
}

// SignUp registers a new account and signs it in.
func (s *Session) SignUp(ctx context.Context, email, password string) (UserIdentity, error) {
	if s.auth == nil {
		return UserIdentity{}, ErrNotConfigured
	}
	creds, err := s.auth.SignUp(ctx, email, password)
	if err != nil {
		return UserIdentity{}, err
	}
	s.swap(s.currentCreds(), &creds)
	return creds.User, nil
}

// SignOut drops credentials and notifies subscribers.
func (s *Session) SignOut() {
	s.swap(s.currentCreds(), nil)
}

// Token returns an access token for the current user, refreshing it when it
// is close to expiry. It returns "" and a nil error when signed out.
func (s *Session) Token(ctx context.Context) (string, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	creds := s.currentCreds()
	if creds == nil {
		return "", nil
	}
	if creds.Expires.IsZero() || s.now().Add(tokenRefreshSkew).Before(creds.Expires) {
		return creds.AccessToken, nil
	}
	if creds.RefreshToken == "" {
		s.logger.Printf("session: token for %s expired and no refresh token, signing out", creds.User.ID)
		s.swap(creds, nil)
		return "", ErrUnauthorized
	}

	fresh, err := s.auth.Refresh(ctx, creds.RefreshToken)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrRejected) {
			s.logger.Printf("session: refresh rejected, signing out: %v", err)
			s.swap(creds, nil)
		}
		return "", err
	}
	if fresh.User.ID == "" {
		fresh.User = creds.User
	}
	if !s.swap(creds, &fresh) {
		// Signed out or switched user while refreshing.
		return "", nil
	}
	return fresh.AccessToken, nil
}

func (s *Session) currentCreds() *Credentials {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creds
}

// swap replaces old with next if old is still current. Listeners run only
// when the identity actually changed; the credentials hook runs on every
// successful swap.
func (s *Session) swap(old, next *Credentials) bool {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if s.creds != old {
		s.mu.Unlock()
		return false
	}
	prevID := ""
	if old != nil {
		prevID = old.User.ID
	}
	s.creds = next
	nextID := ""
	var user UserIdentity
	if next != nil {
		nextID = next.User.ID
		user = next.User
	}
	hook := s.onCreds
	var fns []IdentityListener
	if prevID != nextID {
		ids := make([]int, 0, len(s.listeners))
		for id := range s.listeners {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		for _, id := range ids {
			fns = append(fns, s.listeners[id])
		}
	}
	s.mu.Unlock()

	if hook != nil {
		if next != nil {
			hook(*next, true)
		} else {
			hook(Credentials{}, false)
		}
	}
	for _, fn := range fns {
		fn(user, next != nil)
	}
	return true
}
