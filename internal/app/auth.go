package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"parchment/internal/domain"
)

// refreshSkew is how long before expiry a session gets refreshed.
const refreshSkew = time.Minute

// AuthManager owns the session lifecycle: anonymous by default, promotable to
// an authenticated identity without changing the user id. All session changes
// flow through it and are fanned out to subscribed listeners, which are the
// single source of truth after Initialize.
type AuthManager struct {
	client domain.AuthClient
	local  domain.LocalStore
	log    zerolog.Logger

	mu          sync.Mutex
	session     *domain.Session
	initialized bool
	loading     bool
	listeners   []func(*domain.Session)
}

func NewAuthManager(c domain.AuthClient, l domain.LocalStore, log zerolog.Logger) *AuthManager {
	return &AuthManager{client: c, local: l, log: log}
}

// OnChange registers a listener invoked on every session change with a copy
// of the new session (nil when the session is lost). Listeners registered
// before Initialize also observe the initial adoption.
func (m *AuthManager) OnChange(fn func(*domain.Session)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// setSession installs s, persists it and notifies listeners. Callers must not
// hold m.mu.
func (m *AuthManager) setSession(s *domain.Session) {
	m.mu.Lock()
	m.session = s
	listeners := make([]func(*domain.Session), len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	if s != nil {
		if err := m.local.SaveSession(*s); err != nil {
			m.log.Warn().Err(err).Msg("session persist failed")
		}
	} else {
		if err := m.local.ClearSession(); err != nil {
			m.log.Warn().Err(err).Msg("session clear failed")
		}
	}
	for _, fn := range listeners {
		fn(copySession(s))
	}
}

func copySession(s *domain.Session) *domain.Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// Initialize establishes the startup session: restore a persisted one
// (refreshing if stale), otherwise sign in anonymously. Total failure is
// non-fatal; the app runs without a session and EnsureSession retries lazily.
func (m *AuthManager) Initialize(ctx context.Context) {
	m.mu.Lock()
	if m.initialized {
		m.mu.Unlock()
		return
	}
	m.loading = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.initialized = true
		m.loading = false
		m.mu.Unlock()
	}()

	if stored, err := m.local.LoadSession(); err != nil {
		m.log.Warn().Err(err).Msg("persisted session read failed")
	} else if stored != nil {
		s := *stored
		if s.Expired(refreshSkew) {
			refreshed, err := m.client.RefreshSession(ctx, s)
			if err != nil {
				m.log.Warn().Err(err).Msg("stale session refresh failed, starting fresh")
			} else {
				m.setSession(&refreshed)
				return
			}
		} else {
			m.setSession(&s)
			return
		}
	}

	anon, err := m.client.SignInAnonymously(ctx)
	if err != nil {
		m.log.Warn().Err(err).Msg("anonymous sign-in failed; continuing without a session")
		return
	}
	m.setSession(&anon)
}

func (m *AuthManager) Initialized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initialized
}

// Session returns a copy of the current session, or nil.
func (m *AuthManager) Session() *domain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copySession(m.session)
}

func (m *AuthManager) State() domain.AuthState {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.loading:
		return domain.AuthInitializing
	case m.session == nil:
		return domain.AuthUninitialized
	case m.session.IsAnonymous:
		return domain.AuthAnonymous
	default:
		return domain.AuthAuthenticated
	}
}

// EnsureSession returns the current session's user id, creating a new
// anonymous session if there is none. Returns "" when no session can be
// obtained; callers degrade to local-cache-only behavior.
func (m *AuthManager) EnsureSession(ctx context.Context) string {
	m.mu.Lock()
	if m.session != nil {
		id := m.session.UserID
		m.mu.Unlock()
		return id
	}
	m.mu.Unlock()

	anon, err := m.client.SignInAnonymously(ctx)
	if err != nil {
		m.log.Warn().Err(err).Msg("lazy anonymous sign-in failed")
		return ""
	}
	m.setSession(&anon)
	return anon.UserID
}

// SignUp creates a permanent identity. While anonymous this links credentials
// to the existing user, preserving its id and any bookmarks already written
// under it; otherwise it is a fresh account creation. On failure the current
// session is left untouched.
func (m *AuthManager) SignUp(ctx context.Context, email, password, name string) error {
	m.setLoading(true)
	defer m.setLoading(false)

	m.mu.Lock()
	current := copySession(m.session)
	m.mu.Unlock()

	if current != nil && current.IsAnonymous {
		linked, err := m.client.LinkIdentity(ctx, *current, email, password, name)
		if err != nil {
			return err
		}
		m.setSession(&linked)
		return nil
	}

	s, err := m.client.SignUpWithPassword(ctx, email, password, name)
	if err != nil {
		return err
	}
	m.setSession(&s)
	return nil
}

// SignIn exchanges credentials for a session. This switches identity:
// bookmarks tied to a prior anonymous id are not merged.
func (m *AuthManager) SignIn(ctx context.Context, email, password string) error {
	m.setLoading(true)
	defer m.setLoading(false)

	s, err := m.client.SignInWithPassword(ctx, email, password)
	if err != nil {
		return err
	}
	m.setSession(&s)
	return nil
}

// SignOut invalidates the current session remotely and immediately creates a
// fresh anonymous one; the app never runs signed-out without a session unless
// the backend is unreachable.
func (m *AuthManager) SignOut(ctx context.Context) {
	m.setLoading(true)
	defer m.setLoading(false)

	m.mu.Lock()
	current := copySession(m.session)
	m.mu.Unlock()

	if current != nil {
		if err := m.client.SignOut(ctx, *current); err != nil {
			m.log.Warn().Err(err).Msg("remote sign-out failed")
		}
	}

	anon, err := m.client.SignInAnonymously(ctx)
	if err != nil {
		m.log.Warn().Err(err).Msg("post-sign-out anonymous session failed")
		m.setSession(nil)
		return
	}
	m.setSession(&anon)
}

// AdoptSession folds an externally obtained session (e.g. an OAuth flow) into
// the lifecycle, exactly like a successful SignIn.
func (m *AuthManager) AdoptSession(s domain.Session) {
	m.setSession(&s)
}

func (m *AuthManager) setLoading(v bool) {
	m.mu.Lock()
	m.loading = v
	m.mu.Unlock()
}

// StartAutoRefresh renews the access token shortly before expiry until ctx is
// done. Every successful refresh notifies listeners like any other change.
func (m *AuthManager) StartAutoRefresh(ctx context.Context) {
	go func() {
		t := time.NewTicker(30 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}

			m.mu.Lock()
			current := copySession(m.session)
			m.mu.Unlock()
			if current == nil || !current.Expired(refreshSkew) {
				continue
			}

			refreshed, err := m.client.RefreshSession(ctx, *current)
			if err != nil {
				m.log.Warn().Err(err).Msg("session refresh failed")
				continue
			}
			m.setSession(&refreshed)
		}
	}()
}
