// Package session owns the authenticated cookie session against the
// bikeseoul.com member pages: obtaining it via login, detecting expiry and
// re-authenticating transparently, at most once per operation.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Session errors.
var (
	// ErrExpired signals that an operation was answered with a login page
	// or an unauthenticated status. Fetches through WithSession return it
	// (wrapped) to request a re-login.
	ErrExpired = errors.New("session expired")

	// ErrAuthFailed means the credentials themselves were rejected: login
	// failed, or a fresh login still produced an expired session. Requires
	// reconfiguration; retrying is pointless.
	ErrAuthFailed = errors.New("authentication failed")
)

// IsAuthError reports whether err means the credentials need attention from
// the user, as opposed to a transient upstream failure.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrAuthFailed)
}

// State is the manager's lifecycle state, exported for diagnostics.
type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateAuthenticating  State = "authenticating"
	StateAuthenticated   State = "authenticated"
	StateExpired         State = "expired"
	StateLoginFailed     State = "login_failed"
)

// Client is the part of the site client the manager drives. The manager is
// the only component that calls Login or installs cookies; everything else
// treats the session as read-only.
type Client interface {
	// Login exchanges credentials for a fresh session cookie.
	Login(ctx context.Context, username, password string) (cookie string, err error)

	// SetCookie installs the session cookie used by subsequent fetches.
	SetCookie(cookie string)
}

// Config holds configuration for the session manager.
type Config struct {
	Client   Client
	Username string
	Password string

	// Cookie optionally seeds the session with a previously captured
	// cookie so the first cycle can skip the login round-trip.
	Cookie string

	// OnCookie is called with each freshly obtained cookie so the caller
	// can persist it. Optional.
	OnCookie func(cookie string)

	Logger zerolog.Logger
}

// Manager holds one account's session. Safe for concurrent use, though the
// refresh coordinator serializes all fetches per instance anyway.
type Manager struct {
	client   Client
	username string
	password string
	onCookie func(string)
	logger   zerolog.Logger

	mu    sync.Mutex
	state State
}

// NewManager creates a session manager. If a seed cookie is supplied the
// manager starts optimistically authenticated; a failing fetch will trigger
// the usual renewal path.
func NewManager(cfg Config) *Manager {
	m := &Manager{
		client:   cfg.Client,
		username: cfg.Username,
		password: cfg.Password,
		onCookie: cfg.OnCookie,
		logger:   cfg.Logger,
		state:    StateUnauthenticated,
	}
	if cfg.Cookie != "" {
		m.client.SetCookie(cfg.Cookie)
		m.state = StateAuthenticated
	}
	return m
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// EnsureSession makes sure a session exists, logging in when the manager has
// never authenticated. An existing session is assumed valid; expiry is
// detected by the operation and renewed inside WithSession.
func (m *Manager) EnsureSession(ctx context.Context) error {
	m.mu.Lock()
	state := m.state
	m.mu.Unlock()

	if state == StateAuthenticated {
		return nil
	}
	return m.login(ctx)
}

// WithSession runs op with the current session. When op reports expiry
// (an error matching ErrExpired), the manager re-logs-in exactly once with
// the original credentials and retries op once. A second consecutive expiry
// becomes ErrAuthFailed; anything else passes through unchanged.
func (m *Manager) WithSession(ctx context.Context, op func(ctx context.Context) error) error {
	if err := m.EnsureSession(ctx); err != nil {
		return err
	}

	err := op(ctx)
	if err == nil || !errors.Is(err, ErrExpired) {
		return err
	}

	m.setState(StateExpired)
	m.logger.Debug().Msg("session expired, re-authenticating")

	if err := m.login(ctx); err != nil {
		return err
	}

	err = op(ctx)
	if err != nil && errors.Is(err, ErrExpired) {
		// Fresh login and still bounced, do not loop. The login itself
		// succeeded, so the session is expired rather than the
		// credentials rejected.
		m.setState(StateExpired)
		return ErrAuthFailed
	}
	return err
}

func (m *Manager) login(ctx context.Context) error {
	if m.username == "" || m.password == "" {
		m.setState(StateLoginFailed)
		return ErrAuthFailed
	}

	m.setState(StateAuthenticating)
	cookie, err := m.client.Login(ctx, m.username, m.password)
	if err != nil {
		if errors.Is(err, ErrAuthFailed) {
			// Credentials rejected by the login endpoint itself.
			m.setState(StateLoginFailed)
			m.logger.Warn().Err(err).Msg("login rejected")
			return err
		}
		// Transport failure; the next cycle retries.
		m.setState(StateUnauthenticated)
		return fmt.Errorf("login: %w", err)
	}

	m.client.SetCookie(cookie)
	m.setState(StateAuthenticated)
	if m.onCookie != nil {
		m.onCookie(cookie)
	}
	m.logger.Debug().Msg("session authenticated")
	return nil
}
