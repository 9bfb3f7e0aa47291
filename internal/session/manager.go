// Package session holds the client-side authentication state machine:
// Anonymous -> Pending (token issued, code not yet entered) -> Authenticated,
// and back to Anonymous on logout or when a restored session turns out stale.
//
// Every transition returns an error (nil on success) and also records the
// failure message in State.Error so UI consumers can read it from state.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"storefront/internal/identity"
	"storefront/internal/usertoken"
	"storefront/pkg/domain"
	"storefront/pkg/store"
)

// IdentityService is the subset of the identity client the session needs.
type IdentityService interface {
	Register(ctx context.Context, req identity.RegisterRequest) (identity.PendingResponse, error)
	Login(ctx context.Context, email, password string) (identity.PendingResponse, error)
	VerifyRegister(ctx context.Context, pendingToken, code string) (identity.VerifiedResponse, error)
	VerifyLogin(ctx context.Context, pendingToken, code string) (identity.VerifiedResponse, error)
	GetUser(ctx context.Context, token, userID string) (domain.User, error)
	Logout(ctx context.Context, token string) error
}

// SnapshotStore persists the verified session across restarts.
type SnapshotStore interface {
	Load(ctx context.Context) (store.SessionSnapshot, error)
	Save(ctx context.Context, token string, user domain.User) error
	Clear(ctx context.Context) error
}

// Config wires a Manager.
type Config struct {
	Identity IdentityService
	Store    SnapshotStore
	Logger   *slog.Logger
}

// Manager owns one session. Transitions never overlap: a call made while
// another is in flight fails with ErrBusy (Logout waits instead).
type Manager struct {
	identity IdentityService
	store    SnapshotStore
	logger   *slog.Logger
	gate     *semaphore.Weighted

	mu           sync.RWMutex
	current      auth
	loading      bool
	errMsg       string
	listeners    map[int]func(State)
	nextListener int
}

// New creates an Anonymous session.
func New(cfg Config) (*Manager, error) {
	if cfg.Identity == nil {
		return nil, errors.New("session: identity service is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("session: snapshot store is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		identity:  cfg.Identity,
		store:     cfg.Store,
		logger:    logger.With("component", "session"),
		gate:      semaphore.NewWeighted(1),
		current:   anonymous{},
		listeners: make(map[int]func(State)),
	}, nil
}

// State returns a copy of the current session state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return snapshot(m.current, m.loading, m.errMsg)
}

// Subscribe registers fn to receive the state after every change. Listeners
// run synchronously on the goroutine performing the transition.
func (m *Manager) Subscribe(fn func(State)) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextListener
	m.nextListener++
	m.listeners[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// Register submits the registration form. On success the session is Pending
// and waits for VerifyRegistration.
func (m *Manager) Register(ctx context.Context, req RegisterRequest) error {
	return m.run(ctx, "register", func(ctx context.Context) error {
		req = req.normalized()
		if err := check(req); err != nil {
			return err
		}
		m.setLoading(true)
		resp, err := m.identity.Register(ctx, identity.RegisterRequest{
			FullName:        req.FullName,
			Email:           req.Email,
			PhoneNumber:     req.PhoneNumber,
			Password:        req.Password,
			ConfirmPassword: req.ConfirmPassword,
			Role:            string(req.Role),
		})
		if err != nil {
			return classify(err)
		}
		m.beginPending(ctx, resp)
		return nil
	})
}

// Login submits credentials. On success the session is Pending and waits
// for VerifyLogin.
func (m *Manager) Login(ctx context.Context, email, password string) error {
	return m.run(ctx, "login", func(ctx context.Context) error {
		req := loginRequest{Email: strings.ToLower(strings.TrimSpace(email)), Password: password}
		if err := check(req); err != nil {
			return err
		}
		m.setLoading(true)
		resp, err := m.identity.Login(ctx, req.Email, req.Password)
		if err != nil {
			return classify(err)
		}
		resp.User = nil
		m.beginPending(ctx, resp)
		return nil
	})
}

// VerifyRegistration completes registration with the emailed code.
func (m *Manager) VerifyRegistration(ctx context.Context, code string) error {
	return m.run(ctx, "verify_registration", func(ctx context.Context) error {
		return m.verify(ctx, code, m.identity.VerifyRegister)
	})
}

// VerifyLogin completes login with the emailed code.
func (m *Manager) VerifyLogin(ctx context.Context, code string) error {
	return m.run(ctx, "verify_login", func(ctx context.Context) error {
		return m.verify(ctx, code, m.identity.VerifyLogin)
	})
}

type verifyFunc func(ctx context.Context, pendingToken, code string) (identity.VerifiedResponse, error)

func (m *Manager) verify(ctx context.Context, code string, call verifyFunc) error {
	m.mu.RLock()
	token := tokenOf(m.current)
	m.mu.RUnlock()
	if token == "" {
		return &Error{Kind: KindTokenMissing, Message: MsgTokenMissing}
	}
	code = strings.TrimSpace(code)
	if err := check(codeRequest{Code: code}); err != nil {
		return err
	}

	m.setLoading(true)
	resp, err := call(ctx, token, code)
	if err != nil {
		return classify(err)
	}
	if err := m.store.Save(ctx, resp.Token, resp.User); err != nil {
		m.logger.Warn("persist session failed", "err", err)
	}
	next := authenticated{
		token:     resp.Token,
		user:      resp.User,
		wallet:    resp.Wallet,
		expiresAt: expiryOf(resp.Token),
	}
	m.commit(func() {
		m.current = next
		m.loading = false
	})
	m.logger.Info("session verified", "user_id", resp.User.ID)
	return nil
}

// Logout notifies the identity service (best effort) and clears the session
// and its persisted entries. It waits for an in-flight transition to finish
// and always ends Anonymous, even when ctx is already done; ctx only bounds
// the notification.
func (m *Manager) Logout(ctx context.Context) error {
	// Acquire never fails on a context that cannot be cancelled.
	_ = m.gate.Acquire(context.WithoutCancel(ctx), 1)
	defer m.gate.Release(1)

	m.mu.RLock()
	token := tokenOf(m.current)
	m.mu.RUnlock()

	if token != "" {
		m.setLoading(true)
		if err := m.identity.Logout(ctx, token); err != nil {
			m.logger.Warn("logout notification failed", "err", err)
		}
	}
	if err := m.store.Clear(context.WithoutCancel(ctx)); err != nil {
		m.logger.Warn("clear persisted session failed", "err", err)
	}
	m.commit(func() {
		m.current = anonymous{}
		m.loading = false
		m.errMsg = ""
	})
	m.logger.Info("session logged out")
	return nil
}

// Rehydrate restores a previously verified session from the snapshot store.
// It only acts on an Anonymous session. A missing snapshot leaves the session
// Anonymous without error; an unusable one is cleared and reported stale.
func (m *Manager) Rehydrate(ctx context.Context) error {
	return m.run(ctx, "rehydrate", func(ctx context.Context) error {
		m.mu.RLock()
		phase := m.current.phase()
		m.mu.RUnlock()
		if phase != PhaseAnonymous {
			return nil
		}

		snap, err := m.store.Load(ctx)
		if err != nil {
			return m.expire(ctx, fmt.Errorf("load snapshot: %w", err))
		}
		if snap.Token == "" {
			return nil
		}

		m.setLoading(true)
		claims, err := usertoken.Decode(snap.Token)
		if err != nil {
			return m.expire(ctx, err)
		}
		userID := claims.UserID()
		if snap.User != nil && snap.User.ID != "" && snap.User.ID != userID {
			m.logger.Warn("cached user does not match token subject; using lookup")
		}

		user, err := m.identity.GetUser(ctx, snap.Token, userID)
		if err != nil {
			return m.expire(ctx, err)
		}
		if user.ID != userID {
			return m.expire(ctx, fmt.Errorf("lookup returned user %q for subject %q", user.ID, userID))
		}
		if snap.User == nil || *snap.User != user {
			if err := m.store.Save(ctx, snap.Token, user); err != nil {
				m.logger.Warn("refresh persisted user failed", "err", err)
			}
		}
		m.commit(func() {
			m.current = authenticated{token: snap.Token, user: user, expiresAt: claims.Expiry()}
			m.loading = false
		})
		m.logger.Info("session restored", "user_id", user.ID)
		return nil
	})
}

// expire clears persisted entries after a failed restore.
func (m *Manager) expire(ctx context.Context, cause error) error {
	if err := m.store.Clear(context.WithoutCancel(ctx)); err != nil {
		m.logger.Warn("clear stale session failed", "err", err)
	}
	m.logger.Info("stored session discarded", "reason", cause.Error())
	return &Error{Kind: KindStaleSession, Message: MsgStaleSession, Err: cause}
}

// beginPending moves to Pending after register/login. Any previously
// persisted session is superseded, so it is cleared.
func (m *Manager) beginPending(ctx context.Context, resp identity.PendingResponse) {
	if err := m.store.Clear(context.WithoutCancel(ctx)); err != nil {
		m.logger.Warn("clear superseded session failed", "err", err)
	}
	next := pending{token: resp.Token, user: resp.User, expiresAt: expiryOf(resp.Token)}
	m.commit(func() {
		m.current = next
		m.loading = false
	})
}

// run serializes transitions, clears the previous error, and guarantees that
// loading is reset and failures are recorded on every exit path.
func (m *Manager) run(ctx context.Context, op string, fn func(context.Context) error) (err error) {
	if !m.gate.TryAcquire(1) {
		return &Error{Kind: KindBusy, Message: MsgBusy}
	}
	defer m.gate.Release(1)

	start := time.Now()
	m.clearError()

	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("session transition panicked", "op", op, "panic", r)
			err = &Error{Kind: KindInternal, Message: MsgGeneric, Err: fmt.Errorf("panic: %v", r)}
		}
		if err != nil {
			msg := err.Error()
			m.commit(func() {
				m.errMsg = msg
				m.loading = false
			})
			m.logger.Debug("session transition failed", "op", op, "err", err, "duration_ms", time.Since(start).Milliseconds())
			return
		}
		m.setLoading(false)
	}()

	return fn(ctx)
}

func (m *Manager) clearError() {
	m.mu.RLock()
	empty := m.errMsg == ""
	m.mu.RUnlock()
	if !empty {
		m.commit(func() { m.errMsg = "" })
	}
}

func (m *Manager) setLoading(v bool) {
	m.mu.RLock()
	same := m.loading == v
	m.mu.RUnlock()
	if same {
		return
	}
	m.commit(func() { m.loading = v })
}

// commit applies a change under the lock and notifies listeners outside it.
func (m *Manager) commit(change func()) {
	m.mu.Lock()
	change()
	st := snapshot(m.current, m.loading, m.errMsg)
	listeners := make([]func(State), 0, len(m.listeners))
	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	m.mu.Unlock()
	for _, fn := range listeners {
		fn(st)
	}
}

func expiryOf(token string) time.Time {
	claims, err := usertoken.Decode(token)
	if err != nil {
		return time.Time{}
	}
	return claims.Expiry()
}
