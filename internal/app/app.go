package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"storefront/internal/cart"
	"storefront/internal/config"
	"storefront/internal/identity"
	"storefront/internal/session"
	"storefront/pkg/store"
)

// Config holds runtime configuration for the client application.
type Config struct {
	IdentityServiceURL string
	RequestTimeout     time.Duration
	StorageBackend     string
	DataDir            string
	Profile            string
	RedisAddr          string
	RedisPassword      string
	RedisPrefix        string
	DatabaseURL        string
	Logger             *slog.Logger
	// KV replaces the configured backend when set.
	KV store.KV
}

// App owns one shopper's session and cart for its lifetime:
// New, Start, use, Close.
type App struct {
	kv      store.KV
	session *session.Manager
	cart    *cart.Cart
	logger  *slog.Logger
}

// New wires storage, the identity client, the session manager and the cart.
// The session starts Anonymous until Start runs.
func New(cfg Config) (*App, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	kv := cfg.KV
	if kv == nil {
		var err error
		kv, err = openKV(cfg)
		if err != nil {
			return nil, err
		}
	}

	client, err := identity.NewClient(identity.Config{
		BaseURL: cfg.IdentityServiceURL,
		Timeout: cfg.RequestTimeout,
		Logger:  logger,
	})
	if err != nil {
		_ = kv.Close()
		return nil, fmt.Errorf("init identity client: %w", err)
	}

	manager, err := session.New(session.Config{
		Identity: client,
		Store:    store.NewSessionStore(kv),
		Logger:   logger,
	})
	if err != nil {
		_ = kv.Close()
		return nil, fmt.Errorf("init session: %w", err)
	}

	return &App{
		kv:      kv,
		session: manager,
		cart:    cart.New(kv, logger),
		logger:  logger,
	}, nil
}

func openKV(cfg Config) (store.KV, error) {
	switch cfg.StorageBackend {
	case config.BackendMemory:
		return store.NewMemoryKV(), nil
	case "", config.BackendFile:
		dir := cfg.DataDir
		if dir == "" {
			dir = "data"
		}
		kv, err := store.NewFileKV(filepath.Join(dir, "profiles"), cfg.Profile)
		if err != nil {
			return nil, fmt.Errorf("init file store: %w", err)
		}
		return kv, nil
	case config.BackendRedis:
		kv, err := store.NewRedisKV(store.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			Prefix:   cfg.RedisPrefix,
			Profile:  cfg.Profile,
		})
		if err != nil {
			return nil, fmt.Errorf("init redis store: %w", err)
		}
		return kv, nil
	case config.BackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("database URL required for the postgres backend")
		}
		kv, err := store.NewGormKV(cfg.DatabaseURL, cfg.Profile)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
		return kv, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

// Start restores the persisted session and cart. A stale session is not an
// error: it is cleared and reported through the session state.
func (a *App) Start(ctx context.Context) error {
	var errs []error
	if err := a.session.Rehydrate(ctx); err != nil {
		if errors.Is(err, session.ErrStaleSession) {
			a.logger.Info("stored session expired", "err", err)
		} else {
			errs = append(errs, fmt.Errorf("rehydrate session: %w", err))
		}
	}
	if err := a.cart.Load(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *App) Session() *session.Manager {
	return a.session
}

func (a *App) Cart() *cart.Cart {
	return a.cart
}

// Close releases the storage backend.
func (a *App) Close() error {
	return a.kv.Close()
}
