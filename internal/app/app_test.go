package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"storefront/internal/config"
	"storefront/internal/identitytest"
	"storefront/internal/session"
	"storefront/internal/util"
	"storefront/pkg/domain"
	"storefront/pkg/store"
)

func TestAppRestoresSessionAndCartAcrossRestarts(t *testing.T) {
	srv := identitytest.New(t)
	srv.AddUser("Jo", "jo@x.com", "pass1234", domain.RoleUser)
	cfg := Config{
		IdentityServiceURL: srv.URL,
		StorageBackend:     config.BackendFile,
		DataDir:            t.TempDir(),
		Profile:            "jo",
		Logger:             util.DiscardLogger(),
	}
	ctx := context.Background()

	first, err := New(cfg)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	if err := first.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := first.Session().Login(ctx, "jo@x.com", "pass1234"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := first.Session().VerifyLogin(ctx, identitytest.DefaultCode); err != nil {
		t.Fatalf("verify login: %v", err)
	}
	if err := first.Cart().Add(ctx, domain.Product{ID: "b1", Title: "Dune", Price: 9.99}); err != nil {
		t.Fatalf("add to cart: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	second, err := New(cfg)
	if err != nil {
		t.Fatalf("reopen app: %v", err)
	}
	defer second.Close()
	if err := second.Start(ctx); err != nil {
		t.Fatalf("restart: %v", err)
	}
	st := second.Session().State()
	if st.Phase != session.PhaseAuthenticated || st.User == nil || st.User.Email != "jo@x.com" {
		t.Fatalf("expected restored session, got %+v", st)
	}
	if second.Cart().Count() != 1 {
		t.Fatalf("expected restored cart")
	}
}

func TestAppStartToleratesStaleSession(t *testing.T) {
	srv := identitytest.New(t)
	kv := store.NewMemoryKV()
	_ = kv.Set(context.Background(), store.KeyAuthToken, "not-a-token")

	a, err := New(Config{IdentityServiceURL: srv.URL, KV: kv, Logger: util.DiscardLogger()})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("stale session should not fail start: %v", err)
	}
	if st := a.Session().State(); st.Phase != session.PhaseAnonymous || st.Error != session.MsgStaleSession {
		t.Fatalf("unexpected state: %+v", st)
	}
}

func TestAppStartsWithCorruptProfileFile(t *testing.T) {
	srv := identitytest.New(t)
	dir := t.TempDir()
	profiles := filepath.Join(dir, "profiles")
	if err := os.MkdirAll(profiles, 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(profiles, "jo.json"), []byte("{\"authToken\": tru"), 0o600); err != nil {
		t.Fatalf("write corrupt profile: %v", err)
	}

	a, err := New(Config{
		IdentityServiceURL: srv.URL,
		StorageBackend:     config.BackendFile,
		DataDir:            dir,
		Profile:            "jo",
		Logger:             util.DiscardLogger(),
	})
	if err != nil {
		t.Fatalf("corrupt profile should not block startup: %v", err)
	}
	defer a.Close()
	ctx := context.Background()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if st := a.Session().State(); st.Phase != session.PhaseAnonymous {
		t.Fatalf("expected anonymous session, got %+v", st)
	}
	if err := a.Session().Logout(ctx); err != nil {
		t.Fatalf("logout: %v", err)
	}
}

func TestAppRedisBackend(t *testing.T) {
	redis := miniredis.RunT(t)
	srv := identitytest.New(t)

	a, err := New(Config{
		IdentityServiceURL: srv.URL,
		StorageBackend:     config.BackendRedis,
		RedisAddr:          redis.Addr(),
		Profile:            "jo",
		Logger:             util.DiscardLogger(),
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	defer a.Close()
	if err := a.Cart().Add(context.Background(), domain.Product{ID: "b1"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if !redis.Exists("storefront:profile:jo:cartItems") {
		t.Fatalf("expected cart stored under the profile namespace")
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	cases := map[string]Config{
		"unknown backend":    {IdentityServiceURL: "http://localhost", StorageBackend: "sqlite"},
		"redis without addr": {IdentityServiceURL: "http://localhost", StorageBackend: config.BackendRedis},
		"postgres no dsn":    {IdentityServiceURL: "http://localhost", StorageBackend: config.BackendPostgres},
		"bad identity url":   {IdentityServiceURL: "::", StorageBackend: config.BackendMemory},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			cfg.DataDir = filepath.Join(t.TempDir(), "data")
			if _, err := New(cfg); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
