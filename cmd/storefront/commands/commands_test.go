package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"storefront/internal/identitytest"
	"storefront/pkg/domain"
)

func writeConfig(t *testing.T, identityURL string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "storefront.yaml")
	content := fmt.Sprintf(`
logLevel: "error"
identityServiceURL: %q
storageBackend: "file"
dataDir: %q
profile: "jo"
`, identityURL, filepath.Join(dir, "data"))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func run(t *testing.T, cfgPath, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetArgs(append([]string{"--config", cfgPath}, args...))
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(&errOut)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func decodeState(t *testing.T, out string) stateView {
	t.Helper()
	var view stateView
	if err := json.Unmarshal([]byte(out), &view); err != nil {
		t.Fatalf("decode state %q: %v", out, err)
	}
	return view
}

func TestRegisterWhoamiLogout(t *testing.T) {
	srv := identitytest.New(t)
	cfg := writeConfig(t, srv.URL)

	out, err := run(t, cfg, identitytest.DefaultCode+"\n", "register",
		"--name", "Jo", "--email", "jo@x.com", "--phone", "07700900000",
		"--password", "pass1234", "--confirm-password", "pass1234")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	view := decodeState(t, out)
	if view.Status != "authenticated" || !view.Verified || view.User == nil || view.User.ID != "u1" {
		t.Fatalf("unexpected state after register: %+v", view)
	}
	if strings.Contains(out, "token") {
		t.Fatalf("state output must not include the token: %s", out)
	}

	out, err = run(t, cfg, "", "whoami")
	if err != nil {
		t.Fatalf("whoami: %v", err)
	}
	if view := decodeState(t, out); view.Status != "authenticated" || view.User.Email != "jo@x.com" {
		t.Fatalf("expected restored session, got %+v", view)
	}

	if _, err := run(t, cfg, "", "logout"); err != nil {
		t.Fatalf("logout: %v", err)
	}
	out, err = run(t, cfg, "", "whoami")
	if err != nil {
		t.Fatalf("whoami after logout: %v", err)
	}
	if view := decodeState(t, out); view.Status != "anonymous" || view.User != nil {
		t.Fatalf("expected anonymous session, got %+v", view)
	}
}

func TestLoginPromptsForCredentialsAndCode(t *testing.T) {
	srv := identitytest.New(t)
	srv.AddUser("Jo", "jo@x.com", "pass1234", domain.RoleUser)
	cfg := writeConfig(t, srv.URL)

	out, err := run(t, cfg, "jo@x.com\npass1234\n123456\n", "login")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if view := decodeState(t, out); view.Status != "authenticated" || view.Wallet == nil {
		t.Fatalf("unexpected state: %+v", view)
	}
}

func TestLoginSurfacesServerMessage(t *testing.T) {
	srv := identitytest.New(t)
	srv.AddUser("Jo", "jo@x.com", "pass1234", domain.RoleUser)
	cfg := writeConfig(t, srv.URL)

	_, err := run(t, cfg, "", "login", "--email", "jo@x.com", "--password", "pass1234", "--code", "000000")
	if err == nil || err.Error() != "Incorrect verification code" {
		t.Fatalf("expected server message, got %v", err)
	}

	_, err = run(t, cfg, "", "login", "--email", "jo@x.com", "--password", "pass1234", "--code", "12345")
	if err == nil || !strings.Contains(err.Error(), "6 digits") {
		t.Fatalf("expected code validation error, got %v", err)
	}
	if srv.Calls("/verify-login") != 1 {
		t.Fatalf("malformed code must not reach the service")
	}
}

func TestCartCommands(t *testing.T) {
	srv := identitytest.New(t)
	cfg := writeConfig(t, srv.URL)

	steps := [][]string{
		{"cart", "add", "b1", "--title", "Dune", "--author", "Frank Herbert", "--price", "9.99"},
		{"cart", "add", "b2", "--title", "Emma", "--price", "4.50"},
		{"cart", "add", "b1"},
		{"cart", "update", "b2", "3"},
	}
	for _, args := range steps {
		if _, err := run(t, cfg, "", args...); err != nil {
			t.Fatalf("%v: %v", args, err)
		}
	}

	out, err := run(t, cfg, "", "cart", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "Dune") || !strings.Contains(out, "2 line item(s)") || !strings.Contains(out, "33.48") {
		t.Fatalf("unexpected cart listing:\n%s", out)
	}

	if _, err := run(t, cfg, "", "cart", "update", "b2", "0"); err != nil {
		t.Fatalf("update to zero: %v", err)
	}
	if _, err := run(t, cfg, "", "cart", "update", "b2", "many"); err == nil {
		t.Fatalf("expected invalid quantity error")
	}
	for i := 0; i < 2; i++ {
		out, err = run(t, cfg, "", "cart", "clear")
		if err != nil {
			t.Fatalf("clear #%d: %v", i+1, err)
		}
	}
	if !strings.Contains(out, "0 line item(s)") {
		t.Fatalf("expected empty cart:\n%s", out)
	}
	if srv.TotalCalls() != 0 {
		t.Fatalf("cart commands should not call the identity service")
	}
}
