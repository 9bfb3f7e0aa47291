package session

import (
	"errors"
	"testing"

	"storefront/pkg/domain"
)

func TestIsCode(t *testing.T) {
	cases := map[string]bool{
		"123456":  true,
		"000000":  true,
		"12345":   false,
		"1234567": false,
		"12a456":  false,
		"١٢٣٤٥٦":  false,
		"":        false,
	}
	for code, want := range cases {
		if got := isCode(code); got != want {
			t.Fatalf("isCode(%q) = %v, want %v", code, got, want)
		}
	}
}

func TestRegisterRequestNormalized(t *testing.T) {
	req := RegisterRequest{
		FullName:    "  Jo  ",
		Email:       " Jo@X.COM ",
		PhoneNumber: " 0770 ",
		Role:        " Admin ",
	}.normalized()
	if req.FullName != "Jo" || req.Email != "jo@x.com" || req.PhoneNumber != "0770" {
		t.Fatalf("unexpected normalization: %+v", req)
	}
	if req.Role != domain.RoleAdmin {
		t.Fatalf("expected admin role, got %q", req.Role)
	}
	if r := (RegisterRequest{}).normalized(); r.Role != domain.RoleUser {
		t.Fatalf("expected default role user, got %q", r.Role)
	}
}

func TestCheckReportsFirstField(t *testing.T) {
	err := check(loginRequest{Email: "", Password: "x"})
	var sessErr *Error
	if !errors.As(err, &sessErr) || !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if sessErr.Field != "Email" || sessErr.Message != "Email is required." {
		t.Fatalf("unexpected error: %+v", sessErr)
	}

	err = check(codeRequest{Code: "12"})
	if !errors.As(err, &sessErr) || sessErr.Message != "Verification code must be exactly 6 digits." {
		t.Fatalf("unexpected code error: %v", err)
	}
	if err := check(codeRequest{Code: "654321"}); err != nil {
		t.Fatalf("expected valid code, got %v", err)
	}
}
