// Package usertoken decodes identity-service bearer tokens on the client side.
//
// Decoding reads claims for display and lookup only. Signatures and expiry are
// not checked here; the identity service is the authority on both.
package usertoken

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// ErrMalformedToken matches every DecodeError.
var ErrMalformedToken = errors.New("malformed token")

// DecodeError reports why a token could not be decoded.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode token: %s: %v", e.Reason, e.Err)
	}
	return "decode token: " + e.Reason
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func (e *DecodeError) Is(target error) bool {
	return target == ErrMalformedToken
}

// Claims are the subject claims the identity service embeds in its tokens.
type Claims struct {
	UserIDClaim string `json:"userId,omitempty"`
	Email       string `json:"email,omitempty"`
	FullName    string `json:"fullName,omitempty"`
	Role        string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// UserID returns the userId claim, falling back to sub.
func (c Claims) UserID() string {
	if id := strings.TrimSpace(c.UserIDClaim); id != "" {
		return id
	}
	return strings.TrimSpace(c.RegisteredClaims.Subject)
}

// Expiry returns the exp claim or the zero time.
func (c Claims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time.UTC()
}

var parser = jwt.NewParser()

// Decode parses the token structure and returns its claims. It never panics;
// all failures are *DecodeError.
func Decode(token string) (claims Claims, err error) {
	defer func() {
		if r := recover(); r != nil {
			claims = Claims{}
			err = &DecodeError{Reason: fmt.Sprintf("panic: %v", r)}
		}
	}()

	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, &DecodeError{Reason: "empty token"}
	}
	if strings.Count(token, ".") != 2 {
		return Claims{}, &DecodeError{Reason: "expected three segments"}
	}
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return Claims{}, &DecodeError{Reason: "invalid structure", Err: err}
	}
	if claims.UserID() == "" {
		return Claims{}, &DecodeError{Reason: "subject missing"}
	}
	return claims, nil
}

// SubjectOf is a convenience wrapper returning only the subject id.
func SubjectOf(token string) (string, error) {
	claims, err := Decode(token)
	if err != nil {
		return "", err
	}
	return claims.UserID(), nil
}
