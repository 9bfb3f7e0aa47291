package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"storefront/pkg/domain"
)

// SessionSnapshot is what survives a restart: the last verified token and the
// user cached alongside it. User is nil when the entry is missing or unreadable.
type SessionSnapshot struct {
	Token string
	User  *domain.User
}

// SessionStore persists the verified session under authToken/authUser.
type SessionStore struct {
	kv KV
}

// NewSessionStore wraps a KV backend.
func NewSessionStore(kv KV) *SessionStore {
	return &SessionStore{kv: kv}
}

// Load reads the snapshot. A torn write (token without user) is returned as-is.
func (s *SessionStore) Load(ctx context.Context) (SessionSnapshot, error) {
	token, ok, err := s.kv.Get(ctx, KeyAuthToken)
	if err != nil {
		return SessionSnapshot{}, fmt.Errorf("read %s: %w", KeyAuthToken, err)
	}
	token = strings.TrimSpace(token)
	if !ok || token == "" {
		return SessionSnapshot{}, nil
	}
	snap := SessionSnapshot{Token: token}
	raw, ok, err := s.kv.Get(ctx, KeyAuthUser)
	if err != nil {
		return snap, fmt.Errorf("read %s: %w", KeyAuthUser, err)
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return snap, nil
	}
	var user domain.User
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return snap, nil
	}
	snap.User = &user
	return snap, nil
}

// Save writes the token first, then the user snapshot.
func (s *SessionStore) Save(ctx context.Context, token string, user domain.User) error {
	raw, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode %s: %w", KeyAuthUser, err)
	}
	if err := s.kv.Set(ctx, KeyAuthToken, token); err != nil {
		return fmt.Errorf("write %s: %w", KeyAuthToken, err)
	}
	if err := s.kv.Set(ctx, KeyAuthUser, string(raw)); err != nil {
		return fmt.Errorf("write %s: %w", KeyAuthUser, err)
	}
	return nil
}

// Clear removes both entries.
func (s *SessionStore) Clear(ctx context.Context) error {
	if err := s.kv.Delete(ctx, KeyAuthToken, KeyAuthUser); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}
