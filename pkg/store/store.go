package store

import (
	"context"
	"errors"
)

// Keys used by the storefront client in durable storage.
const (
	KeyAuthToken = "authToken"
	KeyAuthUser  = "authUser"
	KeyCartItems = "cartItems"
)

// ErrClosed is returned by backends used after Close.
var ErrClosed = errors.New("store closed")

// KV is a durable string key-value store scoped to one client profile.
// Writes are last-write-wins; there are no transactions across keys.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}
