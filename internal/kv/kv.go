package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformed wraps a stored value that could not be decoded.
var ErrMalformed = errors.New("malformed stored value")

// Store is the durable per-device key-value store. Values are opaque bytes;
// callers use GetJSON/SetJSON for structured records.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
}

// GetJSON decodes the value at key into dest. It reports false when the key
// is absent. A value that does not decode yields ErrMalformed.
func GetJSON(ctx context.Context, s Store, key string, dest any) (bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrMalformed, key, err)
	}
	return true, nil
}

// SetJSON encodes value and stores it at key.
func SetJSON(ctx context.Context, s Store, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return s.Set(ctx, key, raw)
}

// Prefixed scopes every key of an underlying store under a prefix.
type Prefixed struct {
	store  Store
	prefix string
}

// WithPrefix returns a view of s whose keys are prefix+key.
func WithPrefix(s Store, prefix string) *Prefixed {
	return &Prefixed{store: s, prefix: prefix}
}

func (p *Prefixed) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return p.store.Get(ctx, p.prefix+key)
}

func (p *Prefixed) Set(ctx context.Context, key string, value []byte) error {
	return p.store.Set(ctx, p.prefix+key, value)
}

func (p *Prefixed) Remove(ctx context.Context, key string) error {
	return p.store.Remove(ctx, p.prefix+key)
}

// DeviceStore returns the namespace used for one device's local records.
func DeviceStore(s Store, deviceID string) Store {
	return WithPrefix(s, "device:"+deviceID+":")
}
