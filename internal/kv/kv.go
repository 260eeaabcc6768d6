// Package kv provides the scoped key-value persistence used by the local
// cart and wishlist stores.
package kv

import (
	"context"
	"encoding/json"
	"fmt"
)

// DefaultNamespace prefixes every key written by the client.
const DefaultNamespace = "@cartsync_"

// Storage is a scoped key-value store. Every operation may fail; callers at
// the store boundary log failures instead of propagating them.
type Storage interface {
	Save(ctx context.Context, key string, value []byte) error
	Load(ctx context.Context, key string) (value []byte, ok bool, err error)
	Remove(ctx context.Context, key string) error
}

// SaveJSON encodes v and saves it under key.
func SaveJSON(ctx context.Context, s Storage, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Save(ctx, key, data)
}

// LoadJSON loads key into v. It reports false when the key is absent.
func LoadJSON(ctx context.Context, s Storage, key string, v interface{}) (bool, error) {
	data, ok, err := s.Load(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}
