// Package kv is the persistence adapter every chat component goes through.
// Values are opaque JSON documents addressed by string keys; prefix scans
// return entries in the order their keys were first written.
package kv

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pansan0/saleidia/internal/apperr"
	"github.com/pkg/errors"
)

type Entry struct {
	Key   string
	Value []byte
}

type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	// SetIfAbsent writes only when key does not exist and reports whether it wrote.
	SetIfAbsent(ctx context.Context, key string, value []byte) (bool, error)
	Delete(ctx context.Context, key string) error
	GetByPrefix(ctx context.Context, prefix string) ([]Entry, error)
	// Next atomically increments the named counter and returns the new value.
	// The first call for a counter returns 1.
	Next(ctx context.Context, counter string) (int64, error)
}

func unavailable(err error, op string) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(apperr.ErrStoreUnavailable, "%s: %v", op, err)
}

// Key joins key segments with ':'.
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

func GetJSON(ctx context.Context, s Store, key string, v any) (bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, errors.Wrapf(err, "decode %s", key)
	}
	return true, nil
}

func SetJSON(ctx context.Context, s Store, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "encode %s", key)
	}
	return s.Set(ctx, key, raw)
}

func SetJSONIfAbsent(ctx context.Context, s Store, key string, v any) (bool, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return false, errors.Wrapf(err, "encode %s", key)
	}
	return s.SetIfAbsent(ctx, key, raw)
}

// ListJSON decodes every value under prefix into T, keeping scan order.
func ListJSON[T any](ctx context.Context, s Store, prefix string) ([]T, error) {
	entries, err := s.GetByPrefix(ctx, prefix)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(entries))
	for _, e := range entries {
		var v T
		if err := json.Unmarshal(e.Value, &v); err != nil {
			return nil, errors.Wrapf(err, "decode %s", e.Key)
		}
		out = append(out, v)
	}
	return out, nil
}
