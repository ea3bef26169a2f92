package kvstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key has no value.
var ErrNotFound = errors.New("key not found")

// Entry describes a stored key without its value.
type Entry struct {
	Key       string
	Size      int
	UpdatedAt time.Time
}

// KV is the persistence surface required by checkpoint storage.
//
//go:generate mockgen -destination=mocks/mock_kv.go -source=kv.go KV
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]Entry, error)
	DeletePrefix(ctx context.Context, prefix string) (int64, error)
}
