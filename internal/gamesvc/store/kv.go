package store

import (
	"context"
	"errors"
)

// ErrVersionConflict is returned by SetCAS when the snapshot was modified
// since it was read. Callers re-read and re-apply.
var ErrVersionConflict = errors.New("snapshot version conflict")

// Entry is one stored snapshot plus its compare-and-swap version.
type Entry struct {
	Key     string
	Value   []byte
	Version int64
}

// KV is the external key-value snapshot store. Values are full JSON
// documents; every write replaces the whole document. A missing key yields a
// nil value and no error, mirroring how callers treat absent games.
type KV interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Set(ctx context.Context, key string, value []byte) error
	// SetCAS replaces the value only if the stored version still matches.
	SetCAS(ctx context.Context, key string, value []byte, version int64) error
	// Delete removes the key and returns the previous value (nil when the key
	// was absent). The returned value is the linearization point for
	// exactly-once settlement.
	Delete(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]Entry, error)
}
