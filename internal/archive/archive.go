// Package archive stores write-once milestone snapshots and feedback.
package archive

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = errors.New("archive object not found")

// Object describes one stored key.
type Object struct {
	Key        string    `json:"key"`
	ModifiedAt time.Time `json:"modified_at"`
	Size       int64     `json:"size"`
}

// Store is a blob store keyed by slash separated paths.
type Store interface {
	// PutIfAbsent writes body unless key exists and reports whether it wrote.
	PutIfAbsent(ctx context.Context, key string, body []byte) (bool, error)
	// Put writes body unconditionally.
	Put(ctx context.Context, key string, body []byte) error
	// List returns the objects whose key starts with prefix.
	List(ctx context.Context, prefix string) ([]Object, error)
	Get(ctx context.Context, key string) ([]byte, error)
}

func validKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "..") {
		return errors.New("invalid archive key " + key)
	}
	return nil
}
