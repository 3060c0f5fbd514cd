package storage

import (
	"context"
	"errors"
)

// ErrObjectNotFound is returned by Get when no object has the key.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStorage is the blob store the run report archive writes to.
type ObjectStorage interface {
	// Put stores body under key, replacing any previous object.
	Put(ctx context.Context, key string, body []byte, contentType string, meta map[string]string) error
	// Get returns the object body, or an error wrapping ErrObjectNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
}
