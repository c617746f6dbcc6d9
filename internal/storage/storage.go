// Package storage wraps the S3 API used against the Cloudflare R2 bucket.
// Services depend on the ObjectStore interface so tests can substitute the
// in-memory implementation.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/mjuhl/wortkiste/internal/common"
)

// WriteCondition makes a Put conditional. IfMatch writes only when the
// object's current ETag matches; IfNoneMatch writes only when the object
// does not exist yet. Zero value means unconditional.
type WriteCondition struct {
	IfMatch     string
	IfNoneMatch bool
}

// ObjectInfo describes one listed object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// ObjectStore is the subset of bucket operations the services need.
// Missing objects are reported as common.ErrNotFound; a conditional write
// that loses the race returns ErrPreconditionFailed.
type ObjectStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	GetWithETag(ctx context.Context, key string) ([]byte, string, error)
	Put(ctx context.Context, key string, body []byte, contentType string) error
	PutIf(ctx context.Context, key string, body []byte, contentType string, cond WriteCondition) error
	Head(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

// ErrPreconditionFailed reports a conditional write rejected by the store
// because another writer got there first.
var ErrPreconditionFailed = errors.New("precondition failed")

// IsNotFound reports whether err means the object does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, common.ErrNotFound)
}
