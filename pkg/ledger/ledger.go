// Package ledger persists which posts have been answered so that no post is
// replied to twice, across runs and across processes sharing the store.
package ledger

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable marks storage failures. Callers treat it as fatal to the run.
var ErrUnavailable = errors.New("interaction ledger unavailable")

// ErrInvalidRecord is returned for records without a platform or post id.
var ErrInvalidRecord = errors.New("invalid interaction record")

// Record is one answered post.
type Record struct {
	Platform  string
	PostID    string
	PostURL   string
	Reply     string
	CreatedAt time.Time
}

func (r Record) validate() error {
	if r.Platform == "" || r.PostID == "" {
		return ErrInvalidRecord
	}
	return nil
}

// Ledger is the store of interaction records. At most one record exists per
// (platform, post id).
type Ledger interface {
	// HasInteracted reports whether a record exists for the key.
	HasInteracted(ctx context.Context, platform, postID string) (bool, error)

	// Record inserts rec unless its key already exists. inserted reports
	// whether a new row was written; a duplicate is not an error and leaves
	// the existing record untouched.
	Record(ctx context.Context, rec Record) (inserted bool, err error)

	// List returns the newest records first. An empty platform lists all.
	List(ctx context.Context, platform string, limit int) ([]Record, error)

	// Count returns the number of records. An empty platform counts all.
	Count(ctx context.Context, platform string) (int, error)

	Close() error
}
