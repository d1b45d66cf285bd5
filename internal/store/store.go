// Package store persists snapshots, the concrete backends live in the
// subpackages.
package store

import (
	"bgprices/internal/snapshot"
	"context"
	"fmt"
	"time"
)

// Store is an append-only, ordered list of snapshots.
//
// note: fault injection point
type Store interface {
	// ReadLatest returns the last appended snapshot, or an empty snapshot
	// when nothing was persisted yet.
	ReadLatest(ctx context.Context) (snapshot.Snapshot, error)
	// Read returns the snapshot stored under label.
	Read(ctx context.Context, label string) (snapshot.Snapshot, error)
	// Append stores snap under label (disambiguated when taken), marks it as
	// current and returns the label it was stored under.
	Append(ctx context.Context, snap snapshot.Snapshot, label string) (string, error)
	// Labels lists the stored labels in append order.
	Labels(ctx context.Context) ([]string, error)
	Close() error
}

// ErrNotFound is returned by Read for an unknown label.
type ErrNotFound struct {
	Label string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("snapshot '%s' not found", e.Label)
}

const LabelLayout = "2006-01"

// DefaultLabel is the year and month the snapshot was taken in.
func DefaultLabel(t time.Time) string {
	return t.Format(LabelLayout)
}

// Disambiguate returns label if it is not in existing, otherwise the first of
// label(1), label(2), ... that is free.
func Disambiguate(label string, existing []string) string {
	taken := make(map[string]struct{}, len(existing))
	for _, l := range existing {
		taken[l] = struct{}{}
	}
	if _, ok := taken[label]; !ok {
		return label
	}
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s(%d)", label, i)
		if _, ok := taken[candidate]; !ok {
			return candidate
		}
	}
}
