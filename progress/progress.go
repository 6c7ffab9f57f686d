// Package progress implements C6, the progress cursor the stream driver
// consults on startup to decide where to resume (spec.md §4.6).
package progress

import (
	"context"
	"errors"
	"fmt"

	"github.com/near/tx-indexer/primitives"
	"github.com/near/tx-indexer/storage"
)

// StartMode selects how the driver picks its starting height (spec.md §4.6,
// mirroring the source's StartOptions enum: FromBlock/FromInterruption/
// FromLatest).
type StartMode uint8

const (
	// FromHeight starts at an operator-supplied height, ignoring any
	// persisted cursor.
	FromHeight StartMode = iota
	// FromInterruption resumes from the last committed cursor, falling back
	// to FromLatest if none exists yet.
	FromInterruption
	// FromLatest starts at whatever height LatestHeightFunc reports.
	FromLatest
)

// LatestHeightFunc asks the chain (or its block source) for the current
// head height, used by FromLatest and as FromInterruption's cold-start
// fallback.
type LatestHeightFunc func(ctx context.Context) (primitives.BlockHeight, error)

// Tracker is C6.
type Tracker struct {
	store     storage.Store
	indexerId string
}

// New constructs a Tracker bound to indexerId's cursor row.
func New(store storage.Store, indexerId string) *Tracker {
	return &Tracker{store: store, indexerId: indexerId}
}

// Resolve computes the height the stream driver should start from, per mode.
func (t *Tracker) Resolve(ctx context.Context, mode StartMode, fromHeight primitives.BlockHeight, latest LatestHeightFunc) (primitives.BlockHeight, error) {
	switch mode {
	case FromHeight:
		return fromHeight, nil
	case FromInterruption:
		height, err := t.store.GetCursor(ctx, t.indexerId)
		if err == nil {
			return height, nil
		}
		var notFound *storage.NotFoundError
		if !errors.As(err, &notFound) {
			return 0, fmt.Errorf("progress: read cursor: %w", err)
		}
		if latest == nil {
			return 0, fmt.Errorf("progress: no persisted cursor for %q and no latest-height source configured", t.indexerId)
		}
		return latest(ctx)
	case FromLatest:
		if latest == nil {
			return 0, fmt.Errorf("progress: from-latest requested with no latest-height source configured")
		}
		return latest(ctx)
	default:
		return 0, fmt.Errorf("progress: unknown start mode %d", mode)
	}
}

// Advance persists height as the new commit point. The Assembly Engine calls
// this itself (via storage.Store.PutCursor) as the final step of processing
// a block; Tracker.Advance exists for callers (e.g. a manual reset CLI
// command) that need to move the cursor outside the normal block loop.
func (t *Tracker) Advance(ctx context.Context, height primitives.BlockHeight) error {
	if err := t.store.PutCursor(ctx, t.indexerId, height); err != nil {
		return fmt.Errorf("progress: advance cursor to %d: %w", height, err)
	}
	return nil
}

// Current returns the last committed height, or ErrNotFound if the indexer
// has never advanced.
func (t *Tracker) Current(ctx context.Context) (primitives.BlockHeight, error) {
	return t.store.GetCursor(ctx, t.indexerId)
}
