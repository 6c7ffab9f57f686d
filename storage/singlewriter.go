package storage

import (
	"fmt"

	"github.com/gofrs/flock"
)

// WriterLock enforces the single-writer invariant (spec.md §5: concurrency
// width 1) across process restarts: only one txindexer process may hold the
// lock for a given storePath at a time, independent of which backend owns
// that path.
type WriterLock struct {
	fl *flock.Flock
}

// AcquireWriterLock takes an exclusive, non-blocking lock on storePath+".lock".
// It returns an error immediately if another process already holds it,
// rather than blocking — a second instance starting against the same data
// directory is a misconfiguration, not a condition to wait out.
func AcquireWriterLock(storePath string) (*WriterLock, error) {
	fl := flock.New(storePath + ".lock")
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("storage: acquire writer lock for %s: %w", storePath, err)
	}
	if !locked {
		return nil, fmt.Errorf("storage: %s is already locked by another indexer process", storePath)
	}
	return &WriterLock{fl: fl}, nil
}

// Release gives up the lock.
func (w *WriterLock) Release() error {
	return w.fl.Unlock()
}
