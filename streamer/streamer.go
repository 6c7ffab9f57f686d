// Package streamer implements C7, the single-writer stream driver that pulls
// blocks from a BlockSource and feeds them to the Assembly Engine in strict
// height order (spec.md §4.7, §5: concurrency width 1).
package streamer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/near/tx-indexer/primitives"
)

// ErrNoMoreBlocks signals a BlockSource is exhausted (used by finite sources
// such as FileBlockSource; a live chain source never returns it).
var ErrNoMoreBlocks = errors.New("streamer: no more blocks")

// BlockSource yields StreamerMessages in increasing height order starting at
// (at least) fromHeight. Implementations may block waiting for new blocks.
type BlockSource interface {
	Next(ctx context.Context, fromHeight primitives.BlockHeight) (primitives.StreamerMessage, error)
	LatestHeight(ctx context.Context) (primitives.BlockHeight, error)
}

// BlockProcessor is the subset of assembly.Engine the driver depends on.
type BlockProcessor interface {
	ProcessBlock(ctx context.Context, msg primitives.StreamerMessage) error
}

// Driver runs the width-1 fetch/process loop.
type Driver struct {
	source    BlockSource
	processor BlockProcessor
	log       *zap.Logger
	backoff   backoff.BackOff
}

// New constructs a Driver. log may be nil.
func New(source BlockSource, processor BlockProcessor, log *zap.Logger) *Driver {
	if log == nil {
		log = zap.NewNop()
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0 // retry indefinitely; the caller cancels ctx to stop
	return &Driver{source: source, processor: processor, log: log.Named("streamer"), backoff: b}
}

// Run drives the loop starting at fromHeight until ctx is canceled or the
// source reports ErrNoMoreBlocks. Each block's processing errors are retried
// with exponential backoff (spec.md §7: transient storage/stream errors are
// recoverable; the block is never skipped).
func (d *Driver) Run(ctx context.Context, fromHeight primitives.BlockHeight) error {
	height := fromHeight
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		msg, err := d.fetchWithRetry(ctx, height)
		if errors.Is(err, ErrNoMoreBlocks) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("streamer: fetch block at height %d: %w", height, err)
		}

		if err := d.processWithRetry(ctx, msg); err != nil {
			return fmt.Errorf("streamer: process block at height %d: %w", msg.Block.Height, err)
		}
		d.log.Info("processed block", zap.Uint64("height", uint64(msg.Block.Height)))

		height = msg.Block.Height + 1
	}
}

func (d *Driver) fetchWithRetry(ctx context.Context, height primitives.BlockHeight) (primitives.StreamerMessage, error) {
	var msg primitives.StreamerMessage
	operation := func() error {
		var err error
		msg, err = d.source.Next(ctx, height)
		if errors.Is(err, ErrNoMoreBlocks) {
			return backoff.Permanent(err)
		}
		return err
	}
	err := backoff.Retry(operation, backoff.WithContext(d.backoff, ctx))
	return msg, err
}

func (d *Driver) processWithRetry(ctx context.Context, msg primitives.StreamerMessage) error {
	attempt := 0
	operation := func() error {
		attempt++
		err := d.processor.ProcessBlock(ctx, msg)
		if err != nil {
			d.log.Warn("block processing failed, retrying", zap.Uint64("height", uint64(msg.Block.Height)), zap.Int("attempt", attempt), zap.Error(err))
		}
		return err
	}
	return backoff.Retry(operation, backoff.WithContext(d.backoff, ctx))
}
