// Package assembly implements C3, the Assembly Engine that turns one
// StreamerMessage into committed storage writes (spec.md §4.3). Processing
// within a block is strictly ordered: transactions, then receipts, then
// outcomes, then the finalization sweep, then the retention sweep, then the
// progress cursor advances as the commit point (spec.md §4.3, §4.6, §5).
package assembly

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/near/tx-indexer/codec"
	"github.com/near/tx-indexer/mathutil"
	"github.com/near/tx-indexer/metrics"
	"github.com/near/tx-indexer/primitives"
	"github.com/near/tx-indexer/receiptindex"
	"github.com/near/tx-indexer/storage"
	"github.com/near/tx-indexer/txcache"
)

// RetentionConfig bounds how long an in-flight transaction may wait for
// finalization before it is abandoned (spec.md §5).
type RetentionConfig struct {
	// MaxAgeBlocks is the number of blocks a CollectingTransaction may sit in
	// C2 without finalizing before the retention sweep evicts it.
	MaxAgeBlocks primitives.BlockHeight
}

// DefaultRetentionConfig matches the source's documented default window.
var DefaultRetentionConfig = RetentionConfig{MaxAgeBlocks: 1000}

// Engine is C3. It owns no storage connection pool of its own: Store is
// injected so either backend (boltstore or sqlstore) can drive it.
type Engine struct {
	store     storage.Store
	index     *receiptindex.Index
	cache     *txcache.Cache
	metrics   *metrics.Metrics
	log       *zap.Logger
	retention RetentionConfig
	indexerId string
}

// New constructs an Engine. log may be nil (a no-op logger is substituted);
// m may be nil (metrics become no-ops).
func New(indexerId string, store storage.Store, retention RetentionConfig, m *metrics.Metrics, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		store:     store,
		index:     receiptindex.New(log),
		cache:     txcache.New(),
		metrics:   m,
		log:       log.Named("assembly"),
		retention: retention,
		indexerId: indexerId,
	}
}

// ProcessBlock runs the full per-block pipeline against msg and commits the
// progress cursor last, so a crash mid-block is always safe to resume from
// the previous cursor (spec.md §4.6, §7).
func (e *Engine) ProcessBlock(ctx context.Context, msg primitives.StreamerMessage) error {
	height := msg.Block.Height

	for _, shard := range msg.Shards {
		for _, tx := range shard.Transactions {
			e.cache.Start(tx, height, e.index)
		}
	}

	for _, shard := range msg.Shards {
		for _, r := range shard.Receipts {
			e.attachReceipt(ctx, r, height, shard.ShardId)
		}
	}

	for _, shard := range msg.Shards {
		for _, outcome := range shard.Outcomes {
			if err := e.attachOutcome(ctx, outcome, height); err != nil {
				return err
			}
		}
	}

	if err := e.sweepFinalized(ctx); err != nil {
		return err
	}
	e.sweepRetention(ctx, height)
	e.reportGauges()

	if err := e.store.PutCursor(ctx, e.indexerId, height); err != nil {
		return fmt.Errorf("assembly: commit cursor at height %d: %w", height, err)
	}
	if e.metrics != nil {
		e.metrics.BlocksProcessedTotal.Inc()
		e.metrics.LatestBlockHeight.Set(float64(int64(height)))
	}
	return nil
}

// attachReceipt routes a shard receipt view to its owning C2 entry via the
// receipt index. A receipt whose parent key is unknown is an orphan (spec.md
// §4.1, §7): it is counted and dropped, since without a parent it can never
// be attributed to a transaction. The receipt's own receiver id and the
// shard it was observed on are recorded into the index so sweepFinalized can
// persist a complete ReceiptRecord later.
func (e *Engine) attachReceipt(ctx context.Context, r primitives.ReceiptView, height primitives.BlockHeight, shardId primitives.ShardId) {
	key, ok := e.index.Lookup(r.ReceiptId)
	if !ok {
		e.log.Debug("orphan receipt: no registered parent transaction key", zap.Stringer("receipt_id", r.ReceiptId))
		if e.metrics != nil {
			e.metrics.OrphanReceiptsTotal.Inc()
		}
		return
	}
	e.index.Attach(r.ReceiptId, r.ReceiverId, shardId)
	if !e.cache.AttachReceipt(key, r) {
		e.log.Debug("receipt parent key resolved but C2 entry already evicted", zap.Stringer("receipt_id", r.ReceiptId))
	}
}

// attachOutcome routes a shard execution outcome to its owning C2 entry.
// Like attachReceipt, an outcome whose id resolves to no known key is an
// orphan and is dropped after being counted.
func (e *Engine) attachOutcome(ctx context.Context, outcome primitives.ExecutionOutcomeWithIdView, height primitives.BlockHeight) error {
	key, ok := e.index.Lookup(outcome.Id)
	if !ok {
		e.log.Debug("orphan outcome: no registered parent transaction key", zap.Stringer("outcome_id", outcome.Id))
		if e.metrics != nil {
			e.metrics.OrphanReceiptsTotal.Inc()
		}
		return nil
	}
	e.cache.AttachOutcome(key, outcome, height, e.index)
	return nil
}

// sweepFinalized tries every live C2 entry for finality (spec.md §4.3 step
// 4) and commits the ones that resolve: receipts drain from C1 into
// persisted ReceiptRecords, the encoded TransactionDetails is written, and
// the C2 entry is evicted.
func (e *Engine) sweepFinalized(ctx context.Context) error {
	for _, key := range e.cache.Keys() {
		details, ok := e.cache.TryFinalize(key)
		if !ok {
			continue
		}
		encoded, err := codec.Encode(details)
		if err != nil {
			return fmt.Errorf("assembly: encode finalized transaction %s: %w", key.TransactionHash, err)
		}
		if err := e.store.PutTransaction(ctx, key.TransactionHash, key.BlockHeight, details.Transaction.SignerId, encoded); err != nil {
			if e.metrics != nil {
				e.metrics.StorageWriteErrorTotal.Inc()
			}
			return fmt.Errorf("assembly: persist finalized transaction %s: %w", key.TransactionHash, err)
		}
		for _, drained := range e.index.DrainFor(key) {
			rec := primitives.ReceiptRecord{
				ReceiptId:             drained.ReceiptId,
				ParentTransactionHash: key.TransactionHash,
				ReceiverId:            drained.ReceiverId,
				BlockHeight:           key.BlockHeight,
				ShardId:               drained.ShardId,
			}
			if err := e.store.PutReceipt(ctx, rec); err != nil {
				if e.metrics != nil {
					e.metrics.StorageWriteErrorTotal.Inc()
				}
				return fmt.Errorf("assembly: persist receipt record %s: %w", drained.ReceiptId, err)
			}
		}
		e.cache.Evict(key)
	}
	return nil
}

// sweepRetention evicts transactions that have sat in C2 past the
// configured retention window without finalizing (spec.md §5). This is a
// best-effort cleanup: the abandoned transaction's receipts are also
// dropped from C1, since nothing will ever drain them via finalization.
func (e *Engine) sweepRetention(ctx context.Context, currentHeight primitives.BlockHeight) {
	if e.retention.MaxAgeBlocks == 0 {
		return
	}
	diff, underflowed := mathutil.SafeSub(uint64(currentHeight), uint64(e.retention.MaxAgeBlocks))
	if underflowed {
		return
	}
	cutoff := primitives.BlockHeight(diff)
	stale := e.cache.StaleKeys(cutoff)
	if len(stale) == 0 {
		return
	}
	staleSet := make(map[primitives.TransactionKey]struct{}, len(stale))
	for _, k := range stale {
		staleSet[k] = struct{}{}
	}
	evictedReceipts := e.index.EvictOlderThan(cutoff, staleSet)
	for _, k := range stale {
		e.cache.Evict(k)
	}
	e.log.Info("retention sweep abandoned stale in-flight transactions",
		zap.Int("transactions", len(stale)),
		zap.Int("orphaned_receipt_entries", evictedReceipts),
		zap.Uint64("cutoff_height", uint64(cutoff)),
	)
	if e.metrics != nil {
		for range stale {
			e.metrics.AbandonedTxTotal.Inc()
		}
	}
}

func (e *Engine) reportGauges() {
	if e.metrics == nil {
		return
	}
	e.metrics.ReceiptIndexSize.Set(float64(e.index.Len()))
	e.metrics.TransactionCacheSize.Set(float64(e.cache.Len()))
	e.metrics.ReceiptIndexConflicts.Set(float64(e.index.Conflicts()))
}

// DebugSnapshot returns a JSON-friendly view of C1/C2 state for the
// /debug/cache endpoint.
func (e *Engine) DebugSnapshot() interface{} {
	return map[string]interface{}{
		"receipt_index_size":      e.index.Len(),
		"receipt_index_conflicts": e.index.Conflicts(),
		"transaction_cache_size":  e.cache.Len(),
		"transaction_cache_keys":  e.cache.Keys(),
	}
}
