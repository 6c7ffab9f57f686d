// Package receiptindex implements C1, the in-memory receipt-id →
// TransactionKey reverse index (spec.md §4.1). Entries are removed only via
// DrainFor or the retention sweep (Evict); the index must tolerate
// out-of-order arrival of receipt views relative to the outcomes that
// reference them.
//
// Bucket naming below (ReceiptsMapTable) follows the key/value-layout
// comment convention of the teacher's erigon-lib/kv/tables.go.
package receiptindex

import (
	"sync"

	"github.com/near/tx-indexer/primitives"
	"go.uber.org/zap"
)

// ReceiptsMapTable names the persisted form of this index once entries
// drain to storage: receipt_id -> (parent_transaction_hash, block_height,
// shard_id, receiver_id).
const ReceiptsMapTable = "receipts_map"

// entry additionally tracks the block height the receipt id was registered
// at, so the age-based retention sweep can evict entries whose owning
// transaction never finalized within the configured window. ReceiverId and
// ShardId are unknown at Register time (the outcome that spawns a receipt id
// names only the id); they're filled in by Attach once the receipt's own
// ReceiptView arrives in a later (or the same) block.
type entry struct {
	key          primitives.TransactionKey
	registeredAt primitives.BlockHeight
	receiverId   primitives.AccountId
	shardId      primitives.ShardId
}

// DrainedReceipt is one entry persisted as a ReceiptRecord when its owning
// transaction finalizes (spec.md §3's receipt-id/parent-tx-hash/block-height/
// shard-id tuple, SPEC_FULL.md §3's receiver_id addition).
type DrainedReceipt struct {
	ReceiptId  primitives.CryptoHash
	ReceiverId primitives.AccountId
	ShardId    primitives.ShardId
}

// Index is C1. Safe for concurrent use: the Assembly Engine is the sole
// writer, but spec.md §5 allows guarding it with a RWMutex for read-only
// debug endpoints, so all methods take the lock even though the engine
// itself is single-threaded.
type Index struct {
	mu      sync.RWMutex
	entries map[primitives.CryptoHash]entry
	log     *zap.Logger

	conflicts int64
}

// New constructs an empty Index.
func New(log *zap.Logger) *Index {
	if log == nil {
		log = zap.NewNop()
	}
	return &Index{
		entries: make(map[primitives.CryptoHash]entry),
		log:     log.Named("receiptindex"),
	}
}

// Register binds receiptHash to txKey. It is idempotent: rebinding to the
// same key is a no-op. Rebinding to a different key is a conflict — never
// expected from a well-formed stream — which is logged as a warning and
// counted, keeping the first binding (spec.md §4.1, §7, §9).
func (idx *Index) Register(receiptHash primitives.CryptoHash, txKey primitives.TransactionKey, atHeight primitives.BlockHeight) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	existing, ok := idx.entries[receiptHash]
	if !ok {
		idx.entries[receiptHash] = entry{key: txKey, registeredAt: atHeight}
		return
	}
	if existing.key == txKey {
		return
	}
	idx.conflicts++
	idx.log.Warn("receipt registered to two different transaction keys; keeping first binding",
		zap.Stringer("receipt_id", receiptHash),
		zap.Any("kept", existing.key),
		zap.Any("rejected", txKey),
	)
}

// Lookup returns the TransactionKey bound to receiptHash, if any.
func (idx *Index) Lookup(receiptHash primitives.CryptoHash) (primitives.TransactionKey, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	e, ok := idx.entries[receiptHash]
	return e.key, ok
}

// Attach records the receiver id and shard id carried by receiptHash's own
// ReceiptView, once it arrives, so DrainFor can persist a complete
// ReceiptRecord instead of a bare hash. It is a no-op (returns false) if
// receiptHash isn't registered — e.g. the orphan-receipt case, where the
// caller never calls Attach in the first place.
func (idx *Index) Attach(receiptHash primitives.CryptoHash, receiverId primitives.AccountId, shardId primitives.ShardId) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	e, ok := idx.entries[receiptHash]
	if !ok {
		return false
	}
	e.receiverId = receiverId
	e.shardId = shardId
	idx.entries[receiptHash] = e
	return true
}

// DrainFor removes and returns every receipt bound to txKey, called when the
// owning transaction finalizes (spec.md §4.1): the caller persists these as
// ReceiptRecords before the entries are forgotten here. A drained receipt
// whose ReceiptView never arrived (Attach was never called) still drains
// with a zero ReceiverId/ShardId — it can only happen for a receipt that was
// registered by an outcome but whose own view arrives in some later,
// unprocessed block.
func (idx *Index) DrainFor(txKey primitives.TransactionKey) []DrainedReceipt {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	var drained []DrainedReceipt
	for hash, e := range idx.entries {
		if e.key == txKey {
			drained = append(drained, DrainedReceipt{ReceiptId: hash, ReceiverId: e.receiverId, ShardId: e.shardId})
			delete(idx.entries, hash)
		}
	}
	return drained
}

// EvictOlderThan removes every entry registered at a height at or below
// cutoff that still belongs to keys, returning how many entries were
// evicted. Used by the retention sweep (spec.md §5, §7) when a transaction
// is abandoned; the caller is responsible for deciding which keys are
// abandoned and logging/counting the "abandoned" metric.
func (idx *Index) EvictOlderThan(cutoff primitives.BlockHeight, keys map[primitives.TransactionKey]struct{}) int {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	evicted := 0
	for hash, e := range idx.entries {
		if _, stale := keys[e.key]; stale && e.registeredAt <= cutoff {
			delete(idx.entries, hash)
			evicted++
		}
	}
	return evicted
}

// Len reports the number of live entries, for the C1 size gauge and debug
// endpoint.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}

// Conflicts reports the lifetime count of Register conflicts observed.
func (idx *Index) Conflicts() int64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.conflicts
}
