// Package txcache implements C2, the transaction cache holding
// partially-assembled transactions keyed by (tx-hash, block-height)
// (spec.md §4.2). Eviction is driven externally by the Assembly Engine,
// either on finalization or by the retention sweep.
package txcache

import (
	"sort"
	"sync"

	"github.com/near/tx-indexer/primitives"
	"github.com/near/tx-indexer/receiptindex"
)

// Cache is C2.
type Cache struct {
	mu      sync.RWMutex
	entries map[primitives.TransactionKey]*primitives.CollectingTransaction
}

// New constructs an empty Cache.
func New() *Cache {
	return &Cache{entries: make(map[primitives.TransactionKey]*primitives.CollectingTransaction)}
}

// Start creates a new C2 entry from an indexed transaction (C2.start,
// spec.md §4.2): it seeds the outcome list with the transaction's own
// ExecutionOutcome and registers every receipt id that outcome spawned into
// the receipt index, bound to this entry's key.
func (c *Cache) Start(tx primitives.IndexerTransactionWithOutcome, height primitives.BlockHeight, idx *receiptindex.Index) *primitives.CollectingTransaction {
	ct := primitives.NewCollectingTransaction(tx, height)
	key := ct.Key()

	c.mu.Lock()
	c.entries[key] = ct
	c.mu.Unlock()

	for _, receiptId := range tx.Outcome.Outcome.ReceiptIds {
		idx.Register(receiptId, key, height)
	}
	return ct
}

// Get returns the entry for key, if present.
func (c *Cache) Get(key primitives.TransactionKey) (*primitives.CollectingTransaction, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ct, ok := c.entries[key]
	return ct, ok
}

// AttachReceipt appends a receipt view to the entry at key (C2.attach_receipt).
func (c *Cache) AttachReceipt(key primitives.TransactionKey, receipt primitives.ReceiptView) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	ct, ok := c.entries[key]
	if !ok {
		return false
	}
	ct.Receipts = append(ct.Receipts, receipt)
	return true
}

// AttachOutcome appends an execution outcome to the entry at key
// (C2.attach_outcome) and registers every receipt id it spawned into the
// receipt index under the same key, so later blocks' receipts/outcomes
// route correctly.
func (c *Cache) AttachOutcome(key primitives.TransactionKey, outcome primitives.ExecutionOutcomeWithIdView, atHeight primitives.BlockHeight, idx *receiptindex.Index) bool {
	c.mu.Lock()
	ct, ok := c.entries[key]
	if ok {
		ct.ExecutionOutcome = append(ct.ExecutionOutcome, outcome)
	}
	c.mu.Unlock()
	if !ok {
		return false
	}
	for _, receiptId := range outcome.Outcome.ReceiptIds {
		idx.Register(receiptId, key, atHeight)
	}
	return true
}

// TryFinalize returns the frozen TransactionDetails for key iff the outcome
// chain resolves to a definitive status (C2.try_finalize, spec.md §4.2).
// Otherwise it returns (zero, false) and leaves the entry in the cache.
func (c *Cache) TryFinalize(key primitives.TransactionKey) (primitives.TransactionDetails, bool) {
	c.mu.RLock()
	ct, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return primitives.TransactionDetails{}, false
	}
	if _, final := ct.FinalStatus(); !final {
		return primitives.TransactionDetails{}, false
	}
	details, err := ct.ToTransactionDetails()
	if err != nil {
		return primitives.TransactionDetails{}, false
	}
	return details, true
}

// Evict removes the entry at key, called after it finalizes or is
// abandoned by the retention sweep.
func (c *Cache) Evict(key primitives.TransactionKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Keys returns a snapshot of all live keys, oldest-anchoring-height first,
// for the finalization sweep (spec.md §4.3 step 4) and the debug snapshot.
func (c *Cache) Keys() []primitives.TransactionKey {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]primitives.TransactionKey, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].BlockHeight < keys[j].BlockHeight })
	return keys
}

// StaleKeys returns every key whose entry was anchored at a height at or
// below cutoff — candidates for the retention sweep's eviction.
func (c *Cache) StaleKeys(cutoff primitives.BlockHeight) []primitives.TransactionKey {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var stale []primitives.TransactionKey
	for k, ct := range c.entries {
		if ct.BlockHeight <= cutoff {
			stale = append(stale, k)
		}
	}
	return stale
}

// Len reports the number of in-flight entries, for the C2 size gauge.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
