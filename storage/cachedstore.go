package storage

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/near/tx-indexer/primitives"
)

// CachedStore wraps a Store with bounded in-memory read-through caches for
// GetTransaction and GetReceipt. Both are safe to cache unconditionally:
// a transaction or receipt record is written exactly once, by the
// finalization sweep, and is never updated afterward (spec.md §4.3), so a
// cached entry can never go stale.
type CachedStore struct {
	Store

	transactions *lru.Cache[primitives.CryptoHash, []byte]
	receipts     *lru.Cache[primitives.CryptoHash, primitives.ReceiptRecord]
}

// NewCachedStore wraps inner with read-through LRU caches of the given size
// for its two point-lookup operations. size must be positive.
func NewCachedStore(inner Store, size int) (*CachedStore, error) {
	txCache, err := lru.New[primitives.CryptoHash, []byte](size)
	if err != nil {
		return nil, err
	}
	receiptCache, err := lru.New[primitives.CryptoHash, primitives.ReceiptRecord](size)
	if err != nil {
		return nil, err
	}
	return &CachedStore{Store: inner, transactions: txCache, receipts: receiptCache}, nil
}

// PutTransaction writes through to the inner store and seeds the cache, so a
// lookup immediately following a write doesn't miss.
func (c *CachedStore) PutTransaction(ctx context.Context, txHash primitives.CryptoHash, height primitives.BlockHeight, signer primitives.AccountId, encoded []byte) error {
	if err := c.Store.PutTransaction(ctx, txHash, height, signer, encoded); err != nil {
		return err
	}
	c.transactions.Add(txHash, encoded)
	return nil
}

// GetTransaction serves from cache when present, falling back to the inner
// store on a miss.
func (c *CachedStore) GetTransaction(ctx context.Context, txHash primitives.CryptoHash) ([]byte, error) {
	if encoded, ok := c.transactions.Get(txHash); ok {
		return encoded, nil
	}
	encoded, err := c.Store.GetTransaction(ctx, txHash)
	if err != nil {
		return nil, err
	}
	c.transactions.Add(txHash, encoded)
	return encoded, nil
}

// PutReceipt writes through to the inner store and seeds the cache.
func (c *CachedStore) PutReceipt(ctx context.Context, rec primitives.ReceiptRecord) error {
	if err := c.Store.PutReceipt(ctx, rec); err != nil {
		return err
	}
	c.receipts.Add(rec.ReceiptId, rec)
	return nil
}

// GetReceipt serves from cache when present, falling back to the inner
// store on a miss.
func (c *CachedStore) GetReceipt(ctx context.Context, receiptId primitives.CryptoHash) (primitives.ReceiptRecord, error) {
	if rec, ok := c.receipts.Get(receiptId); ok {
		return rec, nil
	}
	rec, err := c.Store.GetReceipt(ctx, receiptId)
	if err != nil {
		return primitives.ReceiptRecord{}, err
	}
	c.receipts.Add(receiptId, rec)
	return rec, nil
}
