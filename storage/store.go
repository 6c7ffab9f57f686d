// Package storage defines the narrow storage contract (C5, spec.md §4.5)
// the assembly core depends on. Two backends implement Store:
// storage/boltstore (an embedded ordered key/value engine standing in for
// the wide-column variant of spec.md §6) and storage/sqlstore (an embedded
// relational engine implementing the full relational schema, including the
// sibling reader service's point-lookup tables).
package storage

import (
	"context"

	"github.com/near/tx-indexer/primitives"
)

// Store is the operation set the Assembly Engine and Progress Tracker
// require from durable storage (spec.md §4.5, §4.6). Implementations must
// be safe for concurrent use by a single writer and any number of readers.
type Store interface {
	// PutTransaction indexes a finalized record on (tx_hash, block_height)
	// with descending block-height ordering under a shared tx_hash.
	PutTransaction(ctx context.Context, txHash primitives.CryptoHash, height primitives.BlockHeight, signer primitives.AccountId, encoded []byte) error

	// PutReceipt records a ReceiptRecord, primary-keyed on receipt id.
	PutReceipt(ctx context.Context, rec primitives.ReceiptRecord) error

	// PutCursor advances the per-indexer-instance progress cursor.
	PutCursor(ctx context.Context, indexerId string, height primitives.BlockHeight) error

	// GetTransaction returns the latest (highest block-height) encoded
	// record for txHash, or ErrNotFound.
	GetTransaction(ctx context.Context, txHash primitives.CryptoHash) ([]byte, error)

	// GetReceipt resolves a receipt id to its ReceiptRecord, or ErrNotFound.
	GetReceipt(ctx context.Context, receiptId primitives.CryptoHash) (primitives.ReceiptRecord, error)

	// GetCursor returns the last-processed height for indexerId, or
	// ErrNotFound if the indexer has never advanced.
	GetCursor(ctx context.Context, indexerId string) (primitives.BlockHeight, error)

	// Close releases any resources held by the backend.
	Close() error
}

// ReaderStore is the superset of point lookups the sibling read-RPC service
// needs (spec.md §4.5, SPEC_FULL.md §4.5). Only the relational backend
// implements it; the wide-column backend's spec does not require these of
// it.
type ReaderStore interface {
	Store

	// BlockByHash resolves a block hash to its height.
	BlockByHash(ctx context.Context, hash primitives.CryptoHash) (primitives.BlockHeight, error)
	// ChunkByHash resolves a chunk hash to (height, shard).
	ChunkByHash(ctx context.Context, chunkHash primitives.CryptoHash) (primitives.BlockHeight, primitives.ShardId, error)
	// PutBlock records a block's (height, hash) pair.
	PutBlock(ctx context.Context, rec primitives.BlockRecord) error
	// PutChunk records a chunk's (hash, height, shard) tuple.
	PutChunk(ctx context.Context, chunkHash primitives.CryptoHash, height primitives.BlockHeight, shard primitives.ShardId) error

	// AccountStateKeys lists state keys for accountId with the given hex
	// prefix (empty prefix means a full scan).
	AccountStateKeys(ctx context.Context, accountId primitives.AccountId, hexKeyPrefix string) ([]string, error)
	// StateValueAtBlock returns the value of accountId's hexKey as of height,
	// the value from the highest recorded height <= height.
	StateValueAtBlock(ctx context.Context, accountId primitives.AccountId, hexKey string, height primitives.BlockHeight) (primitives.QueryData[[]byte], error)
}

// NotFoundError reports a missing key. Callers should compare with
// errors.Is(err, ErrNotFound).
type NotFoundError struct {
	Kind string
	Key  string
}

func (e *NotFoundError) Error() string {
	return "storage: " + e.Kind + " not found: " + e.Key
}

// ErrNotFound is the sentinel NotFoundError callers can errors.Is against;
// concrete errors returned by backends wrap it with Kind/Key detail via
// NotFoundError, but errors.Is still matches because NotFoundError.Is
// reports true for ErrNotFound.
var ErrNotFound = &NotFoundError{Kind: "entity", Key: "*"}

// Is implements the errors.Is interface: any *NotFoundError matches the
// ErrNotFound sentinel regardless of Kind/Key.
func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}
