// Package sqlstore implements storage.Store and storage.ReaderStore over an
// embedded relational engine (modernc.org/sqlite, pure Go, no cgo). It is
// the "relational variant" of spec.md §6, including the additional tables
// the sibling reader service needs (block, chunk, account_state,
// state_changes_*). See SPEC_FULL.md §4.5 for why sqlite stands in for the
// source's PostgreSQL backend here.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/near/tx-indexer/primitives"
	"github.com/near/tx-indexer/storage"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS transactions_details (
	tx_hash TEXT NOT NULL,
	block_height INTEGER NOT NULL,
	account_id TEXT NOT NULL,
	transaction_details BLOB NOT NULL,
	PRIMARY KEY (tx_hash, block_height)
);
CREATE INDEX IF NOT EXISTS idx_tx_hash_height ON transactions_details (tx_hash, block_height DESC);

CREATE TABLE IF NOT EXISTS receipts_map (
	receipt_id TEXT PRIMARY KEY,
	block_height INTEGER NOT NULL,
	parent_transaction_hash TEXT NOT NULL,
	receiver_id TEXT NOT NULL,
	shard_id INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS meta (
	indexer_id TEXT PRIMARY KEY,
	last_processed_block_height INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS block (
	height INTEGER PRIMARY KEY,
	hash TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS chunk (
	chunk_hash TEXT PRIMARY KEY,
	block_height INTEGER NOT NULL,
	shard_id INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS account_state (
	account_id TEXT NOT NULL,
	hex_key TEXT NOT NULL,
	PRIMARY KEY (account_id, hex_key)
);

CREATE TABLE IF NOT EXISTS state_changes_data (
	account_id TEXT NOT NULL,
	block_height INTEGER NOT NULL,
	key_hex TEXT NOT NULL,
	value_bytes BLOB,
	block_hash TEXT NOT NULL,
	PRIMARY KEY (account_id, key_hex, block_height)
);
CREATE TABLE IF NOT EXISTS state_changes_account (
	account_id TEXT NOT NULL,
	block_height INTEGER NOT NULL,
	value_bytes BLOB,
	block_hash TEXT NOT NULL,
	PRIMARY KEY (account_id, block_height)
);
CREATE TABLE IF NOT EXISTS state_changes_contract (
	account_id TEXT NOT NULL,
	block_height INTEGER NOT NULL,
	value_bytes BLOB,
	block_hash TEXT NOT NULL,
	PRIMARY KEY (account_id, block_height)
);
CREATE TABLE IF NOT EXISTS state_changes_access_key (
	account_id TEXT NOT NULL,
	block_height INTEGER NOT NULL,
	key_hex TEXT NOT NULL,
	value_bytes BLOB,
	block_hash TEXT NOT NULL,
	PRIMARY KEY (account_id, key_hex, block_height)
);
`

// Store is a modernc.org/sqlite-backed storage.ReaderStore.
type Store struct {
	db *sql.DB
}

// Open opens (and migrates) a sqlite database at path. Use ":memory:" for
// ephemeral use in tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite is not safe for concurrent writers
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlstore: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// PutTransaction implements storage.Store.
func (s *Store) PutTransaction(ctx context.Context, txHash primitives.CryptoHash, height primitives.BlockHeight, signer primitives.AccountId, encoded []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions_details (tx_hash, block_height, account_id, transaction_details)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (tx_hash, block_height) DO UPDATE SET account_id = excluded.account_id, transaction_details = excluded.transaction_details
	`, txHash.String(), int64(height), string(signer), encoded)
	if err != nil {
		return fmt.Errorf("sqlstore: put transaction: %w", err)
	}
	return nil
}

// PutReceipt implements storage.Store.
func (s *Store) PutReceipt(ctx context.Context, rec primitives.ReceiptRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO receipts_map (receipt_id, block_height, parent_transaction_hash, receiver_id, shard_id)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (receipt_id) DO UPDATE SET block_height = excluded.block_height,
			parent_transaction_hash = excluded.parent_transaction_hash, receiver_id = excluded.receiver_id,
			shard_id = excluded.shard_id
	`, rec.ReceiptId.String(), int64(rec.BlockHeight), rec.ParentTransactionHash.String(), string(rec.ReceiverId), int64(rec.ShardId))
	if err != nil {
		return fmt.Errorf("sqlstore: put receipt: %w", err)
	}
	return nil
}

// PutCursor implements storage.Store.
func (s *Store) PutCursor(ctx context.Context, indexerId string, height primitives.BlockHeight) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO meta (indexer_id, last_processed_block_height) VALUES (?, ?)
		ON CONFLICT (indexer_id) DO UPDATE SET last_processed_block_height = excluded.last_processed_block_height
	`, indexerId, int64(height))
	if err != nil {
		return fmt.Errorf("sqlstore: put cursor: %w", err)
	}
	return nil
}

// GetTransaction implements storage.Store: latest (highest) block height
// under tx_hash wins.
func (s *Store) GetTransaction(ctx context.Context, txHash primitives.CryptoHash) ([]byte, error) {
	var encoded []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT transaction_details FROM transactions_details
		WHERE tx_hash = ? ORDER BY block_height DESC LIMIT 1
	`, txHash.String()).Scan(&encoded)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &storage.NotFoundError{Kind: "transaction", Key: txHash.String()}
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: get transaction: %w", err)
	}
	return encoded, nil
}

// GetReceipt implements storage.Store.
func (s *Store) GetReceipt(ctx context.Context, receiptId primitives.CryptoHash) (primitives.ReceiptRecord, error) {
	var parentHashText, receiverId string
	var height, shard int64
	err := s.db.QueryRowContext(ctx, `
		SELECT block_height, parent_transaction_hash, receiver_id, shard_id FROM receipts_map WHERE receipt_id = ?
	`, receiptId.String()).Scan(&height, &parentHashText, &receiverId, &shard)
	if errors.Is(err, sql.ErrNoRows) {
		return primitives.ReceiptRecord{}, &storage.NotFoundError{Kind: "receipt", Key: receiptId.String()}
	}
	if err != nil {
		return primitives.ReceiptRecord{}, fmt.Errorf("sqlstore: get receipt: %w", err)
	}
	parentHash, err := primitives.ParseCryptoHash(parentHashText)
	if err != nil {
		return primitives.ReceiptRecord{}, err
	}
	return primitives.ReceiptRecord{
		ReceiptId:             receiptId,
		ParentTransactionHash: parentHash,
		ReceiverId:            primitives.AccountId(receiverId),
		BlockHeight:           primitives.BlockHeight(height),
		ShardId:               primitives.ShardId(shard),
	}, nil
}

// GetCursor implements storage.Store.
func (s *Store) GetCursor(ctx context.Context, indexerId string) (primitives.BlockHeight, error) {
	var height int64
	err := s.db.QueryRowContext(ctx, `
		SELECT last_processed_block_height FROM meta WHERE indexer_id = ?
	`, indexerId).Scan(&height)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, &storage.NotFoundError{Kind: "cursor", Key: indexerId}
	}
	if err != nil {
		return 0, fmt.Errorf("sqlstore: get cursor: %w", err)
	}
	return primitives.BlockHeight(height), nil
}

// PutBlock implements storage.ReaderStore.
func (s *Store) PutBlock(ctx context.Context, rec primitives.BlockRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO block (height, hash) VALUES (?, ?)
		ON CONFLICT (height) DO UPDATE SET hash = excluded.hash
	`, int64(rec.Height), rec.Hash.String())
	if err != nil {
		return fmt.Errorf("sqlstore: put block: %w", err)
	}
	return nil
}

// PutChunk implements storage.ReaderStore.
func (s *Store) PutChunk(ctx context.Context, chunkHash primitives.CryptoHash, height primitives.BlockHeight, shard primitives.ShardId) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chunk (chunk_hash, block_height, shard_id) VALUES (?, ?, ?)
		ON CONFLICT (chunk_hash) DO UPDATE SET block_height = excluded.block_height, shard_id = excluded.shard_id
	`, chunkHash.String(), int64(height), int64(shard))
	if err != nil {
		return fmt.Errorf("sqlstore: put chunk: %w", err)
	}
	return nil
}

// BlockByHash implements storage.ReaderStore.
func (s *Store) BlockByHash(ctx context.Context, hash primitives.CryptoHash) (primitives.BlockHeight, error) {
	var height int64
	err := s.db.QueryRowContext(ctx, `SELECT height FROM block WHERE hash = ?`, hash.String()).Scan(&height)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, &storage.NotFoundError{Kind: "block", Key: hash.String()}
	}
	if err != nil {
		return 0, fmt.Errorf("sqlstore: block by hash: %w", err)
	}
	return primitives.BlockHeight(height), nil
}

// ChunkByHash implements storage.ReaderStore.
func (s *Store) ChunkByHash(ctx context.Context, chunkHash primitives.CryptoHash) (primitives.BlockHeight, primitives.ShardId, error) {
	var height, shard int64
	err := s.db.QueryRowContext(ctx, `SELECT block_height, shard_id FROM chunk WHERE chunk_hash = ?`, chunkHash.String()).Scan(&height, &shard)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, &storage.NotFoundError{Kind: "chunk", Key: chunkHash.String()}
	}
	if err != nil {
		return 0, 0, fmt.Errorf("sqlstore: chunk by hash: %w", err)
	}
	return primitives.BlockHeight(height), primitives.ShardId(shard), nil
}

// AccountStateKeys implements storage.ReaderStore.
func (s *Store) AccountStateKeys(ctx context.Context, accountId primitives.AccountId, hexKeyPrefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT hex_key FROM account_state WHERE account_id = ? AND hex_key LIKE ? || '%'
		ORDER BY hex_key
	`, string(accountId), hexKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: account state keys: %w", err)
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// StateValueAtBlock implements storage.ReaderStore: the value from the
// highest recorded height <= height.
func (s *Store) StateValueAtBlock(ctx context.Context, accountId primitives.AccountId, hexKey string, height primitives.BlockHeight) (primitives.QueryData[[]byte], error) {
	var value []byte
	var atHeight int64
	var blockHashText string
	err := s.db.QueryRowContext(ctx, `
		SELECT value_bytes, block_height, block_hash FROM state_changes_data
		WHERE account_id = ? AND key_hex = ? AND block_height <= ?
		ORDER BY block_height DESC LIMIT 1
	`, string(accountId), hexKey, int64(height)).Scan(&value, &atHeight, &blockHashText)
	if errors.Is(err, sql.ErrNoRows) {
		return primitives.QueryData[[]byte]{}, &storage.NotFoundError{Kind: "state_value", Key: string(accountId) + "/" + hexKey}
	}
	if err != nil {
		return primitives.QueryData[[]byte]{}, fmt.Errorf("sqlstore: state value at block: %w", err)
	}
	blockHash, err := primitives.ParseCryptoHash(blockHashText)
	if err != nil {
		return primitives.QueryData[[]byte]{}, err
	}
	return primitives.QueryData[[]byte]{Data: value, BlockHeight: primitives.BlockHeight(atHeight), BlockHash: blockHash}, nil
}

// Close implements storage.Store.
func (s *Store) Close() error {
	return s.db.Close()
}

var _ storage.ReaderStore = (*Store)(nil)
