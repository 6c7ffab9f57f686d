package sqlstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/near/tx-indexer/primitives"
	"github.com/near/tx-indexer/storage"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sqlHash(b byte) primitives.CryptoHash {
	var h primitives.CryptoHash
	h[0] = b
	return h
}

func TestPutGetTransactionRoundTrip(t *testing.T) {
	store := openTest(t)
	ctx := context.Background()
	txHash := sqlHash(1)

	require.NoError(t, store.PutTransaction(ctx, txHash, 10, "alice.near", []byte("encoded")))
	got, err := store.GetTransaction(ctx, txHash)
	require.NoError(t, err)
	require.Equal(t, []byte("encoded"), got)
}

func TestGetTransactionReturnsHighestHeight(t *testing.T) {
	store := openTest(t)
	ctx := context.Background()
	txHash := sqlHash(2)

	require.NoError(t, store.PutTransaction(ctx, txHash, 5, "a", []byte("at-5")))
	require.NoError(t, store.PutTransaction(ctx, txHash, 30, "a", []byte("at-30")))

	got, err := store.GetTransaction(ctx, txHash)
	require.NoError(t, err)
	require.Equal(t, []byte("at-30"), got)
}

func TestGetTransactionMissingReturnsNotFound(t *testing.T) {
	store := openTest(t)
	_, err := store.GetTransaction(context.Background(), sqlHash(99))
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPutGetReceiptRoundTrip(t *testing.T) {
	store := openTest(t)
	ctx := context.Background()
	rec := primitives.ReceiptRecord{
		ReceiptId:             sqlHash(3),
		ParentTransactionHash: sqlHash(4),
		ReceiverId:            "bob.near",
		BlockHeight:           7,
		ShardId:               1,
	}
	require.NoError(t, store.PutReceipt(ctx, rec))

	got, err := store.GetReceipt(ctx, rec.ReceiptId)
	require.NoError(t, err)
	require.Equal(t, rec.ParentTransactionHash, got.ParentTransactionHash)
	require.Equal(t, rec.ReceiverId, got.ReceiverId)
	require.Equal(t, rec.BlockHeight, got.BlockHeight)
	require.Equal(t, rec.ShardId, got.ShardId)
}

func TestPutGetCursorRoundTrip(t *testing.T) {
	store := openTest(t)
	ctx := context.Background()

	require.NoError(t, store.PutCursor(ctx, "idx", 5))
	require.NoError(t, store.PutCursor(ctx, "idx", 6))

	height, err := store.GetCursor(ctx, "idx")
	require.NoError(t, err)
	require.Equal(t, primitives.BlockHeight(6), height)
}

func TestBlockAndChunkByHash(t *testing.T) {
	store := openTest(t)
	ctx := context.Background()
	blockHash := sqlHash(10)
	chunkHash := sqlHash(11)

	require.NoError(t, store.PutBlock(ctx, primitives.BlockRecord{Height: 100, Hash: blockHash}))
	require.NoError(t, store.PutChunk(ctx, chunkHash, 100, 2))

	height, err := store.BlockByHash(ctx, blockHash)
	require.NoError(t, err)
	require.Equal(t, primitives.BlockHeight(100), height)

	chunkHeight, shard, err := store.ChunkByHash(ctx, chunkHash)
	require.NoError(t, err)
	require.Equal(t, primitives.BlockHeight(100), chunkHeight)
	require.Equal(t, primitives.ShardId(2), shard)

	_, err = store.BlockByHash(ctx, sqlHash(99))
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStateValueAtBlockResolvesHighestHeightBelowQuery(t *testing.T) {
	store := openTest(t)
	ctx := context.Background()
	blockHash := sqlHash(20)

	_, err := store.db.ExecContext(ctx, `
		INSERT INTO state_changes_data (account_id, block_height, key_hex, value_bytes, block_hash)
		VALUES (?, ?, ?, ?, ?)
	`, "alice.near", int64(10), "6b6579", []byte("v10"), blockHash.String())
	require.NoError(t, err)
	_, err = store.db.ExecContext(ctx, `
		INSERT INTO state_changes_data (account_id, block_height, key_hex, value_bytes, block_hash)
		VALUES (?, ?, ?, ?, ?)
	`, "alice.near", int64(50), "6b6579", []byte("v50"), blockHash.String())
	require.NoError(t, err)

	got, err := store.StateValueAtBlock(ctx, "alice.near", "6b6579", 30)
	require.NoError(t, err)
	require.Equal(t, []byte("v10"), got.Data)
	require.Equal(t, primitives.BlockHeight(10), got.BlockHeight)

	got, err = store.StateValueAtBlock(ctx, "alice.near", "6b6579", 100)
	require.NoError(t, err)
	require.Equal(t, []byte("v50"), got.Data)
}

func TestAccountStateKeysFiltersByPrefix(t *testing.T) {
	store := openTest(t)
	ctx := context.Background()

	_, err := store.db.ExecContext(ctx, `INSERT INTO account_state (account_id, hex_key) VALUES (?, ?)`, "alice.near", "aa01")
	require.NoError(t, err)
	_, err = store.db.ExecContext(ctx, `INSERT INTO account_state (account_id, hex_key) VALUES (?, ?)`, "alice.near", "aa02")
	require.NoError(t, err)
	_, err = store.db.ExecContext(ctx, `INSERT INTO account_state (account_id, hex_key) VALUES (?, ?)`, "alice.near", "bb01")
	require.NoError(t, err)

	keys, err := store.AccountStateKeys(ctx, "alice.near", "aa")
	require.NoError(t, err)
	require.Equal(t, []string{"aa01", "aa02"}, keys)
}
