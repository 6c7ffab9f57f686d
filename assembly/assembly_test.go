package assembly

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/near/tx-indexer/primitives"
	"github.com/near/tx-indexer/storage/boltstore"
)

func hash(t *testing.T, b byte) primitives.CryptoHash {
	t.Helper()
	var raw [primitives.HashSize]byte
	raw[0] = b
	h, err := primitives.BytesToHash(raw[:])
	require.NoError(t, err)
	return h
}

func newTestEngine(t *testing.T) (*Engine, *boltstore.Store) {
	t.Helper()
	store, err := boltstore.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return New("test-indexer", store, DefaultRetentionConfig, nil, nil), store
}

// A transaction whose own outcome resolves directly to SuccessValue finalizes
// in the same block it arrives (no downstream receipt needed).
func TestProcessBlockFinalizesSimpleSuccess(t *testing.T) {
	engine, store := newTestEngine(t)
	txHash := hash(t, 1)

	msg := primitives.StreamerMessage{
		Block: primitives.BlockHeader{Height: 10, Hash: hash(t, 0xaa)},
		Shards: []primitives.ShardChunk{{
			ShardId: 0,
			Transactions: []primitives.IndexerTransactionWithOutcome{{
				Transaction: primitives.SignedTransactionView{Hash: txHash, SignerId: "alice", ReceiverId: "bob"},
				Outcome: primitives.ExecutionOutcomeWithIdView{
					Id:      txHash,
					Outcome: primitives.ExecutionOutcomeView{Status: primitives.ExecutionStatusView{Kind: primitives.StatusSuccessValue, SuccessValue: []byte("done")}},
				},
			}},
		}},
	}

	require.NoError(t, engine.ProcessBlock(context.Background(), msg))
	require.Equal(t, 0, engine.cache.Len())

	raw, err := store.GetTransaction(context.Background(), txHash)
	require.NoError(t, err)
	require.NotEmpty(t, raw)

	cursor, err := store.GetCursor(context.Background(), "test-indexer")
	require.NoError(t, err)
	require.Equal(t, primitives.BlockHeight(10), cursor)
}

// A transaction that spawns a receipt only finalizes once that receipt's
// outcome arrives in a later block.
func TestProcessBlockWaitsForDownstreamReceipt(t *testing.T) {
	engine, store := newTestEngine(t)
	txHash := hash(t, 2)
	receiptHash := hash(t, 3)

	block1 := primitives.StreamerMessage{
		Block: primitives.BlockHeader{Height: 100},
		Shards: []primitives.ShardChunk{{
			Transactions: []primitives.IndexerTransactionWithOutcome{{
				Transaction: primitives.SignedTransactionView{Hash: txHash, SignerId: "alice", ReceiverId: "bob"},
				Outcome: primitives.ExecutionOutcomeWithIdView{
					Id: txHash,
					Outcome: primitives.ExecutionOutcomeView{
						Status:     primitives.ExecutionStatusView{Kind: primitives.StatusSuccessReceiptId, SuccessReceiptId: receiptHash},
						ReceiptIds: []primitives.CryptoHash{receiptHash},
					},
				},
			}},
			Receipts: []primitives.ReceiptView{{ReceiptId: receiptHash, ReceiverId: "bob"}},
		}},
	}
	require.NoError(t, engine.ProcessBlock(context.Background(), block1))
	require.Equal(t, 1, engine.cache.Len())
	_, err := store.GetTransaction(context.Background(), txHash)
	require.Error(t, err)

	block2 := primitives.StreamerMessage{
		Block: primitives.BlockHeader{Height: 101},
		Shards: []primitives.ShardChunk{{
			Outcomes: []primitives.ExecutionOutcomeWithIdView{{
				Id:      receiptHash,
				Outcome: primitives.ExecutionOutcomeView{Status: primitives.ExecutionStatusView{Kind: primitives.StatusSuccessValue, SuccessValue: []byte("ok")}},
			}},
		}},
	}
	require.NoError(t, engine.ProcessBlock(context.Background(), block2))
	require.Equal(t, 0, engine.cache.Len())

	raw, err := store.GetTransaction(context.Background(), txHash)
	require.NoError(t, err)
	require.NotEmpty(t, raw)
}

// An in-flight transaction that never finalizes within the retention window
// is abandoned and its cache/index footprint reclaimed.
func TestRetentionSweepAbandonsStaleTransaction(t *testing.T) {
	engine, _ := newTestEngine(t)
	engine.retention = RetentionConfig{MaxAgeBlocks: 5}
	txHash := hash(t, 4)
	receiptHash := hash(t, 5)

	msg := primitives.StreamerMessage{
		Block: primitives.BlockHeader{Height: 1},
		Shards: []primitives.ShardChunk{{
			Transactions: []primitives.IndexerTransactionWithOutcome{{
				Transaction: primitives.SignedTransactionView{Hash: txHash, SignerId: "alice", ReceiverId: "alice"},
				Outcome: primitives.ExecutionOutcomeWithIdView{
					Id: txHash,
					Outcome: primitives.ExecutionOutcomeView{
						Status:     primitives.ExecutionStatusView{Kind: primitives.StatusSuccessReceiptId, SuccessReceiptId: receiptHash},
						ReceiptIds: []primitives.CryptoHash{receiptHash},
					},
				},
			}},
		}},
	}
	require.NoError(t, engine.ProcessBlock(context.Background(), msg))
	require.Equal(t, 1, engine.cache.Len())

	// advance far enough past the retention window with empty blocks
	for h := primitives.BlockHeight(2); h <= 10; h++ {
		require.NoError(t, engine.ProcessBlock(context.Background(), primitives.StreamerMessage{Block: primitives.BlockHeader{Height: h}}))
	}
	require.Equal(t, 0, engine.cache.Len())
	require.Equal(t, 0, engine.index.Len())
}

// Local-receipt filtering is C3's concern only at the read/projection layer
// (primitives.ToFinalExecutionOutcomeWithReceipts); the assembly engine
// itself must still persist every receipt view it observed, untouched.
func TestProcessBlockPersistsReceiptRecordsForFinalizedTransaction(t *testing.T) {
	engine, store := newTestEngine(t)
	txHash := hash(t, 6)
	receiptHash := hash(t, 7)

	msg := primitives.StreamerMessage{
		Block: primitives.BlockHeader{Height: 5},
		Shards: []primitives.ShardChunk{{
			ShardId: 2,
			Transactions: []primitives.IndexerTransactionWithOutcome{{
				Transaction: primitives.SignedTransactionView{Hash: txHash, SignerId: "alice", ReceiverId: "alice"},
				Outcome: primitives.ExecutionOutcomeWithIdView{
					Id: txHash,
					Outcome: primitives.ExecutionOutcomeView{
						Status:     primitives.ExecutionStatusView{Kind: primitives.StatusSuccessReceiptId, SuccessReceiptId: receiptHash},
						ReceiptIds: []primitives.CryptoHash{receiptHash},
					},
				},
			}},
			Receipts: []primitives.ReceiptView{{ReceiptId: receiptHash, ReceiverId: "carol"}},
			Outcomes: []primitives.ExecutionOutcomeWithIdView{{
				Id:      receiptHash,
				Outcome: primitives.ExecutionOutcomeView{Status: primitives.ExecutionStatusView{Kind: primitives.StatusSuccessValue}},
			}},
		}},
	}
	require.NoError(t, engine.ProcessBlock(context.Background(), msg))

	rec, err := store.GetReceipt(context.Background(), receiptHash)
	require.NoError(t, err)
	require.Equal(t, txHash, rec.ParentTransactionHash)
	require.Equal(t, primitives.AccountId("carol"), rec.ReceiverId, "receiver id must come from the receipt's own ReceiptView, not the transaction")
	require.Equal(t, primitives.ShardId(2), rec.ShardId, "shard id must come from the shard the receipt view was observed on")
	require.Equal(t, primitives.BlockHeight(5), rec.BlockHeight)
}

// A receipt id that is registered (via an outcome naming it) but whose own
// ReceiptView never arrives before the owning transaction finalizes still
// drains and persists — with a zero ReceiverId/ShardId, since neither was
// ever observed.
func TestProcessBlockPersistsReceiptRecordWithZeroReceiverShardWhenViewNeverArrives(t *testing.T) {
	engine, store := newTestEngine(t)
	txHash := hash(t, 8)
	receiptHash := hash(t, 9)

	msg := primitives.StreamerMessage{
		Block: primitives.BlockHeader{Height: 5},
		Shards: []primitives.ShardChunk{{
			Transactions: []primitives.IndexerTransactionWithOutcome{{
				Transaction: primitives.SignedTransactionView{Hash: txHash, SignerId: "alice", ReceiverId: "alice"},
				Outcome: primitives.ExecutionOutcomeWithIdView{
					Id: txHash,
					Outcome: primitives.ExecutionOutcomeView{
						Status:     primitives.ExecutionStatusView{Kind: primitives.StatusSuccessReceiptId, SuccessReceiptId: receiptHash},
						ReceiptIds: []primitives.CryptoHash{receiptHash},
					},
				},
			}},
			Outcomes: []primitives.ExecutionOutcomeWithIdView{{
				Id:      receiptHash,
				Outcome: primitives.ExecutionOutcomeView{Status: primitives.ExecutionStatusView{Kind: primitives.StatusSuccessValue}},
			}},
		}},
	}
	require.NoError(t, engine.ProcessBlock(context.Background(), msg))

	rec, err := store.GetReceipt(context.Background(), receiptHash)
	require.NoError(t, err)
	require.Equal(t, txHash, rec.ParentTransactionHash)
	require.Equal(t, primitives.AccountId(""), rec.ReceiverId)
	require.Equal(t, primitives.ShardId(0), rec.ShardId)
}
