package receiptindex

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/near/tx-indexer/primitives"
)

func idxHash(b byte) primitives.CryptoHash {
	var h primitives.CryptoHash
	h[0] = b
	return h
}

func TestRegisterIsIdempotentForSameKey(t *testing.T) {
	idx := New(nil)
	key := primitives.TransactionKey{TransactionHash: idxHash(1), BlockHeight: 10}
	r := idxHash(2)

	idx.Register(r, key, 10)
	idx.Register(r, key, 10)

	require.Equal(t, int64(0), idx.Conflicts())
	got, ok := idx.Lookup(r)
	require.True(t, ok)
	require.Equal(t, key, got)
}

func TestRegisterConflictKeepsFirstBindingAndCounts(t *testing.T) {
	idx := New(nil)
	r := idxHash(3)
	first := primitives.TransactionKey{TransactionHash: idxHash(1), BlockHeight: 10}
	second := primitives.TransactionKey{TransactionHash: idxHash(2), BlockHeight: 11}

	idx.Register(r, first, 10)
	idx.Register(r, second, 11)

	require.Equal(t, int64(1), idx.Conflicts())
	got, ok := idx.Lookup(r)
	require.True(t, ok)
	require.Equal(t, first, got, "first binding must be kept")
}

func TestLookupMissReportsNotFound(t *testing.T) {
	idx := New(nil)
	_, ok := idx.Lookup(idxHash(9))
	require.False(t, ok)
}

func TestDrainForRemovesOnlyMatchingKeyEntries(t *testing.T) {
	idx := New(nil)
	keyA := primitives.TransactionKey{TransactionHash: idxHash(1), BlockHeight: 1}
	keyB := primitives.TransactionKey{TransactionHash: idxHash(2), BlockHeight: 1}

	idx.Register(idxHash(10), keyA, 1)
	idx.Register(idxHash(11), keyA, 1)
	idx.Register(idxHash(12), keyB, 1)

	drained := idx.DrainFor(keyA)
	gotIds := make([]primitives.CryptoHash, len(drained))
	for i, d := range drained {
		gotIds[i] = d.ReceiptId
	}
	require.ElementsMatch(t, []primitives.CryptoHash{idxHash(10), idxHash(11)}, gotIds)
	require.Equal(t, 1, idx.Len())

	_, ok := idx.Lookup(idxHash(12))
	require.True(t, ok, "unrelated key's entries must survive the drain")
}

func TestAttachRecordsReceiverAndShardForDrainFor(t *testing.T) {
	idx := New(nil)
	key := primitives.TransactionKey{TransactionHash: idxHash(1), BlockHeight: 1}
	r := idxHash(20)

	idx.Register(r, key, 1)
	require.True(t, idx.Attach(r, "bob.near", 3))

	drained := idx.DrainFor(key)
	require.Len(t, drained, 1)
	require.Equal(t, r, drained[0].ReceiptId)
	require.Equal(t, primitives.AccountId("bob.near"), drained[0].ReceiverId)
	require.Equal(t, primitives.ShardId(3), drained[0].ShardId)
}

func TestAttachReportsFalseForUnregisteredReceipt(t *testing.T) {
	idx := New(nil)
	require.False(t, idx.Attach(idxHash(99), "bob.near", 1))
}

func TestDrainForReturnsZeroReceiverShardWhenNeverAttached(t *testing.T) {
	idx := New(nil)
	key := primitives.TransactionKey{TransactionHash: idxHash(1), BlockHeight: 1}
	r := idxHash(21)
	idx.Register(r, key, 1)

	drained := idx.DrainFor(key)
	require.Len(t, drained, 1)
	require.Equal(t, primitives.AccountId(""), drained[0].ReceiverId)
	require.Equal(t, primitives.ShardId(0), drained[0].ShardId)
}

func TestEvictOlderThanOnlyTouchesStaleKeysAtOrBeforeCutoff(t *testing.T) {
	idx := New(nil)
	staleKey := primitives.TransactionKey{TransactionHash: idxHash(1), BlockHeight: 1}
	freshKey := primitives.TransactionKey{TransactionHash: idxHash(2), BlockHeight: 100}

	idx.Register(idxHash(10), staleKey, 1)
	idx.Register(idxHash(11), freshKey, 100)

	evicted := idx.EvictOlderThan(50, map[primitives.TransactionKey]struct{}{staleKey: {}, freshKey: {}})
	require.Equal(t, 1, evicted)
	require.Equal(t, 1, idx.Len())

	_, ok := idx.Lookup(idxHash(11))
	require.True(t, ok, "entry above cutoff height must survive even though its key is in the stale set")
}
