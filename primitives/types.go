package primitives

// BlockHeight is the chain's monotonically non-decreasing block counter.
type BlockHeight uint64

// ShardId is the horizontal execution partition a chunk belongs to.
type ShardId uint64

// TransactionKey disambiguates transactions that share a hash across
// distinct blocks (spec.md §3): the pair, not the hash alone, is the
// identity inside the Transaction Cache (C2).
type TransactionKey struct {
	TransactionHash CryptoHash
	BlockHeight     BlockHeight
}

// AccountId is an opaque chain account identifier (signer_id / receiver_id).
type AccountId string

// SignedTransactionView is the chain's record of an originally signed
// transaction. The assembly engine reads only Hash, SignerId, and
// ReceiverId; other fields a real chain view carries (actions, nonce,
// signature, ...) are not modeled, so they are neither inspected by the core
// nor persisted by the codec.
type SignedTransactionView struct {
	Hash       CryptoHash
	SignerId   AccountId
	ReceiverId AccountId
}

// ReceiptView is an internal work unit produced by executing a transaction
// or another receipt. The engine routes it by ReceiptId and copies ReceiverId
// onto the receipt's ReceiptRecord, because the reader service resolves "who
// received this receipt" from a persisted ReceiptRecord without a second
// round trip (SPEC_FULL.md §3).
type ReceiptView struct {
	ReceiptId  CryptoHash
	ReceiverId AccountId
}

// ExecutionOutcomeWithIdView is the result of executing one transaction or
// one receipt: the hash it resolves (Id), its status, and the receipt ids it
// spawned.
type ExecutionOutcomeWithIdView struct {
	Id      CryptoHash
	Outcome ExecutionOutcomeView
}

// ExecutionOutcomeView carries the status and the downstream receipt ids an
// execution spawned.
type ExecutionOutcomeView struct {
	Status     ExecutionStatusView
	ReceiptIds []CryptoHash
}

// ShardChunk is one shard's worth of a block: its ordered transactions
// (each paired with its own outcome), ordered receipts, and ordered
// execution outcomes.
type ShardChunk struct {
	ShardId      ShardId
	ChunkHash    CryptoHash
	Transactions []IndexerTransactionWithOutcome
	Receipts     []ReceiptView
	Outcomes     []ExecutionOutcomeWithIdView
}

// IndexerTransactionWithOutcome pairs a transaction view with its own
// (first) execution outcome, as delivered by the block stream.
type IndexerTransactionWithOutcome struct {
	Transaction SignedTransactionView
	Outcome     ExecutionOutcomeWithIdView
}

// BlockHeader carries the minimum fields the engine requires from a block.
type BlockHeader struct {
	Height BlockHeight
	Hash   CryptoHash
}

// StreamerMessage is one block's worth of data as delivered by the inbound
// block stream (spec.md §6): a header plus per-shard chunks.
type StreamerMessage struct {
	Block  BlockHeader
	Shards []ShardChunk
}

// BlockRecord is a (height, hash) pair for the reader service's
// block-by-hash / block-by-chunk-hash lookups (SPEC_FULL.md §3).
type BlockRecord struct {
	Height BlockHeight
	Hash   CryptoHash
}

// QueryData wraps a decoded value with the block height/hash at which it was
// last updated, for the reader service's state-snapshot point lookups
// (SPEC_FULL.md §3, spec.md §4.5).
type QueryData[T any] struct {
	Data        T
	BlockHeight BlockHeight
	BlockHash   CryptoHash
}
