package storage

// Table names and key/value layouts, illustrative per spec.md §6. Both
// backends use these names for their buckets/tables; the comment style
// follows the teacher's erigon-lib/kv/tables.go convention of documenting
// the key/value shape next to the constant.
const (
	// TransactionsDetailsTable: key = tx_hash (32 bytes) + block_height
	// (8 bytes big-endian, inverted so iteration order is descending) ->
	// value = encoded TransactionDetails (codec.Encode output).
	TransactionsDetailsTable = "transactions_details"

	// ReceiptsMapTable: key = receipt_id -> value = block_height (8 bytes
	// BE) + shard_id (8 bytes BE) + parent_transaction_hash (32 bytes) +
	// receiver_id (remaining bytes).
	ReceiptsMapTable = "receipts_map"

	// MetaTable: key = indexer_id -> value = last_processed_block_height
	// (8 bytes BE).
	MetaTable = "meta"

	// BlockTable: key = block_hash -> value = height (8 bytes BE). Read by
	// the sibling reader service only; spec.md §4.5, §6.
	BlockTable = "block"

	// ChunkTable: key = chunk_hash -> value = height (8 bytes BE) +
	// shard_id (8 bytes BE). Read by the sibling reader service only.
	ChunkTable = "chunk"
)

// BigEndianUint64Len is the width of the big-endian height/shard encoding
// used throughout the wide-column backend's keys and values.
const BigEndianUint64Len = 8
