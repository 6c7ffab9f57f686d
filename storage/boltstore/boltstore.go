// Package boltstore implements storage.Store over an embedded ordered
// key/value engine (go.etcd.io/bbolt). It stands in for the "wide-column
// store" backend spec.md §6 requires to exist, using bbolt buckets the way
// a wide-column store uses column families: one bucket per table, ordered
// byte-key iteration within it. See SPEC_FULL.md §4.5 for the grounding.
package boltstore

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/near/tx-indexer/primitives"
	"github.com/near/tx-indexer/storage"
	bolt "go.etcd.io/bbolt"
)

var buckets = [][]byte{
	[]byte(storage.TransactionsDetailsTable),
	[]byte(storage.ReceiptsMapTable),
	[]byte(storage.MetaTable),
}

// Store is a bbolt-backed storage.Store.
type Store struct {
	db *bolt.DB
}

// Open creates (or reuses) the bbolt file at path and ensures every table's
// bucket exists.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("boltstore: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range buckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("boltstore: init buckets: %w", err)
	}
	return &Store{db: db}, nil
}

// invertedHeight maps a height to a key suffix such that ascending byte
// order corresponds to descending height order: the first match under a
// tx_hash prefix scan is therefore the highest block height, matching
// spec.md §6's "CLUSTERING BY block_height DESC".
func invertedHeight(h primitives.BlockHeight) []byte {
	buf := make([]byte, storage.BigEndianUint64Len)
	binary.BigEndian.PutUint64(buf, math.MaxUint64-uint64(h))
	return buf
}

func txKey(txHash primitives.CryptoHash, height primitives.BlockHeight) []byte {
	key := make([]byte, 0, primitives.HashSize+storage.BigEndianUint64Len)
	key = append(key, txHash[:]...)
	key = append(key, invertedHeight(height)...)
	return key
}

func heightBytes(h primitives.BlockHeight) []byte {
	buf := make([]byte, storage.BigEndianUint64Len)
	binary.BigEndian.PutUint64(buf, uint64(h))
	return buf
}

func parseHeightBytes(b []byte) primitives.BlockHeight {
	return primitives.BlockHeight(binary.BigEndian.Uint64(b))
}

// PutTransaction implements storage.Store.
func (s *Store) PutTransaction(ctx context.Context, txHash primitives.CryptoHash, height primitives.BlockHeight, signer primitives.AccountId, encoded []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(storage.TransactionsDetailsTable))
		return b.Put(txKey(txHash, height), encoded)
	})
}

// PutReceipt implements storage.Store. The packed value is
// block_height(8) || shard_id(8) || parent_transaction_hash(32) ||
// receiver_id(remaining bytes), receiver_id last and unsized since nothing
// follows it.
func (s *Store) PutReceipt(ctx context.Context, rec primitives.ReceiptRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	value := make([]byte, 0, 2*storage.BigEndianUint64Len+primitives.HashSize+len(rec.ReceiverId))
	value = append(value, heightBytes(rec.BlockHeight)...)
	value = append(value, heightBytes(primitives.BlockHeight(rec.ShardId))...)
	value = append(value, rec.ParentTransactionHash[:]...)
	value = append(value, []byte(rec.ReceiverId)...)
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(storage.ReceiptsMapTable))
		return b.Put(rec.ReceiptId[:], value)
	})
}

// PutCursor implements storage.Store.
func (s *Store) PutCursor(ctx context.Context, indexerId string, height primitives.BlockHeight) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(storage.MetaTable))
		return b.Put([]byte(indexerId), heightBytes(height))
	})
}

// GetTransaction implements storage.Store: it returns the first row under a
// descending-by-height scan of the tx_hash prefix, i.e. the latest height.
func (s *Store) GetTransaction(ctx context.Context, txHash primitives.CryptoHash) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(storage.TransactionsDetailsTable))
		c := b.Cursor()
		prefix := txHash[:]
		k, v := c.Seek(prefix)
		if k == nil || len(k) < len(prefix) || string(k[:len(prefix)]) != string(prefix) {
			return &storage.NotFoundError{Kind: "transaction", Key: txHash.String()}
		}
		out = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetReceipt implements storage.Store.
func (s *Store) GetReceipt(ctx context.Context, receiptId primitives.CryptoHash) (primitives.ReceiptRecord, error) {
	if err := ctx.Err(); err != nil {
		return primitives.ReceiptRecord{}, err
	}
	var rec primitives.ReceiptRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(storage.ReceiptsMapTable))
		v := b.Get(receiptId[:])
		if v == nil {
			return &storage.NotFoundError{Kind: "receipt", Key: receiptId.String()}
		}
		const fixedLen = 2*storage.BigEndianUint64Len + primitives.HashSize
		if len(v) < fixedLen {
			return fmt.Errorf("boltstore: corrupt receipt record for %s", receiptId)
		}
		height := parseHeightBytes(v[0:8])
		shard := parseHeightBytes(v[8:16])
		parentHash, err := primitives.BytesToHash(v[16:fixedLen])
		if err != nil {
			return err
		}
		rec = primitives.ReceiptRecord{
			ReceiptId:             receiptId,
			ParentTransactionHash: parentHash,
			ReceiverId:            primitives.AccountId(v[fixedLen:]),
			BlockHeight:           height,
			ShardId:               primitives.ShardId(shard),
		}
		return nil
	})
	if err != nil {
		return primitives.ReceiptRecord{}, err
	}
	return rec, nil
}

// GetCursor implements storage.Store.
func (s *Store) GetCursor(ctx context.Context, indexerId string) (primitives.BlockHeight, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var height primitives.BlockHeight
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(storage.MetaTable))
		v := b.Get([]byte(indexerId))
		if v == nil {
			return &storage.NotFoundError{Kind: "cursor", Key: indexerId}
		}
		height = parseHeightBytes(v)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return height, nil
}

// Close implements storage.Store.
func (s *Store) Close() error {
	return s.db.Close()
}
