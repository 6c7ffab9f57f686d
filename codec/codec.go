// Package codec implements C4, the versioned record codec (spec.md §4.4).
// The durable wire format is CBOR (github.com/ugorji/go/codec), matching the
// source's borsh binary encoding; cross-version reprojection goes through a
// JSON structural intermediate (github.com/goccy/go-json), mirroring the
// source's serde_json::to_value/from_value bridge. Encode always writes the
// current shape; Decode recognizes the current shape first and falls back to
// trying historical shapes oldest-first (SPEC_FULL.md §9).
package codec

import (
	"bytes"
	"fmt"

	gojson "github.com/goccy/go-json"
	ugorji "github.com/ugorji/go/codec"

	"github.com/near/tx-indexer/primitives"
)

var cborHandle = func() *ugorji.CborHandle {
	h := &ugorji.CborHandle{}
	h.Canonical = true
	return h
}()

// Encode serializes a TransactionDetails in the current wire shape.
func Encode(td primitives.TransactionDetails) ([]byte, error) {
	var buf bytes.Buffer
	enc := ugorji.NewEncoder(&buf, cborHandle)
	if err := enc.Encode(toWireV3(td)); err != nil {
		return nil, fmt.Errorf("codec: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode reconstructs a TransactionDetails from bytes previously produced by
// Encode, or from any historical shape this package still recognizes.
// Records decoded from a historical shape carry BlockHeight zero, since that
// field did not exist in the shape they were written under; callers that
// already know the height (it is always the storage key they looked the
// record up by) should overwrite it.
func Decode(data []byte) (primitives.TransactionDetails, error) {
	var generic map[string]interface{}
	if err := ugorji.NewDecoderBytes(data, cborHandle).Decode(&generic); err != nil {
		return primitives.TransactionDetails{}, fmt.Errorf("codec: decode shape: %w", err)
	}

	if _, ok := generic["block_height"]; ok {
		var w wireV3
		if err := reproject(generic, &w); err != nil {
			return primitives.TransactionDetails{}, fmt.Errorf("codec: decode current shape: %w", err)
		}
		return fromWireV3(w)
	}

	for _, v := range historicalVariants {
		if _, ok := generic[v.distinguishingKey]; !ok {
			continue
		}
		td, err := v.decode(generic)
		if err != nil {
			return primitives.TransactionDetails{}, fmt.Errorf("codec: decode %s shape: %w", v.name, err)
		}
		return td, nil
	}
	return primitives.TransactionDetails{}, fmt.Errorf("codec: payload matches no known shape")
}

// reproject bridges a generic CBOR-decoded map into a typed wire struct via
// a JSON round trip, the same trick the source takes through
// serde_json::Value to reinterpret an old shape against a newer struct.
func reproject(generic map[string]interface{}, target interface{}) error {
	raw, err := gojson.Marshal(generic)
	if err != nil {
		return err
	}
	return gojson.Unmarshal(raw, target)
}

type historicalVariant struct {
	name              string
	distinguishingKey string
	decode            func(map[string]interface{}) (primitives.TransactionDetails, error)
}

// historicalVariants is ordered oldest-first (SPEC_FULL.md §9): the earliest
// shape used the singular "receipt_outcome" key, the next shape renamed it
// to "receipts_outcome" but still lacked block_height.
var historicalVariants = []historicalVariant{
	{name: "v1", distinguishingKey: "receipt_outcome", decode: decodeWireV1},
	{name: "v2", distinguishingKey: "receipts_outcome", decode: decodeWireV2},
}

// wireTransaction, wireReceipt, wireOutcome, wireStatus, and wireFinalStatus
// are shared across every wire version; hashes are carried as their "0x..."
// text form so the JSON bridge never has to special-case byte arrays.
type wireTransaction struct {
	Hash       string `codec:"hash" json:"hash"`
	SignerId   string `codec:"signer_id" json:"signer_id"`
	ReceiverId string `codec:"receiver_id" json:"receiver_id"`
}

type wireStatus struct {
	Kind             uint8  `codec:"kind" json:"kind"`
	Failure          string `codec:"failure" json:"failure"`
	SuccessValue     []byte `codec:"success_value" json:"success_value"`
	SuccessReceiptId string `codec:"success_receipt_id" json:"success_receipt_id"`
}

type wireOutcome struct {
	Id         string     `codec:"id" json:"id"`
	Status     wireStatus `codec:"status" json:"status"`
	ReceiptIds []string   `codec:"receipt_ids" json:"receipt_ids"`
}

type wireReceipt struct {
	ReceiptId  string `codec:"receipt_id" json:"receipt_id"`
	ReceiverId string `codec:"receiver_id" json:"receiver_id"`
}

type wireFinalStatus struct {
	Kind         uint8  `codec:"kind" json:"kind"`
	Failure      string `codec:"failure" json:"failure"`
	SuccessValue []byte `codec:"success_value" json:"success_value"`
}

// wireV3 is the current shape.
type wireV3 struct {
	Transaction        wireTransaction `codec:"transaction" json:"transaction"`
	TransactionOutcome wireOutcome     `codec:"transaction_outcome" json:"transaction_outcome"`
	Receipts           []wireReceipt   `codec:"receipts" json:"receipts"`
	ReceiptsOutcome    []wireOutcome   `codec:"receipts_outcome" json:"receipts_outcome"`
	Status             wireFinalStatus `codec:"status" json:"status"`
	BlockHeight        uint64          `codec:"block_height" json:"block_height"`
}

// wireV2 predates the block_height field being persisted alongside the record.
type wireV2 struct {
	Transaction        wireTransaction `codec:"transaction" json:"transaction"`
	TransactionOutcome wireOutcome     `codec:"transaction_outcome" json:"transaction_outcome"`
	Receipts           []wireReceipt   `codec:"receipts" json:"receipts"`
	ReceiptsOutcome    []wireOutcome   `codec:"receipts_outcome" json:"receipts_outcome"`
	Status             wireFinalStatus `codec:"status" json:"status"`
}

// wireV1 is the earliest recorded shape: the receipt outcome list was
// carried under the singular "receipt_outcome" key.
type wireV1 struct {
	Transaction        wireTransaction `codec:"transaction" json:"transaction"`
	TransactionOutcome wireOutcome     `codec:"transaction_outcome" json:"transaction_outcome"`
	Receipts           []wireReceipt   `codec:"receipts" json:"receipts"`
	ReceiptOutcome     []wireOutcome   `codec:"receipt_outcome" json:"receipt_outcome"`
	Status             wireFinalStatus `codec:"status" json:"status"`
}

func toWireV3(td primitives.TransactionDetails) wireV3 {
	return wireV3{
		Transaction:        transactionToWire(td.Transaction),
		TransactionOutcome: outcomeToWire(td.TransactionOutcome),
		Receipts:           receiptsToWire(td.Receipts),
		ReceiptsOutcome:    outcomesToWire(td.ReceiptsOutcome),
		Status:             finalStatusToWire(td.Status),
		BlockHeight:        uint64(td.BlockHeight),
	}
}

func fromWireV3(w wireV3) (primitives.TransactionDetails, error) {
	tx, err := transactionFromWire(w.Transaction)
	if err != nil {
		return primitives.TransactionDetails{}, err
	}
	txOutcome, err := outcomeFromWire(w.TransactionOutcome)
	if err != nil {
		return primitives.TransactionDetails{}, err
	}
	receipts, err := receiptsFromWire(w.Receipts)
	if err != nil {
		return primitives.TransactionDetails{}, err
	}
	outcomes, err := outcomesFromWire(w.ReceiptsOutcome)
	if err != nil {
		return primitives.TransactionDetails{}, err
	}
	status, err := finalStatusFromWire(w.Status)
	if err != nil {
		return primitives.TransactionDetails{}, err
	}
	return primitives.TransactionDetails{
		Transaction:        tx,
		TransactionOutcome: txOutcome,
		Receipts:           receipts,
		ReceiptsOutcome:    outcomes,
		Status:             status,
		BlockHeight:        primitives.BlockHeight(w.BlockHeight),
	}, nil
}

func decodeWireV2(generic map[string]interface{}) (primitives.TransactionDetails, error) {
	var w wireV2
	if err := reproject(generic, &w); err != nil {
		return primitives.TransactionDetails{}, err
	}
	return fromWireV3(wireV3{
		Transaction:        w.Transaction,
		TransactionOutcome: w.TransactionOutcome,
		Receipts:           w.Receipts,
		ReceiptsOutcome:    w.ReceiptsOutcome,
		Status:             w.Status,
	})
}

func decodeWireV1(generic map[string]interface{}) (primitives.TransactionDetails, error) {
	var w wireV1
	if err := reproject(generic, &w); err != nil {
		return primitives.TransactionDetails{}, err
	}
	return fromWireV3(wireV3{
		Transaction:        w.Transaction,
		TransactionOutcome: w.TransactionOutcome,
		Receipts:           w.Receipts,
		ReceiptsOutcome:    w.ReceiptOutcome,
		Status:             w.Status,
	})
}

func transactionToWire(t primitives.SignedTransactionView) wireTransaction {
	return wireTransaction{Hash: t.Hash.String(), SignerId: string(t.SignerId), ReceiverId: string(t.ReceiverId)}
}

func transactionFromWire(w wireTransaction) (primitives.SignedTransactionView, error) {
	hash, err := primitives.ParseCryptoHash(w.Hash)
	if err != nil {
		return primitives.SignedTransactionView{}, fmt.Errorf("transaction hash: %w", err)
	}
	return primitives.SignedTransactionView{
		Hash:       hash,
		SignerId:   primitives.AccountId(w.SignerId),
		ReceiverId: primitives.AccountId(w.ReceiverId),
	}, nil
}

func statusToWire(s primitives.ExecutionStatusView) wireStatus {
	return wireStatus{
		Kind:             uint8(s.Kind),
		Failure:          s.Failure,
		SuccessValue:     s.SuccessValue,
		SuccessReceiptId: s.SuccessReceiptId.String(),
	}
}

func statusFromWire(w wireStatus) (primitives.ExecutionStatusView, error) {
	var receiptId primitives.CryptoHash
	if w.SuccessReceiptId != "" {
		var err error
		receiptId, err = primitives.ParseCryptoHash(w.SuccessReceiptId)
		if err != nil {
			return primitives.ExecutionStatusView{}, fmt.Errorf("success receipt id: %w", err)
		}
	}
	return primitives.ExecutionStatusView{
		Kind:             primitives.StatusKind(w.Kind),
		Failure:          w.Failure,
		SuccessValue:     w.SuccessValue,
		SuccessReceiptId: receiptId,
	}, nil
}

func finalStatusToWire(s primitives.FinalExecutionStatus) wireFinalStatus {
	return wireFinalStatus{Kind: uint8(s.Kind), Failure: s.Failure, SuccessValue: s.SuccessValue}
}

func finalStatusFromWire(w wireFinalStatus) (primitives.FinalExecutionStatus, error) {
	return primitives.FinalExecutionStatus{Kind: primitives.FinalKind(w.Kind), Failure: w.Failure, SuccessValue: w.SuccessValue}, nil
}

func outcomeToWire(o primitives.ExecutionOutcomeWithIdView) wireOutcome {
	ids := make([]string, len(o.Outcome.ReceiptIds))
	for i, id := range o.Outcome.ReceiptIds {
		ids[i] = id.String()
	}
	return wireOutcome{Id: o.Id.String(), Status: statusToWire(o.Outcome.Status), ReceiptIds: ids}
}

func outcomeFromWire(w wireOutcome) (primitives.ExecutionOutcomeWithIdView, error) {
	id, err := primitives.ParseCryptoHash(w.Id)
	if err != nil {
		return primitives.ExecutionOutcomeWithIdView{}, fmt.Errorf("outcome id: %w", err)
	}
	status, err := statusFromWire(w.Status)
	if err != nil {
		return primitives.ExecutionOutcomeWithIdView{}, err
	}
	var receiptIds []primitives.CryptoHash
	if len(w.ReceiptIds) > 0 {
		receiptIds = make([]primitives.CryptoHash, len(w.ReceiptIds))
	}
	for i, s := range w.ReceiptIds {
		h, err := primitives.ParseCryptoHash(s)
		if err != nil {
			return primitives.ExecutionOutcomeWithIdView{}, fmt.Errorf("outcome receipt id: %w", err)
		}
		receiptIds[i] = h
	}
	return primitives.ExecutionOutcomeWithIdView{
		Id:      id,
		Outcome: primitives.ExecutionOutcomeView{Status: status, ReceiptIds: receiptIds},
	}, nil
}

func outcomesToWire(outcomes []primitives.ExecutionOutcomeWithIdView) []wireOutcome {
	w := make([]wireOutcome, len(outcomes))
	for i, o := range outcomes {
		w[i] = outcomeToWire(o)
	}
	return w
}

func outcomesFromWire(outcomes []wireOutcome) ([]primitives.ExecutionOutcomeWithIdView, error) {
	result := make([]primitives.ExecutionOutcomeWithIdView, len(outcomes))
	for i, w := range outcomes {
		o, err := outcomeFromWire(w)
		if err != nil {
			return nil, err
		}
		result[i] = o
	}
	return result, nil
}

func receiptsToWire(receipts []primitives.ReceiptView) []wireReceipt {
	w := make([]wireReceipt, len(receipts))
	for i, r := range receipts {
		w[i] = wireReceipt{ReceiptId: r.ReceiptId.String(), ReceiverId: string(r.ReceiverId)}
	}
	return w
}

func receiptsFromWire(receipts []wireReceipt) ([]primitives.ReceiptView, error) {
	result := make([]primitives.ReceiptView, len(receipts))
	for i, w := range receipts {
		id, err := primitives.ParseCryptoHash(w.ReceiptId)
		if err != nil {
			return nil, fmt.Errorf("receipt id: %w", err)
		}
		result[i] = primitives.ReceiptView{ReceiptId: id, ReceiverId: primitives.AccountId(w.ReceiverId)}
	}
	return result, nil
}
