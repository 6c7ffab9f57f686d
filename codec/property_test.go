package codec

import (
	"testing"

	"pgregory.net/rapid"

	"github.com/near/tx-indexer/primitives"
)

func genHash(t *rapid.T, label string) primitives.CryptoHash {
	b := rapid.SliceOfN(rapid.Byte(), primitives.HashSize, primitives.HashSize).Draw(t, label)
	var h primitives.CryptoHash
	copy(h[:], b)
	return h
}

func genAccountId(t *rapid.T, label string) primitives.AccountId {
	return primitives.AccountId(rapid.StringMatching(`[a-z][a-z0-9_]{0,10}\.near`).Draw(t, label))
}

func genExecutionStatus(t *rapid.T) primitives.ExecutionStatusView {
	kind := primitives.StatusKind(rapid.IntRange(0, 3).Draw(t, "status_kind"))
	v := primitives.ExecutionStatusView{Kind: kind}
	switch kind {
	case primitives.StatusFailure:
		v.Failure = rapid.String().Draw(t, "failure")
	case primitives.StatusSuccessValue:
		v.SuccessValue = []byte(rapid.String().Draw(t, "success_value"))
	case primitives.StatusSuccessReceiptId:
		v.SuccessReceiptId = genHash(t, "success_receipt_id")
	}
	return v
}

func genOutcome(t *rapid.T) primitives.ExecutionOutcomeWithIdView {
	n := rapid.IntRange(0, 3).Draw(t, "n_receipt_ids")
	ids := make([]primitives.CryptoHash, n)
	for i := range ids {
		ids[i] = genHash(t, "receipt_id")
	}
	return primitives.ExecutionOutcomeWithIdView{
		Id: genHash(t, "outcome_id"),
		Outcome: primitives.ExecutionOutcomeView{
			Status:     genExecutionStatus(t),
			ReceiptIds: ids,
		},
	}
}

func genFinalStatus(t *rapid.T) primitives.FinalExecutionStatus {
	kind := primitives.FinalKind(rapid.IntRange(0, 3).Draw(t, "final_kind"))
	fs := primitives.FinalExecutionStatus{Kind: kind}
	switch kind {
	case primitives.FinalFailure:
		fs.Failure = rapid.String().Draw(t, "final_failure")
	case primitives.FinalSuccessValue:
		fs.SuccessValue = []byte(rapid.String().Draw(t, "final_success_value"))
	}
	return fs
}

func genTransactionDetails(t *rapid.T) primitives.TransactionDetails {
	signer := genAccountId(t, "signer")
	receiver := genAccountId(t, "receiver")

	nReceipts := rapid.IntRange(0, 4).Draw(t, "n_receipts")
	receipts := make([]primitives.ReceiptView, nReceipts)
	for i := range receipts {
		receipts[i] = primitives.ReceiptView{
			ReceiptId:  genHash(t, "receipt_view_id"),
			ReceiverId: genAccountId(t, "receipt_receiver"),
		}
	}

	nOutcomes := rapid.IntRange(0, 4).Draw(t, "n_receipts_outcome")
	outcomes := make([]primitives.ExecutionOutcomeWithIdView, nOutcomes)
	for i := range outcomes {
		outcomes[i] = genOutcome(t)
	}

	return primitives.TransactionDetails{
		Transaction: primitives.SignedTransactionView{
			Hash:       genHash(t, "tx_hash"),
			SignerId:   signer,
			ReceiverId: receiver,
		},
		TransactionOutcome: genOutcome(t),
		Receipts:           receipts,
		ReceiptsOutcome:    outcomes,
		Status:             genFinalStatus(t),
		BlockHeight:        primitives.BlockHeight(rapid.Uint64().Draw(t, "block_height")),
	}
}

// TestCodecRoundTripProperty checks invariant 4 (spec.md §8): decode(encode(x))
// == x for every current-version record, across randomly generated shapes
// covering every status/final-status variant and empty/non-empty receipt and
// outcome slices.
func TestCodecRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		want := genTransactionDetails(t)

		encoded, err := Encode(want)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		got, err := Decode(encoded)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}

		if !transactionDetailsEqual(want, got) {
			t.Fatalf("round trip mismatch:\nwant %#v\ngot  %#v", want, got)
		}
	})
}

func transactionDetailsEqual(a, b primitives.TransactionDetails) bool {
	if a.Transaction != b.Transaction {
		return false
	}
	if !outcomeEqual(a.TransactionOutcome, b.TransactionOutcome) {
		return false
	}
	if a.Status.Kind != b.Status.Kind || a.Status.Failure != b.Status.Failure || string(a.Status.SuccessValue) != string(b.Status.SuccessValue) {
		return false
	}
	if a.BlockHeight != b.BlockHeight {
		return false
	}
	if len(a.Receipts) != len(b.Receipts) {
		return false
	}
	for i := range a.Receipts {
		if a.Receipts[i] != b.Receipts[i] {
			return false
		}
	}
	if len(a.ReceiptsOutcome) != len(b.ReceiptsOutcome) {
		return false
	}
	for i := range a.ReceiptsOutcome {
		if !outcomeEqual(a.ReceiptsOutcome[i], b.ReceiptsOutcome[i]) {
			return false
		}
	}
	return true
}

func outcomeEqual(a, b primitives.ExecutionOutcomeWithIdView) bool {
	if a.Id != b.Id {
		return false
	}
	if a.Outcome.Status.Kind != b.Outcome.Status.Kind {
		return false
	}
	if a.Outcome.Status.Failure != b.Outcome.Status.Failure {
		return false
	}
	if string(a.Outcome.Status.SuccessValue) != string(b.Outcome.Status.SuccessValue) {
		return false
	}
	if a.Outcome.Status.SuccessReceiptId != b.Outcome.Status.SuccessReceiptId {
		return false
	}
	if len(a.Outcome.ReceiptIds) != len(b.Outcome.ReceiptIds) {
		return false
	}
	for i := range a.Outcome.ReceiptIds {
		if a.Outcome.ReceiptIds[i] != b.Outcome.ReceiptIds[i] {
			return false
		}
	}
	return true
}
