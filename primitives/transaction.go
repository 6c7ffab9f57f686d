package primitives

import "fmt"

// ReceiptRecord is the C1-persisted reverse-index entry: every receipt that
// appears in any finalized TransactionDetails.Receipts has one of these
// (spec.md §3; ReceiverId is a SPEC_FULL.md §3 addition restored from the
// original source).
type ReceiptRecord struct {
	ReceiptId             CryptoHash
	ParentTransactionHash CryptoHash
	ReceiverId            AccountId
	BlockHeight           BlockHeight
	ShardId               ShardId
}

// CollectingTransaction is the C2 entry for a transaction that is still
// being assembled: the original view, the receipts and outcomes observed so
// far, and the block height that anchors its TransactionKey.
type CollectingTransaction struct {
	Transaction      SignedTransactionView
	Receipts         []ReceiptView
	ExecutionOutcome []ExecutionOutcomeWithIdView
	BlockHeight      BlockHeight
}

// NewCollectingTransaction seeds a fresh C2 entry from an indexed
// transaction, per C2.start (spec.md §4.2).
func NewCollectingTransaction(tx IndexerTransactionWithOutcome, height BlockHeight) *CollectingTransaction {
	return &CollectingTransaction{
		Transaction:      tx.Transaction,
		Receipts:         nil,
		ExecutionOutcome: []ExecutionOutcomeWithIdView{tx.Outcome},
		BlockHeight:      height,
	}
}

// Key builds the TransactionKey identifying this entry (spec.md §3).
func (c *CollectingTransaction) Key() TransactionKey {
	return TransactionKey{TransactionHash: c.Transaction.Hash, BlockHeight: c.BlockHeight}
}

// FinalStatus performs the finality walk described in spec.md §4.3: starting
// at the transaction's own hash, follow SuccessReceiptId chains through the
// outcomes observed so far until a definitive status is reached, or report
// that the walk cannot yet conclude (ok == false) because no outcome for the
// current id has arrived.
func (c *CollectingTransaction) FinalStatus() (FinalExecutionStatus, bool) {
	lookingFor := c.Transaction.Hash
	numOutcomes := len(c.ExecutionOutcome)
	for {
		var found *ExecutionOutcomeWithIdView
		for i := range c.ExecutionOutcome {
			if c.ExecutionOutcome[i].Id == lookingFor {
				found = &c.ExecutionOutcome[i]
				break
			}
		}
		if found == nil {
			return FinalExecutionStatus{}, false
		}
		switch found.Outcome.Status.Kind {
		case StatusUnknown:
			if numOutcomes == 1 {
				return FinalExecutionStatus{Kind: FinalNotStarted}, true
			}
			return FinalExecutionStatus{Kind: FinalStarted}, true
		case StatusFailure:
			return FinalExecutionStatus{Kind: FinalFailure, Failure: found.Outcome.Status.Failure}, true
		case StatusSuccessValue:
			return FinalExecutionStatus{Kind: FinalSuccessValue, SuccessValue: found.Outcome.Status.SuccessValue}, true
		case StatusSuccessReceiptId:
			lookingFor = found.Outcome.Status.SuccessReceiptId
			continue
		default:
			return FinalExecutionStatus{}, false
		}
	}
}

// ToTransactionDetails freezes a CollectingTransaction into its finalized
// form. It returns an error if the outcome chain does not yet resolve —
// callers (the finalization sweep) must only call this after FinalStatus
// reports ok.
func (c *CollectingTransaction) ToTransactionDetails() (TransactionDetails, error) {
	status, ok := c.FinalStatus()
	if !ok {
		return TransactionDetails{}, fmt.Errorf("primitives: transaction %s not yet final", c.Transaction.Hash)
	}
	if len(c.ExecutionOutcome) == 0 {
		return TransactionDetails{}, fmt.Errorf("primitives: transaction %s has no outcomes", c.Transaction.Hash)
	}
	return TransactionDetails{
		Transaction:        c.Transaction,
		TransactionOutcome: c.ExecutionOutcome[0],
		Receipts:           append([]ReceiptView(nil), c.Receipts...),
		ReceiptsOutcome:    append([]ExecutionOutcomeWithIdView(nil), c.ExecutionOutcome[1:]...),
		Status:             status,
		BlockHeight:        c.BlockHeight,
	}, nil
}

// TransactionDetails is the frozen, finalized record (spec.md §3): the
// original transaction view, its own outcome, the ordered receipts and
// receipt outcomes, and the resolved final status. BlockHeight is carried
// so storage writes can key on (tx hash, block height) without re-deriving
// it (spec.md §4.5).
type TransactionDetails struct {
	Transaction        SignedTransactionView
	TransactionOutcome ExecutionOutcomeWithIdView
	Receipts           []ReceiptView
	ReceiptsOutcome    []ExecutionOutcomeWithIdView
	Status             FinalExecutionStatus
	BlockHeight        BlockHeight
}

// ToFinalExecutionOutcome projects TransactionDetails into the shape a
// JSON-RPC-style consumer expects for a plain (no-receipts) final result.
func (t TransactionDetails) ToFinalExecutionOutcome() FinalExecutionOutcomeView {
	return FinalExecutionOutcomeView{
		Status:             t.Status,
		Transaction:        t.Transaction,
		TransactionOutcome: t.TransactionOutcome,
		ReceiptsOutcome:    t.ReceiptsOutcome,
	}
}

// ToFinalExecutionOutcomeWithReceipts projects TransactionDetails into the
// "with receipts" view for external consumers, applying the local-receipt
// filter of spec.md §4.3: when the transaction's signer and receiver are the
// same account, the receipt matching the first spawned receipt id of the
// transaction's own outcome is the implicit local receipt NEAR's JSON-RPC
// omits, and is dropped here too.
func (t TransactionDetails) ToFinalExecutionOutcomeWithReceipts() FinalExecutionOutcomeWithReceiptView {
	receipts := t.Receipts
	if t.Transaction.SignerId == t.Transaction.ReceiverId && len(t.TransactionOutcome.Outcome.ReceiptIds) > 0 {
		localReceiptId := t.TransactionOutcome.Outcome.ReceiptIds[0]
		filtered := make([]ReceiptView, 0, len(receipts))
		for _, r := range receipts {
			if r.ReceiptId == localReceiptId {
				continue
			}
			filtered = append(filtered, r)
		}
		receipts = filtered
	}
	return FinalExecutionOutcomeWithReceiptView{
		FinalOutcome: t.ToFinalExecutionOutcome(),
		Receipts:     receipts,
	}
}

// FinalExecutionOutcomeView is the final-execution view without receipts.
type FinalExecutionOutcomeView struct {
	Status             FinalExecutionStatus
	Transaction        SignedTransactionView
	TransactionOutcome ExecutionOutcomeWithIdView
	ReceiptsOutcome    []ExecutionOutcomeWithIdView
}

// FinalExecutionOutcomeWithReceiptView adds the (locally filtered) receipts.
type FinalExecutionOutcomeWithReceiptView struct {
	FinalOutcome FinalExecutionOutcomeView
	Receipts     []ReceiptView
}
