package ledger

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/SiddharthManjul/DiffiChain/common"
	"github.com/SiddharthManjul/DiffiChain/dcerrors"
	"github.com/SiddharthManjul/DiffiChain/events"
	"github.com/SiddharthManjul/DiffiChain/log"
	"github.com/SiddharthManjul/DiffiChain/note"
	"github.com/SiddharthManjul/DiffiChain/zkverify"
)

// MintRequest deposits value under a fresh commitment. Amount and
// NullifierHash are only read in AmountPublic mode; denominated ledgers take
// the value from configuration.
type MintRequest struct {
	Commitment       common.Hash     `json:"commitment"`
	NullifierHash    common.Hash     `json:"nullifierHash"`
	Amount           *uint256.Int    `json:"amount,omitempty"`
	EncryptedPayload common.HexBytes `json:"encryptedPayload,omitempty"`
	Proof            *zkverify.Proof `json:"proof"`
}

// MintReceipt reports where the commitment landed.
type MintReceipt struct {
	Commitment common.Hash `json:"commitment"`
	Index      uint64      `json:"index"`
	MerkleRoot common.Hash `json:"merkleRoot"`
}

// TransferRequest spends k notes into m fresh ones. The root is the one the
// proof was built against; payloads ride alongside their commitment.
type TransferRequest struct {
	InputNullifiers   []common.Hash     `json:"inputNullifiers"`
	OutputCommitments []common.Hash     `json:"outputCommitments"`
	MerkleRoot        common.Hash       `json:"merkleRoot"`
	EncryptedPayloads []common.HexBytes `json:"encryptedPayloads"`
	Proof             *zkverify.Proof   `json:"proof"`
}

// TransferReceipt reports the leaf index of each output, in request order.
type TransferReceipt struct {
	Indices    []uint64    `json:"indices"`
	MerkleRoot common.Hash `json:"merkleRoot"`
}

// RedeemRequest exits one note to a transparent recipient. Amount and
// Commitment are only read in AmountPublic mode.
type RedeemRequest struct {
	Nullifier  common.Hash     `json:"nullifier"`
	Recipient  common.Address  `json:"recipient"`
	Amount     *uint256.Int    `json:"amount,omitempty"`
	Commitment common.Hash     `json:"commitment,omitempty"`
	MerkleRoot common.Hash     `json:"merkleRoot"`
	Proof      *zkverify.Proof `json:"proof"`
}

// RedeemReceipt confirms the payout.
type RedeemReceipt struct {
	Nullifier common.Hash    `json:"nullifier"`
	Recipient common.Address `json:"recipient"`
	Amount    *uint256.Int   `json:"amount"`
}

// Mint verifies a deposit proof, locks collateral and inserts the
// commitment. Nothing mutates until the proof has passed; a storage failure
// after the collateral lock unwinds both the tree and the lock.
func (l *NoteLedger) Mint(req MintRequest) (*MintReceipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if req.Commitment.IsZero() {
		return nil, dcerrors.ErrSInvalidCommitment
	}
	if l.cfg.AmountMode == AmountPublic {
		if req.Amount == nil || req.Amount.IsZero() || req.NullifierHash.IsZero() {
			return nil, dcerrors.ErrSInvalidCommitment
		}
	}
	if _, exists := l.commitments[req.Commitment]; exists {
		return nil, dcerrors.ErrCCommitmentAlreadyExists
	}
	if l.cfg.AmountMode == AmountPublic && l.set.IsSpent(req.NullifierHash) {
		return nil, dcerrors.ErrCNullifierAlreadySpent
	}
	if l.tree.GetSize() >= l.tree.Capacity() {
		return nil, dcerrors.ErrRTreeFull
	}

	if !l.verifyLocked(l.verifiers.Mint, req.Proof, l.mintPublicsLocked(req), "mint") {
		return nil, dcerrors.ErrPInvalidProof
	}

	amount := l.operationAmountLocked(req.Amount)
	if err := l.pools.Lock(l.cfg.Asset, l.cfg.Issuer, l.cfg.Issuer, amount); err != nil {
		return nil, err
	}

	snap := l.tree.Snapshot()
	index, err := l.tree.Append(req.Commitment)
	if err != nil {
		l.unwindLockLocked(amount)
		return nil, err
	}
	if err := l.store.AddCommitment(index, req.Commitment, req.EncryptedPayload); err != nil {
		if restoreErr := l.tree.RestoreState(snap); restoreErr != nil {
			log.Crit(log.LedgerMonitoring, "Tree restore failed during mint rollback", "err", restoreErr)
		}
		l.unwindLockLocked(amount)
		return nil, fmt.Errorf("persist commitment %d: %w", index, err)
	}
	l.commitments[req.Commitment] = index
	l.persistCollateralLocked()

	l.commitEventsLocked(
		events.CollateralLocked(req.Commitment),
		events.NoteCommitted(req.Commitment, index, req.EncryptedPayload),
		events.Deposit(req.Commitment),
	)

	root := l.tree.GetRoot()
	log.Info(log.LedgerMonitoring, "Mint committed",
		"commitment", common.Str(req.Commitment), "index", index, "root", common.Str(root))
	return &MintReceipt{Commitment: req.Commitment, Index: index, MerkleRoot: root}, nil
}

// Transfer spends the input notes and inserts the outputs as one unit. The
// proof carries conservation and membership; the core checks the set
// preconditions, the root binding and capacity, then mutates or rolls back
// everything.
func (l *NoteLedger) Transfer(req TransferRequest) (*TransferReceipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	k, m := len(req.InputNullifiers), len(req.OutputCommitments)
	if k < 1 || m < 1 || len(req.EncryptedPayloads) != m {
		return nil, dcerrors.ErrSInvalidArrayLength
	}
	if l.cfg.TransferArity.Fixed() &&
		(k != l.cfg.TransferArity.Inputs || m != l.cfg.TransferArity.Outputs) {
		return nil, dcerrors.ErrSInvalidArrayLength
	}

	seenInputs := make(map[common.Hash]bool, k)
	for _, n := range req.InputNullifiers {
		if n.IsZero() {
			return nil, dcerrors.ErrSInvalidCommitment
		}
		if seenInputs[n] {
			return nil, dcerrors.ErrCNullifierAlreadySpent
		}
		seenInputs[n] = true
	}
	seenOutputs := make(map[common.Hash]bool, m)
	for _, c := range req.OutputCommitments {
		if c.IsZero() {
			return nil, dcerrors.ErrSInvalidCommitment
		}
		if seenOutputs[c] {
			return nil, dcerrors.ErrCCommitmentAlreadyExists
		}
		seenOutputs[c] = true
	}

	for _, n := range req.InputNullifiers {
		if l.set.IsSpent(n) {
			return nil, dcerrors.ErrCNullifierAlreadySpent
		}
	}
	for _, c := range req.OutputCommitments {
		if _, exists := l.commitments[c]; exists {
			return nil, dcerrors.ErrCCommitmentAlreadyExists
		}
	}

	if l.tree.GetSize()+uint64(m) > l.tree.Capacity() {
		return nil, dcerrors.ErrRTreeFull
	}
	if req.MerkleRoot != l.tree.GetRoot() {
		return nil, dcerrors.ErrCInvalidMerkleRoot
	}

	if !l.verifyLocked(l.verifiers.Transfer, req.Proof, l.transferPublicsLocked(req), "transfer") {
		return nil, dcerrors.ErrPInvalidProof
	}

	snap := l.tree.Snapshot()
	start, err := l.tree.AppendBatch(req.OutputCommitments)
	if err != nil {
		return nil, err
	}

	// Event sequences are assigned NullifierSpent first, commitment events
	// after, matching the emission order below.
	rollback := func(persistedNf, persistedCm int) {
		for i := 0; i < persistedNf; i++ {
			if err := l.store.DeleteNullifier(req.InputNullifiers[i]); err != nil {
				log.Warn(log.LedgerMonitoring, "Rollback nullifier delete failed",
					"nullifier", common.Str(req.InputNullifiers[i]), "err", err)
			}
		}
		for i := 0; i < persistedCm; i++ {
			if err := l.store.DeleteCommitment(start + uint64(i)); err != nil {
				log.Warn(log.LedgerMonitoring, "Rollback commitment delete failed",
					"index", start+uint64(i), "err", err)
			}
		}
		for _, n := range req.InputNullifiers {
			l.set.Unmark(n)
		}
		for _, c := range req.OutputCommitments {
			delete(l.commitments, c)
		}
		if err := l.tree.RestoreState(snap); err != nil {
			log.Crit(log.LedgerMonitoring, "Tree restore failed during transfer rollback", "err", err)
		}
	}

	for i, n := range req.InputNullifiers {
		if err := l.set.MarkSpent(n); err != nil {
			rollback(i, 0)
			return nil, err
		}
		if err := l.store.AddNullifier(n, l.eventSeq+1+uint64(i)); err != nil {
			rollback(i, 0)
			return nil, fmt.Errorf("persist nullifier %s: %w", common.Str(n), err)
		}
	}
	for i, c := range req.OutputCommitments {
		index := start + uint64(i)
		if err := l.store.AddCommitment(index, c, req.EncryptedPayloads[i]); err != nil {
			rollback(k, i)
			return nil, fmt.Errorf("persist commitment %d: %w", index, err)
		}
		l.commitments[c] = index
	}

	staged := make([]events.Event, 0, k+m)
	for _, n := range req.InputNullifiers {
		staged = append(staged, events.NullifierSpent(n))
	}
	indices := make([]uint64, m)
	for i, c := range req.OutputCommitments {
		indices[i] = start + uint64(i)
		staged = append(staged, events.NoteCommitted(c, indices[i], req.EncryptedPayloads[i]))
	}
	l.commitEventsLocked(staged...)

	root := l.tree.GetRoot()
	log.Info(log.LedgerMonitoring, "Transfer committed",
		"inputs", k, "outputs", m, "start", start, "root", common.Str(root))
	return &TransferReceipt{Indices: indices, MerkleRoot: root}, nil
}

// Redeem spends one note out of the system and pays collateral to the
// recipient. The nullifier mark and the payout form one atomic unit: a
// failed release unwinds the mark and no event survives.
func (l *NoteLedger) Redeem(req RedeemRequest) (*RedeemReceipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if req.Nullifier.IsZero() {
		return nil, dcerrors.ErrSInvalidCommitment
	}
	if l.cfg.AmountMode == AmountPublic {
		if req.Amount == nil || req.Amount.IsZero() || req.Commitment.IsZero() {
			return nil, dcerrors.ErrSInvalidCommitment
		}
	}
	if l.set.IsSpent(req.Nullifier) {
		return nil, dcerrors.ErrCNullifierAlreadySpent
	}
	if req.MerkleRoot != l.tree.GetRoot() {
		return nil, dcerrors.ErrCInvalidMerkleRoot
	}

	if !l.verifyLocked(l.verifiers.Redeem, req.Proof, l.redeemPublicsLocked(req), "redeem") {
		return nil, dcerrors.ErrPInvalidProof
	}

	if err := l.set.MarkSpent(req.Nullifier); err != nil {
		return nil, err
	}
	if err := l.store.AddNullifier(req.Nullifier, l.eventSeq+1); err != nil {
		l.set.Unmark(req.Nullifier)
		return nil, fmt.Errorf("persist nullifier %s: %w", common.Str(req.Nullifier), err)
	}

	amount := l.operationAmountLocked(req.Amount)
	if err := l.pools.Release(l.cfg.Asset, l.cfg.Issuer, req.Recipient, amount); err != nil {
		l.set.Unmark(req.Nullifier)
		if delErr := l.store.DeleteNullifier(req.Nullifier); delErr != nil {
			log.Warn(log.LedgerMonitoring, "Rollback nullifier delete failed",
				"nullifier", common.Str(req.Nullifier), "err", delErr)
		}
		return nil, err
	}
	l.persistCollateralLocked()

	l.commitEventsLocked(
		events.NullifierSpent(req.Nullifier),
		events.Withdrawal(req.Nullifier),
		events.CollateralReleased(req.Nullifier),
	)

	log.Info(log.LedgerMonitoring, "Redeem committed",
		"nullifier", common.Str(req.Nullifier), "recipient", req.Recipient.Hex(), "amount", amount)
	return &RedeemReceipt{Nullifier: req.Nullifier, Recipient: req.Recipient, Amount: amount}, nil
}

// verifyLocked collapses verifier rejections and verifier breakage into one
// outcome. Callers translate false into InvalidProof; the cause is logged
// but never disclosed to the submitter.
func (l *NoteLedger) verifyLocked(v zkverify.Verifier, proof *zkverify.Proof, publics []common.Hash, op string) bool {
	ok, err := v.Verify(proof, publics)
	if err != nil {
		log.Warn(log.LedgerMonitoring, "Verifier failed to run", "op", op, "err", err)
		return false
	}
	if !ok {
		log.Debug(log.LedgerMonitoring, "Proof rejected", "op", op, "publics", len(publics))
	}
	return ok
}

// operationAmountLocked resolves the value an operation moves: the request
// amount in public mode, the configured denomination otherwise.
func (l *NoteLedger) operationAmountLocked(reqAmount *uint256.Int) *uint256.Int {
	if l.cfg.AmountMode == AmountDenominated {
		return l.cfg.Denomination.Clone()
	}
	return reqAmount.Clone()
}

// unwindLockLocked returns collateral that was locked for an operation that
// failed later on. The refund goes back to the issuer's custody account.
func (l *NoteLedger) unwindLockLocked(amount *uint256.Int) {
	if err := l.pools.Release(l.cfg.Asset, l.cfg.Issuer, l.cfg.Issuer, amount); err != nil {
		log.Warn(log.LedgerMonitoring, "Collateral unwind failed", "amount", amount, "err", err)
	}
}

func (l *NoteLedger) mintPublicsLocked(req MintRequest) []common.Hash {
	if l.cfg.AmountMode == AmountDenominated {
		return []common.Hash{req.Commitment, note.AmountToHash(l.cfg.Denomination)}
	}
	return []common.Hash{req.Commitment, req.NullifierHash}
}

func (l *NoteLedger) transferPublicsLocked(req TransferRequest) []common.Hash {
	if l.cfg.TransferArity.Fixed() {
		publics := make([]common.Hash, 0, 1+len(req.InputNullifiers)+len(req.OutputCommitments))
		publics = append(publics, req.MerkleRoot)
		publics = append(publics, req.InputNullifiers...)
		publics = append(publics, req.OutputCommitments...)
		return publics
	}
	publics := make([]common.Hash, 0, len(req.InputNullifiers)+len(req.OutputCommitments)+1)
	publics = append(publics, req.InputNullifiers...)
	publics = append(publics, req.OutputCommitments...)
	publics = append(publics, req.MerkleRoot)
	return publics
}

func (l *NoteLedger) redeemPublicsLocked(req RedeemRequest) []common.Hash {
	if l.cfg.AmountMode == AmountDenominated {
		return []common.Hash{req.Nullifier, common.AddressToHash(req.Recipient), req.MerkleRoot}
	}
	return []common.Hash{
		req.MerkleRoot,
		note.AmountToHash(req.Amount),
		common.AddressToHash(req.Recipient),
		req.Commitment,
		req.Nullifier,
	}
}
