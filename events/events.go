// Package events defines the append-only records the ledger emits. Events
// carry public hashes only; amounts, secrets and openings never appear here.
package events

import (
	"github.com/SiddharthManjul/DiffiChain/common"
)

// Kind names an externally observable ledger event.
type Kind string

const (
	KindNoteCommitted      Kind = "note_committed"
	KindNullifierSpent     Kind = "nullifier_spent"
	KindDeposit            Kind = "deposit"
	KindWithdrawal         Kind = "withdrawal"
	KindCollateralLocked   Kind = "collateral_locked"
	KindCollateralReleased Kind = "collateral_released"
)

// Event is one ledger record. Only the fields relevant to the kind are
// populated; the rest stay zero. Seq is assigned when the owning operation
// commits.
type Event struct {
	Seq              uint64          `json:"seq"`
	Kind             Kind            `json:"kind"`
	Commitment       common.Hash     `json:"commitment"`
	Index            uint64          `json:"index"`
	Nullifier        common.Hash     `json:"nullifier"`
	EncryptedPayload common.HexBytes `json:"encryptedPayload,omitempty"`
}

// NoteCommitted records a fresh commitment entering the tree at index,
// with the opaque payload the sender attached for the receiver.
func NoteCommitted(commitment common.Hash, index uint64, payload []byte) Event {
	return Event{
		Kind:             KindNoteCommitted,
		Commitment:       commitment,
		Index:            index,
		EncryptedPayload: payload,
	}
}

// NullifierSpent records a nullifier hash turning spent.
func NullifierSpent(nullifier common.Hash) Event {
	return Event{Kind: KindNullifierSpent, Nullifier: nullifier}
}

// Deposit records value entering the ledger under a commitment.
func Deposit(commitment common.Hash) Event {
	return Event{Kind: KindDeposit, Commitment: commitment}
}

// Withdrawal records value leaving the ledger against a nullifier.
func Withdrawal(nullifier common.Hash) Event {
	return Event{Kind: KindWithdrawal, Nullifier: nullifier}
}

// CollateralLocked records backing locked for the deposit behind commitment.
func CollateralLocked(commitment common.Hash) Event {
	return Event{Kind: KindCollateralLocked, Commitment: commitment}
}

// CollateralReleased records backing paid out for the exit behind nullifier.
func CollateralReleased(nullifier common.Hash) Event {
	return Event{Kind: KindCollateralReleased, Nullifier: nullifier}
}
