package ledger

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/SiddharthManjul/DiffiChain/common"
	"github.com/SiddharthManjul/DiffiChain/zkverify"
)

// Drives the ledger through all three operations, then checks the snapshot
// document survives a decode/encode cycle and that a reloaded ledger
// reproduces it byte for byte.
func TestSnapshotDocumentRoundTrip(t *testing.T) {
	l := newTestLedger(t, publicConfig())

	a := testNote(40, 1)
	b := testNote(24, 2)
	mustMint(t, l, a)
	mustMint(t, l, b)

	out1 := testNote(50, 3)
	out2 := testNote(14, 4)
	_, err := l.Transfer(TransferRequest{
		InputNullifiers:   []common.Hash{a.NullifierHash(), b.NullifierHash()},
		OutputCommitments: []common.Hash{out1.Commitment(), out2.Commitment()},
		MerkleRoot:        l.MerkleRoot(),
		EncryptedPayloads: []common.HexBytes{{0x01}, {0x02}},
	})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	_, err = l.Redeem(RedeemRequest{
		Nullifier:  out1.NullifierHash(),
		Recipient:  testRecipient,
		Amount:     out1.Amount.Clone(),
		Commitment: out1.Commitment(),
		MerkleRoot: l.MerkleRoot(),
	})
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}

	snap, err := l.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	var doc LedgerSnapshot
	if err := json.Unmarshal(snap, &doc); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	again, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		t.Fatalf("re-encode snapshot: %v", err)
	}
	assert.JSONEq(t, string(snap), string(again), "snapshot -> struct -> snapshot Failure")

	assert.Equal(t, uint64(4), doc.NextIndex)
	assert.Equal(t, l.LastEventSeq(), doc.LastSeq)
	assert.Equal(t, 4, len(doc.Commitments))
	assert.Equal(t, 3, len(doc.Nullifiers))

	reloaded, err := New(l.Config(), Deps{
		Verifiers: zkverify.AcceptSuite(),
		Custody:   l.custody,
		Store:     l.store,
	})
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	snapReloaded, err := reloaded.Snapshot()
	if err != nil {
		t.Fatalf("snapshot after reload: %v", err)
	}
	assert.Equal(t, string(snap), string(snapReloaded), "reload must reproduce the snapshot document")
}
