package ledger

import (
	"errors"
	"strings"
	"testing"

	"github.com/holiman/uint256"

	"github.com/SiddharthManjul/DiffiChain/collateral"
	"github.com/SiddharthManjul/DiffiChain/common"
	"github.com/SiddharthManjul/DiffiChain/dcerrors"
	"github.com/SiddharthManjul/DiffiChain/merkle"
	"github.com/SiddharthManjul/DiffiChain/store"
	"github.com/SiddharthManjul/DiffiChain/zkverify"
)

func TestConfigValidation(t *testing.T) {
	base := func() Config { return publicConfig() }

	okCfg := base()
	if err := okCfg.validate(); err != nil {
		t.Fatalf("valid config: %v", err)
	}

	defaulted := base()
	defaulted.Depth = 0
	if err := defaulted.validate(); err != nil || defaulted.Depth != merkle.DefaultTreeDepth {
		t.Fatalf("depth defaulting: %d, %v", defaulted.Depth, err)
	}

	tooDeep := base()
	tooDeep.Depth = merkle.MaxTreeDepth + 1
	if err := tooDeep.validate(); err == nil {
		t.Fatal("depth above maximum accepted")
	}

	noDenom := base()
	noDenom.AmountMode = AmountDenominated
	if err := noDenom.validate(); err == nil {
		t.Fatal("denominated mode without denomination accepted")
	}

	strayDenom := base()
	strayDenom.Denomination = uint256.NewInt(10)
	if err := strayDenom.validate(); err == nil {
		t.Fatal("public mode with denomination accepted")
	}

	oneSided := base()
	oneSided.TransferArity = TransferArity{Inputs: 2}
	if err := oneSided.validate(); err == nil {
		t.Fatal("one-sided arity accepted")
	}
}

func TestParseTransferArity(t *testing.T) {
	if a, err := ParseTransferArity(""); err != nil || a.Fixed() {
		t.Fatalf("empty = %v, %v", a, err)
	}
	if a, err := ParseTransferArity("variable"); err != nil || a.Fixed() {
		t.Fatalf("variable = %v, %v", a, err)
	}
	a, err := ParseTransferArity("2x2")
	if err != nil || a.Inputs != 2 || a.Outputs != 2 {
		t.Fatalf("2x2 = %v, %v", a, err)
	}
	if a.String() != "2x2" {
		t.Fatalf("String = %q", a.String())
	}
	for _, bad := range []string{"x", "2x", "x3", "0x2", "2x0", "-1x2", "axb"} {
		if _, err := ParseTransferArity(bad); err == nil {
			t.Fatalf("%q accepted", bad)
		}
	}
}

func TestParseAmountMode(t *testing.T) {
	if m, err := ParseAmountMode("public"); err != nil || m != AmountPublic {
		t.Fatalf("public = %v, %v", m, err)
	}
	if m, err := ParseAmountMode("denominated"); err != nil || m != AmountDenominated {
		t.Fatalf("denominated = %v, %v", m, err)
	}
	if _, err := ParseAmountMode("mystery"); err == nil {
		t.Fatal("unknown mode accepted")
	}
}

func TestNewRejectsMissingDeps(t *testing.T) {
	st, err := store.Open("")
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	custody := collateral.NewVaultCustody()

	cases := []struct {
		name string
		deps Deps
	}{
		{"no store", Deps{Verifiers: zkverify.AcceptSuite(), Custody: custody}},
		{"no custody", Deps{Verifiers: zkverify.AcceptSuite(), Store: st}},
		{"no mint verifier", Deps{Verifiers: zkverify.Suite{Transfer: zkverify.AcceptAll{}, Redeem: zkverify.AcceptAll{}}, Custody: custody, Store: st}},
		{"no transfer verifier", Deps{Verifiers: zkverify.Suite{Mint: zkverify.AcceptAll{}, Redeem: zkverify.AcceptAll{}}, Custody: custody, Store: st}},
		{"no redeem verifier", Deps{Verifiers: zkverify.Suite{Mint: zkverify.AcceptAll{}, Transfer: zkverify.AcceptAll{}}, Custody: custody, Store: st}},
	}
	for _, tc := range cases {
		if _, err := New(publicConfig(), tc.deps); err == nil {
			t.Fatalf("%s: accepted", tc.name)
		}
	}

	bad := publicConfig()
	bad.Depth = merkle.MaxTreeDepth + 1
	if _, err := New(bad, Deps{Verifiers: zkverify.AcceptSuite(), Custody: custody, Store: st}); err == nil {
		t.Fatal("invalid config accepted")
	}
}

func TestConfigCloneIsolation(t *testing.T) {
	cfg := Config{
		Depth:        6,
		Asset:        testAsset,
		Issuer:       testIssuer,
		AmountMode:   AmountDenominated,
		Denomination: uint256.NewInt(25),
	}
	l := newTestLedger(t, cfg)

	got := l.Config()
	got.Denomination.SetUint64(9999)
	if l.Config().Denomination.Uint64() != 25 {
		t.Fatal("returned config aliases internal denomination")
	}
}

func TestQueries(t *testing.T) {
	l := newTestLedger(t, publicConfig())
	a, b := testNote(30, 1), testNote(12, 2)
	mustMint(t, l, a)
	mustMint(t, l, b)
	root := l.MerkleRoot()

	leaf, err := l.Leaf(1)
	if err != nil || leaf != b.Commitment() {
		t.Fatalf("leaf = %s, %v", common.Str(leaf), err)
	}
	if _, err := l.Leaf(5); err == nil {
		t.Fatal("out-of-range leaf accepted")
	}

	witness, err := l.Witness(0)
	if err != nil {
		t.Fatalf("witness: %v", err)
	}
	if !merkle.VerifyWitness(witness, a.Commitment(), root) {
		t.Fatal("witness does not verify")
	}

	absence, err := l.NullifierAbsenceProof(a.NullifierHash())
	if err != nil {
		t.Fatalf("absence proof: %v", err)
	}
	if !absence.Verify() {
		t.Fatal("absence proof does not verify")
	}

	if _, err := l.Redeem(RedeemRequest{
		Nullifier:  a.NullifierHash(),
		Recipient:  testRecipient,
		Amount:     uint256.NewInt(30),
		Commitment: a.Commitment(),
		MerkleRoot: root,
	}); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if _, err := l.NullifierAbsenceProof(a.NullifierHash()); err == nil {
		t.Fatal("absence proof issued for a spent nullifier")
	}

	entries := l.Locked()
	if len(entries) != 1 || entries[0].Locked.Uint64() != 12 {
		t.Fatalf("locked entries = %v", entries)
	}

	commitments, err := l.Commitments()
	if err != nil || len(commitments) != 2 {
		t.Fatalf("commitments = %v, %v", commitments, err)
	}
	if commitments[0].Index != 0 || commitments[1].Commitment != b.Commitment() {
		t.Fatalf("commitment listing = %+v", commitments)
	}

	roots := l.StateRoots()
	if roots.MerkleRoot != root || roots.TreeSize != 2 || roots.NullifierCount != 1 {
		t.Fatalf("state roots = %+v", roots)
	}
	if roots.CollateralTotal.Uint64() != 12 {
		t.Fatalf("collateral total = %s", roots.CollateralTotal)
	}
}

func TestReloadRoundTrip(t *testing.T) {
	first := newTestLedger(t, publicConfig())
	a, b := testNote(30, 1), testNote(12, 2)
	mustMint(t, first, a)
	mustMint(t, first, b)

	out0, out1 := testNote(25, 3), testNote(17, 4)
	if _, err := first.Transfer(TransferRequest{
		InputNullifiers:   []common.Hash{a.NullifierHash(), b.NullifierHash()},
		OutputCommitments: []common.Hash{out0.Commitment(), out1.Commitment()},
		MerkleRoot:        first.MerkleRoot(),
		EncryptedPayloads: []common.HexBytes{[]byte("p0"), nil},
	}); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if _, err := first.Redeem(RedeemRequest{
		Nullifier:  out0.NullifierHash(),
		Recipient:  testRecipient,
		Amount:     uint256.NewInt(25),
		Commitment: out0.Commitment(),
		MerkleRoot: first.MerkleRoot(),
	}); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	want := first.StateRoots()

	second, err := New(publicConfig(), Deps{
		Verifiers: zkverify.AcceptSuite(),
		Custody:   first.custody,
		Store:     first.store,
	})
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	got := second.StateRoots()
	if got.MerkleRoot != want.MerkleRoot || got.TreeSize != want.TreeSize {
		t.Fatalf("tree state diverged: %+v vs %+v", got, want)
	}
	if got.NullifierRoot != want.NullifierRoot || got.NullifierCount != want.NullifierCount {
		t.Fatalf("nullifier state diverged: %+v vs %+v", got, want)
	}
	if got.CollateralTotal.Cmp(want.CollateralTotal) != 0 {
		t.Fatalf("collateral diverged: %s vs %s", got.CollateralTotal, want.CollateralTotal)
	}
	if second.LastEventSeq() != first.LastEventSeq() {
		t.Fatalf("event seq diverged: %d vs %d", second.LastEventSeq(), first.LastEventSeq())
	}
	if !second.IsNullifierSpent(out0.NullifierHash()) || second.IsNullifierSpent(out1.NullifierHash()) {
		t.Fatal("spent set not reloaded")
	}
	if !second.CommitmentExists(out1.Commitment()) {
		t.Fatal("commitments not reloaded")
	}

	// Sequences continue where the log left off.
	seqBefore := second.LastEventSeq()
	if _, err := second.Mint(mintReq(testNote(7, 9), nil)); err != nil {
		t.Fatalf("mint after reload: %v", err)
	}
	evs, _ := second.Events(seqBefore + 1)
	if len(evs) != 3 || evs[0].Seq != seqBefore+1 {
		t.Fatalf("post-reload events = %v", evs)
	}
}

func TestReloadRefusesGaps(t *testing.T) {
	st, err := store.Open("")
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	if err := st.AddCommitment(0, testNote(1, 1).Commitment(), nil); err != nil {
		t.Fatal(err)
	}
	if err := st.AddCommitment(2, testNote(2, 2).Commitment(), nil); err != nil {
		t.Fatal(err)
	}

	_, err = New(publicConfig(), Deps{
		Verifiers: zkverify.AcceptSuite(),
		Custody:   collateral.NewVaultCustody(),
		Store:     st,
	})
	if err == nil || !strings.Contains(err.Error(), "gap") {
		t.Fatalf("gapped store accepted: %v", err)
	}
}

func TestSnapshotCompare(t *testing.T) {
	runOps := func(l *testLedger) {
		a := testNote(30, 1)
		mustMint(t, l, a)
		mustMint(t, l, testNote(12, 2))
		if _, err := l.Redeem(RedeemRequest{
			Nullifier:  a.NullifierHash(),
			Recipient:  testRecipient,
			Amount:     uint256.NewInt(30),
			Commitment: a.Commitment(),
			MerkleRoot: l.MerkleRoot(),
		}); err != nil {
			t.Fatalf("redeem: %v", err)
		}
	}

	one := newTestLedger(t, publicConfig())
	two := newTestLedger(t, publicConfig())
	runOps(one)
	runOps(two)

	snapOne, err := one.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	snapTwo, err := two.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	delta, match := CompareSnapshots(snapOne, snapTwo)
	if !match || delta != "" {
		t.Fatalf("identical histories diverged:\n%s", delta)
	}

	// One extra mint and the diff names the moved fields.
	mustMint(t, two, testNote(5, 3))
	snapTwo, _ = two.Snapshot()
	delta, match = CompareSnapshots(snapOne, snapTwo)
	if match || delta == "" {
		t.Fatal("diverged histories compared equal")
	}
	if !strings.Contains(delta, "treeSize") && !strings.Contains(delta, "merkleRoot") {
		t.Fatalf("delta does not mention state fields:\n%s", delta)
	}
}

func TestErrorCodesSurvive(t *testing.T) {
	l := newTestLedger(t, publicConfig())
	_, err := l.Mint(MintRequest{})
	if err == nil || !strings.HasPrefix(err.Error(), "S2|") {
		t.Fatalf("sentinel lost its code: %v", err)
	}
	if !errors.Is(err, dcerrors.ErrSInvalidCommitment) {
		t.Fatalf("sentinel not bare: %v", err)
	}
}
