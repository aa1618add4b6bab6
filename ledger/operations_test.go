package ledger

import (
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/holiman/uint256"

	"github.com/SiddharthManjul/DiffiChain/collateral"
	"github.com/SiddharthManjul/DiffiChain/common"
	"github.com/SiddharthManjul/DiffiChain/dcerrors"
	"github.com/SiddharthManjul/DiffiChain/events"
	"github.com/SiddharthManjul/DiffiChain/note"
	"github.com/SiddharthManjul/DiffiChain/store"
	"github.com/SiddharthManjul/DiffiChain/zkverify"
)

var (
	testAsset     = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	testIssuer    = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	testRecipient = common.HexToAddress("0x00000000000000000000000000000000000000cc")
)

type captureNotifier struct {
	mu     sync.Mutex
	events []events.Event
	roots  []StateRoots
}

func (c *captureNotifier) NotifyEvent(ev events.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *captureNotifier) NotifyStateRoots(roots StateRoots) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roots = append(c.roots, roots)
}

func (c *captureNotifier) kinds() []events.Kind {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]events.Kind, len(c.events))
	for i, ev := range c.events {
		out[i] = ev.Kind
	}
	return out
}

type testLedger struct {
	*NoteLedger
	store    *store.LedgerStore
	custody  *collateral.VaultCustody
	mint     *zkverify.Recorder
	transfer *zkverify.Recorder
	redeem   *zkverify.Recorder
	notifier *captureNotifier
}

func publicConfig() Config {
	return Config{
		Depth:         6,
		Asset:         testAsset,
		Issuer:        testIssuer,
		AmountMode:    AmountPublic,
		TransferArity: TwoByTwo,
	}
}

func newTestLedger(t *testing.T, cfg Config) *testLedger {
	t.Helper()
	st, err := store.Open("")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	custody := collateral.NewVaultCustody()
	custody.Fund(cfg.Asset, cfg.Issuer, uint256.NewInt(1_000_000))

	tl := &testLedger{
		store:    st,
		custody:  custody,
		mint:     zkverify.NewRecorder(),
		transfer: zkverify.NewRecorder(),
		redeem:   zkverify.NewRecorder(),
		notifier: &captureNotifier{},
	}
	l, err := New(cfg, Deps{
		Verifiers: zkverify.Suite{Mint: tl.mint, Transfer: tl.transfer, Redeem: tl.redeem},
		Custody:   custody,
		Store:     st,
		Notifier:  tl.notifier,
	})
	if err != nil {
		t.Fatal(err)
	}
	tl.NoteLedger = l
	return tl
}

func testNote(amount uint64, tag byte) *note.Note {
	var secret, seed [32]byte
	secret[31] = tag
	seed[30] = tag
	return &note.Note{Amount: uint256.NewInt(amount), Secret: secret, NullifierSeed: seed}
}

func mintReq(n *note.Note, payload []byte) MintRequest {
	return MintRequest{
		Commitment:       n.Commitment(),
		NullifierHash:    n.NullifierHash(),
		Amount:           n.Amount.Clone(),
		EncryptedPayload: payload,
	}
}

func mustMint(t *testing.T, l *testLedger, n *note.Note) *MintReceipt {
	t.Helper()
	receipt, err := l.Mint(mintReq(n, nil))
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	return receipt
}

func TestMintAmountPublic(t *testing.T) {
	l := newTestLedger(t, publicConfig())
	n := testNote(40, 1)
	emptyRoot := l.MerkleRoot()

	receipt, err := l.Mint(mintReq(n, []byte("to-receiver")))
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if receipt.Index != 0 || receipt.Commitment != n.Commitment() {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
	if receipt.MerkleRoot == emptyRoot || receipt.MerkleRoot != l.MerkleRoot() {
		t.Fatal("root not advanced by mint")
	}
	if !l.CommitmentExists(n.Commitment()) || l.NextIndex() != 1 {
		t.Fatal("commitment not tracked")
	}

	// Publics in mint order: commitment then nullifier hash.
	publics := l.mint.LastCall()
	if len(publics) != 2 || publics[0] != n.Commitment() || publics[1] != n.NullifierHash() {
		t.Fatalf("mint publics = %v", publics)
	}

	// Collateral moved issuer -> vault and is locked.
	if locked := l.StateRoots().CollateralTotal; locked.Uint64() != 40 {
		t.Fatalf("locked = %s, want 40", locked)
	}
	if got := l.custody.VaultBalance(testAsset); got.Uint64() != 40 {
		t.Fatalf("vault = %s, want 40", got)
	}
	if got := l.custody.Balance(testAsset, testIssuer); got.Uint64() != 1_000_000-40 {
		t.Fatalf("issuer balance = %s", got)
	}

	// Persisted: commitment, payload, collateral.
	stored, ok, _ := l.store.GetCommitment(0)
	if !ok || stored != n.Commitment() {
		t.Fatal("commitment not persisted")
	}
	payload, ok, _ := l.store.GetPayload(0)
	if !ok || string(payload) != "to-receiver" {
		t.Fatal("payload not persisted")
	}
	persisted, ok, _ := l.store.GetCollateral(testAsset, testIssuer)
	if !ok || persisted.Uint64() != 40 {
		t.Fatal("collateral not persisted")
	}

	// Event order and sequences.
	evs, err := l.Events(0)
	if err != nil || len(evs) != 3 {
		t.Fatalf("events = %v, %v", evs, err)
	}
	wantKinds := []events.Kind{events.KindCollateralLocked, events.KindNoteCommitted, events.KindDeposit}
	for i, ev := range evs {
		if ev.Kind != wantKinds[i] || ev.Seq != uint64(i+1) {
			t.Fatalf("event %d = %+v", i, ev)
		}
	}
	if evs[1].Index != 0 || string(evs[1].EncryptedPayload) != "to-receiver" {
		t.Fatalf("note_committed payload wrong: %+v", evs[1])
	}

	// Notifier saw the same events plus one roots push.
	if kinds := l.notifier.kinds(); len(kinds) != 3 || kinds[0] != events.KindCollateralLocked {
		t.Fatalf("notified kinds = %v", kinds)
	}
	if len(l.notifier.roots) != 1 || l.notifier.roots[0].TreeSize != 1 {
		t.Fatalf("notified roots = %v", l.notifier.roots)
	}
}

func TestMintRejections(t *testing.T) {
	l := newTestLedger(t, publicConfig())
	n := testNote(40, 1)
	mustMint(t, l, n)
	rootAfterFirst := l.MerkleRoot()

	if _, err := l.Mint(MintRequest{}); !errors.Is(err, dcerrors.ErrSInvalidCommitment) {
		t.Fatalf("zero commitment: %v", err)
	}

	missingAmount := mintReq(testNote(10, 2), nil)
	missingAmount.Amount = nil
	if _, err := l.Mint(missingAmount); !errors.Is(err, dcerrors.ErrSInvalidCommitment) {
		t.Fatalf("missing amount: %v", err)
	}

	missingNullifier := mintReq(testNote(10, 3), nil)
	missingNullifier.NullifierHash = common.Hash{}
	if _, err := l.Mint(missingNullifier); !errors.Is(err, dcerrors.ErrSInvalidCommitment) {
		t.Fatalf("missing nullifier hash: %v", err)
	}

	if _, err := l.Mint(mintReq(n, nil)); !errors.Is(err, dcerrors.ErrCCommitmentAlreadyExists) {
		t.Fatalf("duplicate commitment: %v", err)
	}

	// A rejected proof mutates nothing.
	l.mint.Verdict = false
	fresh := testNote(15, 4)
	if _, err := l.Mint(mintReq(fresh, nil)); !errors.Is(err, dcerrors.ErrPInvalidProof) {
		t.Fatalf("rejected proof: %v", err)
	}
	l.mint.Verdict = true
	if l.CommitmentExists(fresh.Commitment()) || l.MerkleRoot() != rootAfterFirst {
		t.Fatal("rejected mint left state behind")
	}
	if locked := l.StateRoots().CollateralTotal; locked.Uint64() != 40 {
		t.Fatalf("rejected mint moved collateral: %s", locked)
	}
	if evs, _ := l.Events(0); len(evs) != 3 {
		t.Fatalf("rejected mint emitted events: %d", len(evs))
	}

	// A verifier that cannot run reads as an invalid proof.
	l.mint.Err = errors.New("curve exploded")
	if _, err := l.Mint(mintReq(testNote(15, 5), nil)); !errors.Is(err, dcerrors.ErrPInvalidProof) {
		t.Fatalf("verifier error: %v", err)
	}
	l.mint.Err = nil
}

func TestMintDepositNullifierReuse(t *testing.T) {
	l := newTestLedger(t, publicConfig())
	n := testNote(40, 1)
	mustMint(t, l, n)

	if _, err := l.Redeem(RedeemRequest{
		Nullifier:  n.NullifierHash(),
		Recipient:  testRecipient,
		Amount:     uint256.NewInt(40),
		Commitment: n.Commitment(),
		MerkleRoot: l.MerkleRoot(),
	}); err != nil {
		t.Fatalf("redeem: %v", err)
	}

	// The deposit nullifier hash is now burnt; a mint revealing it again
	// must be refused.
	reuse := mintReq(testNote(25, 9), nil)
	reuse.NullifierHash = n.NullifierHash()
	if _, err := l.Mint(reuse); !errors.Is(err, dcerrors.ErrCNullifierAlreadySpent) {
		t.Fatalf("nullifier reuse: %v", err)
	}
}

func TestMintTreeFull(t *testing.T) {
	cfg := publicConfig()
	cfg.Depth = 2
	l := newTestLedger(t, cfg)

	for i := byte(0); i < 4; i++ {
		mustMint(t, l, testNote(uint64(i)+1, i+1))
	}
	if _, err := l.Mint(mintReq(testNote(9, 50), nil)); !errors.Is(err, dcerrors.ErrRTreeFull) {
		t.Fatalf("full tree mint: %v", err)
	}
}

func TestMintCollateralFailures(t *testing.T) {
	cfg := publicConfig()
	l := newTestLedger(t, cfg)

	// Break custody underneath a fresh ledger sharing the same stores.
	faulty, err := New(cfg, Deps{
		Verifiers: zkverify.AcceptSuite(),
		Custody:   &collateral.FaultyCustody{FailIn: true, Inner: l.custody},
		Store:     l.store,
		Notifier:  nil,
	})
	if err != nil {
		t.Fatal(err)
	}
	n := testNote(40, 1)
	if _, err := faulty.Mint(mintReq(n, nil)); !errors.Is(err, dcerrors.ErrXTransferFailed) {
		t.Fatalf("custody failure: %v", err)
	}
	if faulty.CommitmentExists(n.Commitment()) || faulty.NextIndex() != 0 {
		t.Fatal("failed custody left state behind")
	}

	// No registered issuer for the asset: refused before custody runs.
	unregistered := publicConfig()
	unregistered.Issuer = common.Address{}
	ul := newTestLedger(t, unregistered)
	if _, err := ul.Mint(mintReq(testNote(5, 2), nil)); !errors.Is(err, dcerrors.ErrRUnauthorizedIssuer) {
		t.Fatalf("unregistered issuer: %v", err)
	}
}

func TestMintStorageFailureRollsBack(t *testing.T) {
	l := newTestLedger(t, publicConfig())
	mustMint(t, l, testNote(40, 1))
	rootBefore := l.MerkleRoot()
	issuerBefore := l.custody.Balance(testAsset, testIssuer).Clone()

	// Kill the store underneath the ledger: the next mint passes checks and
	// locks collateral, then fails to persist and must unwind completely.
	l.store.Close()
	n := testNote(10, 2)
	if _, err := l.Mint(mintReq(n, nil)); err == nil {
		t.Fatal("mint survived a dead store")
	}
	if l.MerkleRoot() != rootBefore || l.NextIndex() != 1 {
		t.Fatal("tree not restored")
	}
	if l.CommitmentExists(n.Commitment()) {
		t.Fatal("commitment tracked after rollback")
	}
	if got := l.custody.Balance(testAsset, testIssuer); got.Cmp(issuerBefore) != 0 {
		t.Fatalf("issuer balance %s, want %s refunded", got, issuerBefore)
	}
	if locked := l.StateRoots().CollateralTotal; locked.Uint64() != 40 {
		t.Fatalf("locked = %s after rollback", locked)
	}
	if l.LastEventSeq() != 3 {
		t.Fatalf("event seq advanced to %d", l.LastEventSeq())
	}
}

func TestTransferTwoByTwo(t *testing.T) {
	l := newTestLedger(t, publicConfig())
	a, b := testNote(30, 1), testNote(12, 2)
	mustMint(t, l, a)
	mustMint(t, l, b)

	out0, out1 := testNote(25, 3), testNote(17, 4)
	root := l.MerkleRoot()
	req := TransferRequest{
		InputNullifiers:   []common.Hash{a.NullifierHash(), b.NullifierHash()},
		OutputCommitments: []common.Hash{out0.Commitment(), out1.Commitment()},
		MerkleRoot:        root,
		EncryptedPayloads: []common.HexBytes{[]byte("p0"), []byte("p1")},
	}
	receipt, err := l.Transfer(req)
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if len(receipt.Indices) != 2 || receipt.Indices[0] != 2 || receipt.Indices[1] != 3 {
		t.Fatalf("indices = %v", receipt.Indices)
	}
	if receipt.MerkleRoot == root {
		t.Fatal("root unchanged by transfer")
	}

	// Fixed-arity publics: root first, then inputs, then outputs.
	publics := l.transfer.LastCall()
	want := []common.Hash{root, a.NullifierHash(), b.NullifierHash(), out0.Commitment(), out1.Commitment()}
	if len(publics) != len(want) {
		t.Fatalf("publics = %v", publics)
	}
	for i := range want {
		if publics[i] != want[i] {
			t.Fatalf("public %d = %s, want %s", i, common.Str(publics[i]), common.Str(want[i]))
		}
	}

	if !l.IsNullifierSpent(a.NullifierHash()) || !l.IsNullifierSpent(b.NullifierHash()) {
		t.Fatal("inputs not spent")
	}
	if !l.CommitmentExists(out0.Commitment()) || !l.CommitmentExists(out1.Commitment()) {
		t.Fatal("outputs not inserted")
	}

	// Mint a: seqs 1-3, mint b: 4-6, transfer: 7,8 nullifiers then 9,10
	// commitments. The persisted nullifier seq pins the staging order.
	if seq, ok, _ := l.store.HasNullifier(a.NullifierHash()); !ok || seq != 7 {
		t.Fatalf("nullifier a seq = %d, %v", seq, ok)
	}
	if seq, ok, _ := l.store.HasNullifier(b.NullifierHash()); !ok || seq != 8 {
		t.Fatalf("nullifier b seq = %d, %v", seq, ok)
	}
	evs, _ := l.Events(7)
	kinds := []events.Kind{events.KindNullifierSpent, events.KindNullifierSpent, events.KindNoteCommitted, events.KindNoteCommitted}
	if len(evs) != 4 {
		t.Fatalf("transfer events = %v", evs)
	}
	for i, ev := range evs {
		if ev.Kind != kinds[i] {
			t.Fatalf("event %d kind = %s", i, ev.Kind)
		}
	}
	if evs[2].Index != 2 || string(evs[2].EncryptedPayload) != "p0" {
		t.Fatalf("first output event = %+v", evs[2])
	}

	// Transfer moves no collateral.
	if locked := l.StateRoots().CollateralTotal; locked.Uint64() != 42 {
		t.Fatalf("locked changed: %s", locked)
	}
}

func TestTransferRejections(t *testing.T) {
	l := newTestLedger(t, publicConfig())
	a, b := testNote(30, 1), testNote(12, 2)
	mustMint(t, l, a)
	mustMint(t, l, b)
	root := l.MerkleRoot()
	out0, out1 := testNote(25, 3), testNote(17, 4)

	valid := func() TransferRequest {
		return TransferRequest{
			InputNullifiers:   []common.Hash{a.NullifierHash(), b.NullifierHash()},
			OutputCommitments: []common.Hash{out0.Commitment(), out1.Commitment()},
			MerkleRoot:        root,
			EncryptedPayloads: []common.HexBytes{nil, nil},
		}
	}

	empty := valid()
	empty.InputNullifiers = nil
	if _, err := l.Transfer(empty); !errors.Is(err, dcerrors.ErrSInvalidArrayLength) {
		t.Fatalf("no inputs: %v", err)
	}

	badPayloads := valid()
	badPayloads.EncryptedPayloads = badPayloads.EncryptedPayloads[:1]
	if _, err := l.Transfer(badPayloads); !errors.Is(err, dcerrors.ErrSInvalidArrayLength) {
		t.Fatalf("payload count: %v", err)
	}

	badArity := valid()
	badArity.InputNullifiers = badArity.InputNullifiers[:1]
	if _, err := l.Transfer(badArity); !errors.Is(err, dcerrors.ErrSInvalidArrayLength) {
		t.Fatalf("arity mismatch: %v", err)
	}

	zeroInput := valid()
	zeroInput.InputNullifiers = []common.Hash{a.NullifierHash(), {}}
	if _, err := l.Transfer(zeroInput); !errors.Is(err, dcerrors.ErrSInvalidCommitment) {
		t.Fatalf("zero input: %v", err)
	}

	dupIn := valid()
	dupIn.InputNullifiers = []common.Hash{a.NullifierHash(), a.NullifierHash()}
	if _, err := l.Transfer(dupIn); !errors.Is(err, dcerrors.ErrCNullifierAlreadySpent) {
		t.Fatalf("duplicate inputs: %v", err)
	}

	dupOut := valid()
	dupOut.OutputCommitments = []common.Hash{out0.Commitment(), out0.Commitment()}
	if _, err := l.Transfer(dupOut); !errors.Is(err, dcerrors.ErrCCommitmentAlreadyExists) {
		t.Fatalf("duplicate outputs: %v", err)
	}

	existingOut := valid()
	existingOut.OutputCommitments = []common.Hash{out0.Commitment(), a.Commitment()}
	if _, err := l.Transfer(existingOut); !errors.Is(err, dcerrors.ErrCCommitmentAlreadyExists) {
		t.Fatalf("existing output: %v", err)
	}

	stale := valid()
	stale.MerkleRoot = common.BytesToHash([]byte("old"))
	if _, err := l.Transfer(stale); !errors.Is(err, dcerrors.ErrCInvalidMerkleRoot) {
		t.Fatalf("stale root: %v", err)
	}

	l.transfer.Verdict = false
	if _, err := l.Transfer(valid()); !errors.Is(err, dcerrors.ErrPInvalidProof) {
		t.Fatalf("rejected proof: %v", err)
	}
	l.transfer.Verdict = true
	if l.MerkleRoot() != root || l.IsNullifierSpent(a.NullifierHash()) {
		t.Fatal("rejected transfer left state behind")
	}

	// Spend them for real, then the same inputs must be refused.
	if _, err := l.Transfer(valid()); err != nil {
		t.Fatalf("valid transfer: %v", err)
	}
	spent := TransferRequest{
		InputNullifiers:   []common.Hash{a.NullifierHash(), b.NullifierHash()},
		OutputCommitments: []common.Hash{testNote(1, 5).Commitment(), testNote(41, 6).Commitment()},
		MerkleRoot:        l.MerkleRoot(),
		EncryptedPayloads: []common.HexBytes{nil, nil},
	}
	if _, err := l.Transfer(spent); !errors.Is(err, dcerrors.ErrCNullifierAlreadySpent) {
		t.Fatalf("spent inputs: %v", err)
	}
}

func TestTransferVariableArity(t *testing.T) {
	cfg := publicConfig()
	cfg.TransferArity = TransferArity{}
	l := newTestLedger(t, cfg)
	a := testNote(40, 1)
	mustMint(t, l, a)

	out0, out1, out2 := testNote(10, 2), testNote(12, 3), testNote(18, 4)
	root := l.MerkleRoot()
	receipt, err := l.Transfer(TransferRequest{
		InputNullifiers:   []common.Hash{a.NullifierHash()},
		OutputCommitments: []common.Hash{out0.Commitment(), out1.Commitment(), out2.Commitment()},
		MerkleRoot:        root,
		EncryptedPayloads: []common.HexBytes{nil, nil, nil},
	})
	if err != nil {
		t.Fatalf("1-in/3-out transfer: %v", err)
	}
	if len(receipt.Indices) != 3 || receipt.Indices[0] != 1 {
		t.Fatalf("indices = %v", receipt.Indices)
	}

	// Variable ordering: nullifiers, commitments, then the root last.
	publics := l.transfer.LastCall()
	if len(publics) != 5 || publics[0] != a.NullifierHash() || publics[4] != root {
		t.Fatalf("variable publics = %v", publics)
	}
}

func TestTransferCapacity(t *testing.T) {
	cfg := publicConfig()
	cfg.Depth = 2
	l := newTestLedger(t, cfg)
	a, b := testNote(1, 1), testNote(2, 2)
	mustMint(t, l, a)
	mustMint(t, l, b)
	mustMint(t, l, testNote(3, 3))
	mustMint(t, l, testNote(4, 4))

	full := TransferRequest{
		InputNullifiers:   []common.Hash{a.NullifierHash(), b.NullifierHash()},
		OutputCommitments: []common.Hash{testNote(1, 5).Commitment(), testNote(2, 6).Commitment()},
		MerkleRoot:        l.MerkleRoot(),
		EncryptedPayloads: []common.HexBytes{nil, nil},
	}
	if _, err := l.Transfer(full); !errors.Is(err, dcerrors.ErrRTreeFull) {
		t.Fatalf("full tree transfer: %v", err)
	}
}

func TestTransferStorageFailureRollsBack(t *testing.T) {
	l := newTestLedger(t, publicConfig())
	a, b := testNote(30, 1), testNote(12, 2)
	mustMint(t, l, a)
	mustMint(t, l, b)
	root := l.MerkleRoot()

	l.store.Close()
	req := TransferRequest{
		InputNullifiers:   []common.Hash{a.NullifierHash(), b.NullifierHash()},
		OutputCommitments: []common.Hash{testNote(25, 3).Commitment(), testNote(17, 4).Commitment()},
		MerkleRoot:        root,
		EncryptedPayloads: []common.HexBytes{nil, nil},
	}
	if _, err := l.Transfer(req); err == nil {
		t.Fatal("transfer survived a dead store")
	}
	if l.MerkleRoot() != root || l.NextIndex() != 2 {
		t.Fatal("tree not restored")
	}
	if l.IsNullifierSpent(a.NullifierHash()) || l.IsNullifierSpent(b.NullifierHash()) {
		t.Fatal("inputs left spent after rollback")
	}
	if l.CommitmentExists(req.OutputCommitments[0]) {
		t.Fatal("output tracked after rollback")
	}
	if l.LastEventSeq() != 6 {
		t.Fatalf("event seq advanced to %d", l.LastEventSeq())
	}
}

func TestRedeemAmountPublic(t *testing.T) {
	l := newTestLedger(t, publicConfig())
	n := testNote(40, 1)
	mustMint(t, l, n)
	root := l.MerkleRoot()

	receipt, err := l.Redeem(RedeemRequest{
		Nullifier:  n.NullifierHash(),
		Recipient:  testRecipient,
		Amount:     uint256.NewInt(40),
		Commitment: n.Commitment(),
		MerkleRoot: root,
	})
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if receipt.Amount.Uint64() != 40 || receipt.Recipient != testRecipient {
		t.Fatalf("receipt = %+v", receipt)
	}

	publics := l.redeem.LastCall()
	want := []common.Hash{
		root,
		note.AmountToHash(uint256.NewInt(40)),
		common.AddressToHash(testRecipient),
		n.Commitment(),
		n.NullifierHash(),
	}
	if len(publics) != len(want) {
		t.Fatalf("redeem publics = %v", publics)
	}
	for i := range want {
		if publics[i] != want[i] {
			t.Fatalf("public %d = %s, want %s", i, common.Str(publics[i]), common.Str(want[i]))
		}
	}

	if !l.IsNullifierSpent(n.NullifierHash()) {
		t.Fatal("nullifier not spent")
	}
	if l.MerkleRoot() != root {
		t.Fatal("redeem touched the tree")
	}
	if got := l.custody.Balance(testAsset, testRecipient); got.Uint64() != 40 {
		t.Fatalf("recipient balance = %s", got)
	}
	if locked := l.StateRoots().CollateralTotal; !locked.IsZero() {
		t.Fatalf("locked = %s after redeem", locked)
	}

	evs, _ := l.Events(4)
	kinds := []events.Kind{events.KindNullifierSpent, events.KindWithdrawal, events.KindCollateralReleased}
	if len(evs) != 3 {
		t.Fatalf("redeem events = %v", evs)
	}
	for i, ev := range evs {
		if ev.Kind != kinds[i] || ev.Nullifier != n.NullifierHash() {
			t.Fatalf("event %d = %+v", i, ev)
		}
	}
	if seq, ok, _ := l.store.HasNullifier(n.NullifierHash()); !ok || seq != 4 {
		t.Fatalf("nullifier seq = %d, %v", seq, ok)
	}
}

func TestRedeemRejections(t *testing.T) {
	l := newTestLedger(t, publicConfig())
	n := testNote(40, 1)
	mustMint(t, l, n)
	root := l.MerkleRoot()

	valid := func() RedeemRequest {
		return RedeemRequest{
			Nullifier:  n.NullifierHash(),
			Recipient:  testRecipient,
			Amount:     uint256.NewInt(40),
			Commitment: n.Commitment(),
			MerkleRoot: root,
		}
	}

	zero := valid()
	zero.Nullifier = common.Hash{}
	if _, err := l.Redeem(zero); !errors.Is(err, dcerrors.ErrSInvalidCommitment) {
		t.Fatalf("zero nullifier: %v", err)
	}

	noAmount := valid()
	noAmount.Amount = nil
	if _, err := l.Redeem(noAmount); !errors.Is(err, dcerrors.ErrSInvalidCommitment) {
		t.Fatalf("missing amount: %v", err)
	}

	noCommitment := valid()
	noCommitment.Commitment = common.Hash{}
	if _, err := l.Redeem(noCommitment); !errors.Is(err, dcerrors.ErrSInvalidCommitment) {
		t.Fatalf("missing commitment: %v", err)
	}

	stale := valid()
	stale.MerkleRoot = common.BytesToHash([]byte("old"))
	if _, err := l.Redeem(stale); !errors.Is(err, dcerrors.ErrCInvalidMerkleRoot) {
		t.Fatalf("stale root: %v", err)
	}

	l.redeem.Verdict = false
	if _, err := l.Redeem(valid()); !errors.Is(err, dcerrors.ErrPInvalidProof) {
		t.Fatalf("rejected proof: %v", err)
	}
	l.redeem.Verdict = true
	if l.IsNullifierSpent(n.NullifierHash()) {
		t.Fatal("rejected redeem spent the nullifier")
	}

	// Ask for more than is locked: the release fails and unwinds the mark,
	// so a corrected retry succeeds.
	greedy := valid()
	greedy.Amount = uint256.NewInt(1000)
	if _, err := l.Redeem(greedy); !errors.Is(err, dcerrors.ErrRInsufficientCollateral) {
		t.Fatalf("greedy redeem: %v", err)
	}
	if l.IsNullifierSpent(n.NullifierHash()) {
		t.Fatal("failed release left nullifier spent")
	}
	if _, ok, _ := l.store.HasNullifier(n.NullifierHash()); ok {
		t.Fatal("failed release left nullifier persisted")
	}
	if evs, _ := l.Events(4); len(evs) != 0 {
		t.Fatalf("failed redeem emitted events: %v", evs)
	}

	if _, err := l.Redeem(valid()); err != nil {
		t.Fatalf("retry after failed release: %v", err)
	}
	if _, err := l.Redeem(valid()); !errors.Is(err, dcerrors.ErrCNullifierAlreadySpent) {
		t.Fatalf("double redeem: %v", err)
	}
}

func TestRedeemCustodyFailureUnwinds(t *testing.T) {
	cfg := publicConfig()
	base := newTestLedger(t, cfg)
	mustMint(t, base, testNote(40, 1))

	// Same stores, custody that accepts deposits but cannot pay out.
	n := testNote(40, 1)
	l, err := New(cfg, Deps{
		Verifiers: zkverify.AcceptSuite(),
		Custody:   &collateral.FaultyCustody{FailOut: true, Inner: base.custody},
		Store:     base.store,
		Notifier:  nil,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.Redeem(RedeemRequest{
		Nullifier:  n.NullifierHash(),
		Recipient:  testRecipient,
		Amount:     uint256.NewInt(40),
		Commitment: n.Commitment(),
		MerkleRoot: l.MerkleRoot(),
	}); !errors.Is(err, dcerrors.ErrXTransferFailed) {
		t.Fatalf("custody failure: %v", err)
	}
	if l.IsNullifierSpent(n.NullifierHash()) {
		t.Fatal("failed payout left nullifier spent")
	}
	if locked := l.StateRoots().CollateralTotal; locked.Uint64() != 40 {
		t.Fatalf("locked = %s after failed payout", locked)
	}
}

func TestDenominatedMode(t *testing.T) {
	cfg := Config{
		Depth:        6,
		Asset:        testAsset,
		Issuer:       testIssuer,
		AmountMode:   AmountDenominated,
		Denomination: uint256.NewInt(25),
	}
	l := newTestLedger(t, cfg)
	n := testNote(25, 1)

	// Requests carry no amount and no revealed nullifier hash.
	if _, err := l.Mint(MintRequest{Commitment: n.Commitment()}); err != nil {
		t.Fatalf("denominated mint: %v", err)
	}
	publics := l.mint.LastCall()
	if len(publics) != 2 || publics[0] != n.Commitment() || publics[1] != note.AmountToHash(uint256.NewInt(25)) {
		t.Fatalf("denominated mint publics = %v", publics)
	}
	if locked := l.StateRoots().CollateralTotal; locked.Uint64() != 25 {
		t.Fatalf("locked = %s, want denomination", locked)
	}

	root := l.MerkleRoot()
	if _, err := l.Redeem(RedeemRequest{
		Nullifier:  n.NullifierHash(),
		Recipient:  testRecipient,
		MerkleRoot: root,
	}); err != nil {
		t.Fatalf("denominated redeem: %v", err)
	}
	publics = l.redeem.LastCall()
	want := []common.Hash{n.NullifierHash(), common.AddressToHash(testRecipient), root}
	if len(publics) != 3 || publics[0] != want[0] || publics[1] != want[1] || publics[2] != want[2] {
		t.Fatalf("denominated redeem publics = %v", publics)
	}
	if got := l.custody.Balance(testAsset, testRecipient); got.Uint64() != 25 {
		t.Fatalf("recipient balance = %s", got)
	}
}

func TestMintWithGroth16Verifier(t *testing.T) {
	ccs, pk, vk, err := zkverify.CompileAndSetup(&zkverify.MintCircuit{})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	st, err := store.Open("")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	custody := collateral.NewVaultCustody()
	custody.Fund(testAsset, testIssuer, uint256.NewInt(1000))

	cfg := publicConfig()
	l, err := New(cfg, Deps{
		Verifiers: zkverify.Suite{
			Mint:     zkverify.NewGroth16Verifier(vk),
			Transfer: zkverify.AcceptAll{},
			Redeem:   zkverify.AcceptAll{},
		},
		Custody: custody,
		Store:   st,
	})
	if err != nil {
		t.Fatal(err)
	}

	n := testNote(40, 1)
	proof, err := zkverify.Prove(ccs, pk, &zkverify.MintCircuit{
		Commitment:    new(big.Int).SetBytes(n.Commitment().Bytes()),
		NullifierHash: new(big.Int).SetBytes(n.NullifierHash().Bytes()),
		Amount:        big.NewInt(40),
		Secret:        new(big.Int).SetBytes(n.Secret[:]),
		Seed:          new(big.Int).SetBytes(n.NullifierSeed[:]),
	})
	if err != nil {
		t.Fatalf("prove: %v", err)
	}

	if _, err := l.Mint(mintReq(n, nil)); !errors.Is(err, dcerrors.ErrPInvalidProof) {
		t.Fatalf("mint without proof: %v", err)
	}

	req := mintReq(n, nil)
	req.Proof = proof
	if _, err := l.Mint(req); err != nil {
		t.Fatalf("mint with real proof: %v", err)
	}

	// The same proof cannot open a different commitment.
	other := testNote(40, 2)
	forged := mintReq(other, nil)
	forged.Proof = proof
	if _, err := l.Mint(forged); !errors.Is(err, dcerrors.ErrPInvalidProof) {
		t.Fatalf("forged mint: %v", err)
	}
}
