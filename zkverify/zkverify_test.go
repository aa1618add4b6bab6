package zkverify

import (
	"encoding/json"
	"errors"
	"math/big"
	"path/filepath"
	"strings"
	"testing"

	"github.com/consensys/gnark/frontend"
	"github.com/holiman/uint256"

	"github.com/SiddharthManjul/DiffiChain/common"
	"github.com/SiddharthManjul/DiffiChain/dcerrors"
	"github.com/SiddharthManjul/DiffiChain/note"
)

func testProof() *Proof {
	word := func(v int64) *big.Int { return big.NewInt(v) }
	return &Proof{
		A: G1Point{X: word(1), Y: word(2)},
		B: G2Point{X: [2]*big.Int{word(3), word(4)}, Y: [2]*big.Int{word(5), word(6)}},
		C: G1Point{X: word(7), Y: word(8)},
	}
}

func TestProofWireRoundTrip(t *testing.T) {
	p := testProof()
	encoded := p.Bytes()
	if len(encoded) != ProofEncodedSize {
		t.Fatalf("encoded size %d, want %d", len(encoded), ProofEncodedSize)
	}
	decoded, err := ProofFromBytes(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	for i, got := range decoded.coordinates() {
		if want := int64(i + 1); got.Int64() != want {
			t.Fatalf("coordinate %d = %v, want %d", i, got, want)
		}
	}

	if _, err := ProofFromBytes(encoded[:ProofEncodedSize-1]); !errors.Is(err, dcerrors.ErrSInvalidArrayLength) {
		t.Fatalf("truncated decode err = %v, want ErrSInvalidArrayLength", err)
	}
	if _, err := ProofFromBytes(nil); !errors.Is(err, dcerrors.ErrSInvalidArrayLength) {
		t.Fatalf("nil decode err = %v, want ErrSInvalidArrayLength", err)
	}
}

func TestProofJSONRoundTrip(t *testing.T) {
	p := testProof()
	p.A.X = new(big.Int).Lsh(big.NewInt(0xbeef), 200)

	encoded, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(encoded), `"x":"0x`) {
		t.Fatalf("coordinates not hex encoded: %s", encoded)
	}

	var decoded Proof
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for i, got := range decoded.coordinates() {
		if want := p.coordinates()[i]; got.Cmp(want) != 0 {
			t.Fatalf("coordinate %d = %v, want %v", i, got, want)
		}
	}

	var bad Proof
	if err := json.Unmarshal([]byte(`{"a":{"x":"0xzz","y":"0x1"},"b":{"x":["0x1","0x1"],"y":["0x1","0x1"]},"c":{"x":"0x1","y":"0x1"}}`), &bad); err == nil {
		t.Fatal("malformed hex accepted")
	}
}

func TestRecorderAndFixedVerdicts(t *testing.T) {
	rec := NewRecorder()
	suite := Suite{Mint: rec, Transfer: AcceptAll{}, Redeem: RejectAll{}}

	first := []common.Hash{common.BytesToHash([]byte{1}), common.BytesToHash([]byte{2})}
	if ok, err := suite.Mint.Verify(nil, first); !ok || err != nil {
		t.Fatalf("recorder verdict = %v, %v", ok, err)
	}
	rec.Verdict = false
	if ok, _ := suite.Mint.Verify(nil, []common.Hash{common.BytesToHash([]byte{3})}); ok {
		t.Fatal("recorder ignored programmed verdict")
	}

	calls := rec.Calls()
	if len(calls) != 2 || len(calls[0]) != 2 || calls[0][1] != first[1] {
		t.Fatalf("unexpected captured calls %v", calls)
	}
	if last := rec.LastCall(); len(last) != 1 {
		t.Fatalf("unexpected last call %v", last)
	}

	if ok, err := suite.Transfer.Verify(nil, nil); !ok || err != nil {
		t.Fatalf("AcceptAll = %v, %v", ok, err)
	}
	if ok, err := suite.Redeem.Verify(nil, nil); ok || err != nil {
		t.Fatalf("RejectAll = %v, %v", ok, err)
	}
}

func fieldBytes(v byte) [32]byte {
	var out [32]byte
	out[31] = v
	return out
}

func fieldHash(h common.Hash) *big.Int {
	return new(big.Int).SetBytes(h.Bytes())
}

func TestGroth16MintEndToEnd(t *testing.T) {
	n := &note.Note{Amount: uint256.NewInt(40), Secret: fieldBytes(7), NullifierSeed: fieldBytes(9)}
	cm := n.Commitment()
	nh := n.NullifierHash()

	ccs, pk, vk, err := CompileAndSetup(&MintCircuit{})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	proof, err := Prove(ccs, pk, &MintCircuit{
		Commitment:    fieldHash(cm),
		NullifierHash: fieldHash(nh),
		Amount:        big.NewInt(40),
		Secret:        big.NewInt(7),
		Seed:          big.NewInt(9),
	})
	if err != nil {
		t.Fatalf("prove: %v", err)
	}

	v := NewGroth16Verifier(vk)
	if ok, err := v.Verify(proof, []common.Hash{cm, nh}); !ok || err != nil {
		t.Fatalf("honest proof rejected: %v, %v", ok, err)
	}

	// The ordering is the contract: swapped publics must fail.
	if ok, _ := v.Verify(proof, []common.Hash{nh, cm}); ok {
		t.Fatal("swapped publics accepted")
	}

	// Same proof after a wire round trip still verifies.
	rt, err := ProofFromBytes(proof.Bytes())
	if err != nil {
		t.Fatalf("round trip decode: %v", err)
	}
	if ok, err := v.Verify(rt, []common.Hash{cm, nh}); !ok || err != nil {
		t.Fatalf("round-tripped proof rejected: %v, %v", ok, err)
	}

	// A nudged coordinate either leaves the curve or breaks the pairing,
	// never errors.
	tampered := *proof
	tampered.A = G1Point{X: new(big.Int).Add(proof.A.X, big.NewInt(1)), Y: proof.A.Y}
	if ok, err := v.Verify(&tampered, []common.Hash{cm, nh}); ok || err != nil {
		t.Fatalf("tampered proof = %v, %v", ok, err)
	}

	if ok, _ := v.Verify(nil, []common.Hash{cm, nh}); ok {
		t.Fatal("nil proof accepted")
	}
	if ok, _ := v.Verify(&Proof{}, []common.Hash{cm, nh}); ok {
		t.Fatal("empty proof accepted")
	}

	// Key IO: a verifier loaded from disk behaves like the in-memory one.
	vkPath := filepath.Join(t.TempDir(), "mint.vk")
	if err := WriteKey(vk, vkPath); err != nil {
		t.Fatalf("write key: %v", err)
	}
	loaded, err := LoadGroth16Verifier(vkPath)
	if err != nil {
		t.Fatalf("load key: %v", err)
	}
	if ok, err := loaded.Verify(proof, []common.Hash{cm, nh}); !ok || err != nil {
		t.Fatalf("loaded verifier rejected: %v, %v", ok, err)
	}
}

func TestGroth16TransferEndToEnd(t *testing.T) {
	in0 := &note.Note{Amount: uint256.NewInt(30), Secret: fieldBytes(11), NullifierSeed: fieldBytes(12)}
	in1 := &note.Note{Amount: uint256.NewInt(12), Secret: fieldBytes(13), NullifierSeed: fieldBytes(14)}
	out0 := &note.Note{Amount: uint256.NewInt(25), Secret: fieldBytes(15), NullifierSeed: fieldBytes(16)}
	out1 := &note.Note{Amount: uint256.NewInt(17), Secret: fieldBytes(17), NullifierSeed: fieldBytes(18)}
	root := common.Blake2Hash([]byte("anchor"))

	ccs, pk, vk, err := CompileAndSetup(&TransferCircuit{})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	assignment := &TransferCircuit{
		MerkleRoot:  fieldHash(root),
		Nullifiers:  [2]frontend.Variable{fieldHash(in0.NullifierHash()), fieldHash(in1.NullifierHash())},
		Commitments: [2]frontend.Variable{fieldHash(out0.Commitment()), fieldHash(out1.Commitment())},
		InAmounts:   [2]frontend.Variable{big.NewInt(30), big.NewInt(12)},
		InSeeds:     [2]frontend.Variable{big.NewInt(12), big.NewInt(14)},
		OutAmounts:  [2]frontend.Variable{big.NewInt(25), big.NewInt(17)},
		OutSecrets:  [2]frontend.Variable{big.NewInt(15), big.NewInt(17)},
		OutSeeds:    [2]frontend.Variable{big.NewInt(16), big.NewInt(18)},
	}
	proof, err := Prove(ccs, pk, assignment)
	if err != nil {
		t.Fatalf("prove: %v", err)
	}

	publics := []common.Hash{root, in0.NullifierHash(), in1.NullifierHash(), out0.Commitment(), out1.Commitment()}
	v := NewGroth16Verifier(vk)
	if ok, err := v.Verify(proof, publics); !ok || err != nil {
		t.Fatalf("honest transfer rejected: %v, %v", ok, err)
	}

	other := common.Blake2Hash([]byte("other anchor"))
	if ok, _ := v.Verify(proof, []common.Hash{other, publics[1], publics[2], publics[3], publics[4]}); ok {
		t.Fatal("proof accepted under a different root")
	}

	// Value creation must not prove.
	inflated := *assignment
	inflated.OutAmounts = [2]frontend.Variable{big.NewInt(26), big.NewInt(17)}
	if _, err := Prove(ccs, pk, &inflated); err == nil {
		t.Fatal("conservation violation proved")
	}
}

func TestGroth16VariableArityTransfer(t *testing.T) {
	in := &note.Note{Amount: uint256.NewInt(40), Secret: fieldBytes(21), NullifierSeed: fieldBytes(22)}
	out0 := &note.Note{Amount: uint256.NewInt(15), Secret: fieldBytes(23), NullifierSeed: fieldBytes(24)}
	out1 := &note.Note{Amount: uint256.NewInt(25), Secret: fieldBytes(25), NullifierSeed: fieldBytes(26)}
	root := common.Blake2Hash([]byte("anchor"))

	ccs, pk, vk, err := CompileAndSetup(NewVariableTransferCircuit(1, 2))
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	assignment := NewVariableTransferCircuit(1, 2)
	assignment.MerkleRoot = fieldHash(root)
	assignment.Nullifiers[0] = fieldHash(in.NullifierHash())
	assignment.Commitments[0] = fieldHash(out0.Commitment())
	assignment.Commitments[1] = fieldHash(out1.Commitment())
	assignment.InAmounts[0] = big.NewInt(40)
	assignment.InSeeds[0] = big.NewInt(22)
	assignment.OutAmounts[0] = big.NewInt(15)
	assignment.OutAmounts[1] = big.NewInt(25)
	assignment.OutSecrets[0] = big.NewInt(23)
	assignment.OutSecrets[1] = big.NewInt(25)
	assignment.OutSeeds[0] = big.NewInt(24)
	assignment.OutSeeds[1] = big.NewInt(26)

	proof, err := Prove(ccs, pk, assignment)
	if err != nil {
		t.Fatalf("prove: %v", err)
	}

	publics := []common.Hash{in.NullifierHash(), out0.Commitment(), out1.Commitment(), root}
	if ok, err := NewGroth16Verifier(vk).Verify(proof, publics); !ok || err != nil {
		t.Fatalf("variable arity transfer rejected: %v, %v", ok, err)
	}
}

func TestGroth16RedeemEndToEnd(t *testing.T) {
	n := &note.Note{Amount: uint256.NewInt(77), Secret: fieldBytes(3), NullifierSeed: fieldBytes(4)}
	root := common.Blake2Hash([]byte("anchor"))
	recipient := common.HexToAddress("0x00112233445566778899aabbccddeeff00112233")

	ccs, pk, vk, err := CompileAndSetup(&RedeemCircuit{})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	proof, err := Prove(ccs, pk, &RedeemCircuit{
		MerkleRoot: fieldHash(root),
		Amount:     big.NewInt(77),
		Recipient:  fieldHash(common.AddressToHash(recipient)),
		Commitment: fieldHash(n.Commitment()),
		Nullifier:  fieldHash(n.NullifierHash()),
		Secret:     big.NewInt(3),
		Seed:       big.NewInt(4),
	})
	if err != nil {
		t.Fatalf("prove: %v", err)
	}

	publics := []common.Hash{
		root,
		note.AmountToHash(uint256.NewInt(77)),
		common.AddressToHash(recipient),
		n.Commitment(),
		n.NullifierHash(),
	}
	v := NewGroth16Verifier(vk)
	if ok, err := v.Verify(proof, publics); !ok || err != nil {
		t.Fatalf("honest redeem rejected: %v, %v", ok, err)
	}

	// Swapping the payout address must invalidate the proof.
	hijacked := make([]common.Hash, len(publics))
	copy(hijacked, publics)
	hijacked[2] = common.AddressToHash(common.HexToAddress("0xdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef"))
	if ok, _ := v.Verify(proof, hijacked); ok {
		t.Fatal("recipient swap accepted")
	}
}
