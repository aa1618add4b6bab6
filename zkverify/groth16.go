package zkverify

import (
	"fmt"
	"io"
	"math/big"
	"os"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	groth16bn254 "github.com/consensys/gnark/backend/groth16/bn254"
	"github.com/consensys/gnark/backend/witness"
	"github.com/consensys/gnark/frontend"
	gnarklogger "github.com/consensys/gnark/logger"
	"github.com/rs/zerolog"

	"github.com/SiddharthManjul/DiffiChain/common"
	"github.com/SiddharthManjul/DiffiChain/log"
)

func init() {
	// gnark reports compile/prove/verify timings through its own zerolog
	// logger. Route them to discard so terminal output stays ours.
	gnarklogger.Set(zerolog.New(io.Discard).Level(zerolog.Disabled))
}

// Groth16Verifier checks BN254 Groth16 proofs against a fixed verifying key.
type Groth16Verifier struct {
	vk groth16.VerifyingKey
}

func NewGroth16Verifier(vk groth16.VerifyingKey) *Groth16Verifier {
	return &Groth16Verifier{vk: vk}
}

// LoadGroth16Verifier reads a gnark-serialized BN254 verifying key from disk.
func LoadGroth16Verifier(path string) (*Groth16Verifier, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open verifying key %s: %w", path, err)
	}
	defer f.Close()
	vk := groth16.NewVerifyingKey(ecc.BN254)
	if _, err := vk.ReadFrom(f); err != nil {
		return nil, fmt.Errorf("read verifying key %s: %w", path, err)
	}
	return &Groth16Verifier{vk: vk}, nil
}

// Verify reassembles the coordinate-form proof into curve points, binds the
// 32-byte public inputs into the BN254 scalar field in the order given, and
// runs the pairing check. Structural defects and pairing failures both come
// back as (false, nil); only a failure to build the witness is an error.
func (v *Groth16Verifier) Verify(proof *Proof, publicInputs []common.Hash) (bool, error) {
	gp, ok := reassembleProof(proof)
	if !ok {
		log.Debug(log.ProofMonitoring, "Proof rejected before pairing", "reason", "not a curve point")
		return false, nil
	}
	w, err := publicWitness(publicInputs)
	if err != nil {
		return false, err
	}
	if err := groth16.Verify(gp, v.vk, w); err != nil {
		log.Debug(log.ProofMonitoring, "Groth16 verification failed", "publics", len(publicInputs), "err", err)
		return false, nil
	}
	return true, nil
}

// reassembleProof maps the coordinate triple onto a gnark bn254 proof.
// Coordinates that do not name points in the right subgroups are rejected
// here rather than left for the pairing to chew on.
func reassembleProof(proof *Proof) (*groth16bn254.Proof, bool) {
	if proof == nil || !proof.wellFormed() {
		return nil, false
	}
	var gp groth16bn254.Proof
	gp.Ar.X.SetBigInt(proof.A.X)
	gp.Ar.Y.SetBigInt(proof.A.Y)
	gp.Bs.X.A0.SetBigInt(proof.B.X[0])
	gp.Bs.X.A1.SetBigInt(proof.B.X[1])
	gp.Bs.Y.A0.SetBigInt(proof.B.Y[0])
	gp.Bs.Y.A1.SetBigInt(proof.B.Y[1])
	gp.Krs.X.SetBigInt(proof.C.X)
	gp.Krs.Y.SetBigInt(proof.C.Y)
	if !gp.Ar.IsOnCurve() || !gp.Bs.IsOnCurve() || !gp.Krs.IsOnCurve() {
		return nil, false
	}
	if !gp.Ar.IsInSubGroup() || !gp.Bs.IsInSubGroup() || !gp.Krs.IsInSubGroup() {
		return nil, false
	}
	return &gp, true
}

// publicVectorCircuit mirrors the public section shared by every circuit in
// this package: a flat vector of field elements in protocol order.
type publicVectorCircuit struct {
	PublicInputs []frontend.Variable `gnark:",public"`
}

func (c *publicVectorCircuit) Define(api frontend.API) error {
	for i := range c.PublicInputs {
		api.AssertIsEqual(c.PublicInputs[i], c.PublicInputs[i])
	}
	return nil
}

func publicWitness(publicInputs []common.Hash) (witness.Witness, error) {
	assignment := publicVectorCircuit{
		PublicInputs: make([]frontend.Variable, len(publicInputs)),
	}
	for i, input := range publicInputs {
		v := new(big.Int).SetBytes(input.Bytes())
		assignment.PublicInputs[i] = v.Mod(v, ecc.BN254.ScalarField())
	}
	w, err := frontend.NewWitness(&assignment, ecc.BN254.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return nil, fmt.Errorf("build public witness: %w", err)
	}
	return w, nil
}
