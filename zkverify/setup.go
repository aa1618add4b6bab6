package zkverify

import (
	"fmt"
	"io"
	"math/big"
	"os"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	groth16bn254 "github.com/consensys/gnark/backend/groth16/bn254"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
)

// CompileAndSetup compiles the circuit over the BN254 scalar field and runs
// the Groth16 setup. The setup here is single-party, which is fine for the
// demo flow and tests; production keys come from a ceremony and are loaded
// from disk instead.
func CompileAndSetup(circuit frontend.Circuit) (constraint.ConstraintSystem, groth16.ProvingKey, groth16.VerifyingKey, error) {
	ccs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, circuit)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("compile circuit: %w", err)
	}
	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("groth16 setup: %w", err)
	}
	return ccs, pk, vk, nil
}

// Prove produces a coordinate-form proof for the assignment. The assignment
// must be the same circuit type the constraint system was compiled from,
// with every variable filled in.
func Prove(ccs constraint.ConstraintSystem, pk groth16.ProvingKey, assignment frontend.Circuit) (*Proof, error) {
	w, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("build witness: %w", err)
	}
	gp, err := groth16.Prove(ccs, pk, w)
	if err != nil {
		return nil, fmt.Errorf("groth16 prove: %w", err)
	}
	return ProofFromGnark(gp)
}

// ProofFromGnark extracts the coordinate triple from a gnark BN254 proof.
// Proofs from circuits using in-circuit commitments carry extra points the
// coordinate form cannot hold; those are refused.
func ProofFromGnark(gp groth16.Proof) (*Proof, error) {
	bp, ok := gp.(*groth16bn254.Proof)
	if !ok {
		return nil, fmt.Errorf("proof is %T, want bn254", gp)
	}
	if len(bp.Commitments) != 0 {
		return nil, fmt.Errorf("proof carries %d commitment points, coordinate form holds none", len(bp.Commitments))
	}
	return &Proof{
		A: G1Point{
			X: bp.Ar.X.BigInt(new(big.Int)),
			Y: bp.Ar.Y.BigInt(new(big.Int)),
		},
		B: G2Point{
			X: [2]*big.Int{
				bp.Bs.X.A0.BigInt(new(big.Int)),
				bp.Bs.X.A1.BigInt(new(big.Int)),
			},
			Y: [2]*big.Int{
				bp.Bs.Y.A0.BigInt(new(big.Int)),
				bp.Bs.Y.A1.BigInt(new(big.Int)),
			},
		},
		C: G1Point{
			X: bp.Krs.X.BigInt(new(big.Int)),
			Y: bp.Krs.Y.BigInt(new(big.Int)),
		},
	}, nil
}

// WriteKey serializes a proving or verifying key to disk.
func WriteKey(key io.WriterTo, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := key.WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// LoadProvingKey reads a gnark-serialized BN254 proving key from disk.
func LoadProvingKey(path string) (groth16.ProvingKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open proving key %s: %w", path, err)
	}
	defer f.Close()
	pk := groth16.NewProvingKey(ecc.BN254)
	if _, err := pk.ReadFrom(f); err != nil {
		return nil, fmt.Errorf("read proving key %s: %w", path, err)
	}
	return pk, nil
}
