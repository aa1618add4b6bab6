// Package note holds the client-side note representation and its hash
// derivations. Nothing in here is consulted by the ledger core, which only
// ever sees the derived 32-byte commitments and nullifier hashes.
package note

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
	"github.com/holiman/uint256"

	"github.com/SiddharthManjul/DiffiChain/common"
)

// Note is the private (amount, secret, nullifier seed) triple behind a
// commitment. It exists wallet-side only and is never persisted by the
// ledger.
type Note struct {
	Amount        *uint256.Int
	Secret        [32]byte
	NullifierSeed [32]byte
}

// Commitment derives the public commitment MiMC(amount, secret, seed).
func (n *Note) Commitment() common.Hash {
	amount := n.Amount.Bytes32()
	return MiMCSum(amount[:], n.Secret[:], n.NullifierSeed[:])
}

// NullifierHash derives the spend tag MiMC(seed). Revealing it spends the
// note; it is unlinkable to the commitment without the private fields.
func (n *Note) NullifierHash() common.Hash {
	return MiMCSum(n.NullifierSeed[:])
}

// Bytes encodes the note as [amount:32][secret:32][seed:32], the plaintext
// a wallet seals into a commitment payload.
func (n *Note) Bytes() []byte {
	buf := make([]byte, 96)
	amount := n.Amount.Bytes32()
	copy(buf[0:32], amount[:])
	copy(buf[32:64], n.Secret[:])
	copy(buf[64:96], n.NullifierSeed[:])
	return buf
}

// NoteFromBytes decodes a 96-byte note encoding.
func NoteFromBytes(data []byte) (*Note, error) {
	if len(data) != 96 {
		return nil, fmt.Errorf("note encoding must be 96 bytes, got %d", len(data))
	}
	n := &Note{Amount: new(uint256.Int).SetBytes(data[0:32])}
	copy(n.Secret[:], data[32:64])
	copy(n.NullifierSeed[:], data[64:96])
	return n, nil
}

// RandomNote draws a fresh secret and nullifier seed from rng. Both are
// stored in canonical field form so the byte layout matches the witness
// the prover later assigns.
func RandomNote(rng io.Reader, amount *uint256.Int) (*Note, error) {
	n := &Note{Amount: amount.Clone()}

	secret, err := randomFieldBytes(rng)
	if err != nil {
		return nil, fmt.Errorf("drawing note secret: %w", err)
	}
	n.Secret = secret

	seed, err := randomFieldBytes(rng)
	if err != nil {
		return nil, fmt.Errorf("drawing nullifier seed: %w", err)
	}
	n.NullifierSeed = seed

	return n, nil
}

// MiMCSum hashes the inputs as BN254 scalar field elements, one absorption
// per input. Each input is reduced into the field first, giving the same
// digest an in-circuit MiMC produces over the corresponding witnesses.
func MiMCSum(inputs ...[]byte) common.Hash {
	h := mimc.NewMiMC()
	for _, input := range inputs {
		var fe fr.Element
		fe.SetBytes(input)
		b := fe.Bytes()
		h.Write(b[:])
	}
	return common.BytesToHash(h.Sum(nil))
}

func randomFieldBytes(rng io.Reader) ([32]byte, error) {
	var raw [32]byte
	if _, err := io.ReadFull(rng, raw[:]); err != nil {
		return [32]byte{}, err
	}
	var fe fr.Element
	fe.SetBytes(raw[:])
	return fe.Bytes(), nil
}

// AmountToHash is the 32-byte public-input form of a note value, used both
// for revealed redeem amounts and for the chain-wide denomination.
func AmountToHash(amount *uint256.Int) common.Hash {
	b := amount.Bytes32()
	return common.BytesToHash(b[:])
}

// IndexHash is the 32-byte public-input form of a leaf index, used by
// wallets that bind positions into their proofs.
func IndexHash(index uint64) common.Hash {
	var b [32]byte
	binary.BigEndian.PutUint64(b[24:], index)
	return common.BytesToHash(b[:])
}
