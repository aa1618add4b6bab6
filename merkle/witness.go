package merkle

import (
	"encoding/binary"
	"fmt"

	"github.com/SiddharthManjul/DiffiChain/common"
)

// MerkleWitness represents a Merkle inclusion proof
type MerkleWitness struct {
	Position uint64        // Leaf position
	Path     []common.Hash // Sibling hashes from leaf to root
}

// VerifyWitness recomputes the root from a leaf and its authentication path
// and compares it against the claimed root. The path length fixes the depth.
func VerifyWitness(witness MerkleWitness, leaf common.Hash, root common.Hash) bool {
	if len(witness.Path) == 0 || len(witness.Path) > MaxTreeDepth {
		return false
	}

	currentHash := leaf
	currentIndex := witness.Position

	for _, sibling := range witness.Path {
		if currentIndex%2 == 0 {
			// Left child
			currentHash = common.HashPair(currentHash, sibling)
		} else {
			// Right child
			currentHash = common.HashPair(sibling, currentHash)
		}

		currentIndex = currentIndex / 2
	}

	return currentHash == root
}

// SerializeWitness serializes a Merkle witness for transmission
func SerializeWitness(witness MerkleWitness) []byte {
	// Format: [position:8][path_len:2][path_hashes:32*len]
	buf := make([]byte, 10+len(witness.Path)*32)
	binary.BigEndian.PutUint64(buf[0:8], witness.Position)
	binary.BigEndian.PutUint16(buf[8:10], uint16(len(witness.Path)))

	offset := 10
	for _, hash := range witness.Path {
		copy(buf[offset:offset+32], hash.Bytes())
		offset += 32
	}

	return buf
}

// DeserializeWitness deserializes a Merkle witness
func DeserializeWitness(data []byte) (MerkleWitness, error) {
	if len(data) < 10 {
		return MerkleWitness{}, fmt.Errorf("witness data too short: %d bytes", len(data))
	}

	position := binary.BigEndian.Uint64(data[0:8])
	pathLen := binary.BigEndian.Uint16(data[8:10])

	if len(data) != 10+int(pathLen)*32 {
		return MerkleWitness{}, fmt.Errorf("witness data length mismatch: expected %d, got %d",
			10+int(pathLen)*32, len(data))
	}

	witness := MerkleWitness{
		Position: position,
		Path:     make([]common.Hash, pathLen),
	}

	offset := 10
	for i := 0; i < int(pathLen); i++ {
		witness.Path[i] = common.BytesToHash(data[offset : offset+32])
		offset += 32
	}

	return witness, nil
}
