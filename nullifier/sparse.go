// Package nullifier tracks revealed nullifiers and their accumulator root
package nullifier

import (
	"encoding/binary"
	"sort"

	"golang.org/x/crypto/blake2b"
)

// SparseAccumulatorDepth is the depth of the sparse nullifier tree; leaf
// positions are the low 64 bits of the nullifier hash masked to this depth.
const SparseAccumulatorDepth = 32

// SparseNullifierTree maintains a sparse Merkle tree for nullifier tracking.
// Leaves and nodes are domain-separated blake2b hashes, so nullifier roots
// can never collide with commitment tree nodes.
type SparseNullifierTree struct {
	depth      int
	leaves     map[uint64][32]byte
	positions  []uint64
	emptyRoots [][32]byte
	cachedRoot [32]byte
	rootCached bool
}

// SparseMerkleProof is a proof of membership or absence.
type SparseMerkleProof struct {
	Leaf     [32]byte
	Siblings [][32]byte
	Position uint64
	Root     [32]byte
}

// NewSparseNullifierTree creates a sparse tree for the given depth.
func NewSparseNullifierTree(depth int) *SparseNullifierTree {
	return &SparseNullifierTree{
		depth:      depth,
		leaves:     make(map[uint64][32]byte),
		positions:  make([]uint64, 0),
		emptyRoots: buildEmptySparseRoots(depth),
	}
}

// Insert marks a nullifier as spent.
func (t *SparseNullifierTree) Insert(nullifier [32]byte) {
	position := sparsePositionFor(nullifier, t.depth)
	if _, exists := t.leaves[position]; exists {
		return
	}
	t.leaves[position] = hashSparseLeaf(nullifier)
	t.rootCached = false
	t.positions = insertSortedPosition(t.positions, position)
}

// Remove deletes a nullifier leaf. It exists solely so a failed operation
// can roll back an insert it performed itself.
func (t *SparseNullifierTree) Remove(nullifier [32]byte) {
	position := sparsePositionFor(nullifier, t.depth)
	if _, exists := t.leaves[position]; !exists {
		return
	}
	delete(t.leaves, position)
	t.rootCached = false
	t.positions = removeSortedPosition(t.positions, position)
}

// Contains checks if a nullifier is already recorded.
func (t *SparseNullifierTree) Contains(nullifier [32]byte) bool {
	position := sparsePositionFor(nullifier, t.depth)
	_, ok := t.leaves[position]
	return ok
}

// Len returns the number of inserted nullifiers.
func (t *SparseNullifierTree) Len() int {
	return len(t.leaves)
}

// Root returns the current sparse tree root.
func (t *SparseNullifierTree) Root() [32]byte {
	if t.rootCached {
		return t.cachedRoot
	}
	if len(t.leaves) == 0 {
		t.cachedRoot = t.emptyRoots[t.depth]
		t.rootCached = true
		return t.cachedRoot
	}
	t.cachedRoot = t.subtreeHash(t.depth, 0)
	t.rootCached = true
	return t.cachedRoot
}

// ProveAbsence builds a proof that a nullifier is not present.
func (t *SparseNullifierTree) ProveAbsence(nullifier [32]byte) SparseMerkleProof {
	position := sparsePositionFor(nullifier, t.depth)
	return SparseMerkleProof{
		Leaf:     sparseEmptyLeaf(),
		Siblings: t.siblingHashes(position),
		Position: position,
		Root:     t.Root(),
	}
}

// ProveMembership builds a proof that a nullifier is present.
func (t *SparseNullifierTree) ProveMembership(nullifier [32]byte) SparseMerkleProof {
	position := sparsePositionFor(nullifier, t.depth)
	return SparseMerkleProof{
		Leaf:     hashSparseLeaf(nullifier),
		Siblings: t.siblingHashes(position),
		Position: position,
		Root:     t.Root(),
	}
}

// Verify checks the proof against its root.
func (p SparseMerkleProof) Verify() bool {
	current := p.Leaf
	position := p.Position
	for _, sibling := range p.Siblings {
		var left [32]byte
		var right [32]byte
		if position&1 == 0 {
			left = current
			right = sibling
		} else {
			left = sibling
			right = current
		}
		current = hashSparseNode(left, right)
		position >>= 1
	}
	return current == p.Root
}

func (t *SparseNullifierTree) siblingHashes(position uint64) [][32]byte {
	siblings := make([][32]byte, 0, t.depth)
	for height := 0; height < t.depth; height++ {
		prefix := position >> height
		siblingPrefix := prefix ^ 1
		siblings = append(siblings, t.subtreeHash(height, siblingPrefix))
	}
	return siblings
}

func (t *SparseNullifierTree) subtreeHash(height int, prefix uint64) [32]byte {
	if !t.hasLeafInSubtree(height, prefix) {
		return t.emptyRoots[height]
	}
	if height == 0 {
		if leaf, ok := t.leaves[prefix]; ok {
			return leaf
		}
		return sparseEmptyLeaf()
	}
	left := t.subtreeHash(height-1, prefix<<1)
	right := t.subtreeHash(height-1, (prefix<<1)|1)
	return hashSparseNode(left, right)
}

func (t *SparseNullifierTree) hasLeafInSubtree(height int, prefix uint64) bool {
	if len(t.positions) == 0 {
		return false
	}
	start := prefix << height
	end := (prefix + 1) << height
	idx := sort.Search(len(t.positions), func(i int) bool {
		return t.positions[i] >= start
	})
	return idx < len(t.positions) && t.positions[idx] < end
}

func insertSortedPosition(positions []uint64, position uint64) []uint64 {
	idx := sort.Search(len(positions), func(i int) bool {
		return positions[i] >= position
	})
	if idx < len(positions) && positions[idx] == position {
		return positions
	}
	positions = append(positions, 0)
	copy(positions[idx+1:], positions[idx:])
	positions[idx] = position
	return positions
}

func removeSortedPosition(positions []uint64, position uint64) []uint64 {
	idx := sort.Search(len(positions), func(i int) bool {
		return positions[i] >= position
	})
	if idx >= len(positions) || positions[idx] != position {
		return positions
	}
	return append(positions[:idx], positions[idx+1:]...)
}

func buildEmptySparseRoots(depth int) [][32]byte {
	roots := make([][32]byte, depth+1)
	roots[0] = sparseEmptyLeaf()
	for height := 0; height < depth; height++ {
		roots[height+1] = hashSparseNode(roots[height], roots[height])
	}
	return roots
}

func sparsePositionFor(value [32]byte, depth int) uint64 {
	prefix := binary.LittleEndian.Uint64(value[:8])
	if depth < 64 {
		prefix &= (uint64(1) << depth) - 1
	}
	return prefix
}

func sparseEmptyLeaf() [32]byte {
	return hashSparseLeaf([32]byte{})
}

func hashSparseLeaf(value [32]byte) [32]byte {
	data := make([]byte, 0, 1+len(value))
	data = append(data, 0x00)
	data = append(data, value[:]...)
	sum := blake2b.Sum256(data)
	return sum
}

func hashSparseNode(left [32]byte, right [32]byte) [32]byte {
	data := make([]byte, 0, 1+len(left)+len(right))
	data = append(data, 0x01)
	data = append(data, left[:]...)
	data = append(data, right[:]...)
	sum := blake2b.Sum256(data)
	return sum
}
