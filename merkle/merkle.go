// Package merkle provides the incremental commitment Merkle tree
package merkle

import (
	"fmt"
	"sync"

	"github.com/SiddharthManjul/DiffiChain/common"
	"github.com/SiddharthManjul/DiffiChain/dcerrors"
)

const (
	// DefaultTreeDepth is the production depth of the commitment tree
	DefaultTreeDepth = 20

	// MaxTreeDepth bounds configurable depths so positions fit in uint64
	MaxTreeDepth = 32
)

// CommitmentTree is the append-only note commitment tree. Leaves are opaque
// 32-byte commitments; parents are Keccak256(left || right); empty subtrees
// take their value from the zero table.
type CommitmentTree struct {
	mu sync.RWMutex

	depth uint8

	// Tree state
	root   common.Hash   // Current Merkle root
	size   uint64        // Number of leaves, equals the next insertion index
	leaves []common.Hash // Leaf storage

	// Cached internal nodes for efficiency
	// nodes[level][index] = hash
	nodes map[uint8]map[uint64]common.Hash

	// Zero hashes for empty subtrees at each level
	zeroHashes []common.Hash
}

// ZeroTable precomputes the empty-subtree hash for every level up to depth.
// ZeroTable(d)[0] is the empty leaf, ZeroTable(d)[k] = H(z[k-1], z[k-1]).
func ZeroTable(depth uint8) []common.Hash {
	table := make([]common.Hash, depth+1)
	table[0] = common.Hash{}
	for i := uint8(1); i <= depth; i++ {
		table[i] = common.HashPair(table[i-1], table[i-1])
	}
	return table
}

// NewCommitmentTree creates an empty tree of the given depth (capacity 2^depth).
func NewCommitmentTree(depth uint8) (*CommitmentTree, error) {
	if depth == 0 || depth > MaxTreeDepth {
		return nil, fmt.Errorf("tree depth %d out of range [1, %d]", depth, MaxTreeDepth)
	}

	tree := &CommitmentTree{
		depth:      depth,
		leaves:     make([]common.Hash, 0),
		nodes:      make(map[uint8]map[uint64]common.Hash),
		zeroHashes: ZeroTable(depth),
	}
	tree.root = tree.zeroHashes[depth]
	return tree, nil
}

// Depth returns the configured tree depth.
func (t *CommitmentTree) Depth() uint8 {
	return t.depth
}

// Capacity returns the maximum number of leaves (2^depth).
func (t *CommitmentTree) Capacity() uint64 {
	return uint64(1) << t.depth
}

// GetRoot returns the current Merkle root
func (t *CommitmentTree) GetRoot() common.Hash {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.root
}

// GetSize returns the number of leaves in the tree, which is also the index
// the next appended commitment will take.
func (t *CommitmentTree) GetSize() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.size
}

// Append adds a single commitment and returns its assigned leaf index
func (t *CommitmentTree) Append(commitment common.Hash) (uint64, error) {
	return t.AppendBatch([]common.Hash{commitment})
}

// AppendBatch adds multiple commitments and returns the index of the first.
// The batch is all-or-nothing: if it does not fit, nothing is inserted.
func (t *CommitmentTree) AppendBatch(commitments []common.Hash) (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.size+uint64(len(commitments)) > t.Capacity() {
		return 0, dcerrors.ErrRTreeFull
	}

	start := t.size
	for _, commitment := range commitments {
		t.leaves = append(t.leaves, commitment)
		t.updatePath(t.size, commitment)
		t.size++
	}

	return start, nil
}

// updatePath updates internal nodes from leaf to root
func (t *CommitmentTree) updatePath(index uint64, leaf common.Hash) {
	currentHash := leaf
	currentIndex := index

	for level := uint8(0); level < t.depth; level++ {
		// Initialize level map if needed
		if t.nodes[level] == nil {
			t.nodes[level] = make(map[uint64]common.Hash)
		}

		// Store current node
		t.nodes[level][currentIndex] = currentHash

		// Get sibling
		var sibling common.Hash
		if currentIndex%2 == 0 {
			// Left child - check if right sibling exists
			siblingIndex := currentIndex + 1
			if siblingHash, exists := t.nodes[level][siblingIndex]; exists {
				sibling = siblingHash
			} else {
				sibling = t.zeroHashes[level]
			}
			currentHash = common.HashPair(currentHash, sibling)
		} else {
			// Right child - left sibling must exist
			siblingIndex := currentIndex - 1
			sibling = t.nodes[level][siblingIndex]
			currentHash = common.HashPair(sibling, currentHash)
		}

		// Move to parent
		currentIndex = currentIndex / 2
	}

	t.root = currentHash
}

// GetLeaf returns the leaf at the given position
func (t *CommitmentTree) GetLeaf(position uint64) (common.Hash, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if position >= t.size {
		return common.Hash{}, fmt.Errorf("leaf position %d out of bounds (size=%d)", position, t.size)
	}

	return t.leaves[position], nil
}

// GenerateWitness generates a Merkle inclusion proof for the given position
func (t *CommitmentTree) GenerateWitness(position uint64) (MerkleWitness, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if position >= t.size {
		return MerkleWitness{}, fmt.Errorf("position %d out of bounds (size=%d)", position, t.size)
	}

	witness := MerkleWitness{
		Position: position,
		Path:     make([]common.Hash, t.depth),
	}

	currentIndex := position
	for level := uint8(0); level < t.depth; level++ {
		// Get sibling
		var sibling common.Hash
		if currentIndex%2 == 0 {
			// Left child - get right sibling
			siblingIndex := currentIndex + 1
			if levelNodes, exists := t.nodes[level]; exists {
				if hash, exists := levelNodes[siblingIndex]; exists {
					sibling = hash
				} else {
					sibling = t.zeroHashes[level]
				}
			} else {
				sibling = t.zeroHashes[level]
			}
		} else {
			// Right child - get left sibling
			siblingIndex := currentIndex - 1
			if levelNodes, exists := t.nodes[level]; exists {
				sibling = levelNodes[siblingIndex]
			} else {
				return MerkleWitness{}, fmt.Errorf("missing sibling at level %d index %d", level, siblingIndex)
			}
		}

		witness.Path[level] = sibling
		currentIndex = currentIndex / 2
	}

	return witness, nil
}

// GetFrontier returns, per level, the pending left node awaiting its right
// sibling, or the zero hash where the level has no pending node.
func (t *CommitmentTree) GetFrontier() []common.Hash {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.frontierLocked()
}

func (t *CommitmentTree) frontierLocked() []common.Hash {
	frontier := make([]common.Hash, t.depth)
	for level := uint8(0); level < t.depth; level++ {
		idx := t.size >> level
		if idx%2 == 1 {
			frontier[level] = t.nodes[level][idx-1]
		} else {
			frontier[level] = t.zeroHashes[level]
		}
	}
	return frontier
}

// TreeSnapshot represents a point-in-time commitment tree state
type TreeSnapshot struct {
	Root     common.Hash
	Size     uint64
	Frontier []common.Hash
}

// Snapshot captures the current tree state for a later RestoreState.
func (t *CommitmentTree) Snapshot() TreeSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return TreeSnapshot{
		Root:     t.root,
		Size:     t.size,
		Frontier: t.frontierLocked(),
	}
}

// RestoreState rewinds the tree to an earlier snapshot, discarding every
// leaf appended after it. Only rewinding is supported; the snapshot must
// come from this tree's own history.
func (t *CommitmentTree) RestoreState(snap TreeSnapshot) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if snap.Size > t.size {
		return fmt.Errorf("snapshot size %d ahead of tree size %d", snap.Size, t.size)
	}
	if snap.Size == t.size {
		return nil
	}

	// Drop every node written by the discarded appends. Pending left nodes
	// of the snapshot state sit below this range and survive untouched.
	last := t.size - 1
	for level := uint8(0); level < t.depth; level++ {
		levelNodes := t.nodes[level]
		if levelNodes == nil {
			continue
		}
		for k := snap.Size >> level; k <= last>>level; k++ {
			delete(levelNodes, k)
		}
	}
	t.leaves = t.leaves[:snap.Size]
	t.size = snap.Size

	if snap.Size == 0 {
		t.root = t.zeroHashes[t.depth]
	} else {
		// Rewriting the last retained leaf's path restores the partial
		// boundary nodes the pruning removed, and the root with them.
		t.updatePath(snap.Size-1, t.leaves[snap.Size-1])
	}

	if t.root != snap.Root {
		return fmt.Errorf("restored root %s does not match snapshot root %s", common.Str(t.root), common.Str(snap.Root))
	}
	return nil
}
