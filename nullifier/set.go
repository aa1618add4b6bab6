package nullifier

import (
	"sort"
	"sync"

	"github.com/SiddharthManjul/DiffiChain/common"
	"github.com/SiddharthManjul/DiffiChain/dcerrors"
)

// NullifierSet is the write-once spent map. A nullifier flips to spent at
// most once; the only way back is Unmark, reserved for rolling back the
// operation that marked it. The set mirrors every entry into a sparse
// accumulator so external observers get a succinct spent-set root.
type NullifierSet struct {
	mu     sync.RWMutex
	spent  map[common.Hash]bool
	sparse *SparseNullifierTree
}

// NewNullifierSet creates an empty set backed by a sparse accumulator of
// the default depth.
func NewNullifierSet() *NullifierSet {
	return &NullifierSet{
		spent:  make(map[common.Hash]bool),
		sparse: NewSparseNullifierTree(SparseAccumulatorDepth),
	}
}

// IsSpent reports whether the nullifier has been revealed.
func (s *NullifierSet) IsSpent(n common.Hash) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.spent[n]
}

// MarkSpent records a nullifier as spent once and forever.
func (s *NullifierSet) MarkSpent(n common.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.spent[n] {
		return dcerrors.ErrCNullifierAlreadySpent
	}
	s.spent[n] = true
	s.sparse.Insert([32]byte(n))
	return nil
}

// Unmark reverses a MarkSpent performed by the current failed operation.
// Callers must hold the ledger writer lock; no other unspend path exists.
func (s *NullifierSet) Unmark(n common.Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.spent[n] {
		return
	}
	delete(s.spent, n)
	s.sparse.Remove([32]byte(n))
}

// Len returns the number of spent nullifiers.
func (s *NullifierSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.spent)
}

// Root returns the sparse accumulator root over the spent set.
func (s *NullifierSet) Root() common.Hash {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return common.Hash(s.sparse.Root())
}

// ProveAbsence builds an accumulator proof that the nullifier is unspent.
func (s *NullifierSet) ProveAbsence(n common.Hash) SparseMerkleProof {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sparse.ProveAbsence([32]byte(n))
}

// ProveMembership builds an accumulator proof that the nullifier is spent.
func (s *NullifierSet) ProveMembership(n common.Hash) SparseMerkleProof {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sparse.ProveMembership([32]byte(n))
}

// List returns the spent nullifiers in lexicographic order.
func (s *NullifierSet) List() []common.Hash {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]common.Hash, 0, len(s.spent))
	for n := range s.spent {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Hex() < out[j].Hex()
	})
	return out
}
