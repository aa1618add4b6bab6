package zkverify

import (
	"sync"

	"github.com/SiddharthManjul/DiffiChain/common"
)

// Verifier checks one proof against the public inputs the ledger derived for
// the operation. The input ordering is part of the per-operation protocol
// contract; an out-of-order vector fails verification like any other bad
// proof, it is never reported distinctly.
//
// (true, nil) accepts, (false, nil) rejects, a non-nil error means the
// verifier itself could not run.
type Verifier interface {
	Verify(proof *Proof, publicInputs []common.Hash) (bool, error)
}

// Suite binds one verifier per ledger operation. The circuits differ in
// public arity, so the keys are never interchangeable.
type Suite struct {
	Mint     Verifier
	Transfer Verifier
	Redeem   Verifier
}

// AcceptSuite approves everything. Used by the demo node and by tests that
// exercise ledger state transitions rather than proof checking.
func AcceptSuite() Suite {
	return Suite{Mint: AcceptAll{}, Transfer: AcceptAll{}, Redeem: AcceptAll{}}
}

// AcceptAll approves every proof.
type AcceptAll struct{}

func (AcceptAll) Verify(_ *Proof, _ []common.Hash) (bool, error) {
	return true, nil
}

// RejectAll rejects every proof.
type RejectAll struct{}

func (RejectAll) Verify(_ *Proof, _ []common.Hash) (bool, error) {
	return false, nil
}

// Recorder captures every public-input vector it is handed and answers with
// a programmable verdict. Safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	calls   [][]common.Hash
	Verdict bool
	Err     error
}

// NewRecorder returns a recorder that accepts until told otherwise.
func NewRecorder() *Recorder {
	return &Recorder{Verdict: true}
}

func (r *Recorder) Verify(_ *Proof, publicInputs []common.Hash) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	captured := make([]common.Hash, len(publicInputs))
	copy(captured, publicInputs)
	r.calls = append(r.calls, captured)
	return r.Verdict, r.Err
}

// Calls returns the captured vectors in call order.
func (r *Recorder) Calls() [][]common.Hash {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]common.Hash, len(r.calls))
	copy(out, r.calls)
	return out
}

// LastCall returns the most recent vector, or nil if none were made.
func (r *Recorder) LastCall() []common.Hash {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		return nil
	}
	return r.calls[len(r.calls)-1]
}
