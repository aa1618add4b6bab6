package ledger

import (
	"encoding/json"
	"fmt"

	"github.com/yudai/gojsondiff"
	"github.com/yudai/gojsondiff/formatter"

	"github.com/SiddharthManjul/DiffiChain/collateral"
	"github.com/SiddharthManjul/DiffiChain/store"
)

// LedgerSnapshot is the full public state in one deterministic document:
// listings come out of the store in key order and the pool entries sorted,
// so two equal states marshal byte-identically.
type LedgerSnapshot struct {
	StateRoots  StateRoots              `json:"stateRoots"`
	NextIndex   uint64                  `json:"nextIndex"`
	Commitments []store.CommitmentEntry `json:"commitments"`
	Nullifiers  []store.NullifierEntry  `json:"nullifiers"`
	Collateral  []collateral.Entry      `json:"collateral"`
	LastSeq     uint64                  `json:"lastSeq"`
}

// Snapshot serializes the full public state under the reader lock.
func (l *NoteLedger) Snapshot() ([]byte, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	commitments, err := l.store.ListCommitments()
	if err != nil {
		return nil, fmt.Errorf("snapshot commitments: %w", err)
	}
	nullifiers, err := l.store.ListNullifiers()
	if err != nil {
		return nil, fmt.Errorf("snapshot nullifiers: %w", err)
	}
	snap := LedgerSnapshot{
		StateRoots:  l.stateRootsLocked(),
		NextIndex:   l.tree.GetSize(),
		Commitments: commitments,
		Nullifiers:  nullifiers,
		Collateral:  l.pools.Entries(),
		LastSeq:     l.eventSeq,
	}
	return json.MarshalIndent(snap, "", "  ")
}

// CompareSnapshots diffs two snapshot documents and renders the delta as an
// ASCII diff of the expected document. A match returns an empty delta.
func CompareSnapshots(expected, actual []byte) (string, bool) {
	differ := gojsondiff.New()
	delta, err := differ.Compare(expected, actual)
	if err != nil {
		return fmt.Sprintf("error diffing snapshots: %v", err), false
	}
	if !delta.Modified() {
		return "", true
	}

	var leftObj map[string]interface{}
	if err := json.Unmarshal(expected, &leftObj); err != nil {
		return fmt.Sprintf("error decoding expected snapshot: %v", err), false
	}
	cfg := formatter.AsciiFormatterConfig{
		ShowArrayIndex: true,
		Coloring:       false,
	}
	asciiDiff, err := formatter.NewAsciiFormatter(leftObj, cfg).Format(delta)
	if err != nil {
		return fmt.Sprintf("error formatting diff: %v", err), false
	}
	return asciiDiff, false
}
