// Package ledger is the confidential note state machine. It owns the
// commitment tree, the nullifier set and the collateral pools, and applies
// Mint, Transfer and Redeem as single indivisible units: every operation is
// verified first and either commits completely or leaves no trace.
package ledger

import (
	"fmt"
	"sync"

	"github.com/holiman/uint256"

	"github.com/SiddharthManjul/DiffiChain/collateral"
	"github.com/SiddharthManjul/DiffiChain/common"
	"github.com/SiddharthManjul/DiffiChain/events"
	"github.com/SiddharthManjul/DiffiChain/log"
	"github.com/SiddharthManjul/DiffiChain/merkle"
	"github.com/SiddharthManjul/DiffiChain/nullifier"
	"github.com/SiddharthManjul/DiffiChain/store"
	"github.com/SiddharthManjul/DiffiChain/zkverify"
)

// EventNotifier receives committed events and the state roots current after
// each mutation. Calls happen inside the writer critical section, so
// implementations must not block; the hub hands off to buffered channels.
type EventNotifier interface {
	NotifyEvent(ev events.Event)
	NotifyStateRoots(roots StateRoots)
}

// StateRoots is one consistent snapshot of the three state summaries.
type StateRoots struct {
	MerkleRoot      common.Hash  `json:"merkleRoot"`
	TreeSize        uint64       `json:"treeSize"`
	NullifierRoot   common.Hash  `json:"nullifierRoot"`
	NullifierCount  uint64       `json:"nullifierCount"`
	CollateralTotal *uint256.Int `json:"collateralTotal"`
}

// Deps are the collaborators the ledger drives. Verifiers, Custody and Store
// are required; Notifier may be nil.
type Deps struct {
	Verifiers zkverify.Suite
	Custody   collateral.Custody
	Store     *store.LedgerStore
	Notifier  EventNotifier
}

// NoteLedger is the core state machine. One writer lock serializes the three
// operations against the shared stores as a unit; queries take the reader
// side and observe committed state only.
type NoteLedger struct {
	mu sync.RWMutex

	cfg       Config
	tree      *merkle.CommitmentTree
	set       *nullifier.NullifierSet
	pools     *collateral.CollateralLedger
	store     *store.LedgerStore
	verifiers zkverify.Suite
	notifier  EventNotifier

	// commitment -> leaf index, for every commitment ever inserted
	commitments map[common.Hash]uint64
	eventSeq    uint64
}

// New builds a ledger over the given store, replaying persisted state into
// the tree, set and pools. It refuses to start when the store contradicts
// itself; a node with a damaged database should not limp onward.
func New(cfg Config, deps Deps) (*NoteLedger, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("ledger store is required")
	}
	if deps.Custody == nil {
		return nil, fmt.Errorf("custody is required")
	}
	if deps.Verifiers.Mint == nil || deps.Verifiers.Transfer == nil || deps.Verifiers.Redeem == nil {
		return nil, fmt.Errorf("verifier suite is incomplete")
	}

	tree, err := merkle.NewCommitmentTree(cfg.Depth)
	if err != nil {
		return nil, err
	}

	l := &NoteLedger{
		cfg:         cfg,
		tree:        tree,
		set:         nullifier.NewNullifierSet(),
		pools:       collateral.NewCollateralLedger(deps.Custody),
		store:       deps.Store,
		verifiers:   deps.Verifiers,
		notifier:    deps.Notifier,
		commitments: make(map[common.Hash]uint64),
	}
	if !cfg.Issuer.IsZero() {
		l.pools.RegisterIssuer(cfg.Asset, cfg.Issuer)
	}
	if err := l.reload(); err != nil {
		return nil, fmt.Errorf("reload ledger state: %w", err)
	}

	log.Info(log.LedgerMonitoring, "Ledger ready",
		"root", common.Str(l.tree.GetRoot()),
		"size", l.tree.GetSize(),
		"spent", l.set.Len(),
		"mode", cfg.AmountMode.String(),
		"arity", cfg.TransferArity.String())
	return l, nil
}

// reload replays the persisted commitment log, nullifiers, collateral and
// event cursor. Runs before the ledger is shared, so no locking.
func (l *NoteLedger) reload() error {
	entries, err := l.store.ListCommitments()
	if err != nil {
		return err
	}
	leaves := make([]common.Hash, len(entries))
	for i, entry := range entries {
		if entry.Index != uint64(i) {
			return fmt.Errorf("commitment log has a gap at %d (stored index %d)", i, entry.Index)
		}
		leaves[i] = entry.Commitment
	}
	if len(leaves) > 0 {
		if _, err := l.tree.AppendBatch(leaves); err != nil {
			return fmt.Errorf("replay %d commitments: %w", len(leaves), err)
		}
	}
	for i, leaf := range leaves {
		l.commitments[leaf] = uint64(i)
	}

	spent, err := l.store.ListNullifiers()
	if err != nil {
		return err
	}
	for _, entry := range spent {
		if err := l.set.MarkSpent(entry.Nullifier); err != nil {
			return fmt.Errorf("replay nullifier %s: %w", common.Str(entry.Nullifier), err)
		}
	}

	pools, err := l.store.ListCollateral()
	if err != nil {
		return err
	}
	for _, entry := range pools {
		l.pools.RestoreLocked(entry.Asset, entry.Issuer, entry.Locked)
	}

	seq, ok, err := l.store.LastEventSeq()
	if err != nil {
		return err
	}
	if ok {
		l.eventSeq = seq
	}
	return nil
}

// Config returns the ledger's fixed configuration.
func (l *NoteLedger) Config() Config {
	cfg := l.cfg
	if cfg.Denomination != nil {
		cfg.Denomination = cfg.Denomination.Clone()
	}
	return cfg
}

// MerkleRoot returns the current commitment tree root.
func (l *NoteLedger) MerkleRoot() common.Hash {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.tree.GetRoot()
}

// NextIndex returns the leaf index the next commitment will occupy.
func (l *NoteLedger) NextIndex() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.tree.GetSize()
}

// CommitmentExists reports whether the commitment was ever inserted.
func (l *NoteLedger) CommitmentExists(c common.Hash) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.commitments[c]
	return ok
}

// IsNullifierSpent reports whether the nullifier hash has been revealed.
func (l *NoteLedger) IsNullifierSpent(n common.Hash) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.set.IsSpent(n)
}

// Witness returns the authentication path for the leaf at position against
// the current root.
func (l *NoteLedger) Witness(position uint64) (merkle.MerkleWitness, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.tree.GenerateWitness(position)
}

// Leaf returns the commitment stored at position.
func (l *NoteLedger) Leaf(position uint64) (common.Hash, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.tree.GetLeaf(position)
}

// StateRoots returns the three state summaries as one consistent snapshot.
func (l *NoteLedger) StateRoots() StateRoots {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.stateRootsLocked()
}

func (l *NoteLedger) stateRootsLocked() StateRoots {
	return StateRoots{
		MerkleRoot:      l.tree.GetRoot(),
		TreeSize:        l.tree.GetSize(),
		NullifierRoot:   l.set.Root(),
		NullifierCount:  uint64(l.set.Len()),
		CollateralTotal: l.pools.TotalLocked(),
	}
}

// Locked returns every collateral pool balance.
func (l *NoteLedger) Locked() []collateral.Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.pools.Entries()
}

// NullifierAbsenceProof proves n unspent against the sparse accumulator.
func (l *NoteLedger) NullifierAbsenceProof(n common.Hash) (nullifier.SparseMerkleProof, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.set.IsSpent(n) {
		return nullifier.SparseMerkleProof{}, fmt.Errorf("nullifier %s is spent", common.Str(n))
	}
	return l.set.ProveAbsence(n), nil
}

// Events returns the persisted event log from sinceSeq on.
func (l *NoteLedger) Events(sinceSeq uint64) ([]events.Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.store.Events(sinceSeq)
}

// Commitments returns the persisted commitment log in leaf order.
func (l *NoteLedger) Commitments() ([]store.CommitmentEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.store.ListCommitments()
}

// LastEventSeq returns the sequence of the newest committed event.
func (l *NoteLedger) LastEventSeq() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.eventSeq
}

// commitEventsLocked assigns sequence numbers, persists and broadcasts the
// events of one committed operation. Only called once an operation can no
// longer fail; persistence problems here are logged, not propagated.
func (l *NoteLedger) commitEventsLocked(evs ...events.Event) []events.Event {
	for i := range evs {
		l.eventSeq++
		evs[i].Seq = l.eventSeq
		if err := l.store.AppendEvent(evs[i]); err != nil {
			log.Warn(log.LedgerMonitoring, "Persist event failed", "seq", evs[i].Seq, "kind", evs[i].Kind, "err", err)
		}
	}
	if l.notifier != nil {
		for _, ev := range evs {
			l.notifier.NotifyEvent(ev)
		}
		l.notifier.NotifyStateRoots(l.stateRootsLocked())
	}
	return evs
}

// persistCollateralLocked writes the configured pool's balance through to
// the store. The custody transfer has already happened when this runs, so a
// write failure downgrades to a warning. Each write carries the full
// balance, so the next successful one repairs any gap.
func (l *NoteLedger) persistCollateralLocked() {
	locked := l.pools.Locked(l.cfg.Asset, l.cfg.Issuer)
	if err := l.store.PutCollateral(l.cfg.Asset, l.cfg.Issuer, locked); err != nil {
		log.Warn(log.LedgerMonitoring, "Persist collateral failed",
			"asset", l.cfg.Asset.Hex(), "issuer", l.cfg.Issuer.Hex(), "err", err)
	}
}
