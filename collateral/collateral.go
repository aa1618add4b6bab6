// Package collateral accounts for backing value locked behind outstanding notes
package collateral

import (
	"fmt"
	"sort"
	"sync"

	"github.com/holiman/uint256"

	"github.com/SiddharthManjul/DiffiChain/common"
	"github.com/SiddharthManjul/DiffiChain/dcerrors"
)

// PoolKey identifies one collateral pool.
type PoolKey struct {
	Asset  common.Address
	Issuer common.Address
}

// Entry is a point-in-time view of a single pool balance.
type Entry struct {
	Asset  common.Address `json:"asset"`
	Issuer common.Address `json:"issuer"`
	Locked *uint256.Int   `json:"locked"`
}

// CollateralLedger tracks totalLocked per (asset, issuer) pool. Balances
// only grow through Lock and only shrink through Release; Release can never
// take a pool below zero.
type CollateralLedger struct {
	mu      sync.RWMutex
	issuers map[common.Address]common.Address // asset -> authorized issuer
	locked  map[PoolKey]*uint256.Int
	custody Custody
}

// NewCollateralLedger creates an empty ledger backed by the given custody
// collaborator.
func NewCollateralLedger(custody Custody) *CollateralLedger {
	return &CollateralLedger{
		issuers: make(map[common.Address]common.Address),
		locked:  make(map[PoolKey]*uint256.Int),
		custody: custody,
	}
}

// RegisterIssuer authorizes an issuer for an asset. Re-registering replaces
// the previous issuer; existing locked balances stay untouched.
func (c *CollateralLedger) RegisterIssuer(asset common.Address, issuer common.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.issuers[asset] = issuer
}

// Issuer returns the registered issuer for an asset.
func (c *CollateralLedger) Issuer(asset common.Address) (common.Address, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	issuer, ok := c.issuers[asset]
	return issuer, ok
}

// Lock pulls amount from the depositor via custody and credits the pool.
// The custody transfer happens first, so a failed pull never inflates
// totalLocked.
func (c *CollateralLedger) Lock(asset common.Address, issuer common.Address, from common.Address, amount *uint256.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	registered, ok := c.issuers[asset]
	if !ok || registered != issuer {
		return dcerrors.ErrRUnauthorizedIssuer
	}
	if amount == nil || amount.IsZero() {
		return fmt.Errorf("lock amount must be positive")
	}

	if err := c.custody.TransferIn(asset, from, amount); err != nil {
		return dcerrors.ErrXTransferFailed
	}

	key := PoolKey{Asset: asset, Issuer: issuer}
	balance, ok := c.locked[key]
	if !ok {
		balance = uint256.NewInt(0)
		c.locked[key] = balance
	}
	balance.Add(balance, amount)
	return nil
}

// Release pays amount to the recipient via custody and debits the pool.
// The balance check happens before the custody push; a failed push leaves
// the pool unchanged.
func (c *CollateralLedger) Release(asset common.Address, issuer common.Address, recipient common.Address, amount *uint256.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	registered, ok := c.issuers[asset]
	if !ok || registered != issuer {
		return dcerrors.ErrRUnauthorizedIssuer
	}
	if amount == nil || amount.IsZero() {
		return fmt.Errorf("release amount must be positive")
	}

	key := PoolKey{Asset: asset, Issuer: issuer}
	balance, ok := c.locked[key]
	if !ok || balance.Lt(amount) {
		return dcerrors.ErrRInsufficientCollateral
	}

	if err := c.custody.TransferOut(asset, recipient, amount); err != nil {
		return dcerrors.ErrXTransferFailed
	}

	balance.Sub(balance, amount)
	return nil
}

// Locked returns the pool balance, zero for unknown pools.
func (c *CollateralLedger) Locked(asset common.Address, issuer common.Address) *uint256.Int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if balance, ok := c.locked[PoolKey{Asset: asset, Issuer: issuer}]; ok {
		return balance.Clone()
	}
	return uint256.NewInt(0)
}

// TotalLocked sums every pool. A cross-asset aggregate, reported for
// observability only.
func (c *CollateralLedger) TotalLocked() *uint256.Int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := uint256.NewInt(0)
	for _, balance := range c.locked {
		total.Add(total, balance)
	}
	return total
}

// Entries returns all pools sorted by asset then issuer.
func (c *CollateralLedger) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entries := make([]Entry, 0, len(c.locked))
	for key, balance := range c.locked {
		entries = append(entries, Entry{Asset: key.Asset, Issuer: key.Issuer, Locked: balance.Clone()})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Asset != entries[j].Asset {
			return entries[i].Asset.Hex() < entries[j].Asset.Hex()
		}
		return entries[i].Issuer.Hex() < entries[j].Issuer.Hex()
	})
	return entries
}

// RestoreLocked seeds a pool balance during startup reload. It bypasses
// custody and must never run after the ledger starts serving operations.
func (c *CollateralLedger) RestoreLocked(asset common.Address, issuer common.Address, amount *uint256.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.locked[PoolKey{Asset: asset, Issuer: issuer}] = amount.Clone()
}
