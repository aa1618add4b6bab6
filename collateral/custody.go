package collateral

import (
	"fmt"
	"sync"

	"github.com/holiman/uint256"

	"github.com/SiddharthManjul/DiffiChain/common"
)

// Custody moves backing assets between depositors, the vault and
// redemption recipients. Implementations live outside the ledger core;
// the core only observes success or failure.
type Custody interface {
	// TransferIn pulls amount of asset from the depositor into the vault.
	TransferIn(asset common.Address, from common.Address, amount *uint256.Int) error

	// TransferOut pays amount of asset from the vault to the recipient.
	TransferOut(asset common.Address, to common.Address, amount *uint256.Int) error
}

// VaultCustody is an in-memory custody implementation. Depositors hold
// per-asset balances; the vault refuses overdrafts in both directions.
type VaultCustody struct {
	mu       sync.Mutex
	accounts map[common.Address]map[common.Address]*uint256.Int // asset -> holder -> balance
	vault    map[common.Address]*uint256.Int                    // asset -> vault balance
}

// NewVaultCustody creates an empty vault.
func NewVaultCustody() *VaultCustody {
	return &VaultCustody{
		accounts: make(map[common.Address]map[common.Address]*uint256.Int),
		vault:    make(map[common.Address]*uint256.Int),
	}
}

// Fund credits a depositor account, test and demo setup only.
func (v *VaultCustody) Fund(asset common.Address, holder common.Address, amount *uint256.Int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	balance := v.account(asset, holder)
	balance.Add(balance, amount)
}

// Balance returns the holder's balance for an asset.
func (v *VaultCustody) Balance(asset common.Address, holder common.Address) *uint256.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.account(asset, holder).Clone()
}

// VaultBalance returns the vault's own balance for an asset.
func (v *VaultCustody) VaultBalance(asset common.Address) *uint256.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.vaultAccount(asset).Clone()
}

func (v *VaultCustody) TransferIn(asset common.Address, from common.Address, amount *uint256.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	balance := v.account(asset, from)
	if balance.Lt(amount) {
		return fmt.Errorf("insufficient funds: %s holds %s of %s, needs %s", from.Hex(), balance.Dec(), asset.Hex(), amount.Dec())
	}
	balance.Sub(balance, amount)
	vault := v.vaultAccount(asset)
	vault.Add(vault, amount)
	return nil
}

func (v *VaultCustody) TransferOut(asset common.Address, to common.Address, amount *uint256.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	vault := v.vaultAccount(asset)
	if vault.Lt(amount) {
		return fmt.Errorf("vault underfunded: holds %s of %s, needs %s", vault.Dec(), asset.Hex(), amount.Dec())
	}
	vault.Sub(vault, amount)
	balance := v.account(asset, to)
	balance.Add(balance, amount)
	return nil
}

func (v *VaultCustody) account(asset common.Address, holder common.Address) *uint256.Int {
	holders, ok := v.accounts[asset]
	if !ok {
		holders = make(map[common.Address]*uint256.Int)
		v.accounts[asset] = holders
	}
	balance, ok := holders[holder]
	if !ok {
		balance = uint256.NewInt(0)
		holders[holder] = balance
	}
	return balance
}

func (v *VaultCustody) vaultAccount(asset common.Address) *uint256.Int {
	balance, ok := v.vault[asset]
	if !ok {
		balance = uint256.NewInt(0)
		v.vault[asset] = balance
	}
	return balance
}

// FaultyCustody fails on demand, for exercising rollback paths.
type FaultyCustody struct {
	FailIn  bool
	FailOut bool
	Inner   Custody
}

func (f *FaultyCustody) TransferIn(asset common.Address, from common.Address, amount *uint256.Int) error {
	if f.FailIn {
		return fmt.Errorf("transfer-in refused")
	}
	if f.Inner != nil {
		return f.Inner.TransferIn(asset, from, amount)
	}
	return nil
}

func (f *FaultyCustody) TransferOut(asset common.Address, to common.Address, amount *uint256.Int) error {
	if f.FailOut {
		return fmt.Errorf("transfer-out refused")
	}
	if f.Inner != nil {
		return f.Inner.TransferOut(asset, to, amount)
	}
	return nil
}
