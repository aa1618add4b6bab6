package main

import (
	"fmt"
	"time"

	"github.com/holiman/uint256"
	"golang.org/x/exp/rand"

	"github.com/SiddharthManjul/DiffiChain/collateral"
	"github.com/SiddharthManjul/DiffiChain/common"
	"github.com/SiddharthManjul/DiffiChain/ledger"
	"github.com/SiddharthManjul/DiffiChain/note"
	"github.com/SiddharthManjul/DiffiChain/store"
	"github.com/SiddharthManjul/DiffiChain/zkverify"
)

var (
	demoAsset     = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	demoIssuer    = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	demoRecipient = common.HexToAddress("0x00000000000000000000000000000000000000cc")
)

// runDemo drives an in-memory ledger through randomized mint, transfer and
// redeem rounds with an accept-all verifier suite. Transfers conserve value:
// two spent notes fund two fresh ones of the same total.
func runDemo(rounds int) error {
	rng := rand.New(rand.NewSource(uint64(time.Now().UnixNano())))

	st, err := store.Open("")
	if err != nil {
		return err
	}
	defer st.Close()

	custody := collateral.NewVaultCustody()
	custody.Fund(demoAsset, demoIssuer, uint256.NewInt(1_000_000))

	l, err := ledger.New(ledger.Config{
		Depth:  12,
		Asset:  demoAsset,
		Issuer: demoIssuer,
	}, ledger.Deps{
		Verifiers: zkverify.AcceptSuite(),
		Custody:   custody,
		Store:     st,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Running %d rounds against an in-memory ledger (proofs accepted unchecked)\n", rounds)

	var wallet []*note.Note
	for round := 1; round <= rounds; round++ {
		fmt.Printf("\n--- round %d ---\n", round)

		for i := 0; i < 2; i++ {
			minted, err := demoMint(l, rng)
			if err != nil {
				return err
			}
			wallet = append(wallet, minted)
		}

		// Spend the two oldest notes into two fresh ones.
		outputs, err := demoTransfer(l, rng, wallet[0], wallet[1])
		if err != nil {
			return err
		}
		wallet = append(wallet[2:], outputs...)

		// Every third round, exit a note back to the transparent side.
		if round%3 == 0 {
			if err := demoRedeem(l, wallet[0]); err != nil {
				return err
			}
			wallet = wallet[1:]
		}
	}

	roots := l.StateRoots()
	fmt.Printf("\nFinal state:\n")
	fmt.Printf("  tree size:         %d\n", roots.TreeSize)
	fmt.Printf("  merkle root:       %s\n", roots.MerkleRoot.Hex())
	fmt.Printf("  nullifier root:    %s\n", roots.NullifierRoot.Hex())
	fmt.Printf("  spent nullifiers:  %d\n", roots.NullifierCount)
	fmt.Printf("  locked collateral: %s\n", roots.CollateralTotal.Dec())
	fmt.Printf("  unspent notes:     %d\n", len(wallet))
	return nil
}

func demoMint(l *ledger.NoteLedger, rng *rand.Rand) (*note.Note, error) {
	// Keep amounts >= 2 so every transfer total splits into two positive notes.
	amount := uint256.NewInt(rng.Uint64n(98) + 2)
	n, err := note.RandomNote(rng, amount)
	if err != nil {
		return nil, err
	}
	payload, err := note.SealPayload(n.Secret, n.Bytes(), rng)
	if err != nil {
		return nil, err
	}
	receipt, err := l.Mint(ledger.MintRequest{
		Commitment:       n.Commitment(),
		NullifierHash:    n.NullifierHash(),
		Amount:           amount,
		EncryptedPayload: payload,
	})
	if err != nil {
		return nil, fmt.Errorf("mint: %w", err)
	}
	fmt.Printf("mint     amount %-3s -> leaf %d (%s)\n", amount.Dec(), receipt.Index, common.Str(receipt.Commitment))
	return n, nil
}

func demoTransfer(l *ledger.NoteLedger, rng *rand.Rand, a, b *note.Note) ([]*note.Note, error) {
	total := new(uint256.Int).Add(a.Amount, b.Amount)
	first := uint256.NewInt(rng.Uint64n(total.Uint64()-1) + 1)
	second := new(uint256.Int).Sub(total, first)

	outputs := make([]*note.Note, 0, 2)
	commitments := make([]common.Hash, 0, 2)
	payloads := make([]common.HexBytes, 0, 2)
	for _, amount := range []*uint256.Int{first, second} {
		out, err := note.RandomNote(rng, amount)
		if err != nil {
			return nil, err
		}
		sealed, err := note.SealPayload(out.Secret, out.Bytes(), rng)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, out)
		commitments = append(commitments, out.Commitment())
		payloads = append(payloads, sealed)
	}

	receipt, err := l.Transfer(ledger.TransferRequest{
		InputNullifiers:   []common.Hash{a.NullifierHash(), b.NullifierHash()},
		OutputCommitments: commitments,
		MerkleRoot:        l.MerkleRoot(),
		EncryptedPayloads: payloads,
	})
	if err != nil {
		return nil, fmt.Errorf("transfer: %w", err)
	}
	fmt.Printf("transfer %s+%s -> %s+%s at leaves %v\n",
		a.Amount.Dec(), b.Amount.Dec(), first.Dec(), second.Dec(), receipt.Indices)
	return outputs, nil
}

func demoRedeem(l *ledger.NoteLedger, n *note.Note) error {
	receipt, err := l.Redeem(ledger.RedeemRequest{
		Nullifier:  n.NullifierHash(),
		Recipient:  demoRecipient,
		Amount:     n.Amount,
		Commitment: n.Commitment(),
		MerkleRoot: l.MerkleRoot(),
	})
	if err != nil {
		return fmt.Errorf("redeem: %w", err)
	}
	fmt.Printf("redeem   amount %-3s -> %s\n", receipt.Amount.Dec(), receipt.Recipient.Hex())
	return nil
}
