package rpc

import (
	"encoding/json"
	"fmt"
	"net/rpc"
	"strconv"

	"github.com/SiddharthManjul/DiffiChain/common"
	"github.com/SiddharthManjul/DiffiChain/events"
	"github.com/SiddharthManjul/DiffiChain/ledger"
	"github.com/SiddharthManjul/DiffiChain/store"
)

// LedgerClient wraps a net/rpc connection to the TCP port with typed calls.
type LedgerClient struct {
	Client *rpc.Client
}

// Dial connects to a running daemon's TCP RPC port.
func Dial(address string) (*LedgerClient, error) {
	client, err := rpc.Dial("tcp", address)
	if err != nil {
		return nil, err
	}
	return &LedgerClient{Client: client}, nil
}

func (c *LedgerClient) Close() error {
	return c.Client.Close()
}

// ----------------- client side -----------------
func (c *LedgerClient) GetVersion() (string, error) {
	var result string
	err := c.Client.Call("ledger.GetVersion", []string{}, &result)
	return result, err
}

func (c *LedgerClient) GetLedgerInfo() (LedgerInfo, error) {
	var jsonStr string
	err := c.Client.Call("ledger.GetLedgerInfo", []string{}, &jsonStr)
	if err != nil {
		return LedgerInfo{}, err
	}

	var info LedgerInfo
	err = json.Unmarshal([]byte(jsonStr), &info)
	if err != nil {
		return LedgerInfo{}, fmt.Errorf("failed to unmarshal ledger info: %w", err)
	}
	return info, nil
}

func (c *LedgerClient) GetStateRoots() (ledger.StateRoots, error) {
	var jsonStr string
	err := c.Client.Call("ledger.GetStateRoots", []string{}, &jsonStr)
	if err != nil {
		return ledger.StateRoots{}, err
	}

	var roots ledger.StateRoots
	err = json.Unmarshal([]byte(jsonStr), &roots)
	if err != nil {
		return ledger.StateRoots{}, fmt.Errorf("failed to unmarshal state roots: %w", err)
	}
	return roots, nil
}

func (c *LedgerClient) GetMerkleRoot() (common.Hash, error) {
	var result string
	err := c.Client.Call("ledger.GetMerkleRoot", []string{}, &result)
	if err != nil {
		return common.Hash{}, err
	}
	return common.HexToHash(result), nil
}

func (c *LedgerClient) GetNextIndex() (uint64, error) {
	var resultStr string
	err := c.Client.Call("ledger.GetNextIndex", []string{}, &resultStr)
	if err != nil {
		return 0, err
	}
	var result uint64
	_, err = fmt.Sscanf(resultStr, "%d", &result)
	return result, err
}

func (c *LedgerClient) CommitmentExists(commitment common.Hash) (bool, error) {
	req := []string{commitment.Hex()}
	var res string
	err := c.Client.Call("ledger.CommitmentExists", req, &res)
	if err != nil {
		return false, err
	}
	return strconv.ParseBool(res)
}

func (c *LedgerClient) IsNullifierSpent(nullifier common.Hash) (bool, error) {
	req := []string{nullifier.Hex()}
	var res string
	err := c.Client.Call("ledger.IsNullifierSpent", req, &res)
	if err != nil {
		return false, err
	}
	return strconv.ParseBool(res)
}

func (c *LedgerClient) GetWitness(index uint64) (WitnessResponse, error) {
	req := []string{strconv.FormatUint(index, 10)}
	var res string
	err := c.Client.Call("ledger.GetWitness", req, &res)
	if err != nil {
		return WitnessResponse{}, err
	}

	var witness WitnessResponse
	err = json.Unmarshal([]byte(res), &witness)
	if err != nil {
		return WitnessResponse{}, fmt.Errorf("failed to unmarshal witness: %w", err)
	}
	return witness, nil
}

func (c *LedgerClient) GetNullifierProof(nullifier common.Hash) (AbsenceResponse, error) {
	req := []string{nullifier.Hex()}
	var res string
	err := c.Client.Call("ledger.GetNullifierProof", req, &res)
	if err != nil {
		return AbsenceResponse{}, err
	}

	var proof AbsenceResponse
	err = json.Unmarshal([]byte(res), &proof)
	if err != nil {
		return AbsenceResponse{}, fmt.Errorf("failed to unmarshal absence proof: %w", err)
	}
	return proof, nil
}

func (c *LedgerClient) GetCommitments() ([]store.CommitmentEntry, error) {
	var res string
	err := c.Client.Call("ledger.GetCommitments", []string{}, &res)
	if err != nil {
		return nil, err
	}

	var entries []store.CommitmentEntry
	err = json.Unmarshal([]byte(res), &entries)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal commitments: %w", err)
	}
	return entries, nil
}

func (c *LedgerClient) GetCollateral() (CollateralResponse, error) {
	var res string
	err := c.Client.Call("ledger.GetCollateral", []string{}, &res)
	if err != nil {
		return CollateralResponse{}, err
	}

	var collat CollateralResponse
	err = json.Unmarshal([]byte(res), &collat)
	if err != nil {
		return CollateralResponse{}, fmt.Errorf("failed to unmarshal collateral: %w", err)
	}
	return collat, nil
}

func (c *LedgerClient) GetEvents(sinceSeq uint64) ([]events.Event, error) {
	req := []string{strconv.FormatUint(sinceSeq, 10)}
	var res string
	err := c.Client.Call("ledger.GetEvents", req, &res)
	if err != nil {
		return nil, err
	}

	var evs []events.Event
	err = json.Unmarshal([]byte(res), &evs)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal events: %w", err)
	}
	return evs, nil
}

func (c *LedgerClient) SubmitMint(mintReq ledger.MintRequest) (*ledger.MintReceipt, error) {
	reqBytes, err := json.Marshal(mintReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal mint request: %w", err)
	}
	req := []string{string(reqBytes)}

	var res string
	err = c.Client.Call("ledger.SubmitMint", req, &res)
	if err != nil {
		return nil, err
	}

	var receipt ledger.MintReceipt
	err = json.Unmarshal([]byte(res), &receipt)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal mint receipt: %w", err)
	}
	return &receipt, nil
}

func (c *LedgerClient) SubmitTransfer(transferReq ledger.TransferRequest) (*ledger.TransferReceipt, error) {
	reqBytes, err := json.Marshal(transferReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transfer request: %w", err)
	}
	req := []string{string(reqBytes)}

	var res string
	err = c.Client.Call("ledger.SubmitTransfer", req, &res)
	if err != nil {
		return nil, err
	}

	var receipt ledger.TransferReceipt
	err = json.Unmarshal([]byte(res), &receipt)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal transfer receipt: %w", err)
	}
	return &receipt, nil
}

func (c *LedgerClient) SubmitRedeem(redeemReq ledger.RedeemRequest) (*ledger.RedeemReceipt, error) {
	reqBytes, err := json.Marshal(redeemReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal redeem request: %w", err)
	}
	req := []string{string(reqBytes)}

	var res string
	err = c.Client.Call("ledger.SubmitRedeem", req, &res)
	if err != nil {
		return nil, err
	}

	var receipt ledger.RedeemReceipt
	err = json.Unmarshal([]byte(res), &receipt)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal redeem receipt: %w", err)
	}
	return &receipt, nil
}

func (c *LedgerClient) GetSnapshot() ([]byte, error) {
	var res string
	err := c.Client.Call("ledger.GetSnapshot", []string{}, &res)
	if err != nil {
		return nil, err
	}
	return []byte(res), nil
}

func (c *LedgerClient) VerifyState(expected []byte) (bool, string, error) {
	req := []string{string(expected)}
	var res string
	err := c.Client.Call("ledger.VerifyState", req, &res)
	if err != nil {
		return false, "", err
	}

	var verdict VerifyResponse
	err = json.Unmarshal([]byte(res), &verdict)
	if err != nil {
		return false, "", fmt.Errorf("failed to unmarshal verification result: %w", err)
	}
	return verdict.Match, verdict.Delta, nil
}
