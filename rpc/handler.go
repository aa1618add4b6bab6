// Package rpc exposes the note ledger over three transports that share one
// handler: a raw TCP net/rpc endpoint for the console, an HTTP JSON-RPC
// endpoint for wallets and curl, and a WebSocket hub for event subscriptions.
//
// Every method takes its parameters as a string slice and writes a string
// result. Structured parameters and results cross the boundary as JSON; the
// HTTP layer flattens JSON-RPC params into this form before dispatch.
package rpc

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/SiddharthManjul/DiffiChain/collateral"
	"github.com/SiddharthManjul/DiffiChain/common"
	"github.com/SiddharthManjul/DiffiChain/ledger"
	"github.com/SiddharthManjul/DiffiChain/log"
	"github.com/holiman/uint256"
)

// LedgerRPCHandler handles all ledger JSON-RPC methods.
type LedgerRPCHandler struct {
	ledger *ledger.NoteLedger
}

// NewLedgerRPCHandler creates a handler bound to a running ledger.
func NewLedgerRPCHandler(l *ledger.NoteLedger) *LedgerRPCHandler {
	return &LedgerRPCHandler{ledger: l}
}

// LedgerInfo is the GetLedgerInfo response.
type LedgerInfo struct {
	Asset         string `json:"asset"`
	Issuer        string `json:"issuer"`
	AmountMode    string `json:"amountMode"`
	TransferArity string `json:"transferArity"`
	Depth         uint8  `json:"depth"`
	Capacity      uint64 `json:"capacity"`
	TreeSize      uint64 `json:"treeSize"`
	MerkleRoot    string `json:"merkleRoot"`
	Denomination  string `json:"denomination,omitempty"`
	Version       string `json:"version"`
}

// WitnessResponse is the GetWitness response.
type WitnessResponse struct {
	Position uint64        `json:"position"`
	Leaf     common.Hash   `json:"leaf"`
	Path     []common.Hash `json:"path"`
	Root     common.Hash   `json:"root"`
}

// AbsenceResponse is the GetNullifierProof response.
type AbsenceResponse struct {
	Position uint64        `json:"position"`
	Leaf     common.Hash   `json:"leaf"`
	Siblings []common.Hash `json:"siblings"`
	Root     common.Hash   `json:"root"`
}

// CollateralResponse is the GetCollateral response.
type CollateralResponse struct {
	Pools []collateral.Entry `json:"pools"`
	Total *uint256.Int       `json:"total"`
}

// VerifyResponse is the VerifyState response.
type VerifyResponse struct {
	Match bool   `json:"match"`
	Delta string `json:"delta"`
}

var MethodDescriptionMap = map[string]string{
	"Functions": "Functions() -> functions description",

	"GetVersion":        "GetVersion() -> build commit hash",
	"GetLedgerInfo":     "GetLedgerInfo() -> json ledger configuration and tree state",
	"GetStateRoots":     "GetStateRoots() -> json merkle root, nullifier root, collateral total",
	"GetMerkleRoot":     "GetMerkleRoot() -> hexstring",
	"GetNextIndex":      "GetNextIndex() -> string leaf index",
	"CommitmentExists":  "CommitmentExists(commitment hexstring) -> true|false",
	"IsNullifierSpent":  "IsNullifierSpent(nullifier hexstring) -> true|false",
	"GetWitness":        "GetWitness(index string) -> json inclusion proof",
	"GetNullifierProof": "GetNullifierProof(nullifier hexstring) -> json absence proof",
	"GetCommitments":    "GetCommitments() -> json commitment log",
	"GetCollateral":     "GetCollateral() -> json locked pools and total",
	"GetEvents":         "GetEvents(sinceSeq string) -> json event log",
	"SubmitMint":        "SubmitMint(request json) -> json receipt",
	"SubmitTransfer":    "SubmitTransfer(request json) -> json receipt",
	"SubmitRedeem":      "SubmitRedeem(request json) -> json receipt",
	"GetSnapshot":       "GetSnapshot() -> json full state snapshot",
	"VerifyState":       "VerifyState(expected json) -> json match flag and delta",
}

// Functions lists every RPC method with a one-line signature.
func (h *LedgerRPCHandler) Functions(req []string, res *string) error {
	*res = ""
	maxKeyLen := 0
	for k := range MethodDescriptionMap {
		if len(k) > maxKeyLen {
			maxKeyLen = len(k)
		}
	}
	format := fmt.Sprintf("%%-%ds: %%s\n", maxKeyLen)
	for k, v := range MethodDescriptionMap {
		*res += fmt.Sprintf(format, k, v)
	}
	return nil
}

// GetVersion returns the build commit hash.
//
// Parameters: none
//
// Returns:
// - string: short git commit of the build
//
// Example curl call:
// curl -X POST http://localhost:8378 -H "Content-Type: application/json" -d '{"jsonrpc":"1.0","method":"GetVersion","params":[],"id":1}'
func (h *LedgerRPCHandler) GetVersion(req []string, res *string) error {
	*res = common.GetCommitHash()
	return nil
}

// ===== Ledger & Tree State =====

// GetLedgerInfo returns the ledger configuration and current tree state
//
// Parameters: none
//
// Returns:
// - string: JSON object with configuration and state
//
// RPC Docs (GetLedgerInfo):
// Request: {"jsonrpc":"1.0","id":1,"method":"GetLedgerInfo","params":[]}
// Response: {"result":{"asset":"0x...","amountMode":"public","depth":20,"capacity":1048576,"treeSize":42,"merkleRoot":"0x..."}}
//
// Example curl call:
// curl -X POST http://localhost:8378 -H "Content-Type: application/json" -d '{"jsonrpc":"1.0","method":"GetLedgerInfo","params":[],"id":1}'
func (h *LedgerRPCHandler) GetLedgerInfo(req []string, res *string) error {
	log.Info(log.RPCMonitoring, "GetLedgerInfo")

	cfg := h.ledger.Config()
	roots := h.ledger.StateRoots()

	info := LedgerInfo{
		Asset:         cfg.Asset.Hex(),
		Issuer:        cfg.Issuer.Hex(),
		AmountMode:    cfg.AmountMode.String(),
		TransferArity: cfg.TransferArity.String(),
		Depth:         cfg.Depth,
		Capacity:      uint64(1) << cfg.Depth,
		TreeSize:      roots.TreeSize,
		MerkleRoot:    roots.MerkleRoot.Hex(),
		Version:       common.GetCommitHash(),
	}
	if cfg.Denomination != nil {
		info.Denomination = cfg.Denomination.Dec()
	}

	jsonBytes, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to marshal ledger info: %v", err)
	}

	*res = string(jsonBytes)
	log.Debug(log.RPCMonitoring, "GetLedgerInfo: Returning ledger info", "treeSize", roots.TreeSize)
	return nil
}

// GetStateRoots returns the commitment tree root, nullifier set root and
// collateral total that together fingerprint the ledger state
//
// Parameters: none
//
// Returns:
// - string: JSON object with roots and counters
//
// RPC Docs (GetStateRoots):
// Request: {"jsonrpc":"1.0","id":1,"method":"GetStateRoots","params":[]}
// Response: {"result":{"merkleRoot":"0x...","treeSize":42,"nullifierRoot":"0x...","nullifierCount":7,"collateralTotal":"40"}}
//
// Example curl call:
// curl -X POST http://localhost:8378 -H "Content-Type: application/json" -d '{"jsonrpc":"1.0","method":"GetStateRoots","params":[],"id":1}'
func (h *LedgerRPCHandler) GetStateRoots(req []string, res *string) error {
	log.Info(log.RPCMonitoring, "GetStateRoots")

	roots := h.ledger.StateRoots()
	jsonBytes, err := json.Marshal(roots)
	if err != nil {
		return fmt.Errorf("failed to marshal state roots: %v", err)
	}

	*res = string(jsonBytes)
	log.Debug(log.RPCMonitoring, "GetStateRoots: Returning roots", "root", common.Str(roots.MerkleRoot))
	return nil
}

// GetMerkleRoot returns the current commitment tree root
//
// Parameters: none
//
// Returns:
// - string: root as hex string
//
// RPC Docs (GetMerkleRoot):
// Request: {"jsonrpc":"1.0","id":1,"method":"GetMerkleRoot","params":[]}
// Response: {"result":"0x2e16..."}
//
// Example curl call:
// curl -X POST http://localhost:8378 -H "Content-Type: application/json" -d '{"jsonrpc":"1.0","method":"GetMerkleRoot","params":[],"id":1}'
func (h *LedgerRPCHandler) GetMerkleRoot(req []string, res *string) error {
	log.Info(log.RPCMonitoring, "GetMerkleRoot")

	*res = h.ledger.MerkleRoot().Hex()
	log.Debug(log.RPCMonitoring, "GetMerkleRoot: Returning root", "root", *res)
	return nil
}

// GetNextIndex returns the leaf index the next commitment will take
//
// Parameters: none
//
// Returns:
// - string: decimal leaf index
//
// RPC Docs (GetNextIndex):
// Request: {"jsonrpc":"1.0","id":1,"method":"GetNextIndex","params":[]}
// Response: {"result":"42"}
//
// Example curl call:
// curl -X POST http://localhost:8378 -H "Content-Type: application/json" -d '{"jsonrpc":"1.0","method":"GetNextIndex","params":[],"id":1}'
func (h *LedgerRPCHandler) GetNextIndex(req []string, res *string) error {
	log.Info(log.RPCMonitoring, "GetNextIndex")

	*res = fmt.Sprintf("%d", h.ledger.NextIndex())
	return nil
}

// CommitmentExists reports whether a commitment is present in the tree
//
// Parameters:
// - commitment (hexstring): 32-byte commitment
//
// Returns:
// - string: "true" or "false"
//
// RPC Docs (CommitmentExists):
// Request: {"jsonrpc":"1.0","id":1,"method":"CommitmentExists","params":["0xabc..."]}
// Response: {"result":"true"}
//
// Example curl call:
// curl -X POST http://localhost:8378 -H "Content-Type: application/json" -d '{"jsonrpc":"1.0","method":"CommitmentExists","params":["0xabc..."],"id":1}'
func (h *LedgerRPCHandler) CommitmentExists(req []string, res *string) error {
	if len(req) != 1 {
		return fmt.Errorf("invalid number of arguments: expected 1, got %d", len(req))
	}
	commitment := common.HexToHash(req[0])

	log.Info(log.RPCMonitoring, "CommitmentExists", "commitment", common.Str(commitment))

	*res = strconv.FormatBool(h.ledger.CommitmentExists(commitment))
	return nil
}

// IsNullifierSpent reports whether a nullifier has been consumed
//
// Parameters:
// - nullifier (hexstring): 32-byte nullifier hash
//
// Returns:
// - string: "true" or "false"
//
// RPC Docs (IsNullifierSpent):
// Request: {"jsonrpc":"1.0","id":1,"method":"IsNullifierSpent","params":["0xdef..."]}
// Response: {"result":"false"}
//
// Example curl call:
// curl -X POST http://localhost:8378 -H "Content-Type: application/json" -d '{"jsonrpc":"1.0","method":"IsNullifierSpent","params":["0xdef..."],"id":1}'
func (h *LedgerRPCHandler) IsNullifierSpent(req []string, res *string) error {
	if len(req) != 1 {
		return fmt.Errorf("invalid number of arguments: expected 1, got %d", len(req))
	}
	nullifier := common.HexToHash(req[0])

	log.Info(log.RPCMonitoring, "IsNullifierSpent", "nullifier", common.Str(nullifier))

	*res = strconv.FormatBool(h.ledger.IsNullifierSpent(nullifier))
	return nil
}

// GetWitness returns the Merkle inclusion proof for a leaf position
//
// Parameters:
// - index (string): decimal leaf index
//
// Returns:
// - string: JSON object with position, leaf, sibling path and root
//
// RPC Docs (GetWitness):
// Request: {"jsonrpc":"1.0","id":1,"method":"GetWitness","params":["3"]}
// Response: {"result":{"position":3,"leaf":"0x...","path":["0x...","0x..."],"root":"0x..."}}
//
// Example curl call:
// curl -X POST http://localhost:8378 -H "Content-Type: application/json" -d '{"jsonrpc":"1.0","method":"GetWitness","params":["3"],"id":1}'
func (h *LedgerRPCHandler) GetWitness(req []string, res *string) error {
	if len(req) != 1 {
		return fmt.Errorf("invalid number of arguments: expected 1, got %d", len(req))
	}
	index, err := strconv.ParseUint(req[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid index parameter: %v", err)
	}

	log.Info(log.RPCMonitoring, "GetWitness", "index", index)

	witness, err := h.ledger.Witness(index)
	if err != nil {
		return err
	}
	leaf, err := h.ledger.Leaf(index)
	if err != nil {
		return err
	}

	response := WitnessResponse{
		Position: witness.Position,
		Leaf:     leaf,
		Path:     witness.Path,
		Root:     h.ledger.MerkleRoot(),
	}

	jsonBytes, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("failed to marshal witness: %v", err)
	}

	*res = string(jsonBytes)
	log.Debug(log.RPCMonitoring, "GetWitness: Returning witness", "index", index, "pathLen", len(witness.Path))
	return nil
}

// GetNullifierProof returns a sparse-tree absence proof for an unspent
// nullifier. Spent nullifiers are refused; use IsNullifierSpent first.
//
// Parameters:
// - nullifier (hexstring): 32-byte nullifier hash
//
// Returns:
// - string: JSON object with leaf, siblings, position and root
//
// RPC Docs (GetNullifierProof):
// Request: {"jsonrpc":"1.0","id":1,"method":"GetNullifierProof","params":["0xdef..."]}
// Response: {"result":{"position":123,"leaf":"0x...","siblings":["0x..."],"root":"0x..."}}
//
// Example curl call:
// curl -X POST http://localhost:8378 -H "Content-Type: application/json" -d '{"jsonrpc":"1.0","method":"GetNullifierProof","params":["0xdef..."],"id":1}'
func (h *LedgerRPCHandler) GetNullifierProof(req []string, res *string) error {
	if len(req) != 1 {
		return fmt.Errorf("invalid number of arguments: expected 1, got %d", len(req))
	}
	nullifier := common.HexToHash(req[0])

	log.Info(log.RPCMonitoring, "GetNullifierProof", "nullifier", common.Str(nullifier))

	proof, err := h.ledger.NullifierAbsenceProof(nullifier)
	if err != nil {
		return err
	}

	siblings := make([]common.Hash, len(proof.Siblings))
	for i, s := range proof.Siblings {
		siblings[i] = common.BytesToHash(s[:])
	}
	response := AbsenceResponse{
		Position: proof.Position,
		Leaf:     common.BytesToHash(proof.Leaf[:]),
		Siblings: siblings,
		Root:     common.BytesToHash(proof.Root[:]),
	}

	jsonBytes, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("failed to marshal absence proof: %v", err)
	}

	*res = string(jsonBytes)
	return nil
}

// GetCommitments returns the full commitment log in leaf order
//
// Parameters: none
//
// Returns:
// - string: JSON array of {index, commitment, payload}
//
// RPC Docs (GetCommitments):
// Request: {"jsonrpc":"1.0","id":1,"method":"GetCommitments","params":[]}
// Response: {"result":[{"index":0,"commitment":"0x...","payload":"0x..."}]}
//
// Example curl call:
// curl -X POST http://localhost:8378 -H "Content-Type: application/json" -d '{"jsonrpc":"1.0","method":"GetCommitments","params":[],"id":1}'
func (h *LedgerRPCHandler) GetCommitments(req []string, res *string) error {
	log.Info(log.RPCMonitoring, "GetCommitments")

	entries, err := h.ledger.Commitments()
	if err != nil {
		return fmt.Errorf("failed to list commitments: %v", err)
	}

	jsonBytes, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to marshal commitments: %v", err)
	}

	*res = string(jsonBytes)
	log.Debug(log.RPCMonitoring, "GetCommitments: Returning commitments", "count", len(entries))
	return nil
}

// GetCollateral returns the locked collateral pools and their total
//
// Parameters: none
//
// Returns:
// - string: JSON object with pool entries and the summed total
//
// RPC Docs (GetCollateral):
// Request: {"jsonrpc":"1.0","id":1,"method":"GetCollateral","params":[]}
// Response: {"result":{"pools":[{"asset":"0x...","issuer":"0x...","locked":"40"}],"total":"40"}}
//
// Example curl call:
// curl -X POST http://localhost:8378 -H "Content-Type: application/json" -d '{"jsonrpc":"1.0","method":"GetCollateral","params":[],"id":1}'
func (h *LedgerRPCHandler) GetCollateral(req []string, res *string) error {
	log.Info(log.RPCMonitoring, "GetCollateral")

	pools := h.ledger.Locked()
	roots := h.ledger.StateRoots()

	result := CollateralResponse{
		Pools: pools,
		Total: roots.CollateralTotal,
	}

	jsonBytes, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal collateral: %v", err)
	}

	*res = string(jsonBytes)
	log.Debug(log.RPCMonitoring, "GetCollateral: Returning pools", "count", len(pools))
	return nil
}

// GetEvents returns persisted ledger events from a sequence number on
//
// Parameters:
// - sinceSeq (string): decimal sequence; events with seq >= sinceSeq are returned
//
// Returns:
// - string: JSON array of events
//
// RPC Docs (GetEvents):
// Request: {"jsonrpc":"1.0","id":1,"method":"GetEvents","params":["1"]}
// Response: {"result":[{"seq":1,"kind":"collateral_locked","commitment":"0x..."}]}
//
// Example curl call:
// curl -X POST http://localhost:8378 -H "Content-Type: application/json" -d '{"jsonrpc":"1.0","method":"GetEvents","params":["1"],"id":1}'
func (h *LedgerRPCHandler) GetEvents(req []string, res *string) error {
	if len(req) != 1 {
		return fmt.Errorf("invalid number of arguments: expected 1, got %d", len(req))
	}
	sinceSeq, err := strconv.ParseUint(req[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid sinceSeq parameter: %v", err)
	}

	log.Info(log.RPCMonitoring, "GetEvents", "sinceSeq", sinceSeq)

	evs, err := h.ledger.Events(sinceSeq)
	if err != nil {
		return fmt.Errorf("failed to read events: %v", err)
	}

	jsonBytes, err := json.Marshal(evs)
	if err != nil {
		return fmt.Errorf("failed to marshal events: %v", err)
	}

	*res = string(jsonBytes)
	log.Debug(log.RPCMonitoring, "GetEvents: Returning events", "count", len(evs))
	return nil
}

// ===== State Transitions =====

// SubmitMint verifies a deposit proof and inserts the commitment
//
// Parameters:
// - request (json): {"commitment","nullifierHash","amount","encryptedPayload","proof"}
//
// Returns:
// - string: JSON receipt {"commitment","index","merkleRoot"}
//
// RPC Docs (SubmitMint):
// Request: {"jsonrpc":"1.0","id":1,"method":"SubmitMint","params":["{\"commitment\":\"0x...\",...}"]}
// Response: {"result":{"commitment":"0x...","index":42,"merkleRoot":"0x..."}}
//
// Example curl call:
// curl -X POST http://localhost:8378 -H "Content-Type: application/json" -d '{"jsonrpc":"1.0","method":"SubmitMint","params":[{"commitment":"0x...","nullifierHash":"0x...","amount":"40","proof":{...}}],"id":1}'
func (h *LedgerRPCHandler) SubmitMint(req []string, res *string) error {
	if len(req) != 1 {
		return fmt.Errorf("invalid number of arguments: expected 1, got %d", len(req))
	}

	var mintReq ledger.MintRequest
	if err := json.Unmarshal([]byte(req[0]), &mintReq); err != nil {
		return fmt.Errorf("invalid mint request: %v", err)
	}

	log.Info(log.RPCMonitoring, "SubmitMint", "commitment", common.Str(mintReq.Commitment))

	receipt, err := h.ledger.Mint(mintReq)
	if err != nil {
		return err
	}

	jsonBytes, err := json.Marshal(receipt)
	if err != nil {
		return fmt.Errorf("failed to marshal mint receipt: %v", err)
	}

	*res = string(jsonBytes)
	log.Debug(log.RPCMonitoring, "SubmitMint: Committed", "index", receipt.Index)
	return nil
}

// SubmitTransfer spends input notes and inserts output notes atomically
//
// Parameters:
// - request (json): {"inputNullifiers","outputCommitments","merkleRoot","encryptedPayloads","proof"}
//
// Returns:
// - string: JSON receipt {"indices","merkleRoot"}
//
// RPC Docs (SubmitTransfer):
// Request: {"jsonrpc":"1.0","id":1,"method":"SubmitTransfer","params":["{\"inputNullifiers\":[...],...}"]}
// Response: {"result":{"indices":[42,43],"merkleRoot":"0x..."}}
//
// Example curl call:
// curl -X POST http://localhost:8378 -H "Content-Type: application/json" -d '{"jsonrpc":"1.0","method":"SubmitTransfer","params":[{"inputNullifiers":["0x..."],"outputCommitments":["0x..."],"merkleRoot":"0x...","encryptedPayloads":["0x"],"proof":{...}}],"id":1}'
func (h *LedgerRPCHandler) SubmitTransfer(req []string, res *string) error {
	if len(req) != 1 {
		return fmt.Errorf("invalid number of arguments: expected 1, got %d", len(req))
	}

	var transferReq ledger.TransferRequest
	if err := json.Unmarshal([]byte(req[0]), &transferReq); err != nil {
		return fmt.Errorf("invalid transfer request: %v", err)
	}

	log.Info(log.RPCMonitoring, "SubmitTransfer",
		"inputs", len(transferReq.InputNullifiers), "outputs", len(transferReq.OutputCommitments))

	receipt, err := h.ledger.Transfer(transferReq)
	if err != nil {
		return err
	}

	jsonBytes, err := json.Marshal(receipt)
	if err != nil {
		return fmt.Errorf("failed to marshal transfer receipt: %v", err)
	}

	*res = string(jsonBytes)
	log.Debug(log.RPCMonitoring, "SubmitTransfer: Committed", "indices", receipt.Indices)
	return nil
}

// SubmitRedeem spends one note and releases collateral to the recipient
//
// Parameters:
// - request (json): {"nullifier","recipient","amount","commitment","merkleRoot","proof"}
//
// Returns:
// - string: JSON receipt {"nullifier","recipient","amount"}
//
// RPC Docs (SubmitRedeem):
// Request: {"jsonrpc":"1.0","id":1,"method":"SubmitRedeem","params":["{\"nullifier\":\"0x...\",...}"]}
// Response: {"result":{"nullifier":"0x...","recipient":"0x...","amount":"40"}}
//
// Example curl call:
// curl -X POST http://localhost:8378 -H "Content-Type: application/json" -d '{"jsonrpc":"1.0","method":"SubmitRedeem","params":[{"nullifier":"0x...","recipient":"0x...","amount":"40","commitment":"0x...","merkleRoot":"0x...","proof":{...}}],"id":1}'
func (h *LedgerRPCHandler) SubmitRedeem(req []string, res *string) error {
	if len(req) != 1 {
		return fmt.Errorf("invalid number of arguments: expected 1, got %d", len(req))
	}

	var redeemReq ledger.RedeemRequest
	if err := json.Unmarshal([]byte(req[0]), &redeemReq); err != nil {
		return fmt.Errorf("invalid redeem request: %v", err)
	}

	log.Info(log.RPCMonitoring, "SubmitRedeem", "nullifier", common.Str(redeemReq.Nullifier))

	receipt, err := h.ledger.Redeem(redeemReq)
	if err != nil {
		return err
	}

	jsonBytes, err := json.Marshal(receipt)
	if err != nil {
		return fmt.Errorf("failed to marshal redeem receipt: %v", err)
	}

	*res = string(jsonBytes)
	log.Debug(log.RPCMonitoring, "SubmitRedeem: Committed", "nullifier", common.Str(redeemReq.Nullifier))
	return nil
}

// ===== State Verification =====

// GetSnapshot returns the full ledger state as canonical JSON
//
// Parameters: none
//
// Returns:
// - string: JSON snapshot of roots, commitments, nullifiers and collateral
//
// RPC Docs (GetSnapshot):
// Request: {"jsonrpc":"1.0","id":1,"method":"GetSnapshot","params":[]}
// Response: {"result":{"stateRoots":{...},"commitments":[...],"nullifiers":[...],"collateral":[...]}}
//
// Example curl call:
// curl -X POST http://localhost:8378 -H "Content-Type: application/json" -d '{"jsonrpc":"1.0","method":"GetSnapshot","params":[],"id":1}'
func (h *LedgerRPCHandler) GetSnapshot(req []string, res *string) error {
	log.Info(log.RPCMonitoring, "GetSnapshot")

	snap, err := h.ledger.Snapshot()
	if err != nil {
		return fmt.Errorf("failed to snapshot ledger: %v", err)
	}

	*res = string(snap)
	return nil
}

// VerifyState diffs an expected snapshot against the live state
//
// Parameters:
// - expected (json): snapshot to compare, as returned by GetSnapshot
//
// Returns:
// - string: JSON object {"match":bool,"delta":string}
//
// RPC Docs (VerifyState):
// Request: {"jsonrpc":"1.0","id":1,"method":"VerifyState","params":["{\"stateRoots\":{...}}"]}
// Response: {"result":{"match":false,"delta":" {\n-  \"treeSize\": 2\n+  \"treeSize\": 3\n"}}
//
// Example curl call:
// curl -X POST http://localhost:8378 -H "Content-Type: application/json" -d '{"jsonrpc":"1.0","method":"VerifyState","params":[{"stateRoots":{},"commitments":[]}],"id":1}'
func (h *LedgerRPCHandler) VerifyState(req []string, res *string) error {
	if len(req) != 1 {
		return fmt.Errorf("invalid number of arguments: expected 1, got %d", len(req))
	}

	log.Info(log.RPCMonitoring, "VerifyState")

	actual, err := h.ledger.Snapshot()
	if err != nil {
		return fmt.Errorf("failed to snapshot ledger: %v", err)
	}
	delta, match := ledger.CompareSnapshots([]byte(req[0]), actual)

	result := VerifyResponse{Match: match, Delta: delta}
	jsonBytes, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal verification result: %v", err)
	}

	*res = string(jsonBytes)
	log.Debug(log.RPCMonitoring, "VerifyState: Compared snapshots", "match", match)
	return nil
}
