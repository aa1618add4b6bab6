// Package store persists ledger state in leveldb. Key layout:
//
//	cm_%020d                        32-byte commitment, key is the leaf index
//	pl_%020d                        encrypted payload bytes for that index
//	nf_<hex32>                      8-byte big-endian sequence at spend time
//	col_<asset-hex20>_<issuer-hex20> 32-byte big-endian locked balance
//	ev_%020d                        JSON event record, key is the event seq
//
// Indices and sequences are fixed-width decimal, so leveldb's key order is
// insertion order and listings need no sorting pass.
package store

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/holiman/uint256"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/SiddharthManjul/DiffiChain/common"
	"github.com/SiddharthManjul/DiffiChain/events"
)

// CommitmentEntry is a stored commitment with its leaf index and the payload
// the sender attached, if any.
type CommitmentEntry struct {
	Index      uint64          `json:"index"`
	Commitment common.Hash     `json:"commitment"`
	Payload    common.HexBytes `json:"payload,omitempty"`
}

// NullifierEntry is a spent nullifier and the event sequence it spent at.
type NullifierEntry struct {
	Nullifier common.Hash `json:"nullifier"`
	Seq       uint64      `json:"seq"`
}

// CollateralEntry is one persisted collateral pool balance.
type CollateralEntry struct {
	Asset  common.Address `json:"asset"`
	Issuer common.Address `json:"issuer"`
	Locked *uint256.Int   `json:"locked"`
}

// LedgerStore persists commitments, nullifiers, collateral balances and the
// event log.
type LedgerStore struct {
	db *leveldb.DB
}

// Open opens or creates the store at path. An empty path opens a throwaway
// in-memory backend, used by the demo flow and tests.
func Open(path string) (*LedgerStore, error) {
	var (
		db  *leveldb.DB
		err error
	)
	if path == "" {
		db, err = leveldb.Open(storage.NewMemStorage(), nil)
	} else {
		db, err = leveldb.OpenFile(path, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("open ledger store: %w", err)
	}
	return &LedgerStore{db: db}, nil
}

// AddCommitment stores a commitment at the given leaf index, together with
// its payload when one was attached. Both keys land in one write batch.
func (s *LedgerStore) AddCommitment(index uint64, commitment common.Hash, payload []byte) error {
	batch := new(leveldb.Batch)
	batch.Put(commitmentKey(index), commitment.Bytes())
	if len(payload) > 0 {
		batch.Put(payloadKey(index), payload)
	}
	return s.db.Write(batch, nil)
}

// DeleteCommitment removes a commitment and its payload (used for rollback).
func (s *LedgerStore) DeleteCommitment(index uint64) error {
	batch := new(leveldb.Batch)
	batch.Delete(commitmentKey(index))
	batch.Delete(payloadKey(index))
	return s.db.Write(batch, nil)
}

// GetCommitment returns the commitment at index, reporting absence without
// error.
func (s *LedgerStore) GetCommitment(index uint64) (common.Hash, bool, error) {
	value, err := s.db.Get(commitmentKey(index), nil)
	if err == leveldb.ErrNotFound {
		return common.Hash{}, false, nil
	}
	if err != nil {
		return common.Hash{}, false, err
	}
	if len(value) != 32 {
		return common.Hash{}, false, fmt.Errorf("commitment %d: corrupt value length %d", index, len(value))
	}
	return common.BytesToHash(value), true, nil
}

// GetPayload returns the encrypted payload stored for a leaf index.
func (s *LedgerStore) GetPayload(index uint64) ([]byte, bool, error) {
	value, err := s.db.Get(payloadKey(index), nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, true, nil
}

// AddNullifier records a nullifier as spent at the given event sequence.
func (s *LedgerStore) AddNullifier(nullifier common.Hash, seq uint64) error {
	var value [8]byte
	binary.BigEndian.PutUint64(value[:], seq)
	return s.db.Put(nullifierKey(nullifier), value[:], nil)
}

// DeleteNullifier removes a nullifier entry (used for rollback).
func (s *LedgerStore) DeleteNullifier(nullifier common.Hash) error {
	return s.db.Delete(nullifierKey(nullifier), nil)
}

// HasNullifier checks whether a nullifier has been recorded, returning the
// sequence it spent at.
func (s *LedgerStore) HasNullifier(nullifier common.Hash) (uint64, bool, error) {
	value, err := s.db.Get(nullifierKey(nullifier), nil)
	if err == leveldb.ErrNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	if len(value) != 8 {
		return 0, false, fmt.Errorf("nullifier %s: corrupt value length %d", common.Str(nullifier), len(value))
	}
	return binary.BigEndian.Uint64(value), true, nil
}

// PutCollateral writes the locked balance for one (asset, issuer) pool.
func (s *LedgerStore) PutCollateral(asset, issuer common.Address, locked *uint256.Int) error {
	value := locked.Bytes32()
	return s.db.Put(collateralKey(asset, issuer), value[:], nil)
}

// GetCollateral returns the persisted balance for one pool.
func (s *LedgerStore) GetCollateral(asset, issuer common.Address) (*uint256.Int, bool, error) {
	value, err := s.db.Get(collateralKey(asset, issuer), nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if len(value) != 32 {
		return nil, false, fmt.Errorf("collateral %s/%s: corrupt value length %d", asset.Hex(), issuer.Hex(), len(value))
	}
	return new(uint256.Int).SetBytes(value), true, nil
}

// AppendEvent persists one event record under its sequence number.
func (s *LedgerStore) AppendEvent(ev events.Event) error {
	encoded, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event %d: %w", ev.Seq, err)
	}
	return s.db.Put(eventKey(ev.Seq), encoded, nil)
}

// DeleteEvent removes one event record (used for rollback).
func (s *LedgerStore) DeleteEvent(seq uint64) error {
	return s.db.Delete(eventKey(seq), nil)
}

// ListCommitments returns all stored commitments in leaf order.
func (s *LedgerStore) ListCommitments() ([]CommitmentEntry, error) {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(commitmentPrefix)), nil)
	defer iter.Release()

	entries := make([]CommitmentEntry, 0)
	for iter.Next() {
		index, err := parseIndexKey(commitmentPrefix, string(iter.Key()))
		if err != nil {
			return nil, err
		}
		if len(iter.Value()) != 32 {
			return nil, fmt.Errorf("commitment %d: corrupt value length %d", index, len(iter.Value()))
		}
		entry := CommitmentEntry{
			Index:      index,
			Commitment: common.BytesToHash(iter.Value()),
		}
		payload, ok, err := s.GetPayload(index)
		if err != nil {
			return nil, err
		}
		if ok {
			entry.Payload = payload
		}
		entries = append(entries, entry)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	return entries, nil
}

// ListNullifiers returns all recorded nullifiers with their spend sequences.
func (s *LedgerStore) ListNullifiers() ([]NullifierEntry, error) {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(nullifierPrefix)), nil)
	defer iter.Release()

	entries := make([]NullifierEntry, 0)
	for iter.Next() {
		nullifier, err := parseNullifierKey(string(iter.Key()))
		if err != nil {
			return nil, err
		}
		if len(iter.Value()) != 8 {
			return nil, fmt.Errorf("nullifier %s: corrupt value length %d", common.Str(nullifier), len(iter.Value()))
		}
		entries = append(entries, NullifierEntry{
			Nullifier: nullifier,
			Seq:       binary.BigEndian.Uint64(iter.Value()),
		})
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	return entries, nil
}

// ListCollateral returns every persisted pool balance.
func (s *LedgerStore) ListCollateral() ([]CollateralEntry, error) {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(collateralPrefix)), nil)
	defer iter.Release()

	entries := make([]CollateralEntry, 0)
	for iter.Next() {
		asset, issuer, err := parseCollateralKey(string(iter.Key()))
		if err != nil {
			return nil, err
		}
		if len(iter.Value()) != 32 {
			return nil, fmt.Errorf("collateral key %s: corrupt value length %d", iter.Key(), len(iter.Value()))
		}
		entries = append(entries, CollateralEntry{
			Asset:  asset,
			Issuer: issuer,
			Locked: new(uint256.Int).SetBytes(iter.Value()),
		})
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	return entries, nil
}

// Events returns every event with Seq >= sinceSeq, in sequence order.
func (s *LedgerStore) Events(sinceSeq uint64) ([]events.Event, error) {
	prefixRange := util.BytesPrefix([]byte(eventPrefix))
	iter := s.db.NewIterator(&util.Range{Start: eventKey(sinceSeq), Limit: prefixRange.Limit}, nil)
	defer iter.Release()

	out := make([]events.Event, 0)
	for iter.Next() {
		var ev events.Event
		if err := json.Unmarshal(iter.Value(), &ev); err != nil {
			return nil, fmt.Errorf("decode event %s: %w", iter.Key(), err)
		}
		out = append(out, ev)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	return out, nil
}

// LastEventSeq returns the highest persisted event sequence, if any.
func (s *LedgerStore) LastEventSeq() (uint64, bool, error) {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(eventPrefix)), nil)
	defer iter.Release()
	if !iter.Last() {
		return 0, false, iter.Error()
	}
	seq, err := parseIndexKey(eventPrefix, string(iter.Key()))
	if err != nil {
		return 0, false, err
	}
	return seq, true, nil
}

// Close closes the underlying database.
func (s *LedgerStore) Close() error {
	return s.db.Close()
}

const (
	commitmentPrefix = "cm_"
	payloadPrefix    = "pl_"
	nullifierPrefix  = "nf_"
	collateralPrefix = "col_"
	eventPrefix      = "ev_"
)

func commitmentKey(index uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", commitmentPrefix, index))
}

func payloadKey(index uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", payloadPrefix, index))
}

func nullifierKey(nullifier common.Hash) []byte {
	return []byte(fmt.Sprintf("%s%s", nullifierPrefix, hex.EncodeToString(nullifier.Bytes())))
}

func collateralKey(asset, issuer common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s_%s", collateralPrefix,
		hex.EncodeToString(asset.Bytes()), hex.EncodeToString(issuer.Bytes())))
}

func eventKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", eventPrefix, seq))
}

func parseIndexKey(prefix, key string) (uint64, error) {
	if !strings.HasPrefix(key, prefix) {
		return 0, fmt.Errorf("invalid %s key %q", prefix, key)
	}
	return strconv.ParseUint(strings.TrimPrefix(key, prefix), 10, 64)
}

func parseNullifierKey(key string) (common.Hash, error) {
	raw := strings.TrimPrefix(key, nullifierPrefix)
	decoded, err := hex.DecodeString(raw)
	if err != nil || len(decoded) != 32 {
		return common.Hash{}, fmt.Errorf("invalid nullifier key %q", key)
	}
	return common.BytesToHash(decoded), nil
}

func parseCollateralKey(key string) (common.Address, common.Address, error) {
	raw := strings.TrimPrefix(key, collateralPrefix)
	parts := strings.Split(raw, "_")
	if len(parts) != 2 {
		return common.Address{}, common.Address{}, fmt.Errorf("invalid collateral key %q", key)
	}
	asset, err := hex.DecodeString(parts[0])
	if err != nil || len(asset) != 20 {
		return common.Address{}, common.Address{}, fmt.Errorf("invalid collateral key %q", key)
	}
	issuer, err := hex.DecodeString(parts[1])
	if err != nil || len(issuer) != 20 {
		return common.Address{}, common.Address{}, fmt.Errorf("invalid collateral key %q", key)
	}
	return common.BytesToAddress(asset), common.BytesToAddress(issuer), nil
}
