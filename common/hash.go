package common

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"
)

// ComputeHash computes the BLAKE2b hash of the given data
func ComputeHash(data []byte) []byte {
	hash := blake2b.Sum256(data)
	return hash[:]
}

func Blake2Hash(data []byte) Hash {
	return BytesToHash(ComputeHash(data))
}

// Keccak256 is the commitment tree node hash: parents are
// Keccak256(left || right).
func Keccak256(data []byte) Hash {
	hash := sha3.NewLegacyKeccak256()
	hash.Write(data)
	h := hash.Sum(nil)
	return BytesToHash(h)
}

// HashPair hashes two sibling nodes into their parent.
func HashPair(left, right Hash) Hash {
	buf := make([]byte, 0, 64)
	buf = append(buf, left.Bytes()...)
	buf = append(buf, right.Bytes()...)
	return Keccak256(buf)
}

func Uint64ToBytes(val uint64) []byte {
	bytes := make([]byte, 8)
	binary.LittleEndian.PutUint64(bytes, val)
	return bytes
}

func BytesToUint64(data []byte) uint64 {
	if len(data) < 8 {
		panic("BytesToUint64: byte slice too short")
	}
	return binary.LittleEndian.Uint64(data)
}

// Uint64ToBytesBE is the big-endian form used for persisted sequence
// numbers, where lexicographic key order must follow numeric order.
func Uint64ToBytesBE(val uint64) []byte {
	bytes := make([]byte, 8)
	binary.BigEndian.PutUint64(bytes, val)
	return bytes
}

func BytesToUint64BE(data []byte) uint64 {
	if len(data) < 8 {
		panic("BytesToUint64BE: byte slice too short")
	}
	return binary.BigEndian.Uint64(data)
}

func IsNilHash(h Hash) bool {
	return h == Hash{}
}
