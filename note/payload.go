package note

import (
	"fmt"
	"io"

	"golang.org/x/crypto/blake2b"
)

const payloadNonceSize = 16

// SealPayload encrypts plaintext under a shared key with a blake2b mask
// chain. Demo-grade sealing for payloads travelling next to commitments;
// the ledger stores and republishes sealed bytes without inspecting them.
func SealPayload(key [32]byte, plaintext []byte, rng io.Reader) ([]byte, error) {
	nonce := make([]byte, payloadNonceSize)
	if _, err := io.ReadFull(rng, nonce); err != nil {
		return nil, fmt.Errorf("drawing payload nonce: %w", err)
	}

	sealed := make([]byte, payloadNonceSize+len(plaintext))
	copy(sealed, nonce)
	xorStream(key, nonce, plaintext, sealed[payloadNonceSize:])
	return sealed, nil
}

// OpenPayload reverses SealPayload under the same key.
func OpenPayload(key [32]byte, sealed []byte) ([]byte, error) {
	if len(sealed) < payloadNonceSize {
		return nil, fmt.Errorf("sealed payload too short: %d bytes", len(sealed))
	}
	out := make([]byte, len(sealed)-payloadNonceSize)
	xorStream(key, sealed[:payloadNonceSize], sealed[payloadNonceSize:], out)
	return out, nil
}

// xorStream XORs src into dst under the mask chain
// mask_0 = blake2b(key || nonce), mask_{i+1} = blake2b(mask_i).
func xorStream(key [32]byte, nonce []byte, src, dst []byte) {
	mask := blake2b.Sum256(append(key[:], nonce...))
	for i := 0; i < len(src); i++ {
		if i > 0 && i%32 == 0 {
			mask = blake2b.Sum256(mask[:])
		}
		dst[i] = src[i] ^ mask[i%32]
	}
}
