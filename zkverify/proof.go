package zkverify

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/SiddharthManjul/DiffiChain/dcerrors"
)

// ProofEncodedSize is the fixed wire size of a proof: eight 32-byte
// big-endian coordinates (A.X, A.Y, B.X0, B.X1, B.Y0, B.Y1, C.X, C.Y).
const ProofEncodedSize = 256

// G1Point is an affine BN254 G1 point in raw coordinate form.
type G1Point struct {
	X *big.Int
	Y *big.Int
}

// G2Point is an affine BN254 G2 point. Each coordinate is an Fp2 element
// given as its (A0, A1) pair.
type G2Point struct {
	X [2]*big.Int
	Y [2]*big.Int
}

// Proof carries the three Groth16 proof points in coordinate form, the shape
// proofs take in RPC requests. Reassembly into curve points and all validity
// checking happen in the verifier.
type Proof struct {
	A G1Point `json:"a"`
	B G2Point `json:"b"`
	C G1Point `json:"c"`
}

func (p G1Point) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		X string `json:"x"`
		Y string `json:"y"`
	}{bigToHex(p.X), bigToHex(p.Y)})
}

func (p *G1Point) UnmarshalJSON(data []byte) error {
	var raw struct {
		X string `json:"x"`
		Y string `json:"y"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	x, err := hexToBig(raw.X)
	if err != nil {
		return err
	}
	y, err := hexToBig(raw.Y)
	if err != nil {
		return err
	}
	p.X, p.Y = x, y
	return nil
}

func (p G2Point) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		X [2]string `json:"x"`
		Y [2]string `json:"y"`
	}{
		[2]string{bigToHex(p.X[0]), bigToHex(p.X[1])},
		[2]string{bigToHex(p.Y[0]), bigToHex(p.Y[1])},
	})
}

func (p *G2Point) UnmarshalJSON(data []byte) error {
	var raw struct {
		X [2]string `json:"x"`
		Y [2]string `json:"y"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for i := 0; i < 2; i++ {
		x, err := hexToBig(raw.X[i])
		if err != nil {
			return err
		}
		y, err := hexToBig(raw.Y[i])
		if err != nil {
			return err
		}
		p.X[i], p.Y[i] = x, y
	}
	return nil
}

// Bytes encodes the proof into its fixed 256-byte wire form.
func (p *Proof) Bytes() []byte {
	out := make([]byte, 0, ProofEncodedSize)
	for _, v := range p.coordinates() {
		out = append(out, beBytes32(v)...)
	}
	return out
}

// ProofFromBytes decodes the fixed 256-byte wire form.
func ProofFromBytes(data []byte) (*Proof, error) {
	if len(data) != ProofEncodedSize {
		return nil, dcerrors.ErrSInvalidArrayLength
	}
	word := func(i int) *big.Int {
		return new(big.Int).SetBytes(data[i*32 : (i+1)*32])
	}
	return &Proof{
		A: G1Point{X: word(0), Y: word(1)},
		B: G2Point{
			X: [2]*big.Int{word(2), word(3)},
			Y: [2]*big.Int{word(4), word(5)},
		},
		C: G1Point{X: word(6), Y: word(7)},
	}, nil
}

func (p *Proof) coordinates() []*big.Int {
	return []*big.Int{
		p.A.X, p.A.Y,
		p.B.X[0], p.B.X[1], p.B.Y[0], p.B.Y[1],
		p.C.X, p.C.Y,
	}
}

// wellFormed reports whether every coordinate is present and fits a word.
// Curve membership is checked separately on reassembly.
func (p *Proof) wellFormed() bool {
	for _, v := range p.coordinates() {
		if v == nil || v.Sign() < 0 || v.BitLen() > 256 {
			return false
		}
	}
	return true
}

func bigToHex(v *big.Int) string {
	if v == nil {
		return "0x0"
	}
	return "0x" + v.Text(16)
}

func hexToBig(s string) (*big.Int, error) {
	trimmed := strings.TrimPrefix(s, "0x")
	if trimmed == "" {
		return nil, fmt.Errorf("empty coordinate %q", s)
	}
	v, ok := new(big.Int).SetString(trimmed, 16)
	if !ok {
		return nil, fmt.Errorf("malformed coordinate %q", s)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("negative coordinate %q", s)
	}
	return v, nil
}

func beBytes32(v *big.Int) []byte {
	out := make([]byte, 32)
	if v == nil || v.Sign() < 0 || v.BitLen() > 256 {
		return out
	}
	v.FillBytes(out)
	return out
}
