package ledger

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/holiman/uint256"

	"github.com/SiddharthManjul/DiffiChain/common"
	"github.com/SiddharthManjul/DiffiChain/merkle"
)

// AmountMode selects how note values are disclosed to the ledger.
type AmountMode uint8

const (
	// AmountPublic: mint and redeem requests carry the amount in the clear
	// and the deposit nullifier hash is revealed at mint.
	AmountPublic AmountMode = iota
	// AmountDenominated: every note is worth the chain-wide denomination and
	// amounts never appear in requests.
	AmountDenominated
)

func (m AmountMode) String() string {
	switch m {
	case AmountPublic:
		return "public"
	case AmountDenominated:
		return "denominated"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(m))
	}
}

// ParseAmountMode maps the CLI flag values onto an AmountMode.
func ParseAmountMode(s string) (AmountMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "public":
		return AmountPublic, nil
	case "denominated":
		return AmountDenominated, nil
	default:
		return 0, fmt.Errorf("unknown amount mode %q", s)
	}
}

func (m AmountMode) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(m.String())), nil
}

func (m *AmountMode) UnmarshalJSON(data []byte) error {
	s, err := strconv.Unquote(string(data))
	if err != nil {
		return err
	}
	parsed, err := ParseAmountMode(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// TransferArity fixes the transfer shape to exactly Inputs spends and
// Outputs fresh notes. The zero value permits any k, m >= 1 per request,
// with the variable public-input ordering.
type TransferArity struct {
	Inputs  int `json:"inputs"`
	Outputs int `json:"outputs"`
}

// TwoByTwo is the classic fixed 2-in/2-out transfer shape.
var TwoByTwo = TransferArity{Inputs: 2, Outputs: 2}

// Fixed reports whether the arity is pinned.
func (a TransferArity) Fixed() bool {
	return a.Inputs > 0 && a.Outputs > 0
}

func (a TransferArity) String() string {
	if !a.Fixed() {
		return "variable"
	}
	return fmt.Sprintf("%dx%d", a.Inputs, a.Outputs)
}

// ParseTransferArity accepts "variable" or a "KxM" shape such as "2x2".
func ParseTransferArity(s string) (TransferArity, error) {
	trimmed := strings.ToLower(strings.TrimSpace(s))
	if trimmed == "variable" || trimmed == "" {
		return TransferArity{}, nil
	}
	parts := strings.Split(trimmed, "x")
	if len(parts) != 2 {
		return TransferArity{}, fmt.Errorf("unknown transfer arity %q", s)
	}
	inputs, err := strconv.Atoi(parts[0])
	if err != nil {
		return TransferArity{}, fmt.Errorf("unknown transfer arity %q", s)
	}
	outputs, err := strconv.Atoi(parts[1])
	if err != nil {
		return TransferArity{}, fmt.Errorf("unknown transfer arity %q", s)
	}
	if inputs < 1 || outputs < 1 {
		return TransferArity{}, fmt.Errorf("transfer arity %q needs k, m >= 1", s)
	}
	return TransferArity{Inputs: inputs, Outputs: outputs}, nil
}

// Config fixes the ledger's shape at construction. None of it changes at
// runtime.
type Config struct {
	Depth         uint8          `json:"depth"`
	Asset         common.Address `json:"asset"`
	Issuer        common.Address `json:"issuer"`
	AmountMode    AmountMode     `json:"amountMode"`
	Denomination  *uint256.Int   `json:"denomination,omitempty"`
	TransferArity TransferArity  `json:"transferArity"`
}

func (cfg *Config) validate() error {
	if cfg.Depth == 0 {
		cfg.Depth = merkle.DefaultTreeDepth
	}
	if cfg.Depth > merkle.MaxTreeDepth {
		return fmt.Errorf("tree depth %d exceeds maximum %d", cfg.Depth, merkle.MaxTreeDepth)
	}
	if cfg.AmountMode == AmountDenominated && (cfg.Denomination == nil || cfg.Denomination.IsZero()) {
		return fmt.Errorf("denominated mode needs a positive denomination")
	}
	if cfg.AmountMode == AmountPublic && cfg.Denomination != nil && !cfg.Denomination.IsZero() {
		return fmt.Errorf("denomination is only meaningful in denominated mode")
	}
	if (cfg.TransferArity.Inputs > 0) != (cfg.TransferArity.Outputs > 0) {
		return fmt.Errorf("transfer arity must fix both sides or neither")
	}
	return nil
}
