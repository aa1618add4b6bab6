package dcerrors

import (
	"errors"
	"strings"
)

// Structural (S) Errors
var (
	ErrSInvalidArrayLength = errors.New("S1|InvalidArrayLength: Submit a transfer whose nullifier, commitment or payload arrays are empty or mismatched.")
	ErrSInvalidCommitment  = errors.New("S2|InvalidCommitment: Submit a request carrying a zero-valued commitment, nullifier or missing required field.")
)

// State Conflict (C) Errors
var (
	ErrCCommitmentAlreadyExists = errors.New("C1|CommitmentAlreadyExists: Submit a commitment already present in the commitment tree.")
	ErrCNullifierAlreadySpent   = errors.New("C2|NullifierAlreadySpent: Submit a nullifier that has already been revealed by an earlier spend.")
	ErrCInvalidMerkleRoot       = errors.New("C3|InvalidMerkleRoot: Submit a proof bound to a Merkle root that is not the current tree root.")
)

// Proof (P) Errors
var (
	ErrPInvalidProof = errors.New("P1|InvalidProof: Proof verification failed for the supplied public inputs.")
)

// Resource (R) Errors
var (
	ErrRTreeFull               = errors.New("R1|TreeFull: The commitment tree has reached its 2^depth capacity.")
	ErrRInsufficientCollateral = errors.New("R2|InsufficientCollateral: Release exceeds the locked collateral for the asset and issuer.")
	ErrRUnauthorizedIssuer     = errors.New("R3|UnauthorizedIssuer: Caller is not the registered issuer for the asset.")
)

// Custody (X) Errors
var (
	ErrXTransferFailed = errors.New("X1|TransferFailed: The custody collaborator rejected or failed the asset transfer.")
)

// GetErrorName extracts the error name from the error message.
func GetErrorName(err error) string {
	if err == nil {
		return "No Error"
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "|") || !strings.Contains(errStr, ":") {
		return errStr
	}
	parts := strings.SplitN(errStr, "|", 2)
	if len(parts) < 2 {
		return errStr
	}
	nameDesc := parts[1]
	// Split on ':' to separate the error name from its description.
	nameParts := strings.SplitN(nameDesc, ":", 2)
	if len(nameParts) < 1 {
		return errStr
	}
	return strings.TrimSpace(nameParts[0])
}

func GetErrorNames(errs []error) []string {
	errStrs := make([]string, len(errs))
	for i, err := range errs {
		errStrs[i] = GetErrorName(err)
	}
	return errStrs
}

// GetErrorCode extracts the error code from the error message.
func GetErrorCode(err error) string {
	if err == nil {
		return ""
	}
	errStr := err.Error()
	// Check if the error string contains '|'.
	if !strings.Contains(errStr, "|") {
		return ""
	}
	parts := strings.SplitN(errStr, "|", 2)
	return strings.TrimSpace(parts[0])
}

// GetErrorCodeWithName returns the error code and name in the format "Code_ErrorName".
func GetErrorCodeWithName(err error) string {
	code := GetErrorCode(err)
	name := GetErrorName(err)
	if code == "" || name == "" {
		return ""
	}
	return code + "_" + name
}

// GetErrorDesc extracts the error description from the error message.
func GetErrorDesc(err error) string {
	if err == nil {
		return ""
	}
	errStr := err.Error()
	parts := strings.SplitN(errStr, ":", 2)
	if len(parts) < 2 {
		return "DESC NOT SET"
	}
	return strings.TrimSpace(parts[1])
}
