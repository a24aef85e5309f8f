package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix leaves room for algorithm migration.
const (
	DomainParams = "sieve/params/v1"
	DomainRun    = "sieve/run/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ParamsHash fingerprints a scrubbed parameter set. Equal parameter sets
// hash equally regardless of key order or Unicode composition.
func ParamsHash(params IRObject) (string, error) {
	canonical, err := MarshalCanonical(params)
	if err != nil {
		return "", fmt.Errorf("ParamsHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainParams, canonical), nil
}

// RunFingerprint identifies the logical content of a query run: which
// definition ran against which parameters, and which operations fired.
func RunFingerprint(definition string, params IRObject, invoked []string) (string, error) {
	ops := make(IRArray, len(invoked))
	for i, op := range invoked {
		ops[i] = IRString(op)
	}
	obj := IRObject{
		"definition": IRString(definition),
		"params":     params,
		"invoked":    ops,
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("RunFingerprint: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainRun, canonical), nil
}

// MustParamsHash is like ParamsHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustParamsHash(params IRObject) string {
	h, err := ParamsHash(params)
	if err != nil {
		panic(err)
	}
	return h
}
