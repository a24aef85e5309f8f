package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParamsHashDeterminism(t *testing.T) {
	params := IRObject{"name": IRString("Rex"), "age": IRInt(4)}

	h1, err := ParamsHash(params)
	require.NoError(t, err)
	h2, err := ParamsHash(IRObject{"age": IRInt(4), "name": IRString("Rex")})
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64, "SHA-256 hex is 64 characters")
}

func TestParamsHashChangesWithContent(t *testing.T) {
	a := MustParamsHash(IRObject{"name": IRString("Rex")})
	b := MustParamsHash(IRObject{"name": IRString("Max")})
	assert.NotEqual(t, a, b)
}

func TestDomainSeparation(t *testing.T) {
	data := []byte("{}")
	assert.NotEqual(t, hashWithDomain(DomainParams, data), hashWithDomain(DomainRun, data))
}

func TestRunFingerprint(t *testing.T) {
	params := IRObject{"name": IRString("Rex")}

	a, err := RunFingerprint("accounts", params, []string{"named"})
	require.NoError(t, err)
	b, err := RunFingerprint("accounts", params, []string{})
	require.NoError(t, err)
	c, err := RunFingerprint("users", params, []string{"named"})
	require.NoError(t, err)

	assert.NotEqual(t, a, b, "invoked operations are part of the fingerprint")
	assert.NotEqual(t, a, c, "definition is part of the fingerprint")
}

func TestParamsHashRejectsNull(t *testing.T) {
	_, err := ParamsHash(IRObject{"a": IRNull{}})
	assert.Error(t, err)

	assert.Panics(t, func() { MustParamsHash(IRObject{"a": IRNull{}}) })
}
