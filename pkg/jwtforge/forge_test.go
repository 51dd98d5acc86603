package jwtforge

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleCompactToken(t *testing.T) string {
	t.Helper()
	header := Base64URLEncode([]byte(`{"alg":"RS256","typ":"JWT"}`))
	claims := Base64URLEncode([]byte(`{"iss":"https://idp.example","sub":"user-1","exp":9999999999}`))
	return header + "." + claims + ".c2lnbmF0dXJl"
}

func TestParseRoundTrip(t *testing.T) {
	t.Parallel()
	compact := sampleCompactToken(t)

	tok, err := Parse(compact)
	require.NoError(t, err)
	assert.Equal(t, "RS256", tok.Alg())
	assert.Equal(t, "user-1", tok.Claims["sub"])

	emitted, err := tok.Emit()
	require.NoError(t, err)

	reparsed, err := Parse(emitted)
	require.NoError(t, err)
	assert.Equal(t, tok.Header, reparsed.Header)
	assert.Equal(t, tok.Claims, reparsed.Claims)
	assert.Equal(t, tok.Signature, reparsed.Signature)
}

func TestParseRejectsWrongSegmentCount(t *testing.T) {
	t.Parallel()
	_, err := Parse("only.two")
	require.ErrorIs(t, err, ErrMalformedToken)
}

func TestParseRejectsInvalidHeaderJSON(t *testing.T) {
	t.Parallel()
	bad := Base64URLEncode([]byte("not json")) + "." + Base64URLEncode([]byte("{}")) + ".sig"
	_, err := Parse(bad)
	require.ErrorIs(t, err, ErrMalformedToken)
}

func TestParseRejectsMissingAlg(t *testing.T) {
	t.Parallel()
	bad := Base64URLEncode([]byte(`{"typ":"JWT"}`)) + "." + Base64URLEncode([]byte("{}")) + ".sig"
	_, err := Parse(bad)
	require.ErrorIs(t, err, ErrMalformedToken)
}

func TestEmitNoneAlgHasEmptyThirdSegment(t *testing.T) {
	t.Parallel()
	tok, err := Parse(sampleCompactToken(t))
	require.NoError(t, err)

	require.NoError(t, tok.Sign(NoneAlgorithm, nil))
	emitted, err := tok.Emit()
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(emitted, "."))
	parts := strings.Split(emitted, ".")
	require.Len(t, parts, 3)
	assert.Empty(t, parts[2])
}

func TestSignHS256(t *testing.T) {
	t.Parallel()
	tok := Create(map[string]any{"alg": "HS256", "typ": "JWT"}, map[string]any{"sub": "user-1"})
	require.NoError(t, tok.Sign("HS256", []byte("super-secret-key-material")))
	assert.Equal(t, "HS256", tok.Alg())
	assert.NotEmpty(t, tok.Signature)

	emitted, err := tok.Emit()
	require.NoError(t, err)
	parts := strings.Split(emitted, ".")
	require.Len(t, parts, 3)
	assert.NotEmpty(t, parts[2])
}

func TestSignRS256WithPrivateKey(t *testing.T) {
	t.Parallel()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tok := Create(map[string]any{"alg": "RS256"}, map[string]any{"sub": "user-1"})
	require.NoError(t, tok.Sign("RS256", key))
	assert.NotEmpty(t, tok.Signature)
}

func TestSignWithIssuerKeyConfusion(t *testing.T) {
	t.Parallel()
	tok := Create(map[string]any{"alg": "RS256"}, map[string]any{"sub": "user-1"})
	require.NoError(t, tok.SignWithIssuerKeyConfusion("-----BEGIN PUBLIC KEY-----\nfakefakefake\n-----END PUBLIC KEY-----\n"))
	assert.Equal(t, "HS256", tok.Alg())
	assert.NotEmpty(t, tok.Signature)
}

func TestMutationsArePreservedThroughEmit(t *testing.T) {
	t.Parallel()
	tok, err := Parse(sampleCompactToken(t))
	require.NoError(t, err)

	tok.Claims["iss"] = nil
	tok.Claims["aud"] = []string{"https://attacker.com"}

	emitted, err := tok.Emit()
	require.NoError(t, err)
	reparsed, err := Parse(strings.Replace(emitted, ".c2lnbmF0dXJl", ".c2lnbmF0dXJl", 1))
	require.NoError(t, err)

	assert.Nil(t, reparsed.Claims["iss"])
	var auds []any
	b, _ := json.Marshal(reparsed.Claims["aud"])
	require.NoError(t, json.Unmarshal(b, &auds))
	assert.Equal(t, "https://attacker.com", auds[0])
}

func TestDecodeDocument(t *testing.T) {
	t.Parallel()
	doc, err := DecodeDocument([]byte(`{"issuer":"https://idp.example"}`))
	require.NoError(t, err)
	assert.Equal(t, "https://idp.example", doc["issuer"])
}
