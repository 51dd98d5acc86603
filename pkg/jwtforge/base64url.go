package jwtforge

import (
	"encoding/base64"
	"strings"
)

// Base64URLEncode encodes data as unpadded base64url, per RFC 7515 §2.
func Base64URLEncode(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

// Base64URLDecode decodes unpadded (or padded) base64url text.
func Base64URLDecode(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}
