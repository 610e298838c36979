package nostrdb

import "encoding/hex"

// decodeFixedHex decodes s into a byte slice of exactly n bytes, failing
// if s is not valid hex or decodes to a different length (spec §4.B
// "InvalidEvent (hex decode of id/pubkey/sig produced wrong length or
// non-hex)").
func decodeFixedHex(s string, n int) ([]byte, bool) {
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != n {
		return nil, false
	}
	return b, true
}

// decodePrefixHex decodes a hex string expected to represent a byte
// prefix of at most maxLen bytes (spec §4.D: "byte prefixes, 1-32 bytes
// long"). Returns false for invalid hex, odd-length strings, an empty
// string, or a decoded length outside [1, maxLen].
func decodePrefixHex(s string, maxLen int) ([]byte, bool) {
	if s == "" {
		return nil, false
	}
	b, err := hex.DecodeString(s)
	if err != nil || len(b) == 0 || len(b) > maxLen {
		return nil, false
	}
	return b, true
}
