package util

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SanitizeText strips bytes that Postgres text columns reject, especially
// NUL from PDF extractors, while keeping normal whitespace.
func SanitizeText(s string) string {
	if s == "" {
		return s
	}
	s = strings.ReplaceAll(s, "\x00", "")
	out := make([]rune, 0, len(s))
	for _, ch := range s {
		if ch == '\n' || ch == '\r' || ch == '\t' {
			out = append(out, ch)
			continue
		}
		if ch < 0x20 {
			continue
		}
		out = append(out, ch)
	}
	return strings.TrimSpace(string(out))
}

func SHA256Hex(b []byte) string {
	x := sha256.Sum256(b)
	return hex.EncodeToString(x[:])
}
