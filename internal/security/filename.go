// Package security holds input hardening helpers for untrusted names.
package security

import (
	"path"
	"strings"
)

const maxFilenameLen = 128

// SanitizeFilename makes a safe base filename from an arbitrary client
// supplied name. Directory components are dropped, characters outside
// ASCII letters, digits, dot, underscore and dash become a single
// underscore, and the result is capped at 128 bytes. Names that reduce to
// nothing yield fallback.
func SanitizeFilename(s, fallback string) string {
	s = path.Base(strings.ReplaceAll(s, `\`, "/"))
	if s == "." || s == "/" || s == ".." {
		return fallback
	}

	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxFilenameLen {
			break
		}
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'),
			r == '.' || r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		case r == '_':
			if !lastUnderscore {
				b.WriteRune(r)
			}
			lastUnderscore = true
		default:
			if !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		}
	}

	out := strings.Trim(b.String(), "._")
	if out == "" {
		return fallback
	}
	return out
}
