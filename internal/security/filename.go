// Package security sanitises user-supplied names before they reach the
// filesystem.
package security

import "strings"

// maxFilenameLen bounds sanitised names.
const maxFilenameLen = 128

// SanitizeFilename makes a safe file name from an arbitrary run name. Runes
// other than ASCII letters, digits, dot, underscore and dash become a single
// underscore, leading and trailing dots and underscores are trimmed, and an
// empty result is "unknown".
func SanitizeFilename(s string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxFilenameLen {
			break
		}
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'),
			r == '.', r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
