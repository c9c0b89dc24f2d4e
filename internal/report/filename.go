package report

import (
	"path/filepath"
	"strings"
)

const fallbackName = "video"

// SanitizeFilename reduces an uploaded name to a safe base name: ASCII letters,
// digits, dot, dash and underscore, with spaces turned into underscores and no
// leading dots. It never returns an empty string.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('_')
		}
	}

	out := strings.TrimLeft(b.String(), ".")
	if out == "" || strings.Trim(out, "._-") == "" {
		return fallbackName
	}
	return out
}
