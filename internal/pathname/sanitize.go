// Package pathname turns article titles into directory and file names that are
// valid on Windows as well as POSIX filesystems.
package pathname

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/JakeFAU/article-binder/internal/binder"
)

// MaxLength bounds a sanitized name, in runes.
const MaxLength = 255

// DefaultName replaces names that sanitize to nothing.
const DefaultName = "default_filename"

var (
	invalidChars = regexp.MustCompile(`[\\/:*?"<>|]`)
	dotRuns      = regexp.MustCompile(`\.+`)
	reserved     = buildReserved()
)

func buildReserved() map[string]struct{} {
	names := []string{"CON", "PRN", "AUX", "NUL"}
	for i := 0; i < 10; i++ {
		names = append(names, fmt.Sprintf("COM%d", i), fmt.Sprintf("LPT%d", i))
	}
	out := make(map[string]struct{}, len(names))
	for _, n := range names {
		out[n] = struct{}{}
	}
	return out
}

// Sanitize normalizes name to NFKD, replaces characters Windows rejects with
// replacement, trims surrounding spaces and dots, collapses dot runs and caps
// the length. Reserved device names are rejected.
func Sanitize(name, replacement string) (string, error) {
	cleaned := invalidChars.ReplaceAllString(norm.NFKD.String(name), replacement)
	cleaned = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, cleaned)

	if _, ok := reserved[strings.ToUpper(cleaned)]; ok {
		return "", fmt.Errorf("%w: reserved file name %q", binder.ErrPrecondition, cleaned)
	}

	cleaned = strings.Trim(cleaned, " .")
	cleaned = dotRuns.ReplaceAllString(cleaned, ".")

	if runes := []rune(cleaned); len(runes) > MaxLength {
		cleaned = strings.TrimRight(string(runes[:MaxLength]), " .")
	}
	if cleaned == "" {
		return DefaultName, nil
	}
	return cleaned, nil
}
