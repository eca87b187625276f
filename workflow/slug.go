// ABOUTME: Slug derivation for proposal filenames: lowercase, hyphenated, length-capped.
// ABOUTME: Slugify is idempotent: slugifying a slug yields the same slug.
package workflow

import (
	"strings"
	"unicode"
)

// MaxSlugLen caps derived slugs at 50 characters.
const MaxSlugLen = 50

// Slugify reduces a topic title to a filesystem-safe slug: lowercased,
// every run of non-alphanumeric characters collapsed to a single hyphen,
// leading/trailing hyphens trimmed, capped at MaxSlugLen. Titles with no
// alphanumeric content fall back to "untitled".
func Slugify(title string) string {
	var b strings.Builder
	lastHyphen := true // suppress a leading hyphen
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) && r < 128 || unicode.IsDigit(r) && r < 128 {
			b.WriteRune(r)
			lastHyphen = false
		} else if !lastHyphen {
			b.WriteByte('-')
			lastHyphen = true
		}
	}
	slug := strings.Trim(b.String(), "-")
	if len(slug) > MaxSlugLen {
		slug = strings.Trim(slug[:MaxSlugLen], "-")
	}
	if slug == "" {
		return "untitled"
	}
	return slug
}
