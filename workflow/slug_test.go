// ABOUTME: Tests for Slugify covering ASCII folding, hyphen collapsing, and length capping.
// ABOUTME: Gopter properties pin idempotence and the output alphabet.
package workflow

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"simple", "Hello World", "hello-world"},
		{"punctuation collapsed", "Go: The Good Parts!", "go-the-good-parts"},
		{"leading and trailing junk", "  --Topic--  ", "topic"},
		{"consecutive separators", "a   b---c", "a-b-c"},
		{"digits kept", "Top 10 Ideas for 2026", "top-10-ideas-for-2026"},
		{"non-ascii dropped", "café résumé", "caf-r-sum"},
		{"empty", "", "untitled"},
		{"only junk", "!!! ???", "untitled"},
		{"exactly at cap", strings.Repeat("a", MaxSlugLen), strings.Repeat("a", MaxSlugLen)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Slugify(tt.input); got != tt.want {
				t.Errorf("Slugify(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSlugifyCapDoesNotLeaveTrailingHyphen(t *testing.T) {
	// A hyphen falls exactly on the cut point.
	input := strings.Repeat("a", MaxSlugLen-1) + " bcd"
	got := Slugify(input)
	if len(got) > MaxSlugLen {
		t.Fatalf("len(%q) = %d, want <= %d", got, len(got), MaxSlugLen)
	}
	if strings.HasSuffix(got, "-") {
		t.Errorf("Slugify(%q) = %q ends with hyphen", input, got)
	}
}

func TestSlugifyProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("idempotent", prop.ForAll(
		func(s string) bool {
			once := Slugify(s)
			return Slugify(once) == once
		},
		gen.AnyString(),
	))

	properties.Property("output stays in the slug alphabet", prop.ForAll(
		func(s string) bool {
			slug := Slugify(s)
			if slug == "" || len(slug) > MaxSlugLen {
				return false
			}
			for i := 0; i < len(slug); i++ {
				c := slug[i]
				ok := (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '-'
				if !ok {
					return false
				}
			}
			return !strings.HasPrefix(slug, "-") && !strings.HasSuffix(slug, "-")
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
