package model

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeTitle canonicalizes a wiki title for use as a visited-set or
// dedupe key: NFC unicode normalization, underscores collapsed to spaces
// (the MediaWiki URL convention), surrounding whitespace trimmed, and any
// "Category:" prefix stripped.
func NormalizeTitle(title string) string {
	t := norm.NFC.String(title)
	t = strings.ReplaceAll(t, "_", " ")
	t = strings.TrimSpace(t)
	t = strings.TrimPrefix(t, "Category:")
	return strings.TrimSpace(t)
}
