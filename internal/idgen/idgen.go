// Package idgen produces the prefixed opaque ids spec.md §3 uses for
// ContentItem (content_…) and ChatSession (sess_…): a stable prefix plus 21
// URL-safe characters. Entropy comes from google/uuid (already the
// teacher's id source) rather than a second random source.
package idgen

import (
	"encoding/base64"

	"github.com/google/uuid"
)

const idLength = 21

// New returns prefix + "_" + 21 url-safe characters derived from the raw
// bytes of two fresh UUIDv4s (base64url alphabet, same as the teacher's other
// opaque-token encodings).
func New(prefix string) string {
	a := uuid.New()
	b := uuid.New()
	raw := append(a[:], b[:]...)
	enc := base64.RawURLEncoding.EncodeToString(raw)
	if len(enc) > idLength {
		enc = enc[:idLength]
	}
	return prefix + "_" + enc
}
