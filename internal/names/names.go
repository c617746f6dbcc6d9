// Package names maps user-supplied deck, folder and story names to key
// segments that are safe to embed in object storage keys.
package names

import "strings"

// MaxLen is the maximum length of a sanitized name.
const MaxLen = 50

func safe(r rune) bool {
	return r >= 'a' && r <= 'z' ||
		r >= 'A' && r <= 'Z' ||
		r >= '0' && r <= '9' ||
		r == '_' || r == '-'
}

// Sanitize restricts name to [A-Za-z0-9_-], collapsing every run of other
// characters into a single underscore and truncating to MaxLen. The result
// is deterministic and idempotent, which is what makes upsert-by-name
// against the index documents work. An empty result means the input had no
// usable characters and must be treated as a validation failure by the
// caller.
func Sanitize(name string) string {
	name = strings.TrimSpace(name)
	var b strings.Builder
	b.Grow(len(name))
	pendingSep := false
	for _, r := range name {
		if safe(r) {
			b.WriteRune(r)
			pendingSep = false
			continue
		}
		if !pendingSep {
			b.WriteByte('_')
			pendingSep = true
		}
	}
	s := b.String()
	if len(s) > MaxLen {
		s = s[:MaxLen]
	}
	return s
}

// TTSSegment derives the key segment for a TTS audio blob from its source
// text. Unlike Sanitize it replaces each unsafe character one-for-one and
// strips leading/trailing underscores, falling back to "tts" so the key is
// never empty.
func TTSSegment(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if safe(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	s := strings.Trim(b.String(), "_")
	if s == "" {
		return "tts"
	}
	return s
}
