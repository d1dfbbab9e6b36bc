// Package keys provides cache key normalization and glob pattern translation.
//
// Every key that enters the cache passes through Normalize exactly once at the
// service boundary; the local and remote tiers both index by the normalized form.
// Normalization is total (defined for every input string) and idempotent, so
// re-normalizing an already-normalized key is a no-op.
package keys

import (
	"regexp"
	"strings"
)

// Normalize maps an arbitrary caller-supplied string to a canonical cache key.
//
// Rules:
//   - ASCII letters are lowered
//   - letters, digits, and the characters ':', '_', '-', '*' and '?' pass through
//   - everything else (including whitespace and non-ASCII bytes) becomes '_'
//
// ':' is kept for namespacing (e.g. "user:42"), and the glob metacharacters
// '*' and '?' are kept so invalidation patterns survive normalization.
func Normalize(key string) string {
	var b strings.Builder
	b.Grow(len(key))

	for i := 0; i < len(key); i++ {
		c := key[i]
		switch {
		case c >= 'A' && c <= 'Z':
			b.WriteByte(c + ('a' - 'A'))
		case (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9'):
			b.WriteByte(c)
		case c == ':' || c == '_' || c == '-' || c == '*' || c == '?':
			b.WriteByte(c)
		default:
			b.WriteByte('_')
		}
	}

	return b.String()
}

// PatternToRegexp translates a glob-style pattern into an anchored regular
// expression: '*' matches any run of characters, '?' matches a single
// character, and every other character matches literally.
//
// This is the single translation point between the remote tier's glob
// matching (SCAN MATCH) and the local tier's in-process matching.
func PatternToRegexp(pattern string) (*regexp.Regexp, error) {
	quoted := regexp.QuoteMeta(pattern)
	quoted = strings.ReplaceAll(quoted, `\*`, `.*`)
	quoted = strings.ReplaceAll(quoted, `\?`, `.`)
	return regexp.Compile("^" + quoted + "$")
}
