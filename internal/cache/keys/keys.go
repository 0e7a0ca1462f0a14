// Package keys composes result cache keys from request coordinates.
package keys

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

// version prefix; bump when the payload shape changes incompatibly
const version = "v1"

// Key builds the cache key for (network, dashboard, window) plus optional
// dashboard params. Params text is normalized and embedded in sanitized,
// length-bounded form together with an xxhash of the normalized text, so
// equivalent spellings share one key.
func Key(network, dashboard, window, params string) string {
	base := fmt.Sprintf("%s:%s:%s:%s",
		version,
		sanitizeSegment(strings.TrimSpace(network)),
		sanitizeSegment(strings.TrimSpace(dashboard)),
		sanitizeSegment(strings.TrimSpace(window)))

	if strings.TrimSpace(params) == "" {
		return base
	}

	paramText := normalizeParams(params)
	paramSafe := sanitizeForKey(paramText)

	const maxParamTextLen = 80
	if len(paramSafe) > maxParamTextLen {
		paramSafe = paramSafe[:maxParamTextLen]
	}

	sum := xxhash.Sum64String(paramText)
	return fmt.Sprintf("%s:params=%s:p=%016x", base, paramSafe, sum)
}

// Prefix covers every window/params variant of (network, dashboard); used by
// invalidation to drop a dashboard's entries wholesale.
func Prefix(network, dashboard string) string {
	return fmt.Sprintf("%s:%s:%s:",
		version,
		sanitizeSegment(strings.TrimSpace(network)),
		sanitizeSegment(strings.TrimSpace(dashboard)))
}

// NetworkPrefix covers every entry for a network.
func NetworkPrefix(network string) string {
	return fmt.Sprintf("%s:%s:", version, sanitizeSegment(strings.TrimSpace(network)))
}

func normalizeParams(s string) string {
	if s == "" {
		return ""
	}
	s = collapseASCIIWhitespace(strings.TrimSpace(s))
	// Remove spaces around these punctuation tokens.
	re := regexp.MustCompile(`\s*([=&,])\s*`)
	return re.ReplaceAllString(s, "$1")
}

func sanitizeForKey(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))

	var prev rune
	for _, r := range s {
		out := rune(0)
		switch {
		case isASCIIWhitespace(r):
			out = '_'
		case isAlphaNum(r) || r == '_' || r == '-' || r == '=' || r == '&':
			out = r
		default:
			// Any other rune (including non-ASCII) becomes '-'
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func sanitizeSegment(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	for _, r := range s {
		out := rune(0)
		switch {
		case isASCIIWhitespace(r):
			out = '_'
		case isAlphaNum(r) || r == '_' || r == '-':
			out = r
		default:
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

// converts any run of ASCII whitespace to a single space.
func collapseASCIIWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	wasWS := false
	for _, r := range s {
		if isASCIIWhitespace(r) {
			if !wasWS {
				b.WriteByte(' ')
				wasWS = true
			}
			continue
		}
		b.WriteRune(r)
		wasWS = false
	}
	return strings.TrimSpace(b.String())
}

func isASCIIWhitespace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f'
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		unicode.IsDigit(r)
}
