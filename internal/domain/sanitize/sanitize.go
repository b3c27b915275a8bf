// Package sanitize implements the secret sanitizer: masking of
// credential-like substrings in log text while preserving their shape
// (prefix + length class) so the surrounding diagnostic text stays
// readable. The built-in family taxonomy covers the credential shapes
// seen in CI logs (GitHub PATs, AWS keys, PEM headers, bearer tokens,
// credentialed URLs, JWTs).
package sanitize

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"

	"golang.org/x/text/unicode/norm"
)

// family is one credential pattern in the built-in set.
type family struct {
	name string
	re   *regexp.Regexp
}

// builtinFamilies is compiled once at process start ("regex
// compilation is done once at process start").
var builtinFamilies = mustCompileBuiltins()

func mustCompileBuiltins() []family {
	specs := []struct {
		name    string
		pattern string
	}{
		{"github_pat", `\bgh[pousr]_[A-Za-z0-9]{20,}\b`},
		{"aws_access_key", `\bAKIA[0-9A-Z]{16}\b`},
		{"aws_secret_key", `(?i)aws_secret_access_key["'=:\s]+[A-Za-z0-9/+=]{40}`},
		{"bearer_token", `(?i)bearer\s+[A-Za-z0-9\-._~+/]+=*`},
		{"authorization_header", `(?i)authorization:\s*\S+`},
		{"generic_api_key", `(?i)(api[_-]?key|apikey|x-api-key)["'=:\s]+[A-Za-z0-9\-_]{16,}`},
		{"password_field", `(?i)(password|passwd|pwd)["'=:\s]+\S+`},
		{"pem_private_key", `-----BEGIN [A-Z ]*PRIVATE KEY-----[\s\S]*?-----END [A-Z ]*PRIVATE KEY-----`},
		{"url_userinfo", `[a-zA-Z][a-zA-Z0-9+.\-]*://[^\s/:@]+:[^\s/:@]+@[^\s]+`},
		{"jwt", `\bey[A-Za-z0-9_-]+\.ey[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\b`},
		{"slack_token", `\bxox[baprs]-[A-Za-z0-9-]{10,}\b`},
	}
	out := make([]family, 0, len(specs))
	for _, s := range specs {
		re, err := regexp.Compile(s.pattern)
		if err != nil {
			// A malformed built-in is a programming error, not a runtime
			// condition; skip it rather than panic so the rest still run.
			continue
		}
		out = append(out, family{name: s.name, re: re})
	}
	return out
}

// Sanitizer holds the active regex family, either the built-in set or a
// caller-validated override: "a malformed user-supplied regex is
// rejected at load with a reported error and the built-in set is used."
type Sanitizer struct {
	families []family
}

// New returns a Sanitizer using the built-in credential family set.
func New() *Sanitizer {
	return &Sanitizer{families: builtinFamilies}
}

// NewWithExtra returns a Sanitizer using the built-in set plus caller
// patterns. Patterns that fail to compile are reported in the returned
// error slice and excluded; the built-in set is always used regardless.
func NewWithExtra(extra map[string]string) (*Sanitizer, []error) {
	var errs []error
	out := append([]family{}, builtinFamilies...)
	for name, pattern := range extra {
		re, err := regexp.Compile(pattern)
		if err != nil {
			errs = append(errs, fmt.Errorf("sanitize: user pattern %q rejected: %w", name, err))
			continue
		}
		out = append(out, family{name: name, re: re})
	}
	return &Sanitizer{families: out}, errs
}

// Sanitize masks every credential-like substring in text with a
// shape-preserving marker. It is pure and idempotent:
// Sanitize(Sanitize(x)) == Sanitize(x).
func (s *Sanitizer) Sanitize(text string) string {
	nfc := norm.NFC.String(text)
	out := []byte(nfc)
	for _, f := range s.families {
		out = f.re.ReplaceAllFunc(out, func(match []byte) []byte {
			if isAlreadyMasked(match) {
				return match
			}
			return []byte(mask(f.name, match))
		})
	}
	return string(out)
}

const maskPrefix = "***MASKED"

// mask produces a shape-preserving marker: the family name, a length
// class bucket, and a short content hash so repeated identical secrets
// collapse to the same marker (useful for fingerprinting / dedup), without
// ever reproducing the original bytes.
func mask(familyName string, original []byte) string {
	class := lengthClass(len(original))
	sum := sha256.Sum256(original)
	return fmt.Sprintf("%s:%s:%s:%s***", maskPrefix, familyName, class, hex.EncodeToString(sum[:])[:8])
}

func isAlreadyMasked(b []byte) bool {
	return len(b) >= len(maskPrefix) && string(b[:len(maskPrefix)]) == maskPrefix
}

func lengthClass(n int) string {
	switch {
	case n <= 16:
		return "short"
	case n <= 64:
		return "medium"
	default:
		return "long"
	}
}
