package context

import (
	"math"
	"regexp"

	"golang.org/x/text/unicode/norm"
)

// secretPattern pairs a regex against a fixed replacement token. Patterns
// with a capture group preserve the "key=" / "key:" prefix and redact only
// the value; single-match patterns (cloud access key IDs, GitHub tokens)
// redact the whole match.
type secretPattern struct {
	re          *regexp.Regexp
	hasPrefix   bool
	replacement string
}

var secretPatterns = []secretPattern{
	{regexp.MustCompile(`(?i)(api[_-]?key\s*[=:]\s*)([A-Za-z0-9_\-]{8,})`), true, "[REDACTED]"},
	{regexp.MustCompile(`(?i)(token\s*[=:]\s*)([A-Za-z0-9_\-]{8,})`), true, "[REDACTED]"},
	{regexp.MustCompile(`(?i)(authorization:\s*bearer\s+)([A-Za-z0-9\-._~+/]+=*)`), true, "[REDACTED]"},
	{regexp.MustCompile(`(?i)(password\s*[=:]\s*)([^\s"']{4,})`), true, "[REDACTED]"},
	{regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`), false, "[REDACTED]"},
	{regexp.MustCompile(`\bghp_[A-Za-z0-9]{20,}\b`), false, "[REDACTED]"},
}

var (
	emailRE  = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	phoneRE  = regexp.MustCompile(`\b(?:\+?\d{1,3}[\s.\-]?)?(?:\(?\d{3}\)?[\s.\-]?)\d{3}[\s.\-]?\d{4}\b`)
	b64ishRE = regexp.MustCompile(`\b[A-Za-z0-9+/]{24,}={0,2}\b`)
)

const highEntropyThreshold = 4.0

// Redact scrubs text of API keys, bearer tokens, passwords, cloud access
// key IDs, GitHub personal access tokens, emails, phone numbers, and
// base64-ish runs whose Shannon entropy clears a threshold, replacing each
// with a fixed token. Grounded on redaction.py's redact_text, with the
// token spellings ([REDACTED], [REDACTED_EMAIL], [REDACTED_PHONE],
// [REDACTED_HIGH_ENTROPY]) as specified.
func Redact(text string) string {
	out := norm.NFC.String(text)
	for _, p := range secretPatterns {
		if p.hasPrefix {
			out = p.re.ReplaceAllString(out, "${1}"+p.replacement)
		} else {
			out = p.re.ReplaceAllString(out, p.replacement)
		}
	}

	out = emailRE.ReplaceAllString(out, "[REDACTED_EMAIL]")
	out = phoneRE.ReplaceAllString(out, "[REDACTED_PHONE]")

	out = b64ishRE.ReplaceAllStringFunc(out, func(token string) string {
		if shannonEntropy(token) >= highEntropyThreshold {
			return "[REDACTED_HIGH_ENTROPY]"
		}
		return token
	})

	return out
}

func shannonEntropy(s string) float64 {
	if s == "" {
		return 0
	}
	freq := map[rune]int{}
	for _, r := range s {
		freq[r]++
	}
	total := float64(len(s))
	var entropy float64
	for _, count := range freq {
		p := float64(count) / total
		entropy -= p * math.Log2(p)
	}
	return entropy
}
