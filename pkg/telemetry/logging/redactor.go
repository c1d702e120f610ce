package logging

import (
	"log/slog"
	"regexp"
	"strings"
)

// Pattern is a named redaction rule.
type Pattern struct {
	Name        string
	Pattern     string
	Replacement string
}

// Redactor masks credentials in log attributes. Bundles carry endpoint API
// keys and provider errors may echo Authorization headers, so both keys
// and values are checked.
type Redactor struct {
	patterns []*redactPattern
}

// redactPattern contains a compiled regex and replacement string.
type redactPattern struct {
	name        string
	regex       *regexp.Regexp
	replacement string
}

// Built-in pattern names.
const (
	PatternAPIKey      = "api_key"
	PatternBearerToken = "bearer_token"
	PatternPassword    = "password"
)

// NewRedactor creates a Redactor with the built-in patterns followed by
// custom ones. Custom patterns that do not compile are skipped.
func NewRedactor(custom []Pattern) *Redactor {
	r := &Redactor{}
	r.addDefaultPatterns()

	for _, p := range custom {
		regex, err := regexp.Compile(p.Pattern)
		if err != nil {
			continue
		}
		r.patterns = append(r.patterns, &redactPattern{
			name:        p.Name,
			regex:       regex,
			replacement: p.Replacement,
		})
	}

	return r
}

// addDefaultPatterns adds the built-in patterns, most specific first.
func (r *Redactor) addDefaultPatterns() {
	defaults := []Pattern{
		{
			Name:        PatternBearerToken,
			Pattern:     `Bearer\s+[a-zA-Z0-9\-._~+/]+=*`,
			Replacement: "Bearer ***",
		},
		{
			// OpenAI-style keys (sk-..., sk-proj-...) and nvapi- keys
			Name:        PatternAPIKey,
			Pattern:     `\b(sk|nvapi)-[a-zA-Z0-9_\-]{8,}`,
			Replacement: "$1-***",
		},
		{
			Name:        PatternPassword,
			Pattern:     `(password|passwd|pwd)[:=]\s*[^\s]+`,
			Replacement: "$1: ***",
		},
	}

	for _, p := range defaults {
		r.patterns = append(r.patterns, &redactPattern{
			name:        p.Name,
			regex:       regexp.MustCompile(p.Pattern),
			replacement: p.Replacement,
		})
	}
}

// RedactString masks credentials inside a string value.
func (r *Redactor) RedactString(value string) string {
	if r == nil || value == "" {
		return value
	}

	redacted := value
	for _, pattern := range r.patterns {
		redacted = pattern.regex.ReplaceAllString(redacted, pattern.replacement)
	}
	return redacted
}

// RedactAttr masks a log attribute. Values under sensitive keys are
// replaced entirely; other string values have matching substrings masked.
// Error values are rendered and masked too.
func (r *Redactor) RedactAttr(a slog.Attr) slog.Attr {
	if r == nil {
		return a
	}

	if isSensitiveKey(a.Key) {
		if a.Value.Kind() == slog.KindString && a.Value.String() == "" {
			return a
		}
		return slog.String(a.Key, "***")
	}

	switch a.Value.Kind() {
	case slog.KindString:
		return slog.String(a.Key, r.RedactString(a.Value.String()))
	case slog.KindAny:
		if err, ok := a.Value.Any().(error); ok {
			return slog.String(a.Key, r.RedactString(err.Error()))
		}
	}
	return a
}

// isSensitiveKey checks if a key name indicates a credential.
func isSensitiveKey(key string) bool {
	lowerKey := strings.ToLower(key)

	// "token" alone would catch usage counters such as total_tokens.
	if strings.HasSuffix(lowerKey, "token") {
		return true
	}

	sensitiveKeys := []string{
		"password", "passwd", "secret",
		"api_key", "apikey", "authorization", "private_key",
	}

	for _, sensitive := range sensitiveKeys {
		if strings.Contains(lowerKey, sensitive) {
			return true
		}
	}
	return false
}

// RedactAPIKey redacts an API key, keeping only a prefix.
func RedactAPIKey(apiKey string) string {
	if len(apiKey) <= 4 {
		return "***"
	}
	return apiKey[:4] + "***"
}
