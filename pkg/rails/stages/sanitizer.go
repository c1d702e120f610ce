package stages

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"mercator-hq/railguard/pkg/rails"
)

// SanitizerStageName is the configuration name of the input sanitizer.
const SanitizerStageName = "input_sanitizer"

// DefaultMaxInputLength caps user turns, in runes.
const DefaultMaxInputLength = 4096

// DefaultInjectionMarkers are chat-template and role tokens that must not be
// forwarded verbatim to the model.
var DefaultInjectionMarkers = []string{
	"<|im_start|>",
	"<|im_end|>",
	"<|endoftext|>",
	"<|system|>",
	"[INST]",
	"[/INST]",
	"<<SYS>>",
	"<</SYS>>",
	"### system:",
	"### instruction:",
}

// SanitizerConfig configures the input sanitizer.
type SanitizerConfig struct {
	// Markers replaces the default injection markers when non-empty.
	Markers []string

	// MaxLength truncates the turn to this many runes. Zero means
	// DefaultMaxInputLength.
	MaxLength int
}

// InputSanitizer normalizes the user turn. It never blocks.
type InputSanitizer struct {
	markers   *regexp.Regexp
	maxLength int
}

var (
	horizontalSpace = regexp.MustCompile(`[ \t]+`)
	blankLines      = regexp.MustCompile(`\n{3,}`)
)

// NewInputSanitizer builds the marker matcher.
func NewInputSanitizer(cfg SanitizerConfig) (*InputSanitizer, error) {
	markers := cfg.Markers
	if len(markers) == 0 {
		markers = DefaultInjectionMarkers
	}

	maxLength := cfg.MaxLength
	if maxLength == 0 {
		maxLength = DefaultMaxInputLength
	}
	if maxLength < 0 {
		return nil, fmt.Errorf("max length must be positive, got %d", maxLength)
	}

	quoted := make([]string, 0, len(markers))
	for _, m := range markers {
		if strings.TrimSpace(m) == "" {
			return nil, fmt.Errorf("empty injection marker")
		}
		quoted = append(quoted, regexp.QuoteMeta(m))
	}

	return &InputSanitizer{
		markers:   regexp.MustCompile(`(?i)(` + strings.Join(quoted, "|") + `)`),
		maxLength: maxLength,
	}, nil
}

// Name returns the stage name.
func (s *InputSanitizer) Name() string { return SanitizerStageName }

// Phase returns the input phase.
func (s *InputSanitizer) Phase() rails.Phase { return rails.PhaseInput }

// Evaluate sanitizes the latest user turn and rewrites it if anything
// changed.
func (s *InputSanitizer) Evaluate(ctx context.Context, tc *rails.TurnContext) (rails.Verdict, error) {
	original := tc.UserMessage()
	clean := s.Sanitize(original)

	if clean == original {
		return rails.Allow(s.Name(), "input clean"), nil
	}
	return rails.Rewrite(s.Name(), "removed unsafe content from input", clean), nil
}

// maxCleanPasses bounds the cleaning loop in Sanitize.
const maxCleanPasses = 8

// Sanitize returns the cleaned form of text. Sanitize is idempotent.
func (s *InputSanitizer) Sanitize(text string) string {
	text = norm.NFKC.String(text)

	// Removing a marker and collapsing the whitespace around it can bring
	// the parts of another marker together, so clean to a fixed point.
	for i := 0; i < maxCleanPasses; i++ {
		next := s.clean(text)
		if next == text {
			break
		}
		text = next
	}

	if utf8.RuneCountInString(text) > s.maxLength {
		runes := []rune(text)
		text = strings.TrimSpace(string(runes[:s.maxLength]))
	}
	return text
}

func (s *InputSanitizer) clean(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = stripInvisible(text)
	text = collapseSpace(text)
	text = s.markers.ReplaceAllString(text, " ")
	return collapseSpace(text)
}

func collapseSpace(text string) string {
	text = horizontalSpace.ReplaceAllString(text, " ")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = blankLines.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(text)
}

// stripInvisible drops control characters other than newline and tab, and
// zero-width format characters.
func stripInvisible(text string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\t':
			return r
		case '\u200b', '\u200c', '\u200d', '\u2060', '\ufeff', '\u00ad':
			return -1
		}
		if unicode.IsControl(r) || unicode.Is(unicode.Cf, r) {
			return -1
		}
		return r
	}, text)
}
