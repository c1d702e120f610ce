package logging

import (
	"errors"
	"log/slog"
	"testing"
)

func TestRedactor_RedactString(t *testing.T) {
	r := NewRedactor(nil)

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"openai key", "key is sk-abcdefghijklmnop", "key is sk-***"},
		{"project key", "sk-proj-abcdefgh12345678", "sk-***"},
		{"nvidia key", "nvapi-ABCDEFGH12345678", "nvapi-***"},
		{"bearer", "Authorization: Bearer abc.def-ghi", "Authorization: Bearer ***"},
		{"password", "password=hunter2", "password: ***"},
		{"short sk prefix untouched", "task-list", "task-list"},
		{"plain text", "Sunny and 72°F in Santa Clara", "Sunny and 72°F in Santa Clara"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.RedactString(tt.input); got != tt.want {
				t.Errorf("RedactString(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestRedactor_CustomPatterns(t *testing.T) {
	r := NewRedactor([]Pattern{
		{Name: "employee", Pattern: `EMP-\d+`, Replacement: "EMP-***"},
		{Name: "broken", Pattern: `(`, Replacement: "x"},
	})

	if got := r.RedactString("ticket for EMP-4411"); got != "ticket for EMP-***" {
		t.Errorf("custom pattern not applied: %q", got)
	}
}

func TestRedactor_RedactAttr(t *testing.T) {
	r := NewRedactor(nil)

	tests := []struct {
		name string
		attr slog.Attr
		want string
	}{
		{"sensitive key", slog.String("api_key", "anything"), "***"},
		{"sensitive key case", slog.String("OPENAI_API_KEY", "anything"), "***"},
		{"auth token", slog.String("auth_token", "abc"), "***"},
		{"empty sensitive", slog.String("api_key", ""), ""},
		{"value pattern", slog.String("detail", "used sk-abcdefghijkl"), "used sk-***"},
		{"error value", slog.Any("error", errors.New("Bearer xyz rejected")), "Bearer *** rejected"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.RedactAttr(tt.attr)
			if got.Value.String() != tt.want {
				t.Errorf("RedactAttr(%v) = %q, want %q", tt.attr, got.Value.String(), tt.want)
			}
		})
	}

	t.Run("non-string untouched", func(t *testing.T) {
		a := slog.Int("total_tokens", 30)
		if got := r.RedactAttr(a); !got.Equal(a) {
			t.Errorf("RedactAttr changed %v to %v", a, got)
		}
	})

	t.Run("nil redactor", func(t *testing.T) {
		var nr *Redactor
		a := slog.String("api_key", "sk-abcdefghijkl")
		if got := nr.RedactAttr(a); !got.Equal(a) {
			t.Errorf("nil redactor changed attr")
		}
	})
}

func TestRedactAPIKey(t *testing.T) {
	tests := map[string]string{
		"sk-abcdef": "sk-a***",
		"abc":       "***",
	}
	for in, want := range tests {
		if got := RedactAPIKey(in); got != want {
			t.Errorf("RedactAPIKey(%q) = %q, want %q", in, got, want)
		}
	}
}
