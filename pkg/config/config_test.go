package config

import "testing"

func TestBundle_MainModel(t *testing.T) {
	tests := []struct {
		name   string
		models []ModelConfig
		want   string
		ok     bool
	}{
		{"none", nil, "", false},
		{"first when unmarked", []ModelConfig{{Model: "a"}, {Model: "b"}}, "a", true},
		{"marked main", []ModelConfig{{Type: "fallback", Model: "a"}, {Type: "main", Model: "b"}}, "b", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &Bundle{Models: tt.models}
			m, ok := b.MainModel()
			if ok != tt.ok || m.Model != tt.want {
				t.Errorf("MainModel() = (%q, %v), want (%q, %v)", m.Model, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestBundle_SetMainModel(t *testing.T) {
	b := &Bundle{Models: []ModelConfig{{Type: "fallback", Model: "a"}}}

	b.SetMainModel(ModelConfig{Model: "b"})
	if len(b.Models) != 2 || b.Models[0].Model != "b" || b.Models[0].Type != "main" {
		t.Fatalf("expected main model prepended, got %+v", b.Models)
	}

	b.SetMainModel(ModelConfig{Model: "c"})
	if len(b.Models) != 2 || b.Models[0].Model != "c" {
		t.Fatalf("expected main model replaced, got %+v", b.Models)
	}
}

func TestBundle_SystemPrompt(t *testing.T) {
	b := &Bundle{Instructions: []InstructionConfig{
		{Type: "general", Content: "Line one."},
		{Type: "general"},
		{Type: "general", Content: "Line two."},
	}}
	if got, want := b.SystemPrompt(), "Line one.\n\nLine two."; got != want {
		t.Errorf("SystemPrompt() = %q, want %q", got, want)
	}
	if got := (&Bundle{}).SystemPrompt(); got != "" {
		t.Errorf("expected empty prompt, got %q", got)
	}
}

func TestInferKind(t *testing.T) {
	tests := map[string]string{
		"openai": KindHosted,
		"hosted": KindHosted,
		"nim":    KindSelfHosted,
		"vllm":   KindSelfHosted,
		"":       KindSelfHosted,
	}
	for engine, want := range tests {
		if got := InferKind(engine); got != want {
			t.Errorf("InferKind(%q) = %q, want %q", engine, got, want)
		}
	}
}

func TestMetricsConfig_IsEnabled(t *testing.T) {
	if !(MetricsConfig{}).IsEnabled() {
		t.Error("nil Enabled should mean enabled")
	}
	if (MetricsConfig{Enabled: Bool(false)}).IsEnabled() {
		t.Error("explicit false should disable")
	}
}
