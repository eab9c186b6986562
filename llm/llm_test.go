package llm

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"caselens-backend/config"
)

type stubBackend struct {
	name    string
	replies []string
	errs    []error
	calls   int
}

var _ Backend = (*stubBackend)(nil)

func (s *stubBackend) Name() string { return s.name }

func (s *stubBackend) Invoke(ctx context.Context, prompt Prompt) (string, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if i < len(s.replies) {
		return s.replies[i], nil
	}
	return "", errors.New("no reply scripted")
}

type target struct {
	Summary    string   `json:"summary"`
	Facts      []string `json:"facts"`
	Confidence float64  `json:"confidence"`
}

func TestExtractJSONStages(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		stage   ParseStage
		summary string
	}{
		{"direct", `{"summary":"ok","facts":["a"],"confidence":0.9}`, StageDirect, "ok"},
		{"fenced", "Here you go:\n```json\n{\"summary\":\"fenced\"}\n```\nThanks", StageFenced, "fenced"},
		{"brace span", `The analysis is {"summary":"span","confidence":0.5} as requested.`, StageBraces, "span"},
		{"trailing comma", "```json\n{\"summary\":\"repaired\",\"facts\":[\"a\",\"b\",],}\n```", StageRepaired, "repaired"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out target
			stage, err := ExtractJSON(tt.raw, &out)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if stage != tt.stage {
				t.Errorf("expected stage %s, got %s", tt.stage, stage)
			}
			if out.Summary != tt.summary {
				t.Errorf("expected summary %q, got %q", tt.summary, out.Summary)
			}
		})
	}
}

func TestExtractJSONFailures(t *testing.T) {
	for _, raw := range []string{"", "no json at all", "{broken: [", "[1, 2, 3]"} {
		var out target
		stage, err := ExtractJSON(raw, &out)
		if !errors.Is(err, ErrNoJSON) {
			t.Errorf("%q: expected ErrNoJSON, got %v", raw, err)
		}
		if stage != StageFailed {
			t.Errorf("%q: expected failed stage, got %s", raw, stage)
		}
	}
}

func TestExtractJSONLooseFieldTypes(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"string for list", `{"summary":"kept","facts":"one string","confidence":0.4}`},
		{"word for number", `{"summary":"kept","facts":["a"],"confidence":"high"}`},
		{"fenced with mismatches", "```json\n{\"summary\":\"kept\",\"facts\":7,\"confidence\":[1]}\n```"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out target
			stage, err := ExtractJSON(tt.raw, &out)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if stage == StageFailed {
				t.Errorf("expected a decoded stage, got %s", stage)
			}
			if out.Summary != "kept" {
				t.Errorf("expected summary to survive, got %q", out.Summary)
			}
		})
	}
}

type strictTarget struct {
	Summary string `json:"summary"`
}

func (s *strictTarget) UnmarshalJSON([]byte) error {
	return errors.New("rejected")
}

func TestExtractJSONUndecodableObject(t *testing.T) {
	var out strictTarget
	stage, err := ExtractJSON(`{"summary":"x"}`, &out)
	if errors.Is(err, ErrNoJSON) {
		t.Error("a valid object must not be reported as missing")
	}
	if !errors.Is(err, ErrUndecodable) {
		t.Errorf("expected ErrUndecodable, got %v", err)
	}
	if stage != StageFailed {
		t.Errorf("expected failed stage, got %s", stage)
	}
}

func TestRegistryPrimary(t *testing.T) {
	a := &stubBackend{name: "a"}
	b := &stubBackend{name: "b"}

	r, err := NewRegistry("", a, b)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	if r.PrimaryName() != "a" {
		t.Errorf("expected first backend as primary, got %s", r.PrimaryName())
	}

	r, err = NewRegistry("b", a, b)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	if p, ok := r.Primary(); !ok || p.Name() != "b" {
		t.Errorf("expected primary b, got %v", p)
	}

	if _, err := NewRegistry("missing", a); err == nil {
		t.Error("expected error for unknown primary")
	}
	if _, err := NewRegistry("", a, &stubBackend{name: "a"}); err == nil {
		t.Error("expected error for duplicate backend")
	}
}

func TestWithResilienceRetries(t *testing.T) {
	stub := &stubBackend{
		name:    "flaky",
		errs:    []error{errors.New("503"), errors.New("503"), nil},
		replies: []string{"", "", "done"},
	}
	b := WithResilience(stub, RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond}, nil, log.New(io.Discard, "", 0))

	text, err := b.Invoke(context.Background(), Prompt{User: "hi"})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if text != "done" || stub.calls != 3 {
		t.Errorf("expected 3 calls ending in done, got %d calls and %q", stub.calls, text)
	}
	if b.Name() != "flaky" {
		t.Errorf("wrapper should keep backend name, got %s", b.Name())
	}
}

func TestWithResilienceStopsOnBlocked(t *testing.T) {
	stub := &stubBackend{name: "strict", errs: []error{ErrBlocked, nil}, replies: []string{"", "never"}}
	b := WithResilience(stub, RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond}, nil, log.New(io.Discard, "", 0))

	if _, err := b.Invoke(context.Background(), Prompt{}); !errors.Is(err, ErrBlocked) {
		t.Errorf("expected ErrBlocked, got %v", err)
	}
	if stub.calls != 1 {
		t.Errorf("blocked prompt must not be retried, got %d calls", stub.calls)
	}
}

func TestNewOpenAIBackendRequiresKey(t *testing.T) {
	if _, err := NewOpenAIBackend(OpenAIOptions{Name: "deepseek", Model: "deepseek-chat"}); err == nil {
		t.Fatal("expected error for missing API key")
	}
}

func TestNewPoolFromConfigCompatibleBackends(t *testing.T) {
	cfg := config.ModelsConfig{
		DeepSeek:   config.ModelSettings{APIKey: "sk-test", BaseURL: "https://api.deepseek.com/v1", Model: "deepseek-chat"},
		Qwen:       config.ModelSettings{APIKey: "sk-test", BaseURL: "https://dashscope.aliyuncs.com/compatible-mode/v1", Model: "qwen-max"},
		Primary:    config.BackendQwen,
		MaxRetries: 1,
	}

	pool, err := NewPoolFromConfig(context.Background(), cfg, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	defer pool.Close()

	if pool.Len() != 2 {
		t.Fatalf("expected 2 backends, got %d", pool.Len())
	}
	if pool.PrimaryName() != config.BackendQwen {
		t.Errorf("expected qwen primary, got %s", pool.PrimaryName())
	}
}
