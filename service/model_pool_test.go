package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"caselens-backend/llm"
	"caselens-backend/models"
)

func testInput() AnalysisInput {
	return AnalysisInput{
		CaseType: "contract_dispute",
		Scenario: models.ScenarioLitigation,
		Preorganized: &models.PreorganizedResult{
			Panorama: models.CrossDocumentPanorama{Narrative: "A buyer stopped paying."},
		},
	}
}

func TestAnalyzeSingleBackendInMultiMode(t *testing.T) {
	only := replyBackend("gemini", analysisReply(0.6))
	a := NewScenarioAnalyzer(mustRegistry("", only), time.Second, discardLogger)

	for _, mode := range []models.AnalysisMode{models.ModeSingle, models.ModeMulti} {
		out, err := a.Analyze(context.Background(), testInput(), []string{"rule"}, mode, "")
		if err != nil {
			t.Fatalf("%s: analyze: %v", mode, err)
		}
		if len(out.Responses) != 1 || out.Responses[0].BackendName != "gemini" {
			t.Fatalf("%s: expected one gemini response, got %+v", mode, out.Responses)
		}
		result, err := NewSynthesizer("", 0).Synthesize(out.Responses)
		if err != nil {
			t.Fatalf("%s: synthesize: %v", mode, err)
		}
		if result.ChosenBackend != "gemini" {
			t.Errorf("%s: expected gemini to be chosen, got %s", mode, result.ChosenBackend)
		}
	}
}

func TestAnalyzeMultiModeIsolatesFailures(t *testing.T) {
	good := replyBackend("deepseek", "Sure:\n```json\n"+analysisReply(0.7)+"\n```")
	broken := &funcBackend{name: "openai", fn: func(context.Context, llm.Prompt) (string, error) {
		return "", errors.New("rate limited")
	}}
	slow := &funcBackend{name: "qwen", fn: func(ctx context.Context, p llm.Prompt) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	a := NewScenarioAnalyzer(mustRegistry("openai", broken, good, slow), 50*time.Millisecond, discardLogger)

	out, err := a.Analyze(context.Background(), testInput(), nil, models.ModeMulti, "")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(out.Responses) != 3 {
		t.Fatalf("expected 3 responses, got %d", len(out.Responses))
	}

	byName := map[string]models.ModelResponse{}
	for _, r := range out.Responses {
		byName[r.BackendName] = r
	}
	if r := byName["openai"]; r.Valid() || !strings.Contains(r.Error, "rate limited") {
		t.Errorf("unexpected openai response %+v", r)
	}
	if r := byName["qwen"]; r.Valid() || !strings.HasPrefix(r.Error, "timeout after") {
		t.Errorf("unexpected qwen response %+v", r)
	}
	if r := byName["deepseek"]; !r.Valid() || r.Degraded || r.ParseStage != string(llm.StageFenced) {
		t.Errorf("unexpected deepseek response %+v", r)
	}
}

func TestAnalyzeAcceptsLooseFieldTypes(t *testing.T) {
	reply := `{"summary":"Buyer owes the price","facts":"Seller delivered in full","legal_arguments":["Art. 626"],
"win_probability":0.7,"conclusion":"Sue for the price","confidence":"high"}`
	a := NewScenarioAnalyzer(mustRegistry("", replyBackend("gemini", reply)), time.Second, discardLogger)

	out, err := a.Analyze(context.Background(), testInput(), nil, models.ModeSingle, "")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	r := out.Responses[0]
	if !r.Valid() || r.Degraded {
		t.Fatalf("expected a parsed response, got %+v", r)
	}
	if len(r.Result.Facts) != 1 || r.Result.Facts[0] != "Seller delivered in full" {
		t.Errorf("unexpected facts %q", r.Result.Facts)
	}
	if r.Result.WinProbability.Float() != 0.7 || r.Result.Confidence.Float() != 0 {
		t.Errorf("unexpected scores %+v", r.Result)
	}
}

func TestAnalyzeAllUnparseable(t *testing.T) {
	a := NewScenarioAnalyzer(mustRegistry("",
		replyBackend("gemini", "I am unable to produce JSON today."),
		replyBackend("qwen", "{not: valid"),
	), time.Second, discardLogger)

	out, err := a.Analyze(context.Background(), testInput(), nil, models.ModeMulti, "")
	if !errors.Is(err, ErrAllBackendsFailed) {
		t.Fatalf("expected ErrAllBackendsFailed, got %v", err)
	}
	for _, r := range out.Responses {
		if !r.Degraded || r.Result == nil {
			t.Errorf("expected a degraded response with a result, got %+v", r)
			continue
		}
		if r.Result.Confidence.Float() != 0.1 || r.Result.Conclusion != r.RawText {
			t.Errorf("expected the raw text as conclusion at confidence 0.1, got %+v", r.Result)
		}
	}

	// degraded responses still synthesize deterministically: first wins
	result, err := NewSynthesizer("", 0).Synthesize(out.Responses)
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if result.ChosenBackend != "gemini" {
		t.Errorf("expected the first degraded response, got %s", result.ChosenBackend)
	}
}

func TestResolveBackends(t *testing.T) {
	gemini := replyBackend("gemini", "")
	qwen := replyBackend("qwen", "")
	a := NewScenarioAnalyzer(mustRegistry("qwen", gemini, qwen), 0, discardLogger)

	tests := []struct {
		name     string
		mode     models.AnalysisMode
		selected string
		want     []string
		err      error
	}{
		{"single uses primary", models.ModeSingle, "", []string{"qwen"}, nil},
		{"empty mode is single", "", "", []string{"qwen"}, nil},
		{"single with selection", models.ModeSingle, "gemini", []string{"gemini"}, nil},
		{"multi uses all", models.ModeMulti, "", []string{"gemini", "qwen"}, nil},
		{"unknown backend", models.ModeSingle, "claude", nil, ErrUnknownBackend},
		{"invalid mode", "ensemble", "", nil, ErrInvalidMode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := a.ResolveBackends(tt.mode, tt.selected)
			if tt.err != nil {
				if !errors.Is(err, tt.err) {
					t.Fatalf("expected %v, got %v", tt.err, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			var names []string
			for _, b := range got {
				names = append(names, b.Name())
			}
			if strings.Join(names, ",") != strings.Join(tt.want, ",") {
				t.Errorf("expected %v, got %v", tt.want, names)
			}
		})
	}

	empty := NewScenarioAnalyzer(nil, 0, discardLogger)
	if _, err := empty.ResolveBackends(models.ModeSingle, ""); !errors.Is(err, ErrNoBackendConfigured) || !errors.Is(err, ErrConfiguration) {
		t.Errorf("expected a configuration error, got %v", err)
	}
}

func TestAnalyzePromptCarriesRules(t *testing.T) {
	var seen llm.Prompt
	backend := &funcBackend{name: "gemini", fn: func(ctx context.Context, p llm.Prompt) (string, error) {
		seen = p
		return analysisReply(0.9), nil
	}}
	a := NewScenarioAnalyzer(mustRegistry("", backend), time.Second, discardLogger)

	rules := []string{"[high priority] Apply Limitation period review", "Apply Burden of proof"}
	if _, err := a.Analyze(context.Background(), testInput(), rules, models.ModeSingle, ""); err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if seen.System != analysisSystemPrompt {
		t.Error("expected the analysis system prompt")
	}
	for _, rule := range rules {
		if !strings.Contains(seen.User, rule) {
			t.Errorf("prompt is missing rule %q", rule)
		}
	}
}
