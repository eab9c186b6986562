package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"caselens-backend/llm"
	"caselens-backend/models"
)

const (
	defaultModelTimeout = 120 * time.Second
	degradedConfidence  = 0.1
)

// BackendSet is the set of configured model backends
type BackendSet interface {
	Backends() []llm.Backend
	Get(name string) (llm.Backend, bool)
	PrimaryName() string
}

// AggregatedOutput holds one response per invoked backend, in invocation order
type AggregatedOutput struct {
	Mode      models.AnalysisMode    `json:"mode"`
	Responses []models.ModelResponse `json:"responses"`
}

// ScenarioAnalyzer runs the scenario analysis prompt against one or all backends
type ScenarioAnalyzer struct {
	backends BackendSet
	timeout  time.Duration
	logger   *log.Logger
}

// NewScenarioAnalyzer creates a scenario analyzer. A zero timeout uses the default.
func NewScenarioAnalyzer(backends BackendSet, timeout time.Duration, logger *log.Logger) *ScenarioAnalyzer {
	if timeout <= 0 {
		timeout = defaultModelTimeout
	}
	if logger == nil {
		logger = log.Default()
	}
	return &ScenarioAnalyzer{backends: backends, timeout: timeout, logger: logger}
}

// BackendNames lists the configured backends in registration order
func (a *ScenarioAnalyzer) BackendNames() []string {
	if a.backends == nil {
		return nil
	}
	var names []string
	for _, b := range a.backends.Backends() {
		names = append(names, b.Name())
	}
	return names
}

// ResolveBackends returns the backends an analysis in the given mode would invoke.
// In single mode the selected backend wins, then the primary, then the first configured.
func (a *ScenarioAnalyzer) ResolveBackends(mode models.AnalysisMode, selected string) ([]llm.Backend, error) {
	var all []llm.Backend
	if a.backends != nil {
		all = a.backends.Backends()
	}
	if len(all) == 0 {
		return nil, ErrNoBackendConfigured
	}

	switch mode {
	case models.ModeMulti:
		return all, nil
	case models.ModeSingle, "":
		if selected != "" {
			b, ok := a.backends.Get(selected)
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, selected)
			}
			return []llm.Backend{b}, nil
		}
		if b, ok := a.backends.Get(a.backends.PrimaryName()); ok {
			return []llm.Backend{b}, nil
		}
		return all[:1], nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidMode, mode)
	}
}

// Analyze invokes the resolved backends concurrently. Each call has its own timeout and
// a failing backend never cancels its siblings. When no backend produced a parseable
// result the output is still returned alongside ErrAllBackendsFailed.
func (a *ScenarioAnalyzer) Analyze(
	ctx context.Context,
	input AnalysisInput,
	rules []string,
	mode models.AnalysisMode,
	selected string,
) (*AggregatedOutput, error) {
	targets, err := a.ResolveBackends(mode, selected)
	if err != nil {
		return nil, err
	}
	if mode == "" {
		mode = models.ModeSingle
	}

	prompt := analysisPrompt(input, rules)
	responses := make([]models.ModelResponse, len(targets))

	var g errgroup.Group
	for i, backend := range targets {
		i, backend := i, backend
		g.Go(func() error {
			responses[i] = a.invoke(ctx, backend, prompt)
			return nil
		})
	}
	_ = g.Wait()

	out := &AggregatedOutput{Mode: mode, Responses: responses}

	var failures []string
	for _, resp := range responses {
		if resp.Valid() && !resp.Degraded {
			return out, nil
		}
		failures = append(failures, fmt.Sprintf("%s: %s", resp.BackendName, resp.Error))
	}
	return out, fmt.Errorf("%w (%s)", ErrAllBackendsFailed, strings.Join(failures, "; "))
}

func (a *ScenarioAnalyzer) invoke(ctx context.Context, backend llm.Backend, prompt llm.Prompt) models.ModelResponse {
	start := time.Now()
	resp := models.ModelResponse{BackendName: backend.Name()}

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	raw, err := backend.Invoke(callCtx, prompt)
	resp.Elapsed = time.Since(start)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			resp.Error = fmt.Sprintf("timeout after %s: %v", a.timeout, err)
		} else {
			resp.Error = err.Error()
		}
		a.logger.Printf("Warning: backend %s failed: %s", backend.Name(), resp.Error)
		return resp
	}

	resp.RawText = raw
	var result models.StructuredResult
	stage, err := llm.ExtractJSON(raw, &result)
	resp.ParseStage = string(stage)
	if err != nil {
		a.logger.Printf("Warning: backend %s returned unparseable output: %v", backend.Name(), err)
		resp.Degraded = true
		resp.Error = fmt.Sprintf("parse failure: %v", err)
		resp.Result = degradedResult(raw)
		return resp
	}

	resp.Result = &result
	return resp
}

// degradedResult keeps the raw text of an unparseable reply in the conclusion
func degradedResult(raw string) *models.StructuredResult {
	return &models.StructuredResult{
		Facts:             []string{},
		LegalArguments:    []string{},
		RuleApplications:  []string{},
		Strengths:         []string{},
		Weaknesses:        []string{},
		Strategies:        []string{},
		MissingEvidence:   []string{},
		ImpeachmentPoints: []string{},
		Conclusion:        strings.TrimSpace(raw),
		Confidence:        degradedConfidence,
	}
}
