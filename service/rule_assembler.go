package service

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"caselens-backend/corpus"
	"caselens-backend/models"
)

// Bonus labels recorded on weighted rules
const (
	BonusTimeLimit = "time_limit"
	BonusGuarantee = "guarantee"
	BonusScenario  = "scenario_alignment"
)

const highPriorityTag = "[high priority] "

var (
	timeLimitKeywords = []string{"时效", "期限", "诉讼时效", "逾期", "limitation", "deadline", "overdue", "time-bar", "time bar"}
	guaranteeKeywords = []string{"担保", "保证", "抵押", "质押", "guarantee", "collateral", "surety", "mortgage", "pledge"}
	digitRunPattern   = regexp.MustCompile(`\d+`)
)

// scenarioCategories lists the rule categories that fit each scenario
var scenarioCategories = map[string][]models.RuleCategory{
	models.ScenarioPreLitigation: {models.CategoryEvidence, models.CategoryStrategy},
	models.ScenarioLitigation:    {models.CategoryClaim, models.CategoryEvidence},
	models.ScenarioDefense:       {models.CategoryDefense, models.CategoryEvidence},
	models.ScenarioAppeal:        {models.CategoryProcedure, models.CategoryClaim},
	models.ScenarioArbitration:   {models.CategoryProcedure, models.CategoryClaim},
	models.ScenarioExecution:     {models.CategoryRisk, models.CategoryStrategy},
}

// RuleSource provides the rule corpus in effect
type RuleSource interface {
	Load(ctx context.Context) (*corpus.Corpus, error)
}

// StaticRuleSource serves a corpus loaded once at startup
type StaticRuleSource struct {
	Corpus *corpus.Corpus
}

// Load implements RuleSource
func (s StaticRuleSource) Load(ctx context.Context) (*corpus.Corpus, error) {
	if s.Corpus == nil {
		return nil, corpus.ErrEmptyCorpus
	}
	return s.Corpus, nil
}

// RuleWeights holds the assembler heuristics
type RuleWeights struct {
	TimeLimitBonus float64
	GuaranteeBonus float64
	ScenarioBonus  float64
	HighPriority   float64
	MaxRules       int
}

// DefaultRuleWeights returns the stock heuristics
func DefaultRuleWeights() RuleWeights {
	return RuleWeights{
		TimeLimitBonus: 2.0,
		GuaranteeBonus: 3.0,
		ScenarioBonus:  1.5,
		HighPriority:   3.0,
		MaxRules:       15,
	}
}

// RuleContext is the case context rules are selected against
type RuleContext struct {
	CaseType string
	Scenario string
	Panorama *models.CrossDocumentPanorama
}

// RuleAssembler selects and weights the rules for a case
type RuleAssembler struct {
	source  RuleSource
	weights RuleWeights
	logger  *log.Logger
}

// NewRuleAssembler creates a rule assembler
func NewRuleAssembler(source RuleSource, weights RuleWeights, logger *log.Logger) *RuleAssembler {
	if weights.MaxRules <= 0 {
		weights.MaxRules = DefaultRuleWeights().MaxRules
	}
	if logger == nil {
		logger = log.Default()
	}
	return &RuleAssembler{source: source, weights: weights, logger: logger}
}

// AssembleRules returns the rendered rule instructions in rank order.
// It never fails: any problem yields the fallback rule set.
func (a *RuleAssembler) AssembleRules(ctx context.Context, packageID string, rc RuleContext) []string {
	return a.Assemble(ctx, packageID, rc).Instructions()
}

// Assemble returns between one and MaxRules weighted rules sorted by descending weight
func (a *RuleAssembler) Assemble(ctx context.Context, packageID string, rc RuleContext) models.WeightedRules {
	selected, err := a.assemble(ctx, packageID, rc)
	if err != nil {
		a.logger.Printf("Warning: rule assembly fell back to the default rule set: %v", err)
		return FallbackRules()
	}
	return selected
}

func (a *RuleAssembler) assemble(ctx context.Context, packageID string, rc RuleContext) (models.WeightedRules, error) {
	if a.source == nil {
		return nil, corpus.ErrEmptyCorpus
	}
	c, err := a.source.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load corpus: %w", err)
	}
	rules, err := c.Rules(packageID)
	if err != nil {
		return nil, err
	}

	signals := detectSignals(rc.Panorama)

	var candidates models.WeightedRules
	for _, rule := range rules {
		if !matchesCaseType(rule.CaseTypeKeywords, rc.CaseType) || !inScenario(rule.ScenarioScope, rc.Scenario) {
			continue
		}
		candidates = append(candidates, a.weigh(rule, rc.Scenario, signals))
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no rule matches case type %q in scenario %q", rc.CaseType, rc.Scenario)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].AdjustedWeight > candidates[j].AdjustedWeight
	})
	if len(candidates) > a.weights.MaxRules {
		candidates = candidates[:a.weights.MaxRules]
	}
	for i := range candidates {
		candidates[i].Instruction = renderInstruction(candidates[i], a.weights.HighPriority)
	}
	return candidates, nil
}

// weigh works on the copy handed out by the corpus
func (a *RuleAssembler) weigh(rule models.RuleDefinition, scenario string, signals textSignals) models.WeightedRule {
	weighted := models.WeightedRule{Rule: rule, AdjustedWeight: rule.BaseWeight}

	if signals.timeLimit && rule.Category == models.CategoryProcedure {
		weighted.AdjustedWeight += a.weights.TimeLimitBonus
		weighted.Bonuses = append(weighted.Bonuses, BonusTimeLimit)
	}
	if signals.guarantee && strings.Contains(strings.ToLower(rule.Name), "guarantee") {
		weighted.AdjustedWeight += a.weights.GuaranteeBonus
		weighted.Bonuses = append(weighted.Bonuses, BonusGuarantee)
	}
	if scenarioAligned(scenario, rule.Category) {
		weighted.AdjustedWeight += a.weights.ScenarioBonus
		weighted.Bonuses = append(weighted.Bonuses, BonusScenario)
	}
	return weighted
}

// FallbackRules is the fixed rule set used whenever assembly cannot produce candidates
func FallbackRules() models.WeightedRules {
	return models.WeightedRules{
		{
			Rule: models.RuleDefinition{
				ID:          "fallback-fact-law",
				Category:    models.CategoryClaim,
				Name:        "General fact and law analysis",
				LegalSource: "General principles",
				BaseWeight:  1.0,
			},
			AdjustedWeight: 1.0,
			Instruction:    "Identify the material facts, the legal basis of each claim and how the law applies to those facts.",
		},
		{
			Rule: models.RuleDefinition{
				ID:          "fallback-evidence-admissibility",
				Category:    models.CategoryEvidence,
				Name:        "General evidence admissibility check",
				LegalSource: "General principles",
				BaseWeight:  1.0,
			},
			AdjustedWeight: 1.0,
			Instruction:    "Check the authenticity, legality and relevance of each piece of evidence and note any gaps in proof.",
		},
	}
}

type textSignals struct {
	timeLimit bool
	guarantee bool
}

func detectSignals(panorama *models.CrossDocumentPanorama) textSignals {
	if panorama == nil {
		return textSignals{}
	}

	var b strings.Builder
	b.WriteString(panorama.Narrative)
	b.WriteString("\n")
	b.WriteString(panorama.CoreDispute)
	b.WriteString("\n")
	b.WriteString(panorama.ProceduralStatus)
	for _, ev := range panorama.Timeline {
		b.WriteString("\n")
		b.WriteString(ev.Date)
		b.WriteString(" ")
		b.WriteString(ev.Event)
	}
	text := strings.ToLower(b.String())

	return textSignals{
		timeLimit: containsAny(text, timeLimitKeywords) || yearSpan(text) >= 2,
		guarantee: containsAny(text, guaranteeKeywords),
	}
}

// yearSpan returns the gap between the earliest and latest year mentioned.
// Only standalone four-digit runs count, so amounts and case numbers are ignored.
func yearSpan(text string) int {
	minYear, maxYear := 0, 0
	for _, match := range digitRunPattern.FindAllString(text, -1) {
		if len(match) != 4 || !(strings.HasPrefix(match, "19") || strings.HasPrefix(match, "20")) {
			continue
		}
		year, err := strconv.Atoi(match)
		if err != nil {
			continue
		}
		if minYear == 0 || year < minYear {
			minYear = year
		}
		if year > maxYear {
			maxYear = year
		}
	}
	return maxYear - minYear
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func matchesCaseType(keywords []string, caseType string) bool {
	normalized := normalizeCaseType(caseType)
	for _, kw := range keywords {
		k := normalizeCaseType(kw)
		if k == models.GeneralCaseType {
			return true
		}
		if k == "" || normalized == "" {
			continue
		}
		if strings.Contains(normalized, k) || strings.Contains(k, normalized) {
			return true
		}
	}
	return false
}

func normalizeCaseType(s string) string {
	s = strings.ToLower(s)
	s = strings.NewReplacer("_", " ", "-", " ", "disputes", "", "dispute", "", "纠纷", "").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// inScenario treats an empty scope or an empty scenario as unrestricted
func inScenario(scope []string, scenario string) bool {
	if scenario == "" || len(scope) == 0 {
		return true
	}
	for _, s := range scope {
		if strings.EqualFold(s, scenario) {
			return true
		}
	}
	return false
}

func scenarioAligned(scenario string, category models.RuleCategory) bool {
	for _, c := range scenarioCategories[scenario] {
		if c == category {
			return true
		}
	}
	return false
}

func renderInstruction(w models.WeightedRule, highPriority float64) string {
	rule := w.Rule
	template := rule.PromptTemplate
	if template == "" {
		template = "Apply {name} ({source}). Check: {checkpoints}."
	}
	text := strings.NewReplacer(
		"{checkpoints}", strings.Join(rule.CheckPoints, "; "),
		"{name}", rule.Name,
		"{source}", rule.LegalSource,
	).Replace(template)

	if w.AdjustedWeight >= highPriority {
		return highPriorityTag + text
	}
	return text
}
