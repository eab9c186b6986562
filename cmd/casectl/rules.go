package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"caselens-backend/config"
	"caselens-backend/corpus"
	"caselens-backend/service"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Preview the rules an analysis would use",
	Long: `Assemble the weighted rule set for a case type and scenario without
calling any model backend. With --list, print the rule packages instead.

Examples:
  casectl rules --list
  casectl rules --case-type "loan guarantee dispute" --scenario defense
  casectl rules --package civil_commercial --format json`,
	Args: cobra.NoArgs,
	RunE: runRules,
}

func init() {
	rulesCmd.Flags().Bool("list", false, "list rule packages and exit")
	rulesCmd.Flags().StringP("package", "p", "", "rule package id")
	rulesCmd.Flags().StringP("case-type", "c", "", "case type description")
	rulesCmd.Flags().StringP("scenario", "s", "", "process scenario")
	rulesCmd.Flags().StringP("format", "f", "text", "output format: text, json")
}

func runRules(cmd *cobra.Command, args []string) error {
	rulesFile, _ := cmd.Flags().GetString("rules")
	c, err := loadCorpus(rulesFile)
	if err != nil {
		return err
	}

	if list, _ := cmd.Flags().GetBool("list"); list {
		for _, pkg := range c.Packages() {
			fmt.Printf("%-24s %-40s %d rules\n", pkg.ID, pkg.Name, pkg.RuleCount)
		}
		return nil
	}

	packageID, _ := cmd.Flags().GetString("package")
	caseType, _ := cmd.Flags().GetString("case-type")
	scenario, _ := cmd.Flags().GetString("scenario")
	format, _ := cmd.Flags().GetString("format")

	assembler := service.NewRuleAssembler(service.StaticRuleSource{Corpus: c}, ruleWeights(config.Load().Rules), pipelineLogger(cmd))
	rules := assembler.Assemble(context.Background(), packageID, service.RuleContext{
		CaseType: caseType,
		Scenario: scenario,
	})

	if format == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rules)
	}

	fmt.Printf("%d rule(s) selected\n\n", len(rules))
	for i, wr := range rules {
		fmt.Printf("%2d. %-6.2f %s [%s] %s\n", i+1, wr.AdjustedWeight, wr.Rule.ID, wr.Rule.Category, wr.Rule.Name)
		if len(wr.Bonuses) > 0 {
			fmt.Printf("    bonuses: %s\n", strings.Join(wr.Bonuses, ", "))
		}
	}
	return nil
}

func loadCorpus(path string) (*corpus.Corpus, error) {
	if path == "" {
		return corpus.Default()
	}
	c, err := corpus.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading rules: %w", err)
	}
	return c, nil
}

func ruleWeights(cfg config.RulesConfig) service.RuleWeights {
	return service.RuleWeights{
		TimeLimitBonus: cfg.BonusTimeLimit,
		GuaranteeBonus: cfg.BonusGuarantee,
		ScenarioBonus:  cfg.BonusScenario,
		HighPriority:   cfg.HighPriority,
		MaxRules:       cfg.MaxRules,
	}
}

func pipelineLogger(cmd *cobra.Command) *log.Logger {
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		return log.New(os.Stderr, "", log.LstdFlags)
	}
	return log.New(io.Discard, "", 0)
}
