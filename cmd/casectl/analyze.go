package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"caselens-backend/config"
	"caselens-backend/llm"
	"caselens-backend/models"
	"caselens-backend/repository"
	"caselens-backend/service"
	"caselens-backend/storage"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>...",
	Short: "Analyze a case from text files",
	Long: `Run the whole pipeline over plain-text case documents and print the report.
Each file becomes one document; its name is used for classification.

Examples:
  casectl analyze complaint.txt evidence.txt --case-type "sales contract"
  casectl analyze *.txt --scenario defense --mode multi --format json
  casectl analyze award.txt --scenario execution --out ./reports`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringP("case-type", "c", "", "case type description")
	analyzeCmd.Flags().StringP("scenario", "s", models.ScenarioPreLitigation, "process scenario")
	analyzeCmd.Flags().String("position", "", "our process position (plaintiff, defendant, ...)")
	analyzeCmd.Flags().StringP("package", "p", "", "rule package id")
	analyzeCmd.Flags().StringP("mode", "m", string(models.ModeSingle), "analysis mode: single, multi")
	analyzeCmd.Flags().StringP("backend", "b", "", "backend to use in single mode")
	analyzeCmd.Flags().StringP("format", "f", service.FormatMarkdown, "report format: md, json")
	analyzeCmd.Flags().StringP("out", "o", "", "directory to keep reports in (defaults to a temporary directory)")
	analyzeCmd.Flags().String("db", ":memory:", "SQLite session database")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg := config.Load()
	logger := pipelineLogger(cmd)

	docs, err := readDocuments(args)
	if err != nil {
		return err
	}

	rulesFile, _ := cmd.Flags().GetString("rules")
	if rulesFile == "" {
		rulesFile = cfg.Rules.File
	}
	c, err := loadCorpus(rulesFile)
	if err != nil {
		return err
	}

	pool, err := llm.NewPoolFromConfig(ctx, cfg.Models, logger)
	if err != nil {
		return fmt.Errorf("configuring model backends: %w", err)
	}
	defer pool.Close()

	dbPath, _ := cmd.Flags().GetString("db")
	sessions, err := repository.OpenSQLiteSessionStore(dbPath)
	if err != nil {
		return fmt.Errorf("opening session store: %w", err)
	}
	defer sessions.Close()

	outDir, _ := cmd.Flags().GetString("out")
	if outDir == "" {
		outDir, err = os.MkdirTemp("", "casectl-")
		if err != nil {
			return err
		}
		defer os.RemoveAll(outDir)
	}
	reports, err := storage.NewLocalStorage(outDir)
	if err != nil {
		return fmt.Errorf("opening report storage: %w", err)
	}

	var extractor llm.Backend
	if primary, ok := pool.Primary(); ok {
		extractor = primary
	}

	orchestrator := service.NewOrchestrator(
		service.OrchestratorWithSessionStore(sessions),
		service.OrchestratorWithReportStore(reports),
		service.OrchestratorWithProgress(stderrProgress{}),
		service.OrchestratorWithPreorganizer(service.NewPreorganizer(extractor,
			service.PreorganizeWithConcurrency(cfg.Pipeline.PreorganizeConcurrency),
			service.PreorganizeWithTimeout(cfg.Pipeline.ExtractionTimeout),
			service.PreorganizeWithLogger(logger),
		)),
		service.OrchestratorWithRuleAssembler(service.NewRuleAssembler(service.StaticRuleSource{Corpus: c}, ruleWeights(cfg.Rules), logger)),
		service.OrchestratorWithAnalyzer(service.NewScenarioAnalyzer(pool, cfg.Models.Timeout, logger)),
		service.OrchestratorWithSynthesizer(service.NewSynthesizer(pool.PrimaryName(), cfg.Pipeline.PrimaryConfidence)),
		service.OrchestratorWithLogger(logger),
	)

	caseType, _ := cmd.Flags().GetString("case-type")
	scenario, _ := cmd.Flags().GetString("scenario")
	position, _ := cmd.Flags().GetString("position")
	packageID, _ := cmd.Flags().GetString("package")
	mode, _ := cmd.Flags().GetString("mode")
	backend, _ := cmd.Flags().GetString("backend")

	session, err := orchestrator.StartAnalysis(ctx, service.AnalyzeRequest{
		Documents:       docs,
		CaseType:        caseType,
		ProcessPosition: position,
		Scenario:        scenario,
		RulePackageID:   packageID,
		Mode:            models.AnalysisMode(mode),
		Backend:         backend,
	})
	if err != nil {
		return err
	}
	orchestrator.Wait()

	session, err = orchestrator.Session(ctx, session.ID)
	if err != nil {
		return err
	}
	if session.Status != models.SessionCompleted {
		msg := "analysis did not complete"
		if session.ErrorMessage != nil {
			msg = *session.ErrorMessage
		}
		return fmt.Errorf("session %s %s: %s", session.ID, session.Status, msg)
	}

	format, _ := cmd.Flags().GetString("format")
	report, _, err := orchestrator.Report(ctx, session.ID, format)
	if err != nil {
		return err
	}
	fmt.Print(string(report))
	if !strings.HasSuffix(string(report), "\n") {
		fmt.Println()
	}
	if cmd.Flags().Changed("out") {
		fmt.Fprintf(os.Stderr, "Report stored under %s\n", filepath.Join(outDir, *session.ReportRef))
	}
	return nil
}

func readDocuments(paths []string) ([]models.RawDocument, error) {
	docs := make([]models.RawDocument, 0, len(paths))
	for i, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		docs = append(docs, models.RawDocument{
			DocumentID: fmt.Sprintf("doc-%d", i+1),
			Filename:   filepath.Base(path),
			Text:       string(data),
		})
	}
	return docs, nil
}

// stderrProgress prints progress events as the pipeline runs
type stderrProgress struct{}

func (stderrProgress) Publish(event models.ProgressEvent) {
	fmt.Fprintf(os.Stderr, "[%3.0f%%] %-9s %s\n", event.Progress*100, event.Status, event.Message)
}
