package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"
	bcp47 "golang.org/x/text/language"

	"pdf2html-agent/internal/analyzer"
	"pdf2html-agent/internal/apperr"
	"pdf2html-agent/internal/config"
	"pdf2html-agent/internal/generator"
	"pdf2html-agent/internal/ingestor"
	"pdf2html-agent/internal/judge"
	"pdf2html-agent/internal/llmclient"
	"pdf2html-agent/internal/logging"
	"pdf2html-agent/internal/loop"
	"pdf2html-agent/internal/multijudge"
	"pdf2html-agent/internal/renderer"
	"pdf2html-agent/internal/types"
)

// version is the CLI's reported version line (spec §6 `version` verb).
const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "convert":
		err = runConvert(os.Args[2:])
	case "check":
		err = runCheck(os.Args[2:])
	case "version":
		fmt.Printf("pdf2html-agent %s\n", version)
		return
	default:
		usage()
		os.Exit(1)
	}

	if err == nil {
		return
	}
	if _, ok := err.(*exitBestEffortFromSummary); ok {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: pdf2html-agent <convert|check|version> [flags]")
}

func runConvert(args []string) error {
	fs := flag.NewFlagSet("convert", flag.ContinueOnError)
	pages := fs.String("pages", "", "page range, 1-based (\"1\", \"1-3\", \"1,3,5\"); empty means all pages")
	target := fs.Int("target", -1, "target composite fidelity score (default from config, normally 85)")
	maxRetries := fs.Int("max-retries", 0, "maximum refinement iterations per page (default from config, normally 5)")
	output := fs.String("output", "output", "output directory")
	language := fs.String("language", "", "override the analyzer's detected primary language")
	direction := fs.String("direction", "", "override the analyzer's detected text direction (rtl|ltr)")
	verbose := fs.Bool("verbose", false, "verbose logging")
	quiet := fs.Bool("quiet", false, "quiet logging")
	dryRun := fs.Bool("dry-run", false, "run the Ingestor and Analyzer only, print the inferred profile, and exit")
	force := fs.Bool("force", false, "reprocess pages even if final.html already exists")
	if err := fs.Parse(args); err != nil {
		return apperr.New(apperr.KindInput, "parse convert flags", err)
	}
	if fs.NArg() < 1 {
		return apperr.New(apperr.KindInput, "convert requires a PDF path argument", nil)
	}
	pdfPath := fs.Arg(0)

	logger, err := logging.New(logging.Options{Verbose: *verbose, Quiet: *quiet})
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		return apperr.New(apperr.KindCredential, "load configuration", err)
	}
	if *target >= 0 {
		cfg.TargetScore = *target
	}
	if *target > 100 {
		return apperr.New(apperr.KindInput, "--target must be within [0,100]", nil)
	}
	if *maxRetries > 0 {
		cfg.MaxRetries = *maxRetries
	}

	ctx := context.Background()

	ing := ingestor.New(cfg.DPI, logger)
	pageCount, err := ing.PageCount(pdfPath)
	if err != nil {
		return err
	}
	indices, err := parsePageRange(*pages, pageCount)
	if err != nil {
		return apperr.New(apperr.KindInput, "parse --pages", err)
	}

	if *language != "" {
		if _, err := bcp47.Parse(*language); err != nil {
			return apperr.New(apperr.KindInput, fmt.Sprintf("--language %q is not a valid BCP 47 tag", *language), err)
		}
	}

	overrides := analyzer.Overrides{Language: *language, Direction: types.TextDirection(*direction)}

	retryOpts := llmclient.RetryOptions{MaxRetries: cfg.ProviderMaxRetries, BaseRetryDelayMillis: cfg.BaseRetryDelayMillis}
	generatorClient, err := llmclient.New(ctx, cfg.Generator, "generator", retryOpts, logger)
	if err != nil {
		return apperr.New(apperr.KindCredential, "construct generator client", err)
	}
	an := analyzer.New(generatorClient, logger)

	if *dryRun {
		return runDryRun(ctx, ing, an, pdfPath, indices, overrides, documentName(pdfPath))
	}

	gen := generator.New(generatorClient, logger)
	ren := renderer.New(renderer.Options{
		WidthPx:        cfg.RenderWidthPx,
		HeightPx:       cfg.RenderHeightPx,
		TimeoutSeconds: cfg.RenderTimeoutSeconds,
	}, logger)

	mj, err := buildMultiJudge(ctx, cfg, generatorClient, logger)
	if err != nil {
		return err
	}

	l := loop.New(ing, an, gen, ren, mj, logger)
	summary, err := l.Run(ctx, pdfPath, documentName(pdfPath), indices, loop.Options{
		OutputDir:   *output,
		TargetScore: cfg.TargetScore,
		MaxRetries:  cfg.MaxRetries,
		Force:       *force,
		Overrides:   overrides,
	})
	if err != nil {
		return err
	}

	printSummary(summary)
	if summary.Passed < summary.Pages {
		return &exitBestEffortFromSummary{summary: summary}
	}
	return nil
}

// buildMultiJudge wires judge A against the generator's credential
// (reused as the default judge per spec §6: "at least one generator
// credential is required"), judge B only when cross-model judging and its
// credential are both configured, and the equation specialist /
// verification gate as thin Asker wrappers over whichever client is
// available.
func buildMultiJudge(ctx context.Context, cfg config.Config, generatorClient llmclient.Asker, logger *zap.Logger) (*multijudge.MultiJudge, error) {
	judgeA := judge.New(generatorClient, "judge-a", logger)

	retryOpts := llmclient.RetryOptions{MaxRetries: cfg.ProviderMaxRetries, BaseRetryDelayMillis: cfg.BaseRetryDelayMillis}

	var judgeBComparer judge.Comparer
	if cfg.EnableCrossJudge && cfg.JudgeB.APIKey != "" {
		judgeBClient, err := llmclient.New(ctx, cfg.JudgeB, "judge-b", retryOpts, logger)
		if err != nil {
			return nil, apperr.New(apperr.KindCredential, "construct judge B client", err)
		}
		judgeBComparer = judge.New(judgeBClient, "judge-b", logger)
	}

	var equationSpecialist llmclient.Asker
	var verificationGate llmclient.Asker
	if cfg.EnableEquationSpecialist || cfg.EnableVerificationGate {
		equationSpecialist = generatorClient
		verificationGate = generatorClient
	}

	mjCfg := multijudge.Config{
		EnableCrossJudge:         cfg.EnableCrossJudge && judgeBComparer != nil,
		EnableEquationSpecialist: cfg.EnableEquationSpecialist,
		EnableVerificationGate:   cfg.EnableVerificationGate,
		WeightA:                  cfg.JudgeWeightA,
		WeightB:                  cfg.JudgeWeightB,
		TargetScore:              cfg.TargetScore,
	}
	return multijudge.New(judgeA, judgeBComparer, equationSpecialist, verificationGate, mjCfg, logger), nil
}

func runDryRun(ctx context.Context, ing *ingestor.Ingestor, an *analyzer.Analyzer, pdfPath string, indices []int, overrides analyzer.Overrides, docName string) error {
	sample := indices
	if len(sample) > 3 {
		sample = sample[:3]
	}
	pages := make([]types.PageAssets, 0, len(sample))
	for _, idx := range sample {
		assets, err := ing.Rasterize(pdfPath, idx)
		if err != nil {
			return err
		}
		pages = append(pages, *assets)
	}

	analysis := an.Analyze(ctx, pages, overrides)
	addendum := analyzer.BuildPromptAddendum(analysis)

	fmt.Printf("document: %s\n", docName)
	fmt.Printf("primary_language: %s\n", analysis.PrimaryLanguage)
	fmt.Printf("text_direction: %s\n", analysis.TextDirection)
	fmt.Printf("layout_type: %s (columns=%d)\n", analysis.LayoutType, analysis.ColumnCount)
	fmt.Printf("has_equations: %v (%s)\n", analysis.HasEquations, analysis.EquationComplexity)
	fmt.Printf("has_tables: %v  has_figures: %v  has_code_blocks: %v\n", analysis.HasTables, analysis.HasFigures, analysis.HasCodeBlocks)
	fmt.Println()
	fmt.Println("prompt addendum:")
	fmt.Println(addendum.Text)
	return nil
}

func runCheck(args []string) error {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return apperr.New(apperr.KindInput, "parse check flags", err)
	}

	logger := logging.Nop()
	cfg, credErr := config.Load()
	credOK, credReason := checkCredentials(cfg, credErr)
	rendererOK, rendererReason := checkRenderer(logger)

	fmt.Printf("credentials: %s (%s)\n", status(credOK), credReason)
	fmt.Printf("renderer:    %s (%s)\n", status(rendererOK), rendererReason)

	if !credOK || !rendererOK {
		return apperr.New(apperr.KindCredential, "one or more checks failed", nil)
	}
	return nil
}

func status(ok bool) string {
	if ok {
		return "ok"
	}
	return "fail"
}

// checkCredentials validates that config.Load succeeded, i.e. at least a
// generator credential is present and internally consistent (SPEC_FULL
// §12: "check verifies the renderer, not just credentials" — this is the
// credentials half of that pair).
func checkCredentials(cfg config.Config, loadErr error) (bool, string) {
	if loadErr != nil {
		return false, loadErr.Error()
	}
	return true, fmt.Sprintf("generator model %q configured", cfg.Generator.Model)
}

// checkRenderer probes that a headless-Chrome-capable environment is
// reachable, mirroring the teacher's checkPopplerAvailable() binary-probe
// idiom (internal/pdf/pdf_to_image.go) generalized from "is pdftoppm on
// PATH" to "can chromedp find a Chrome binary".
func checkRenderer(logger *zap.Logger) (bool, string) {
	r := renderer.New(renderer.Options{WidthPx: 800, HeightPx: 600, TimeoutSeconds: 5}, logger)
	if err := r.Render(context.Background(), "<html><body>ok</body></html>", filepath.Join(os.TempDir(), "pdf2html_check.png")); err != nil {
		return false, err.Error()
	}
	return true, "headless renderer reachable"
}

func printSummary(summary *types.DocumentSummary) {
	for _, p := range summary.PageResults {
		state := "accepted"
		if !p.Success {
			state = "best-effort"
		}
		fmt.Printf("page %3d: %-11s score=%3d iterations=%d\n", p.PageIndex+1, state, p.FinalScore, p.IterationsRun)
	}
	fmt.Printf("\n%d/%d pages passed, average score %.1f, average iterations %.1f\n",
		summary.Passed, summary.Pages, summary.AverageScore, summary.AverageIterations)
}

type exitBestEffortFromSummary struct{ summary *types.DocumentSummary }

func (e *exitBestEffortFromSummary) Error() string {
	return fmt.Sprintf("%d/%d pages ended as best-effort", e.summary.Pages-e.summary.Passed, e.summary.Pages)
}

func documentName(pdfPath string) string {
	base := filepath.Base(pdfPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// parsePageRange parses spec §6's 1-based range spec ("1", "1-3", "1,3,5")
// into 0-based page indices. An empty spec means every page.
func parsePageRange(spec string, pageCount int) ([]int, error) {
	if spec == "" {
		indices := make([]int, pageCount)
		for i := range indices {
			indices[i] = i
		}
		return indices, nil
	}

	seen := make(map[int]bool)
	var indices []int
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.Contains(part, "-") {
			bounds := strings.SplitN(part, "-", 2)
			lo, err := strconv.Atoi(strings.TrimSpace(bounds[0]))
			if err != nil {
				return nil, fmt.Errorf("invalid range %q", part)
			}
			hi, err := strconv.Atoi(strings.TrimSpace(bounds[1]))
			if err != nil {
				return nil, fmt.Errorf("invalid range %q", part)
			}
			for n := lo; n <= hi; n++ {
				if !seen[n] {
					seen[n] = true
					indices = append(indices, n-1)
				}
			}
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid page number %q", part)
		}
		if !seen[n] {
			seen[n] = true
			indices = append(indices, n-1)
		}
	}
	return indices, nil
}
