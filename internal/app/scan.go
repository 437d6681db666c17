package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"horse.fit/pagetranslate/internal/cli"
	"horse.fit/pagetranslate/internal/dom"
	"horse.fit/pagetranslate/internal/engine"
)

type scanReport struct {
	Input          string            `json:"input"`
	NativeLanguage string            `json:"native_language,omitempty"`
	TargetLanguage string            `json:"target_language"`
	Eligible       int               `json:"eligible"`
	Excluded       int               `json:"excluded"`
	Decisions      []engine.Decision `json:"decisions"`
}

func runScan(args []string) int {
	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	in := fs.String("in", "", "Input HTML file (- for stdin)")
	pageURL := fs.String("url", "", "Fetch the input page from this URL instead of --in")
	timeout := fs.Duration("timeout", 30*time.Second, "Fetch timeout for --url")
	lang := fs.String("lang", "", "Target language used for the already-English rule")
	rulesFile := fs.String("rules", "", "Eligibility rules YAML file (defaults to ENGINE_RULES_FILE)")
	all := fs.Bool("all", false, "Include excluded elements and the reason they were left out")
	formatRaw := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	format, err := parseOutputFormat(*formatRaw, outputFormatTable)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	inputPath := strings.TrimSpace(*in)
	if (inputPath == "") == (strings.TrimSpace(*pageURL) == "") {
		fmt.Fprintln(os.Stderr, "exactly one of --in or --url is required")
		return 2
	}
	if strings.TrimSpace(*lang) != "" && normalizeLanguageFlag(*lang) == "" {
		fmt.Fprintln(os.Stderr, "--lang must be a valid language code")
		return 2
	}

	cfg, err := loadConfig(envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	targetLang := normalizeLanguageFlag(*lang)
	if targetLang == "" {
		targetLang = normalizeLanguageFlag(cfg.DefaultTargetLanguage)
	}
	rulesPath := *rulesFile
	if strings.TrimSpace(rulesPath) == "" {
		rulesPath = cfg.EngineRulesFile
	}

	rules, err := loadRules(rulesPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	src, err := readSource(context.Background(), inputPath, *pageURL, *timeout)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	doc, err := src.document()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	report := buildScanReport(engine.NewScanner(rules), doc, src.name, targetLang, *all)
	report.NativeLanguage = src.nativeLanguage(cfg.DocumentLanguage, doc)

	if format == outputFormatJSON {
		if err := printJSON(report); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	rows := make([][]string, 0, len(report.Decisions))
	for _, decision := range report.Decisions {
		status := "yes"
		if !decision.Eligible {
			status = "no"
		}
		rows = append(rows, []string{
			decision.ID,
			decision.Tag,
			status,
			string(decision.Reason),
			truncateForTable(decision.Text, 60),
		})
	}
	if err := writeTable([]string{"ID", "TAG", "ELIGIBLE", "REASON", "TEXT"}, rows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to print table: %v\n", err)
		return 1
	}
	fmt.Fprintf(os.Stdout, "\n%d eligible, %d excluded (page %s, target %s)\n", report.Eligible, report.Excluded, orUnknown(report.NativeLanguage), report.TargetLanguage)
	return 0
}

func buildScanReport(scanner *engine.Scanner, doc *dom.Document, input, targetLang string, all bool) scanReport {
	_, decisions := scanner.Explain(doc, targetLang)

	report := scanReport{
		Input:          input,
		TargetLanguage: targetLang,
		Decisions:      make([]engine.Decision, 0, len(decisions)),
	}
	for _, decision := range decisions {
		if decision.Eligible {
			report.Eligible++
		} else {
			report.Excluded++
			if !all {
				continue
			}
		}
		report.Decisions = append(report.Decisions, decision)
	}
	return report
}

func orUnknown(lang string) string {
	if lang == "" {
		return "unknown"
	}
	return lang
}
