package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"horse.fit/pagetranslate/internal/cli"
	"horse.fit/pagetranslate/internal/engine"
	"horse.fit/pagetranslate/internal/logging"
	"horse.fit/pagetranslate/internal/translation"
)

func runTranslate(args []string) int {
	fs := flag.NewFlagSet("translate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	in := fs.String("in", "", "Input HTML file (- for stdin)")
	pageURL := fs.String("url", "", "Fetch the input page from this URL instead of --in")
	out := fs.String("out", stdioPath, "Output HTML file (- for stdout)")
	lang := fs.String("lang", "", "Target language (defaults to DEFAULT_TARGET_LANGUAGE)")
	sourceLang := fs.String("source-lang", "", "Language the page is written in (defaults to DOCUMENT_LANGUAGE, then detection)")
	provider := fs.String("provider", "", "Translation provider name (local, http, pseudo)")
	batchSize := fs.Int("batch-size", 0, "Texts per provider call (defaults to TRANSLATION_BATCH_SIZE)")
	rulesFile := fs.String("rules", "", "Eligibility rules YAML file (defaults to ENGINE_RULES_FILE)")
	timeout := fs.Duration("timeout", 10*time.Minute, "Command timeout")
	quiet := fs.Bool("quiet", false, "Do not print progress")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintf(os.Stderr, "unexpected arguments: %s\n", strings.Join(fs.Args(), " "))
		return 2
	}
	inputPath := strings.TrimSpace(*in)
	if (inputPath == "") == (strings.TrimSpace(*pageURL) == "") {
		fmt.Fprintln(os.Stderr, "exactly one of --in or --url is required")
		return 2
	}
	if *batchSize < 0 {
		fmt.Fprintln(os.Stderr, "--batch-size must be >= 1")
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
	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}

	targetLang := normalizeLanguageFlag(*lang)
	if targetLang == "" {
		targetLang = normalizeLanguageFlag(cfg.DefaultTargetLanguage)
	}
	native := strings.TrimSpace(*sourceLang)
	if native == "" {
		native = cfg.DocumentLanguage
	}
	size := *batchSize
	if size == 0 {
		size = cfg.TranslationBatchSize
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
	registry := translation.NewRegistryFromSettings(cfg.TranslationSettings())
	selected, err := registry.Provider(*provider)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, err := readSource(ctx, inputPath, *pageURL, *timeout)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	doc, err := src.document()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	doc.SetStampIDs(cfg.EngineStampIDs)
	native = src.nativeLanguage(native, doc)

	lastProgress := -1
	ctrl, err := engine.NewController(doc, selected, engine.Options{
		Rules:          rules,
		NativeLanguage: native,
		TargetLanguage: targetLang,
		BatchSize:      size,
		Logger:         logger,
		OnChange: func(state engine.State) {
			if *quiet || !state.Loading || state.Progress == lastProgress {
				return
			}
			lastProgress = state.Progress
			fmt.Fprintf(os.Stderr, "Translating to %s: %d%% (%d/%d)\n", state.TargetLanguage, state.Progress, state.Applied, state.Total)
		},
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	started := time.Now()
	translateErr := ctrl.Translate(ctx, targetLang)
	state := ctrl.State()

	if err := writeDocument(strings.TrimSpace(*out), ctrl); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	switch {
	case translateErr == nil:
		if !state.Translated {
			fmt.Fprintf(os.Stderr, "Page is already in %s; nothing translated\n", ctrl.NativeLanguage())
			return 0
		}
		fmt.Fprintf(os.Stderr, "Translated %d element(s) from %s to %s with %s in %s\n",
			state.Applied, ctrl.NativeLanguage(), state.TargetLanguage, selected.Name(), time.Since(started).Round(time.Millisecond))
		return 0
	case errors.Is(translateErr, engine.ErrNothingToTranslate):
		fmt.Fprintln(os.Stderr, engine.NothingToTranslateMessage)
		return 0
	default:
		if state.Partial {
			fmt.Fprintf(os.Stderr, "Translation failed after %d of %d element(s); partial output written\n", state.Applied, state.Total)
		}
		fmt.Fprintf(os.Stderr, "Translation failed: %v\n", translateErr)
		return 1
	}
}
