package app

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"horse.fit/pagetranslate/internal/cli"
	"horse.fit/pagetranslate/internal/translation"
)

func runLanguages(args []string) int {
	fs := flag.NewFlagSet("languages", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
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

	cfg, err := loadConfig(envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	registry := translation.NewRegistryFromSettings(cfg.TranslationSettings())
	options := translation.TranslationLanguageOptions(registry)

	if format == outputFormatJSON {
		if err := printJSON(map[string]any{
			"default_provider": registry.DefaultProvider(),
			"providers":        registry.ProviderNames(),
			"items":            options,
		}); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	rows := make([][]string, 0, len(options))
	for _, option := range options {
		rows = append(rows, []string{option.Code, option.Label, option.Native})
	}
	if err := writeTable([]string{"CODE", "LANGUAGE", "NATIVE"}, rows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to print table: %v\n", err)
		return 1
	}
	return 0
}
