package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"
	"time"
	"unicode/utf8"

	"horse.fit/pagetranslate/internal/cli"
	"horse.fit/pagetranslate/internal/config"
	"horse.fit/pagetranslate/internal/dom"
	"horse.fit/pagetranslate/internal/engine"
	"horse.fit/pagetranslate/internal/langdetect"
	"horse.fit/pagetranslate/internal/language"
	"horse.fit/pagetranslate/internal/reader"
)

const (
	outputFormatTable = "table"
	outputFormatJSON  = "json"

	stdioPath = "-"
)

func parseOutputFormat(raw, defaultFormat string) (string, error) {
	format := strings.TrimSpace(strings.ToLower(raw))
	if format == "" {
		format = strings.TrimSpace(strings.ToLower(defaultFormat))
	}
	switch format {
	case outputFormatTable, outputFormatJSON:
		return format, nil
	default:
		return "", fmt.Errorf("--format must be table or json")
	}
}

func normalizeLanguageFlag(raw string) string {
	return language.NormalizeTag(raw)
}

func truncateForTable(value string, maxLen int) string {
	trimmed := strings.Join(strings.Fields(value), " ")
	if maxLen <= 0 {
		return trimmed
	}
	if utf8.RuneCountInString(trimmed) <= maxLen {
		return trimmed
	}

	runes := []rune(trimmed)
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

func printJSON(value any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

func writeTable(headers []string, rows [][]string) error {
	writer := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	if _, err := fmt.Fprintln(writer, strings.Join(headers, "\t")); err != nil {
		return err
	}
	for _, row := range rows {
		if _, err := fmt.Fprintln(writer, strings.Join(row, "\t")); err != nil {
			return err
		}
	}
	return writer.Flush()
}

// loadConfig loads the optional .env file and then the environment config.
func loadConfig(envLoader *cli.EnvLoader) (*config.Config, error) {
	if envLoader != nil {
		if err := envLoader.LoadOptional(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// loadRules compiles the eligibility policy at path, or the defaults when
// path is empty.
func loadRules(path string) (*engine.Rules, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return engine.DefaultRules(), nil
	}
	policy, err := engine.LoadPolicyFile(path)
	if err != nil {
		return nil, fmt.Errorf("load rules file: %w", err)
	}
	rules, err := engine.Compile(policy)
	if err != nil {
		return nil, fmt.Errorf("compile rules file %s: %w", path, err)
	}
	return rules, nil
}

// source is a page loaded from a file, stdin or a URL.
type source struct {
	name string
	raw  []byte
	url  *url.URL
}

func readSource(ctx context.Context, path, pageURL string, timeout time.Duration) (*source, error) {
	if pageURL = strings.TrimSpace(pageURL); pageURL != "" {
		raw, err := reader.Fetch(ctx, pageURL, reader.FetchOptions{Timeout: timeout})
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", pageURL, err)
		}
		parsed, _ := url.Parse(pageURL)
		return &source{name: pageURL, raw: raw, url: parsed}, nil
	}

	var (
		raw []byte
		err error
	)
	if path == stdioPath {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return &source{name: path, raw: raw}, nil
}

func (s *source) document() (*dom.Document, error) {
	doc, err := dom.Parse(bytes.NewReader(s.raw))
	if err != nil {
		return nil, fmt.Errorf("parse input %s: %w", s.name, err)
	}
	return doc, nil
}

// nativeLanguage returns the explicit language, then the declared html lang,
// then a detection over the readable main text. An empty result leaves the
// decision to the controller.
func (s *source) nativeLanguage(explicit string, doc *dom.Document) string {
	if code := language.NormalizeCode(explicit); code != "" {
		return code
	}
	if code := language.NormalizeCode(doc.Lang()); code != "" && code != language.Undetermined {
		return code
	}
	text, err := reader.MainText(s.raw, s.url)
	if err != nil {
		return ""
	}
	return langdetect.DetectISO6391(text)
}

type renderer interface {
	Render(w io.Writer) error
}

func writeDocument(path string, doc renderer) error {
	if path == stdioPath {
		return doc.Render(os.Stdout)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := doc.Render(file); err != nil {
		_ = file.Close()
		return fmt.Errorf("render output: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	return nil
}
