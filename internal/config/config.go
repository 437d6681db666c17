package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"horse.fit/pagetranslate/internal/language"
	"horse.fit/pagetranslate/internal/translation"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// DatabaseURL is optional. Without it preferences live in memory.
	DatabaseURL string `envconfig:"DATABASE_URL" default:""`
	DBMinConns  int32  `envconfig:"DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"DB_MAX_CONNS" default:"8"`

	TranslationProvider  string        `envconfig:"TRANSLATION_PROVIDER" default:"local"`
	TranslationEndpoint  string        `envconfig:"TRANSLATION_ENDPOINT" default:""`
	TranslationModel     string        `envconfig:"TRANSLATION_MODEL" default:""`
	TranslationAPIKey    string        `envconfig:"TRANSLATION_API_KEY" default:""`
	TranslationTimeout   time.Duration `envconfig:"TRANSLATION_TIMEOUT" default:"120s"`
	TranslationBatchSize int           `envconfig:"TRANSLATION_BATCH_SIZE" default:"50"`

	DocumentLanguage      string `envconfig:"DOCUMENT_LANGUAGE" default:""`
	DefaultTargetLanguage string `envconfig:"DEFAULT_TARGET_LANGUAGE" default:"en"`
	EngineRulesFile       string `envconfig:"ENGINE_RULES_FILE" default:""`
	EngineStampIDs        bool   `envconfig:"ENGINE_STAMP_IDS" default:"false"`

	DocumentTTL        time.Duration `envconfig:"DOCUMENT_TTL" default:"30m"`
	MaxDocuments       int           `envconfig:"MAX_DOCUMENTS" default:"256"`
	CORSAllowedOrigins string        `envconfig:"CORS_ALLOWED_ORIGINS" default:""`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DBMinConns < 0 {
		return fmt.Errorf("DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) cannot exceed DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}

	switch strings.ToLower(strings.TrimSpace(c.TranslationProvider)) {
	case "local", "pseudo":
	case "http":
		if strings.TrimSpace(c.TranslationEndpoint) == "" {
			return fmt.Errorf("TRANSLATION_ENDPOINT is required when TRANSLATION_PROVIDER=http")
		}
	default:
		return fmt.Errorf("TRANSLATION_PROVIDER must be one of local, http, pseudo")
	}
	if c.TranslationTimeout <= 0 {
		return fmt.Errorf("TRANSLATION_TIMEOUT must be > 0")
	}
	if c.TranslationBatchSize < 1 {
		return fmt.Errorf("TRANSLATION_BATCH_SIZE must be >= 1")
	}

	if strings.TrimSpace(c.DocumentLanguage) != "" && language.NormalizeTag(c.DocumentLanguage) == "" {
		return fmt.Errorf("DOCUMENT_LANGUAGE %q is not a valid language tag", c.DocumentLanguage)
	}
	if language.NormalizeTag(c.DefaultTargetLanguage) == "" {
		return fmt.Errorf("DEFAULT_TARGET_LANGUAGE %q is not a valid language tag", c.DefaultTargetLanguage)
	}

	if c.DocumentTTL < time.Minute {
		return fmt.Errorf("DOCUMENT_TTL must be >= 1m")
	}
	if c.MaxDocuments < 1 {
		return fmt.Errorf("MAX_DOCUMENTS must be >= 1")
	}
	return nil
}

// TranslationSettings maps the provider variables onto the registry settings.
func (c *Config) TranslationSettings() translation.Settings {
	return translation.Settings{
		Provider: c.TranslationProvider,
		Endpoint: c.TranslationEndpoint,
		Model:    c.TranslationModel,
		APIKey:   c.TranslationAPIKey,
		Timeout:  c.TranslationTimeout,
	}
}

func (c *Config) CORSAllowedOriginsList() []string {
	if c == nil {
		return nil
	}

	parts := strings.Split(c.CORSAllowedOrigins, ",")
	origins := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		origin := strings.TrimSpace(part)
		if origin == "" {
			continue
		}
		if _, exists := seen[origin]; exists {
			continue
		}
		seen[origin] = struct{}{}
		origins = append(origins, origin)
	}
	return origins
}
