package cli

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// ErrEnvFileNotFound is returned when no candidate env file could be loaded.
var ErrEnvFileNotFound = errors.New("env file not found")

// overrideVars name env files that take precedence over the --env flag.
var overrideVars = []string{"PAGETRANSLATE_ENV_FILE", "HORSE_ENV_FILE"}

// EnvLoader loads .env files with a predictable override order.
type EnvLoader struct {
	fs          *flag.FlagSet
	value       *string
	defaultPath string
}

// AddEnvFlag registers an --env flag and returns an EnvLoader.
func AddEnvFlag(fs *flag.FlagSet, defaultPath, description string) *EnvLoader {
	if fs == nil {
		fs = flag.CommandLine
	}
	if defaultPath == "" {
		defaultPath = ".env"
	}
	if description == "" {
		description = "Path to the .env file"
	}

	value := fs.String("env", defaultPath, description)
	return &EnvLoader{
		fs:          fs,
		value:       value,
		defaultPath: defaultPath,
	}
}

// Explicit reports whether --env was passed on the command line.
func (l *EnvLoader) Explicit() bool {
	if l == nil || l.fs == nil {
		return false
	}
	explicit := false
	l.fs.Visit(func(f *flag.Flag) {
		if f.Name == "env" {
			explicit = true
		}
	})
	return explicit
}

// Load resolves and loads environment variables using the configured flag value.
func (l *EnvLoader) Load() (string, error) {
	if l == nil {
		return "", fmt.Errorf("env loader is nil")
	}

	log.SetOutput(os.Stderr)

	for _, envVar := range overrideVars {
		if custom := strings.TrimSpace(os.Getenv(envVar)); custom != "" {
			if err := godotenv.Overload(custom); err == nil {
				log.Printf("Loaded environment from %s: %s", envVar, custom)
				return custom, nil
			}
			log.Printf("Warning: failed to load %s=%s", envVar, custom)
		}
	}

	requested := strings.TrimSpace(derefString(l.value))
	if requested == "" {
		requested = l.defaultPath
	}

	if err := godotenv.Overload(requested); err == nil {
		log.Printf("Loaded environment from: %s", requested)
		return requested, nil
	}

	base := filepath.Base(requested)
	if base != "" && base != requested {
		if err := godotenv.Overload(base); err == nil {
			log.Printf("Loaded environment from basename fallback: %s", base)
			return base, nil
		}
	}

	if requested != l.defaultPath {
		if err := godotenv.Overload(l.defaultPath); err == nil {
			log.Printf("Loaded environment from fallback: %s", l.defaultPath)
			return l.defaultPath, nil
		}
	}

	return "", fmt.Errorf("%w: %s", ErrEnvFileNotFound, requested)
}

// LoadOptional is Load for commands that run fine on the process environment
// alone. A missing default file is not an error; a missing explicit one is.
func (l *EnvLoader) LoadOptional() error {
	_, err := l.Load()
	if errors.Is(err, ErrEnvFileNotFound) && !l.Explicit() {
		return nil
	}
	return err
}

func derefString(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
