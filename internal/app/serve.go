package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"horse.fit/pagetranslate/internal/cli"
	"horse.fit/pagetranslate/internal/db"
	"horse.fit/pagetranslate/internal/httpapi"
	"horse.fit/pagetranslate/internal/logging"
	"horse.fit/pagetranslate/internal/translation"
)

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	host := fs.String("host", "0.0.0.0", "Host interface to bind")
	port := fs.Int("port", 8090, "HTTP port")
	readTimeout := fs.Duration("read-timeout", 10*time.Second, "HTTP read timeout")
	writeTimeout := fs.Duration("write-timeout", 5*time.Minute, "HTTP write timeout (covers translate requests with wait=true)")
	shutdownTimeout := fs.Duration("shutdown-timeout", 10*time.Second, "Graceful shutdown timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if *port <= 0 || *port > 65535 {
		fmt.Fprintln(os.Stderr, "--port must be between 1 and 65535")
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

	rules, err := loadRules(cfg.EngineRulesFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	var prefs httpapi.PreferenceStore = httpapi.NewMemoryPreferences()
	if cfg.DatabaseURL != "" {
		dbCtx, dbCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer dbCancel()

		pool, err := db.NewPool(dbCtx, cfg, logger)
		if err != nil {
			logger.Error().Err(err).Msg("serve failed to connect to database")
			fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
			return 1
		}
		defer pool.Close()
		prefs = pool
	} else {
		logger.Warn().Msg("DATABASE_URL is not set; client preferences are kept in memory")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		<-sigCh
		cancel()
	}()

	srv := httpapi.NewServer(httpapi.Deps{
		Registry:              translation.NewRegistryFromSettings(cfg.TranslationSettings()),
		Preferences:           prefs,
		Rules:                 rules,
		BatchSize:             cfg.TranslationBatchSize,
		StampIDs:              cfg.EngineStampIDs,
		DefaultTargetLanguage: cfg.DefaultTargetLanguage,
		DocumentTTL:           cfg.DocumentTTL,
		MaxDocuments:          cfg.MaxDocuments,
		AllowedOrigins:        cfg.CORSAllowedOriginsList(),
	}, logger, httpapi.Options{
		Host:            *host,
		Port:            *port,
		ReadTimeout:     *readTimeout,
		WriteTimeout:    *writeTimeout,
		ShutdownTimeout: *shutdownTimeout,
	})

	if err := srv.Start(ctx); err != nil {
		logger.Error().Err(err).Str("host", *host).Int("port", *port).Msg("server failed")
		fmt.Fprintf(os.Stderr, "Server failed: %v\n", err)
		return 1
	}

	return 0
}
