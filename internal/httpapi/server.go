package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"horse.fit/pagetranslate/internal/engine"
	"horse.fit/pagetranslate/internal/globaltime"
	"horse.fit/pagetranslate/internal/language"
	"horse.fit/pagetranslate/internal/translation"
)

type Options struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Deps are the collaborators every hosted document shares.
type Deps struct {
	Registry    *translation.Registry
	Preferences PreferenceStore
	Rules       *engine.Rules

	BatchSize             int
	StampIDs              bool
	DefaultTargetLanguage string
	DocumentTTL           time.Duration
	MaxDocuments          int
	AllowedOrigins        []string
}

type Server struct {
	registry *translation.Registry
	prefs    PreferenceStore
	rules    *engine.Rules
	docs     *documentStore

	batchSize      int
	stampIDs       bool
	defaultTarget  string
	allowedOrigins []string

	// baseCtx outlives requests; background translations run under it.
	baseCtx context.Context
	logger  zerolog.Logger
	opts    Options
}

func NewServer(deps Deps, logger zerolog.Logger, opts Options) *Server {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = "0.0.0.0"
	}
	port := opts.Port
	if port <= 0 {
		port = 8090
	}
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		// Translations with wait=true hold the request open.
		writeTimeout = 5 * time.Minute
	}
	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}

	prefs := deps.Preferences
	if prefs == nil {
		prefs = NewMemoryPreferences()
	}
	rules := deps.Rules
	if rules == nil {
		rules = engine.DefaultRules()
	}
	defaultTarget := language.NormalizeCode(deps.DefaultTargetLanguage)
	if defaultTarget == "" {
		defaultTarget = "en"
	}
	origins := deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	return &Server{
		registry:       deps.Registry,
		prefs:          prefs,
		rules:          rules,
		docs:           newDocumentStore(deps.DocumentTTL, deps.MaxDocuments),
		batchSize:      deps.BatchSize,
		stampIDs:       deps.StampIDs,
		defaultTarget:  defaultTarget,
		allowedOrigins: origins,
		baseCtx:        context.Background(),
		logger:         logger,
		opts: Options{
			Host:            host,
			Port:            port,
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			ShutdownTimeout: shutdownTimeout,
		},
	}
}

// Handler builds the echo router with middleware and routes.
func (s *Server) Handler() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: s.allowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       3600,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Err(v.Error).
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Str("remote_ip", v.RemoteIP).
					Str("request_id", v.RequestID).
					Msg("http request failed")
				return nil
			}

			s.logger.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("request_id", v.RequestID).
				Msg("http request")
			return nil
		},
	}))

	api := e.Group("/api/v1")
	api.GET("/health", s.handleHealth)
	api.GET("/languages", s.handleLanguages)

	api.POST("/documents", s.handleCreateDocument)
	api.GET("/documents/:id", s.handleGetDocument)
	api.GET("/documents/:id/state", s.handleDocumentState)
	api.POST("/documents/:id/translate", s.handleTranslateDocument)
	api.POST("/documents/:id/restore", s.handleRestoreDocument)
	api.DELETE("/documents/:id", s.handleDeleteDocument)

	api.GET("/preferences/:client_id", s.handleGetPreference)
	api.PUT("/preferences/:client_id", s.handlePutPreference)
	api.DELETE("/preferences/:client_id", s.handleDeletePreference)

	return e
}

func (s *Server) Start(ctx context.Context) error {
	if s == nil || s.registry == nil {
		return fmt.Errorf("server is not initialized")
	}
	s.baseCtx = ctx

	e := s.Handler()
	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if shutdownErr := e.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logger.Error().Err(shutdownErr).Msg("server shutdown failed")
		}
	}()

	s.logger.Info().
		Str("addr", addr).
		Str("provider", s.registry.DefaultProvider()).
		Msg("pagetranslate server started")

	if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	s.logger.Info().Msg("pagetranslate server stopped")
	return nil
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "Internal server error"
	if he, ok := err.(*echo.HTTPError); ok {
		status = he.Code
		switch v := he.Message.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				message = v
			}
		default:
			if text := strings.TrimSpace(http.StatusText(status)); text != "" {
				message = text
			}
		}
	} else if err != nil {
		message = err.Error()
	}

	if status >= 500 {
		_ = internalError(c, "Internal server error")
		return
	}
	_ = fail(c, status, message, nil)
}

func (s *Server) handleHealth(c echo.Context) error {
	return success(c, map[string]any{
		"service":   "pagetranslate",
		"provider":  s.registry.DefaultProvider(),
		"documents": s.docs.len(),
		"time":      globaltime.UTC(),
	})
}
