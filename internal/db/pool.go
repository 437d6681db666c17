package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"horse.fit/pagetranslate/internal/config"
)

var ErrNoRows = sql.ErrNoRows

const slowQueryThreshold = 500 * time.Millisecond

// PoolOptions configures a preference database connection.
type PoolOptions struct {
	DatabaseURL string
	MinConns    int
	MaxConns    int
	LogLevel    string
	Environment string
	Logger      zerolog.Logger
}

// Row defers the error of a single-row query to Scan.
type Row struct {
	row *sql.Row
}

func (r *Row) Scan(dest ...any) error {
	if r == nil || r.row == nil {
		return ErrNoRows
	}
	return r.row.Scan(dest...)
}

// Pool is the gorm-backed preference store.
type Pool struct {
	gdb   *gorm.DB
	sqlDB *sql.DB
}

// NewPool opens the database named by cfg and migrates the preference schema.
func NewPool(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Pool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	return Open(ctx, PoolOptions{
		DatabaseURL: cfg.DatabaseURL,
		MinConns:    int(cfg.DBMinConns),
		MaxConns:    int(cfg.DBMaxConns),
		LogLevel:    cfg.LogLevel,
		Environment: cfg.Environment,
		Logger:      log,
	})
}

func Open(ctx context.Context, opts PoolOptions) (*Pool, error) {
	dsn := strings.TrimSpace(opts.DatabaseURL)
	if dsn == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.New(gormLogWriter{log: opts.Logger.With().Str("component", "db").Logger()}, gormlogger.Config{
			SlowThreshold:             slowQueryThreshold,
			LogLevel:                  resolveGormLogLevel(opts.LogLevel, opts.Environment),
			IgnoreRecordNotFoundError: true,
		}),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open preference database: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql handle: %w", err)
	}
	maxOpen := opts.MaxConns
	if maxOpen <= 0 {
		maxOpen = 8
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(max(1, min(opts.MinConns, maxOpen)))
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	pool := &Pool{gdb: gdb, sqlDB: sqlDB}
	if err := pool.Ping(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	if err := pool.autoMigrate(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate preference schema: %w", err)
	}
	return pool, nil
}

func (p *Pool) QueryRow(ctx context.Context, query string, args ...any) *Row {
	if p == nil || p.gdb == nil {
		return &Row{}
	}
	return &Row{row: p.gdb.WithContext(ctx).Raw(query, args...).Row()}
}

// Exec runs a statement and returns the number of affected rows.
func (p *Pool) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	if p == nil || p.gdb == nil {
		return 0, fmt.Errorf("database pool is not initialized")
	}
	res := p.gdb.WithContext(ctx).Exec(query, args...)
	return res.RowsAffected, res.Error
}

func (p *Pool) Close() error {
	if p == nil || p.sqlDB == nil {
		return nil
	}
	return p.sqlDB.Close()
}

func (p *Pool) Ping(ctx context.Context) error {
	if p == nil || p.sqlDB == nil {
		return fmt.Errorf("database pool is not initialized")
	}
	if err := p.sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

func IsNoRows(err error) bool {
	return errors.Is(err, ErrNoRows)
}

// gormLogWriter sends gorm's query log through zerolog.
type gormLogWriter struct {
	log zerolog.Logger
}

func (w gormLogWriter) Printf(format string, args ...any) {
	w.log.Debug().Msg(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func resolveGormLogLevel(appLogLevel, environment string) gormlogger.LogLevel {
	switch strings.ToLower(strings.TrimSpace(appLogLevel)) {
	case "trace", "debug":
		return gormlogger.Info
	case "warn", "warning", "info", "":
		return gormlogger.Warn
	case "error":
		return gormlogger.Error
	case "silent", "disabled":
		return gormlogger.Silent
	}
	if strings.EqualFold(strings.TrimSpace(environment), "local") {
		return gormlogger.Warn
	}
	return gormlogger.Error
}
