package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

//go:embed sql/*.sql
var embedded embed.FS

const embeddedDir = "sql"

// goose keeps its dialect and base filesystem in package state.
var gooseMu sync.Mutex

// Manager applies schema migrations with goose.
type Manager struct {
	db      *sql.DB
	dir     string
	fsys    fs.FS
	timeout time.Duration
	logger  *zap.Logger
}

// Option configures Manager.
type Option func(*Manager)

// WithDir reads migrations from a directory on disk instead of the embedded set.
func WithDir(dir string) Option {
	return func(m *Manager) {
		if dir != "" {
			m.dir = dir
			m.fsys = nil
		}
	}
}

// WithTimeout bounds each Up/Down run.
func WithTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithLogger overrides the manager logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewManager constructs a Manager over db using the embedded migrations.
func NewManager(db *sql.DB, opts ...Option) (*Manager, error) {
	if db == nil {
		return nil, errors.New("migrate: nil database")
	}
	m := &Manager{
		db:      db,
		dir:     embeddedDir,
		fsys:    embedded,
		timeout: time.Minute,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.fsys == nil {
		if _, err := os.Stat(m.dir); err != nil {
			return nil, fmt.Errorf("locate migrations dir: %w", err)
		}
	}
	return m, nil
}

// Up applies all pending migrations.
func (m *Manager) Up(ctx context.Context) error {
	return m.with(func() error {
		runCtx, cancel := context.WithTimeout(ctx, m.timeout)
		defer cancel()

		m.logger.Info("applying migrations", zap.String("dir", m.dir))
		if err := goose.UpContext(runCtx, m.db, m.dir); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
		m.logger.Info("migrations applied")
		return nil
	})
}

// Down rolls back the most recent migration, or down to target when target > 0.
func (m *Manager) Down(ctx context.Context, target int64) error {
	return m.with(func() error {
		runCtx, cancel := context.WithTimeout(ctx, m.timeout)
		defer cancel()

		if target > 0 {
			m.logger.Info("rolling back migrations", zap.Int64("target", target))
			if err := goose.DownToContext(runCtx, m.db, m.dir, target); err != nil {
				return fmt.Errorf("rollback to version %d: %w", target, err)
			}
			return nil
		}
		m.logger.Info("rolling back latest migration")
		if err := goose.DownContext(runCtx, m.db, m.dir); err != nil {
			return fmt.Errorf("rollback latest migration: %w", err)
		}
		return nil
	})
}

// Migration describes one known migration and whether it is applied.
type Migration struct {
	Version int64
	Source  string
	Applied bool
}

// Status returns every known migration with its applied flag.
func (m *Manager) Status(ctx context.Context) ([]Migration, error) {
	var out []Migration
	err := m.with(func() error {
		current, err := goose.GetDBVersionContext(ctx, m.db)
		if err != nil {
			return fmt.Errorf("read schema version: %w", err)
		}
		known, err := m.collect()
		if err != nil {
			return err
		}
		for _, mig := range known {
			out = append(out, Migration{Version: mig.Version, Source: mig.Source, Applied: mig.Version <= current})
		}
		return nil
	})
	return out, err
}

// Versions lists the versions of all known migrations without touching the database.
func (m *Manager) Versions() ([]int64, error) {
	var out []int64
	err := m.with(func() error {
		known, err := m.collect()
		if err != nil {
			return err
		}
		for _, mig := range known {
			out = append(out, mig.Version)
		}
		return nil
	})
	return out, err
}

func (m *Manager) collect() (goose.Migrations, error) {
	known, err := goose.CollectMigrations(m.dir, 0, goose.MaxVersion)
	if err != nil {
		return nil, fmt.Errorf("collect migrations: %w", err)
	}
	return known, nil
}

func (m *Manager) with(fn func() error) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(m.fsys)
	defer goose.SetBaseFS(nil)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("configure goose: %w", err)
	}
	return fn()
}
