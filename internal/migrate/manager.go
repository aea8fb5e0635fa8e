// Package migrate applies the embedded accounts schema migrations with goose.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"

	"accountd.dev/internal/store/pg/migrations"
)

// Manager runs schema migrations against a PostgreSQL database.
type Manager struct {
	provider *goose.Provider
}

// Option configures Manager.
type Option func(*options)

type options struct {
	fsys    fs.FS
	verbose bool
}

// WithFS replaces the embedded migrations, mostly for tests.
func WithFS(fsys fs.FS) Option {
	return func(o *options) {
		if fsys != nil {
			o.fsys = fsys
		}
	}
}

// WithVerbose makes goose log each applied file.
func WithVerbose(v bool) Option {
	return func(o *options) { o.verbose = v }
}

// NewManager constructs a Manager over db.
func NewManager(db *sql.DB, opts ...Option) (*Manager, error) {
	o := options{fsys: migrations.FS}
	for _, opt := range opts {
		opt(&o)
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, o.fsys, goose.WithVerbose(o.verbose))
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return &Manager{provider: provider}, nil
}

// Up applies all pending migrations and returns the applied file names.
func (m *Manager) Up(ctx context.Context) ([]string, error) {
	results, err := m.provider.Up(ctx)
	names := make([]string, 0, len(results))
	for _, r := range results {
		names = append(names, r.Source.Path)
	}
	if err != nil {
		return names, fmt.Errorf("apply migrations: %w", err)
	}
	return names, nil
}

// Down rolls back the most recent applied migration.
func (m *Manager) Down(ctx context.Context) (string, error) {
	res, err := m.provider.Down(ctx)
	if errors.Is(err, goose.ErrNoNextVersion) {
		return "", errors.New("no migrations applied")
	}
	if err != nil {
		return "", fmt.Errorf("rollback migration: %w", err)
	}
	return res.Source.Path, nil
}

// Entry is one line of Status output.
type Entry struct {
	Version int64
	Name    string
	Applied bool
}

// Status lists every known migration with its applied state.
func (m *Manager) Status(ctx context.Context) ([]Entry, error) {
	statuses, err := m.provider.Status(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(statuses))
	for _, st := range statuses {
		out = append(out, Entry{
			Version: st.Source.Version,
			Name:    st.Source.Path,
			Applied: st.State == goose.StateApplied,
		})
	}
	return out, nil
}

// Version returns the current schema version.
func (m *Manager) Version(ctx context.Context) (int64, error) {
	return m.provider.GetDBVersion(ctx)
}
