package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strconv"

	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/database"
)

// DefaultDir is the on-disk root used by the create/validate helpers.
const DefaultDir = "pkg/migrate/migrations"

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var embedded embed.FS

// Dir returns the on-disk directory holding migrations for dialect.
func Dir(dialect string) string {
	return path.Join(DefaultDir, dialect)
}

// Manager applies and inspects the embedded schema versions for one dialect.
type Manager struct {
	provider *goose.Provider
	dialect  string
}

// NewManager builds a Manager over db. The caller keeps ownership of db.
func NewManager(db *sql.DB, dialect string) (*Manager, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}

	var gooseDialect goose.Dialect
	switch dialect {
	case DialectPostgres:
		gooseDialect = goose.DialectPostgres
	case DialectSQLite:
		gooseDialect = goose.DialectSQLite3
	default:
		return nil, fmt.Errorf("unsupported migration dialect %q", dialect)
	}

	fsys, err := fs.Sub(embedded, path.Join("migrations", dialect))
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}

	provider, err := goose.NewProvider(gooseDialect, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("build goose provider: %w", err)
	}
	return &Manager{provider: provider, dialect: dialect}, nil
}

func (m *Manager) Dialect() string {
	return m.dialect
}

// CurrentVersion returns the highest applied version, or 0 on a fresh database.
func (m *Manager) CurrentVersion(ctx context.Context) (int64, error) {
	version, err := m.provider.GetDBVersion(ctx)
	if err != nil {
		if errors.Is(err, database.ErrVersionNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("get db version: %w", err)
	}
	return version, nil
}

// LatestVersion returns the newest embedded migration version.
func (m *Manager) LatestVersion() int64 {
	var latest int64
	for _, src := range m.provider.ListSources() {
		if src.Version > latest {
			latest = src.Version
		}
	}
	return latest
}

// ApplyPending runs every migration newer than the current version.
func (m *Manager) ApplyPending(ctx context.Context) ([]int64, error) {
	results, err := m.provider.Up(ctx)
	applied := appliedVersions(results)
	if err != nil {
		return applied, fmt.Errorf("goose up: %w", err)
	}
	return applied, nil
}

// Rollback reverts the most recently applied migration.
func (m *Manager) Rollback(ctx context.Context) (int64, error) {
	result, err := m.provider.Down(ctx)
	if err != nil {
		return 0, fmt.Errorf("goose down: %w", err)
	}
	if result == nil || result.Source == nil {
		return 0, nil
	}
	return result.Source.Version, nil
}

// MigrateTo moves the schema up or down until target is the current version.
func (m *Manager) MigrateTo(ctx context.Context, target int64) error {
	current, err := m.CurrentVersion(ctx)
	if err != nil {
		return err
	}

	switch {
	case current == target:
		return nil
	case current < target:
		if _, err := m.provider.UpTo(ctx, target); err != nil {
			return fmt.Errorf("goose up-to %d: %w", target, err)
		}
	default:
		if _, err := m.provider.DownTo(ctx, target); err != nil {
			return fmt.Errorf("goose down-to %d: %w", target, err)
		}
	}
	return nil
}

// WriteStatus prints one line per known migration.
func (m *Manager) WriteStatus(ctx context.Context, w io.Writer) error {
	statuses, err := m.provider.Status(ctx)
	if err != nil {
		return fmt.Errorf("goose status: %w", err)
	}
	for _, st := range statuses {
		applied := "pending"
		if st.State == goose.StateApplied {
			applied = st.AppliedAt.UTC().Format("2006-01-02 15:04:05")
		}
		if _, err := fmt.Fprintf(w, "%-16d %-20s %s\n", st.Source.Version, applied, path.Base(st.Source.Path)); err != nil {
			return err
		}
	}
	return nil
}

// ParseVersion parses a YYYYMMDDHHMMSS migration version.
func ParseVersion(raw string) (int64, error) {
	if raw == "" {
		return 0, fmt.Errorf("version is required")
	}
	version, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", raw, err)
	}
	return version, nil
}

func appliedVersions(results []*goose.MigrationResult) []int64 {
	versions := make([]int64, 0, len(results))
	for _, r := range results {
		if r == nil || r.Source == nil || r.Error != nil {
			continue
		}
		versions = append(versions, r.Source.Version)
	}
	return versions
}
