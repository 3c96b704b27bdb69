// Package migrate owns the goose SQL migrations. The files under migrations/
// are embedded so every binary carries the schema it was built against.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/pressly/goose/v3"
)

// DefaultDir is the on-disk location of the embedded migrations, used by
// the create and validate commands.
const DefaultDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// Source resolves dir to a migration filesystem. An empty dir selects the
// embedded copy.
func Source(dir string) (fs.FS, error) {
	if dir == "" {
		return fs.Sub(embedded, "migrations")
	}
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("migrations dir %q: %w", dir, err)
	}
	return os.DirFS(dir), nil
}

// Runner applies migrations from one source against one database. It never
// closes the database it was given.
type Runner struct {
	provider *goose.Provider
}

func NewRunner(db *sql.DB, source fs.FS) (*Runner, error) {
	if db == nil {
		return nil, errors.New("migrate: db is required")
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, source)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return &Runner{provider: provider}, nil
}

// Step is one applied or rolled back migration.
type Step struct {
	Version   int64
	Path      string
	Direction string
	Empty     bool
}

func (r *Runner) Up(ctx context.Context) ([]Step, error) {
	results, err := r.provider.Up(ctx)
	return steps(results), wrap("up", err)
}

// Down rolls back the most recent migration only.
func (r *Runner) Down(ctx context.Context) ([]Step, error) {
	result, err := r.provider.Down(ctx)
	if result == nil {
		return nil, wrap("down", err)
	}
	return steps([]*goose.MigrationResult{result}), wrap("down", err)
}

// To moves the schema up or down until target is the current version.
func (r *Runner) To(ctx context.Context, target int64) ([]Step, error) {
	current, err := r.provider.GetDBVersion(ctx)
	if err != nil {
		return nil, wrap("version", err)
	}
	switch {
	case target > current:
		results, err := r.provider.UpTo(ctx, target)
		return steps(results), wrap(fmt.Sprintf("up-to %d", target), err)
	case target < current:
		results, err := r.provider.DownTo(ctx, target)
		return steps(results), wrap(fmt.Sprintf("down-to %d", target), err)
	default:
		return nil, nil
	}
}

// Version reports the highest applied migration.
func (r *Runner) Version(ctx context.Context) (int64, error) {
	v, err := r.provider.GetDBVersion(ctx)
	return v, wrap("version", err)
}

// Pending lists migrations that exist in the source but are not applied.
func (r *Runner) Pending(ctx context.Context) ([]Step, error) {
	statuses, err := r.provider.Status(ctx)
	if err != nil {
		return nil, wrap("status", err)
	}
	var out []Step
	for _, st := range statuses {
		if st.State == goose.StatePending && st.Source != nil {
			out = append(out, Step{Version: st.Source.Version, Path: st.Source.Path, Direction: "pending"})
		}
	}
	return out, nil
}

func steps(results []*goose.MigrationResult) []Step {
	out := make([]Step, 0, len(results))
	for _, res := range results {
		if res == nil || res.Source == nil {
			continue
		}
		out = append(out, Step{
			Version:   res.Source.Version,
			Path:      res.Source.Path,
			Direction: res.Direction,
			Empty:     res.Empty,
		})
	}
	return out
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("goose %s: %w", op, err)
}
