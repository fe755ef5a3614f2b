// Package backup shells out to the Postgres client tools for database dumps
// and restores. Artifacts live in a configured directory and are named with
// a uuid so concurrent dumps never collide.
package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Result describes a finished dump.
type Result struct {
	FileName  string
	SizeBytes int64
}

// Runner produces and restores database dumps. The memory-mode deployment
// uses NoopRunner since there is no database to dump.
type Runner interface {
	Dump(ctx context.Context) (Result, error)
	Restore(ctx context.Context, fileName string) error
}

type NoopRunner struct{}

func (NoopRunner) Dump(context.Context) (Result, error) {
	return Result{}, errors.New("backups require a postgres-backed deployment")
}

func (NoopRunner) Restore(context.Context, string) error {
	return errors.New("restore requires a postgres-backed deployment")
}

// PGRunner invokes pg_dump and pg_restore against the configured database.
type PGRunner struct {
	databaseURL string
	dir         string
	timeout     time.Duration
}

func NewPGRunner(databaseURL string, dir string) *PGRunner {
	return &PGRunner{
		databaseURL: databaseURL,
		dir:         dir,
		timeout:     5 * time.Minute,
	}
}

func (r *PGRunner) Dump(ctx context.Context) (Result, error) {
	if err := os.MkdirAll(r.dir, 0o750); err != nil {
		return Result{}, fmt.Errorf("create backup dir: %w", err)
	}

	fileName := fmt.Sprintf("backup-%s-%s.dump", time.Now().UTC().Format("20060102-150405"), uuid.NewString()[:8])
	path := filepath.Join(r.dir, fileName)

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "pg_dump", "--format=custom", "--file", path, r.databaseURL)
	if out, err := cmd.CombinedOutput(); err != nil {
		_ = os.Remove(path)
		return Result{}, fmt.Errorf("pg_dump: %w: %s", err, strings.TrimSpace(string(out)))
	}

	info, err := os.Stat(path)
	if err != nil {
		return Result{}, fmt.Errorf("stat backup artifact: %w", err)
	}
	return Result{FileName: fileName, SizeBytes: info.Size()}, nil
}

func (r *PGRunner) Restore(ctx context.Context, fileName string) error {
	// Reject anything that could escape the backup directory.
	if fileName == "" || fileName != filepath.Base(fileName) {
		return fmt.Errorf("invalid backup file name %q", fileName)
	}
	path := filepath.Join(r.dir, fileName)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("backup artifact %s: %w", fileName, err)
	}

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "pg_restore", "--clean", "--if-exists", "--dbname", r.databaseURL, path)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("pg_restore: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}
