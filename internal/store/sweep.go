package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"
)

// Sweeper deletes store and context files that outlived the retention
// window. It is the only recovery path for generations whose terminal event
// never arrived.
type Sweeper struct {
	dirs   []string
	maxAge time.Duration
	logger *slog.Logger
}

// NewSweeper sweeps the given directories with the given retention window.
func NewSweeper(logger *slog.Logger, maxAge time.Duration, dirs ...string) *Sweeper {
	return &Sweeper{dirs: dirs, maxAge: maxAge, logger: logger}
}

// Sweep removes every file whose modification time is older than the
// retention window, unconditionally, and reports how many were removed.
// Directories are swept concurrently; per-file failures are logged and do
// not stop the sweep.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.maxAge)

	counts := make([]int, len(s.dirs))
	var g errgroup.Group
	for i, dir := range s.dirs {
		i, dir := i, dir
		g.Go(func() error {
			n, err := s.sweepDir(dir, cutoff)
			counts[i] = n
			return err
		})
	}
	err := g.Wait()

	total := 0
	for _, n := range counts {
		total += n
	}
	return total, err
}

func (s *Sweeper) sweepDir(dir string, cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("store: sweep %s: %w", dir, err)
	}

	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue // removed under us
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if err := os.Remove(path); err != nil {
			s.logger.Warn("store: sweep could not remove file", "path", path, "error", err)
			continue
		}
		s.logger.Info("store: swept abandoned file", "path", path, "age", time.Since(info.ModTime()).Round(time.Second))
		removed++
	}
	return removed, nil
}
