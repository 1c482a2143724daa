// Package store persists spans and trace context as flat files under a
// storage root, one file per generation or conversation. Files are the only
// shared state between hook invocations; every operation takes a file lock
// and re-reads from disk, never caching across calls.
package store

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spanlink/spanlink/internal/otlp"
)

// maxLineBytes bounds a single stored record line. Anything larger is
// treated as malformed at drain time.
const maxLineBytes = 8 << 20

// spanLine is the persisted form of one span: the wire span plus a
// transient per-line resource fragment that is stripped and merged at drain.
type spanLine struct {
	otlp.Span
	Resource map[string]any `json:"_resource,omitempty"`
}

// Drained is the result of draining one generation's store file.
type Drained struct {
	Spans []otlp.Span
	// Resource is the last-write-wins merge of per-line fragments.
	Resource map[string]any
	// Lines counts every non-empty line consumed, including malformed
	// ones, so the flusher can discard exactly the drained prefix.
	Lines int
}

// SpanStore is the per-generation append-only record store.
type SpanStore struct {
	dir         string
	lockTimeout time.Duration
	logger      *slog.Logger
}

// NewSpanStore creates the store directory if needed.
func NewSpanStore(dir string, lockTimeout time.Duration, logger *slog.Logger) (*SpanStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("store: create span directory: %w", err)
	}
	return &SpanStore{dir: dir, lockTimeout: lockTimeout, logger: logger}, nil
}

// Dir returns the store directory, for the retention sweeper.
func (s *SpanStore) Dir() string { return s.dir }

func (s *SpanStore) path(genID string) string {
	return filepath.Join(s.dir, fileName(genID)+".jsonl")
}

// Append writes one record line for the generation. The line is written and
// synced to disk before the lock is released, so any drain that acquires the
// lock afterwards observes it.
func (s *SpanStore) Append(ctx context.Context, genID string, span otlp.Span, resource map[string]any) error {
	path := s.path(genID)

	line, err := json.Marshal(spanLine{Span: span, Resource: resource})
	if err != nil {
		return fmt.Errorf("store: marshal span record: %w", err)
	}
	line = append(line, '\n')

	fl, err := acquireLock(ctx, path, s.lockTimeout, false)
	if err != nil {
		return err
	}
	defer releaseLock(fl)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("store: open span file: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return fmt.Errorf("store: append span record: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("store: sync span file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("store: close span file: %w", err)
	}
	return nil
}

// Drain reads every record for the generation under a shared lock.
// A missing file drains to zero records. Unparseable lines (for example the
// partial tail left by a process killed mid-write) are logged and skipped,
// never aborting the drain.
func (s *SpanStore) Drain(ctx context.Context, genID string) (Drained, error) {
	path := s.path(genID)

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Drained{}, nil
	}

	fl, err := acquireLock(ctx, path, s.lockTimeout, true)
	if err != nil {
		return Drained{}, err
	}
	defer releaseLock(fl)

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Drained{}, nil
		}
		return Drained{}, fmt.Errorf("store: open span file for drain: %w", err)
	}
	defer f.Close()

	var d Drained
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64<<10), maxLineBytes)
	for sc.Scan() {
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		d.Lines++

		var rec spanLine
		if err := json.Unmarshal(raw, &rec); err != nil {
			s.logger.Warn("store: skipping malformed span record",
				"generation_id", genID, "line", d.Lines, "error", err)
			continue
		}
		if len(rec.Resource) > 0 {
			if d.Resource == nil {
				d.Resource = make(map[string]any, len(rec.Resource))
			}
			for k, v := range rec.Resource {
				d.Resource[k] = v
			}
		}
		d.Spans = append(d.Spans, rec.Span)
	}
	if err := sc.Err(); err != nil {
		// Oversized or unreadable tail: keep what parsed so far.
		s.logger.Warn("store: drain stopped early", "generation_id", genID, "error", err)
	}
	return d, nil
}

// DiscardDrained removes the records consumed by a drain of drainedLines
// lines. If the file still holds exactly that many lines it is deleted;
// if more lines arrived since the drain, the file is rewritten with only
// the surviving tail so a racing append is never lost.
func (s *SpanStore) DiscardDrained(ctx context.Context, genID string, drainedLines int) error {
	path := s.path(genID)

	fl, err := acquireLock(ctx, path, s.lockTimeout, false)
	if err != nil {
		return err
	}
	defer releaseLock(fl)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("store: read span file for discard: %w", err)
	}

	var tail [][]byte
	seen := 0
	for _, raw := range bytes.Split(data, []byte("\n")) {
		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}
		seen++
		if seen > drainedLines {
			tail = append(tail, raw)
		}
	}

	if len(tail) == 0 {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("store: remove drained span file: %w", err)
		}
		return nil
	}

	// Rewrite atomically so a reader never observes a half-truncated file.
	buf := append(bytes.Join(tail, []byte("\n")), '\n')
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf, 0o600); err != nil {
		return fmt.Errorf("store: write surviving span records: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("store: replace span file: %w", err)
	}
	s.logger.Debug("store: kept records appended during flush",
		"generation_id", genID, "kept", len(tail))
	return nil
}

// Delete removes the generation's store file. Idempotent; a missing file is
// not an error.
func (s *SpanStore) Delete(genID string) error {
	if err := os.Remove(s.path(genID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("store: delete span file: %w", err)
	}
	return nil
}
