package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

const (
	ckptExt       = ".ckpt"
	tmpExt        = ".tmp"
	quarantineExt = ".corrupt"
)

// FileStoreOption configures a FileStore.
type FileStoreOption func(*FileStore)

// WithFileLogger sets a custom logger.
func WithFileLogger(l *slog.Logger) FileStoreOption {
	return func(s *FileStore) { s.logger = l }
}

// FileStore persists progress as one msgpack file per (workflow, step) pair.
// Writes go through a temp file, fsync, and rename so a crash mid-write
// leaves either the previous checkpoint or none, never a torn one.
type FileStore struct {
	dir    string
	logger *slog.Logger
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a FileStore rooted at dir, creating it if needed.
func NewFileStore(dir string, opts ...FileStoreOption) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("checkpoint: create dir: %w", err)
	}
	s := &FileStore{dir: dir, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Dir returns the directory checkpoints are written to.
func (s *FileStore) Dir() string { return s.dir }

// Load reads the progress for a step. A missing file yields (nil, nil). A
// file that cannot be decoded is renamed aside with a .corrupt suffix and
// reported as ErrCorrupt, so the caller can resume from empty state.
func (s *FileStore) Load(_ context.Context, workflow, stepID string) (*Progress, error) {
	path := s.path(workflow, stepID)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("checkpoint: read %s: %w", path, err)
	}

	var p Progress
	if err := msgpack.Unmarshal(data, &p); err != nil {
		s.quarantine(path, err)
		return nil, fmt.Errorf("%w: %s", ErrCorrupt, path)
	}
	return &p, nil
}

// Save atomically replaces the progress file for a step.
func (s *FileStore) Save(_ context.Context, p *Progress) error {
	data, err := msgpack.Marshal(p)
	if err != nil {
		return fmt.Errorf("checkpoint: encode progress: %w", err)
	}

	path := s.path(p.Workflow, p.StepID)
	tmp := path + tmpExt

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("checkpoint: open temp: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("checkpoint: write temp: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("checkpoint: sync temp: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("checkpoint: close temp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("checkpoint: rename: %w", err)
	}
	// The rename itself lives in the directory; sync it so the replace
	// survives power loss, not just process death.
	return s.syncDir()
}

func (s *FileStore) syncDir() error {
	d, err := os.Open(s.dir)
	if err != nil {
		return fmt.Errorf("checkpoint: open dir: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("checkpoint: sync dir: %w", err)
	}
	return nil
}

// Clear removes all checkpoint files belonging to a workflow.
func (s *FileStore) Clear(_ context.Context, workflow string) error {
	prefix := sanitize(workflow) + "__"
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("checkpoint: read dir: %w", err)
	}
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ckptExt) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
			return fmt.Errorf("checkpoint: remove %s: %w", name, err)
		}
	}
	return nil
}

// Sweep removes temp files left behind by a crash mid-write. Safe to call
// on startup before any Save.
func (s *FileStore) Sweep() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("checkpoint: read dir: %w", err)
	}
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, tmpExt) {
			continue
		}
		path := filepath.Join(s.dir, name)
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("checkpoint: remove orphan %s: %w", name, err)
		}
		s.logger.Warn("removed orphaned checkpoint temp file", slog.String("path", path))
	}
	return nil
}

// Close is a no-op for the file store.
func (s *FileStore) Close() error { return nil }

func (s *FileStore) path(workflow, stepID string) string {
	return filepath.Join(s.dir, sanitize(workflow)+"__"+sanitize(stepID)+ckptExt)
}

func (s *FileStore) quarantine(path string, cause error) {
	aside := path + quarantineExt
	if err := os.Rename(path, aside); err != nil {
		s.logger.Warn("failed to quarantine corrupt checkpoint",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return
	}
	s.logger.Warn("quarantined corrupt checkpoint",
		slog.String("path", aside),
		slog.String("error", cause.Error()))
}

// sanitize maps a workflow or step name onto a safe filename component.
func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '.':
			return r
		default:
			return '_'
		}
	}, name)
}
