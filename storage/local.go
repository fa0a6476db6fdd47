package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
)

// LocalStorage stores objects under a base directory on the local disk.
type LocalStorage struct {
	baseDir string
}

func NewLocalStorage(baseDir string) (*LocalStorage, error) {
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", baseDir, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", abs, err)
	}
	return &LocalStorage{baseDir: abs}, nil
}

func (s *LocalStorage) full(p string) string {
	return filepath.Join(s.baseDir, filepath.FromSlash(path.Clean("/"+p)))
}

// Write stages data in a temp file next to the target and renames it into
// place, so a concurrent reader never sees a half-written object.
func (s *LocalStorage) Write(ctx context.Context, p string, data io.Reader) error {
	target := s.full(p)
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	f, err := os.CreateTemp(dir, ".temp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if _, err := io.Copy(f, data); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", p, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("syncing %s: %w", p, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", p, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("renaming %s: %w", p, err)
	}
	slog.Debug("storage: wrote object", "path", p)
	return nil
}

func (s *LocalStorage) Read(ctx context.Context, p string) (io.ReadCloser, error) {
	f, err := os.Open(s.full(p))
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", p, err)
	}
	return f, nil
}

// List returns the children of dir sorted by name. Staged temp files are
// skipped.
func (s *LocalStorage) List(ctx context.Context, dir string) ([]Entry, error) {
	des, err := os.ReadDir(s.full(dir))
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}
	entries := make([]Entry, 0, len(des))
	for _, de := range des {
		if isTemp(de.Name()) {
			continue
		}
		entries = append(entries, Entry{Name: de.Name(), IsDir: de.IsDir()})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func (s *LocalStorage) Exists(ctx context.Context, p string) (bool, error) {
	fi, err := os.Stat(s.full(p))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", p, err)
	}
	return !fi.IsDir(), nil
}

func (s *LocalStorage) DirExists(ctx context.Context, dir string) (bool, error) {
	fi, err := os.Stat(s.full(dir))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", dir, err)
	}
	return fi.IsDir(), nil
}

func (s *LocalStorage) MkdirAll(ctx context.Context, dir string) error {
	if err := os.MkdirAll(s.full(dir), 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}
	return nil
}

func (s *LocalStorage) Delete(ctx context.Context, p string) error {
	if err := os.Remove(s.full(p)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("deleting %s: %w", p, err)
	}
	return nil
}

func (s *LocalStorage) URI(p string) string {
	return s.full(p)
}

func isTemp(name string) bool {
	return len(name) > 6 && name[:6] == ".temp-"
}
