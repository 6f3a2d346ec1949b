package stylepipe

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// writeFileAtomic writes data to a temporary file in the target directory and
// renames it into place, creating parent directories as needed. An existing
// file keeps its permissions; new files get 0644.
func writeFileAtomic(name string, data []byte) error {
	mode := os.FileMode(0o644)
	if info, err := os.Stat(name); err == nil {
		mode = info.Mode().Perm()
	}

	dir := filepath.Dir(name)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(name)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, name); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// destStage writes assets under the destination directory, keeping their
// path relative to the glob base
type destStage struct {
	dir string
}

func (s *destStage) Name() string { return "dest" }

func (s *destStage) Process(_ context.Context, a *Asset) ([]*Asset, error) {
	target := filepath.Join(s.dir, filepath.FromSlash(a.Path))
	if err := writeFileAtomic(target, a.Contents); err != nil {
		return nil, ioError(s.Name(), target, err)
	}
	return []*Asset{a}, nil
}
