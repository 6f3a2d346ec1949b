package stylepipe

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	ignore "github.com/sabhiram/go-gitignore"
)

// sourceFile is an entry style file matched by a source glob
type sourceFile struct {
	Base string // Absolute glob base ("/project/client/styles")
	Rel  string // Slash path relative to Base ("main.scss")
	Abs  string // Absolute file path
}

// loadGitIgnore loads the project's .gitignore.
// Gracefully degrades if .gitignore doesn't exist.
func loadGitIgnore(root string) *ignore.GitIgnore {
	gi, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore"))
	if err != nil {
		// No .gitignore is fine
		return nil
	}
	return gi
}

// hasMeta reports whether a pattern contains glob syntax
func hasMeta(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[{\\")
}

// expandSources resolves entry globs (slash paths relative to root) into files.
// Directories, duplicates and gitignored files are skipped. A literal path that
// does not exist is an I/O error.
func expandSources(root string, patterns []string) ([]sourceFile, error) {
	fsys := os.DirFS(root)
	gi := loadGitIgnore(root)

	var files []sourceFile
	seen := make(map[string]bool)

	for _, pattern := range patterns {
		pattern = path.Clean(filepath.ToSlash(pattern))
		if !doublestar.ValidatePattern(pattern) {
			return nil, ConfigError("invalid source pattern %q", pattern)
		}

		if !hasMeta(pattern) {
			if _, err := fs.Stat(fsys, pattern); err != nil {
				return nil, ioError("src", pattern, fmt.Errorf("file not found with singular glob: %w", err))
			}
		}

		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			if errors.Is(err, doublestar.ErrBadPattern) {
				return nil, ConfigError("invalid source pattern %q", pattern)
			}
			return nil, ioError("src", pattern, err)
		}

		base, _ := doublestar.SplitPattern(pattern)
		if !hasMeta(pattern) {
			base = path.Dir(pattern)
		}

		for _, match := range matches {
			if seen[match] {
				continue
			}
			seen[match] = true

			if gi != nil && gi.MatchesPath(match) {
				continue
			}

			rel := match
			if base != "." {
				rel = strings.TrimPrefix(match, base+"/")
			}
			files = append(files, sourceFile{
				Base: filepath.Join(root, filepath.FromSlash(base)),
				Rel:  rel,
				Abs:  filepath.Join(root, filepath.FromSlash(match)),
			})
		}
	}

	return files, nil
}
