package stylepipe

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ImportLines renders one @import statement per dependency, with paths
// relative to fromDir, in dependency order
func ImportLines(fromDir string, deps []string) []string {
	lines := make([]string, 0, len(deps))
	for _, dep := range deps {
		rel, err := filepath.Rel(fromDir, dep)
		if err != nil {
			rel = dep
		}
		rel = strings.ReplaceAll(filepath.ToSlash(rel), "'", `\'`)
		lines = append(lines, fmt.Sprintf("@import '%s';", rel))
	}
	return lines
}

// InjectImports replaces the marker region of src with imports for deps.
// file is used for error context and to compute relative import paths.
func InjectImports(src []byte, file string, deps []string, startMarker, endMarker string) ([]byte, error) {
	point, err := ParseInsertionPoint(src, startMarker, endMarker)
	if err != nil {
		return nil, injectionError(file, "%v", err)
	}
	return point.Splice(ImportLines(filepath.Dir(file), deps)), nil
}

// InjectFile rewrites the marker region of an entry file on disk.
// It reports whether the file content changed.
func InjectFile(file string, deps []string, startMarker, endMarker string) (bool, error) {
	// #nosec G304 - path comes from trusted configuration
	src, err := os.ReadFile(file)
	if err != nil {
		return false, ioError("inject", file, err)
	}

	out, err := InjectImports(src, file, deps, startMarker, endMarker)
	if err != nil {
		return false, err
	}
	if string(out) == string(src) {
		return false, nil
	}

	if err := writeFileAtomic(file, out); err != nil {
		return false, ioError("inject", file, err)
	}
	return true, nil
}

// injectStage splices dependency imports into each entry asset
type injectStage struct {
	deps        []string
	startMarker string
	endMarker   string
}

func (s *injectStage) Name() string { return "inject" }

func (s *injectStage) Process(_ context.Context, a *Asset) ([]*Asset, error) {
	out, err := InjectImports(a.Contents, a.Source, s.deps, s.startMarker, s.endMarker)
	if err != nil {
		return nil, err
	}
	a.Contents = out
	return []*Asset{a}, nil
}
