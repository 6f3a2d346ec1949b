// Package manifest resolves the front-end dependency files declared in a
// bower manifest, in declaration order with each package's dependencies
// ahead of the package itself.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/tidwall/gjson"
)

// DefaultComponentsDir is where bower installs packages when .bowerrc is silent
const DefaultComponentsDir = "bower_components"

// Resolver reads a bower manifest and the installed package manifests
type Resolver struct {
	Root          string // Project root
	Manifest      string // Manifest path, relative to Root unless absolute
	ComponentsDir string // Overrides .bowerrc; empty means auto-detect
}

// pkg is the part of a package manifest that drives resolution
type pkg struct {
	main []string
	deps []string
}

// ManifestPath returns the absolute manifest path
func (r Resolver) ManifestPath() string {
	if filepath.IsAbs(r.Manifest) {
		return r.Manifest
	}
	return filepath.Join(r.Root, r.Manifest)
}

// Components returns the absolute components directory
func (r Resolver) Components() (string, error) {
	dir := r.ComponentsDir
	if dir == "" {
		dir = DefaultComponentsDir
		rc := filepath.Join(r.Root, ".bowerrc")
		// #nosec G304 - .bowerrc lives in the project root
		data, err := os.ReadFile(rc)
		switch {
		case err == nil:
			if !gjson.ValidBytes(data) {
				return "", fmt.Errorf("parse %s: invalid JSON", rc)
			}
			if d := gjson.GetBytes(data, "directory").String(); d != "" {
				dir = d
			}
		case !os.IsNotExist(err):
			return "", fmt.Errorf("read %s: %w", rc, err)
		}
	}
	if filepath.IsAbs(dir) {
		return dir, nil
	}
	return filepath.Join(r.Root, dir), nil
}

// Files resolves every main file of every dependency, dependencies first,
// each file listed once
func (r Resolver) Files() ([]string, error) {
	path := r.ManifestPath()
	// #nosec G304 - manifest path comes from trusted configuration
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("parse manifest %s: invalid JSON", path)
	}
	root := gjson.ParseBytes(data)

	components, err := r.Components()
	if err != nil {
		return nil, err
	}

	w := &walker{
		components: components,
		overrides:  root.Get("overrides"),
		visited:    make(map[string]bool),
		seen:       make(map[string]bool),
	}
	for _, name := range keys(root.Get("dependencies")) {
		if err := w.visit(name); err != nil {
			return nil, err
		}
	}
	return w.files, nil
}

type walker struct {
	components string
	overrides  gjson.Result
	visited    map[string]bool
	seen       map[string]bool
	files      []string
}

func (w *walker) visit(name string) error {
	if w.visited[name] {
		return nil
	}
	w.visited[name] = true

	override := w.overrides.Get(gjson.Escape(name))
	if override.Get("ignore").Bool() {
		return nil
	}

	dir := filepath.Join(w.components, filepath.FromSlash(name))
	p, err := readPackage(dir, name)
	if err != nil {
		return err
	}
	if m := override.Get("main"); m.Exists() {
		p.main = stringList(m)
	}
	if d := override.Get("dependencies"); d.Exists() {
		p.deps = keys(d)
	}

	for _, dep := range p.deps {
		if err := w.visit(dep); err != nil {
			return err
		}
	}

	for _, entry := range p.main {
		matches, err := expandMain(dir, entry)
		if err != nil {
			return fmt.Errorf("package %s: %w", name, err)
		}
		for _, m := range matches {
			if !w.seen[m] {
				w.seen[m] = true
				w.files = append(w.files, m)
			}
		}
	}
	return nil
}

// readPackage loads .bower.json (written by bower on install) or bower.json
func readPackage(dir, name string) (pkg, error) {
	for _, file := range []string{".bower.json", "bower.json"} {
		path := filepath.Join(dir, file)
		// #nosec G304 - path is inside the components directory
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return pkg{}, fmt.Errorf("read %s: %w", path, err)
		}
		if !gjson.ValidBytes(data) {
			return pkg{}, fmt.Errorf("parse %s: invalid JSON", path)
		}
		res := gjson.ParseBytes(data)
		return pkg{
			main: stringList(res.Get("main")),
			deps: keys(res.Get("dependencies")),
		}, nil
	}
	if _, err := os.Stat(dir); err != nil {
		return pkg{}, fmt.Errorf("package %s is not installed in %s", name, filepath.Dir(dir))
	}
	// Installed without a manifest: no main files, no dependencies
	return pkg{}, nil
}

// expandMain resolves one main entry to absolute paths. Globs are expanded in
// lexical order; a literal entry must exist.
func expandMain(dir, entry string) ([]string, error) {
	entry = strings.TrimPrefix(filepath.ToSlash(entry), "./")
	if !strings.ContainsAny(entry, "*?[{") {
		path := filepath.Join(dir, filepath.FromSlash(entry))
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("main file %s: %w", entry, err)
		}
		return []string{path}, nil
	}

	if !doublestar.ValidatePattern(entry) {
		return nil, fmt.Errorf("invalid main pattern %q", entry)
	}
	matches, err := doublestar.Glob(os.DirFS(dir), entry, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("expand main pattern %q: %w", entry, err)
	}
	sort.Strings(matches)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, filepath.Join(dir, filepath.FromSlash(m)))
	}
	return out, nil
}

// keys returns the object keys of res in document order
func keys(res gjson.Result) []string {
	var out []string
	if !res.IsObject() {
		return out
	}
	res.ForEach(func(key, _ gjson.Result) bool {
		out = append(out, key.String())
		return true
	})
	return out
}

// stringList accepts a string or an array of strings
func stringList(res gjson.Result) []string {
	switch {
	case res.IsArray():
		var out []string
		for _, v := range res.Array() {
			if s := v.String(); s != "" {
				out = append(out, s)
			}
		}
		return out
	case res.Type == gjson.String && res.String() != "":
		return []string{res.String()}
	default:
		return nil
	}
}

// FilterExt keeps the files whose extension is ext (without the dot),
// preserving order
func FilterExt(files []string, ext string) []string {
	want := "." + strings.TrimPrefix(ext, ".")
	out := make([]string, 0, len(files))
	for _, f := range files {
		if strings.EqualFold(filepath.Ext(f), want) {
			out = append(out, f)
		}
	}
	return out
}
