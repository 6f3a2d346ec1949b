package stylepipe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// ExecCompiler runs a preprocessor CLI that reads source on stdin and writes
// CSS with an inline source map to stdout
type ExecCompiler struct {
	plugin string
	binary string
	args   func(req CompileRequest) []string
}

// NewLessCompiler returns a compiler running lessc
func NewLessCompiler(opts LessOptions) *ExecCompiler {
	if opts.Binary == "" {
		opts.Binary = "lessc"
	}
	return &ExecCompiler{
		plugin: PreprocessorLess,
		binary: opts.Binary,
		args:   func(req CompileRequest) []string { return lessArgs(opts, req) },
	}
}

// NewStylusCompiler returns a compiler running stylus
func NewStylusCompiler(opts StylusOptions) *ExecCompiler {
	if opts.Binary == "" {
		opts.Binary = "stylus"
	}
	return &ExecCompiler{
		plugin: PreprocessorStylus,
		binary: opts.Binary,
		args:   func(req CompileRequest) []string { return stylusArgs(opts, req) },
	}
}

func lessArgs(opts LessOptions, req CompileRequest) []string {
	args := []string{"-", "--no-color"}
	if opts.Compress {
		args = append(args, "--compress")
	}
	paths := append(append([]string{}, req.LoadPaths...), opts.IncludePaths...)
	if len(paths) > 0 {
		args = append(args, "--include-path="+strings.Join(paths, string(filepath.ListSeparator)))
	}
	if req.TrackMaps {
		args = append(args, "--source-map-inline", "--source-map-include-source")
	}
	return args
}

func stylusArgs(opts StylusOptions, req CompileRequest) []string {
	var args []string
	if opts.Compress {
		args = append(args, "--compress")
	}
	for _, p := range append(append([]string{}, req.LoadPaths...), opts.IncludePaths...) {
		args = append(args, "--include", p)
	}
	if req.TrackMaps {
		args = append(args, "--sourcemap-inline")
	}
	return args
}

// Compile pipes the source through the CLI
func (c *ExecCompiler) Compile(ctx context.Context, req CompileRequest) (*CompileResult, error) {
	bin, err := exec.LookPath(c.binary)
	if err != nil {
		return nil, ConfigError("%s compiler %q not found in PATH", c.plugin, c.binary)
	}

	dir := filepath.Dir(req.Filename)
	// #nosec G204 - binary and arguments come from trusted configuration
	cmd := exec.CommandContext(ctx, bin, c.args(req)...)
	cmd.Dir = dir
	cmd.Stdin = bytes.NewReader(req.Source)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, errors.New(msg)
		}
		return nil, fmt.Errorf("run %s: %s", c.binary, msg)
	}

	css, m, err := extractInlineSourceMap(stdout.Bytes())
	if err != nil {
		return nil, err
	}
	if m != nil {
		resolveStdinSources(m, dir, req.Filename)
	}
	return &CompileResult{CSS: css, SourceMap: m}, nil
}

// Close is a no-op; each compile runs its own process
func (c *ExecCompiler) Close() error { return nil }

// resolveStdinSources rewrites the placeholder name a CLI gives its stdin input
// to the entry file, and makes the remaining sources absolute
func resolveStdinSources(m *SourceMap, dir, filename string) {
	for i, src := range m.Sources {
		switch src {
		case "", "-", "stdin", "input", "<stdin>":
			m.Sources[i] = filename
		default:
			if !filepath.IsAbs(localPath(src)) {
				m.Sources[i] = filepath.Join(dir, filepath.FromSlash(src))
			}
		}
	}
}
