package stylepipe

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"sync"

	"github.com/bep/godartsass/v2"
)

// SassCompiler compiles SCSS through a Dart Sass process speaking the
// embedded protocol. The process is started on first use and shared by all
// files of a run.
type SassCompiler struct {
	opts SassOptions

	mu         sync.Mutex
	transpiler *godartsass.Transpiler
}

// NewSassCompiler creates a compiler for the given options
func NewSassCompiler(opts SassOptions) *SassCompiler {
	if opts.Binary == "" {
		opts.Binary = "sass"
	}
	if opts.OutputStyle == "" {
		opts.OutputStyle = "compressed"
	}
	return &SassCompiler{opts: opts}
}

func (c *SassCompiler) start() (*godartsass.Transpiler, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.transpiler != nil {
		return c.transpiler, nil
	}
	t, err := godartsass.Start(godartsass.Options{
		DartSassEmbeddedFilename: c.opts.Binary,
	})
	if err != nil {
		return nil, fmt.Errorf("start dart sass %q: %w", c.opts.Binary, err)
	}
	c.transpiler = t
	return t, nil
}

// sassOutputStyle maps the configured style to the protocol value
func sassOutputStyle(style string) godartsass.OutputStyle {
	if style == "expanded" {
		return godartsass.OutputStyleExpanded
	}
	return godartsass.OutputStyleCompressed
}

// Compile runs one entry through Dart Sass
func (c *SassCompiler) Compile(ctx context.Context, req CompileRequest) (*CompileResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := c.start()
	if err != nil {
		return nil, err
	}

	fileURL := (&url.URL{Scheme: "file", Path: filepath.ToSlash(req.Filename)}).String()
	res, err := t.Execute(godartsass.Args{
		Source:                  string(req.Source),
		URL:                     fileURL,
		OutputStyle:             sassOutputStyle(c.opts.OutputStyle),
		SourceSyntax:            godartsass.SourceSyntaxSCSS,
		IncludePaths:            append(append([]string{}, req.LoadPaths...), c.opts.IncludePaths...),
		EnableSourceMap:         req.TrackMaps,
		SourceMapIncludeSources: true,
	})
	if err != nil {
		var sassErr godartsass.SassError
		if errors.As(err, &sassErr) {
			return nil, errors.New(sassErr.Message)
		}
		return nil, err
	}

	out := &CompileResult{CSS: []byte(res.CSS)}
	if req.TrackMaps && res.SourceMap != "" {
		m, err := ParseSourceMap([]byte(res.SourceMap))
		if err != nil {
			return nil, err
		}
		out.SourceMap = m
	}
	return out, nil
}

// Close stops the Dart Sass process
func (c *SassCompiler) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.transpiler == nil {
		return nil
	}
	err := c.transpiler.Close()
	c.transpiler = nil
	return err
}
