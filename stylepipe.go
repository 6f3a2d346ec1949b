// Package stylepipe builds a project's stylesheets through a fixed pipeline:
// inject bower dependency imports, compile with Sass, Less or Stylus,
// add vendor prefixes, write source maps, write to a destination directory
// and notify live reload about the changed CSS.
//
// # Build
//
// Run the pipeline once:
//
//	p, _ := stylepipe.NewPreprocessor("sass")
//	config := stylepipe.DefaultConfig(".", p)
//	result, err := stylepipe.Build(ctx, config)
//
// Compile errors are printed to stderr and collected in result.Errors; the
// returned error is set only for failures that stop the run (missing markers,
// unreadable manifest, unwritable destination, invalid configuration).
//
// # Watch
//
// Rebuild whenever an entry, a partial or the manifest changes:
//
//	err := stylepipe.Watch(ctx, config, func(r *stylepipe.Result, err error) {
//		stylepipe.WriteOutput(os.Stdout, r, err, stylepipe.OutputText, false)
//	}, stylepipe.WithNotifier(hub))
//
// # CLI Tool
//
// stylepipe also provides a CLI tool. Install with:
//
//	go install github.com/yacobolo/stylepipe/cmd/stylepipe@latest
package stylepipe

import (
	"context"

	"github.com/yacobolo/stylepipe/internal/stylepipe"
)

type (
	// Config holds the pipeline configuration
	Config = stylepipe.Config
	// Result summarizes a single pipeline run
	Result = stylepipe.Result
	// BuildError carries the failing plugin and message of a build failure
	BuildError = stylepipe.BuildError
	// ErrorKind classifies a BuildError
	ErrorKind = stylepipe.ErrorKind
	// Preprocessor is one of SassOptions, LessOptions or StylusOptions
	Preprocessor = stylepipe.Preprocessor
	// SassOptions configures the Sass compiler
	SassOptions = stylepipe.SassOptions
	// LessOptions configures the lessc compiler
	LessOptions = stylepipe.LessOptions
	// StylusOptions configures the stylus compiler
	StylusOptions = stylepipe.StylusOptions
	// SourceMapMode controls how source maps are written
	SourceMapMode = stylepipe.SourceMapMode
	// Notifier receives the paths of written CSS files
	Notifier = stylepipe.Notifier
	// NotifierFunc adapts a function to Notifier
	NotifierFunc = stylepipe.NotifierFunc
	// Logger is the structured logger used while building
	Logger = stylepipe.Logger
	// Option configures a build
	Option = stylepipe.Option
	// BuildFunc receives the outcome of every watch run
	BuildFunc = stylepipe.BuildFunc
)

const (
	KindCompile   = stylepipe.KindCompile
	KindInjection = stylepipe.KindInjection
	KindIO        = stylepipe.KindIO
	KindConfig    = stylepipe.KindConfig

	SourceMapFile   = stylepipe.SourceMapFile
	SourceMapInline = stylepipe.SourceMapInline
	SourceMapNone   = stylepipe.SourceMapNone
)

// NewPreprocessor returns the default options for "sass", "less" or "stylus"
func NewPreprocessor(name string) (Preprocessor, error) {
	return stylepipe.NewPreprocessor(name)
}

// DefaultConfig returns a configuration for p rooted at root
func DefaultConfig(root string, p Preprocessor) Config {
	return stylepipe.DefaultConfig(root, p)
}

// WithNotifier sets the live-reload notifier
func WithNotifier(n Notifier) Option {
	return stylepipe.WithNotifier(n)
}

// WithLogger sets the structured logger
func WithLogger(l Logger) Option {
	return stylepipe.WithLogger(l)
}

// IsRecoverable reports whether err is a compile error the pipeline continued past
func IsRecoverable(err error) bool {
	return stylepipe.IsRecoverable(err)
}

// Build runs the pipeline once for config
func Build(ctx context.Context, config Config, opts ...Option) (*Result, error) {
	b, err := stylepipe.NewBuilder(config, opts...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = b.Close() }()
	return b.Run(ctx)
}

// Watch builds once and again on every relevant change until ctx is canceled
func Watch(ctx context.Context, config Config, onBuild BuildFunc, opts ...Option) error {
	b, err := stylepipe.NewBuilder(config, opts...)
	if err != nil {
		return err
	}
	defer func() { _ = b.Close() }()
	return b.Watch(ctx, onBuild)
}

// Inject writes the dependency imports into the entry files on disk and
// returns the entries that changed
func Inject(config Config) ([]string, error) {
	b, err := stylepipe.NewBuilder(config)
	if err != nil {
		return nil, err
	}
	defer func() { _ = b.Close() }()
	return b.Inject()
}
