package stylepipe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/yacobolo/stylepipe/internal/logger"
	"github.com/yacobolo/stylepipe/internal/manifest"
	"github.com/yacobolo/stylepipe/internal/metrics"
)

// Builder assembles and runs the style pipeline for one configuration.
// The compiler is chosen once, when the builder is created.
type Builder struct {
	cfg       Config
	compilers CompilerFactory
	compiler  Compiler
	reporter  *ErrorReporter
	notifier  Notifier
	log       Logger
	recorder  metrics.Recorder
}

// Option configures a Builder
type Option func(*Builder)

// WithCompilers replaces the compiler constructors
func WithCompilers(f CompilerFactory) Option {
	return func(b *Builder) { b.compilers = f }
}

// WithReporter sets where recoverable errors are reported
func WithReporter(r *ErrorReporter) Option {
	return func(b *Builder) { b.reporter = r }
}

// WithNotifier sets the live-reload notifier
func WithNotifier(n Notifier) Option {
	return func(b *Builder) { b.notifier = n }
}

// WithLogger sets the structured logger
func WithLogger(l Logger) Option {
	return func(b *Builder) { b.log = l }
}

// WithRecorder sets the metrics recorder
func WithRecorder(r metrics.Recorder) Option {
	return func(b *Builder) { b.recorder = r }
}

// NewBuilder validates cfg and selects the compiler for its preprocessor
func NewBuilder(cfg Config, opts ...Option) (*Builder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, ConfigError("resolve root %q: %v", cfg.Root, err)
	}
	cfg.Root = root

	b := &Builder{
		cfg:       cfg,
		compilers: DefaultCompilers(),
		notifier:  nopNotifier{},
		recorder:  metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.reporter == nil {
		b.reporter = NewErrorReporter(os.Stderr, ShouldUseColors(false, os.Stderr), true)
	}
	if b.log == nil {
		b.log = logger.Discard()
	}

	b.compiler, err = b.compilers.For(cfg.Preprocessor)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Config returns the configuration with the root made absolute
func (b *Builder) Config() Config {
	return b.cfg
}

// Close releases the compiler
func (b *Builder) Close() error {
	return b.compiler.Close()
}

// resolvePath makes p absolute against the project root
func (b *Builder) resolvePath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(b.cfg.Root, filepath.FromSlash(p))
}

// Manifest returns the resolver for the configured manifest
func (b *Builder) Manifest() manifest.Resolver {
	return manifest.Resolver{
		Root:          b.cfg.Root,
		Manifest:      b.cfg.Manifest,
		ComponentsDir: b.cfg.ComponentsDir,
	}
}

// Dependencies resolves the manifest and keeps the files of the active
// preprocessor, in manifest order
func (b *Builder) Dependencies() ([]string, error) {
	files, err := b.Manifest().Files()
	if err != nil {
		return nil, injectionError(b.Manifest().ManifestPath(), "%v", err)
	}
	return manifest.FilterExt(files, b.cfg.Preprocessor.Extension()), nil
}

// Entries returns the absolute paths of the entry files
func (b *Builder) Entries() ([]string, error) {
	files, err := expandSources(b.cfg.Root, b.cfg.Sources)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, f.Abs)
	}
	return out, nil
}

// stages lists the pipeline in execution order
func (b *Builder) stages(deps []string, result *Result) []Stage {
	cfg := b.cfg
	stages := []Stage{
		&injectStage{deps: deps, startMarker: cfg.StartMarker, endMarker: cfg.EndMarker},
	}
	if cfg.SourceMaps != SourceMapNone {
		stages = append(stages, sourcemapInitStage{})
	}
	stages = append(stages, &compileStage{
		plugin:    cfg.Preprocessor.Name(),
		compiler:  b.compiler,
		loadPaths: []string{cfg.Root},
	})
	if cfg.Autoprefix {
		stages = append(stages, &autoprefixStage{vendors: cfg.Vendors})
	}
	stages = append(stages,
		&sourcemapWriteStage{mode: cfg.SourceMaps, sourceRoot: cfg.SourceRoot},
		&destStage{dir: b.resolvePath(cfg.Dest)},
		&reloadStage{
			match:    cfg.ReloadMatch,
			notifier: b.notifier,
			notified: func(path string) {
				result.Reloaded = append(result.Reloaded, path)
				b.recorder.IncReload()
			},
		},
	)
	return stages
}

// Run executes the pipeline once. Recoverable compile errors are reported and
// collected in the result; injection, I/O and configuration errors are
// returned.
func (b *Builder) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	result := &Result{Preprocessor: b.cfg.Preprocessor.Name()}

	err := b.run(ctx, result)
	result.Duration = time.Since(start)

	name := result.Preprocessor
	b.recorder.ObserveBuildDuration(name, result.Duration)
	switch {
	case errors.Is(err, context.Canceled):
		b.recorder.IncBuildOutcome(name, metrics.BuildCanceled)
	case err != nil:
		b.recorder.IncBuildOutcome(name, metrics.BuildFailed)
		b.log.Error("build failed", "err", err)
	case !result.OK():
		b.recorder.IncBuildOutcome(name, metrics.BuildWarning)
		// the reporter already put each error on stderr
		b.log.Debug("build finished with errors", "errors", len(result.Errors), "duration", result.Duration)
	default:
		b.recorder.IncBuildOutcome(name, metrics.BuildSuccess)
		b.log.Info("build finished", "written", len(result.Written), "duration", result.Duration)
	}
	return result, err
}

func (b *Builder) run(ctx context.Context, result *Result) error {
	deps, err := b.Dependencies()
	if err != nil {
		return err
	}
	result.Dependencies = deps
	b.log.Debug("resolved dependencies", "count", len(deps), "ext", b.cfg.Preprocessor.Extension())

	sources, err := expandSources(b.cfg.Root, b.cfg.Sources)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		b.log.Warn("no entry files matched", "sources", b.cfg.Sources)
	}

	p := &pipeline{
		stages:   b.stages(deps, result),
		reporter: b.reporter,
		log:      b.log,
		recorder: b.recorder,
	}
	out, err := p.run(ctx, sources)
	result.FilesRead = out.read
	result.Errors = p.errors
	destDir := b.resolvePath(b.cfg.Dest)
	for _, a := range out.assets {
		result.Written = append(result.Written, filepath.Join(destDir, filepath.FromSlash(a.Path)))
	}
	if err != nil {
		return fmt.Errorf("%s pipeline: %w", result.Preprocessor, err)
	}
	return nil
}

// Inject rewrites the marker region of every entry file on disk and returns
// the entries whose content changed
func (b *Builder) Inject() ([]string, error) {
	deps, err := b.Dependencies()
	if err != nil {
		return nil, err
	}
	entries, err := b.Entries()
	if err != nil {
		return nil, err
	}

	var changed []string
	for _, entry := range entries {
		ok, err := InjectFile(entry, deps, b.cfg.StartMarker, b.cfg.EndMarker)
		if err != nil {
			return changed, err
		}
		if ok {
			b.log.Info("injected imports", "file", entry, "imports", len(deps))
			changed = append(changed, entry)
		}
	}
	return changed, nil
}
