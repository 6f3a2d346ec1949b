package stylepipe

import (
	"context"
	"errors"
	"fmt"
)

// Compiler turns preprocessor source into CSS.
// Compile returns the CSS and, when trackMaps is set, a source map for it.
// Failures on malformed source should be returned as errors; the compile
// stage reports them and keeps the pipeline alive.
type Compiler interface {
	Compile(ctx context.Context, req CompileRequest) (*CompileResult, error)
	Close() error
}

// CompileRequest is a single entry file to compile
type CompileRequest struct {
	Source    []byte   // Entry contents after import injection
	Filename  string   // Absolute path of the entry file
	LoadPaths []string // Directories searched for @import
	TrackMaps bool     // Produce a source map
}

// CompileResult is the compiler output for one entry
type CompileResult struct {
	CSS       []byte
	SourceMap *SourceMap // nil when the compiler produced none
}

// CompilerFactory constructs the compiler for each preprocessor variant.
// Exactly one constructor is called per builder.
type CompilerFactory struct {
	Sass   func(SassOptions) Compiler
	Less   func(LessOptions) Compiler
	Stylus func(StylusOptions) Compiler
}

// DefaultCompilers returns the factory backed by the real compilers
func DefaultCompilers() CompilerFactory {
	return CompilerFactory{
		Sass:   func(o SassOptions) Compiler { return NewSassCompiler(o) },
		Less:   func(o LessOptions) Compiler { return NewLessCompiler(o) },
		Stylus: func(o StylusOptions) Compiler { return NewStylusCompiler(o) },
	}
}

// For dispatches on the preprocessor variant
func (f CompilerFactory) For(p Preprocessor) (Compiler, error) {
	switch opts := p.(type) {
	case SassOptions:
		if f.Sass != nil {
			return f.Sass(opts), nil
		}
	case LessOptions:
		if f.Less != nil {
			return f.Less(opts), nil
		}
	case StylusOptions:
		if f.Stylus != nil {
			return f.Stylus(opts), nil
		}
	case nil:
		return nil, ConfigError("no preprocessor selected")
	default:
		return nil, ConfigError("unsupported preprocessor %T", p)
	}
	return nil, ConfigError("no compiler registered for %s", p.Name())
}

// compileStage runs the selected compiler on each asset
type compileStage struct {
	plugin    string
	compiler  Compiler
	loadPaths []string
}

func (s *compileStage) Name() string { return s.plugin }

func (s *compileStage) Process(ctx context.Context, a *Asset) ([]*Asset, error) {
	req := CompileRequest{
		Source:    a.Contents,
		Filename:  a.Source,
		LoadPaths: append([]string{a.Base}, s.loadPaths...),
		TrackMaps: a.SourceMap != nil,
	}

	res, err := s.compiler.Compile(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var be *BuildError
		if errors.As(err, &be) {
			return nil, be
		}
		return nil, CompileError(s.plugin, a.Source, err)
	}
	if res == nil {
		return nil, CompileError(s.plugin, a.Source, fmt.Errorf("compiler returned no output"))
	}

	a.Contents = res.CSS
	a.Path = a.WithExt(".css")
	// Without a compiler map the map from sourcemaps.init is kept as is
	if req.TrackMaps && res.SourceMap != nil {
		a.SourceMap = res.SourceMap
	}
	return []*Asset{a}, nil
}
