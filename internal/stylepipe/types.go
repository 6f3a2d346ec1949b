package stylepipe

import (
	"path"
	"strings"
	"time"
)

// Preprocessor selects the CSS preprocessor a pipeline compiles with.
// It is a closed set: SassOptions, LessOptions and StylusOptions.
type Preprocessor interface {
	// Name is the preprocessor identifier used in config ("sass", "less", "stylus")
	// and as the plugin name in build errors.
	Name() string
	// Extension is the source file extension without the dot ("scss", "less", "styl").
	Extension() string

	preprocessor()
}

// SassOptions configures the Sass compiler (Dart Sass embedded protocol)
type SassOptions struct {
	OutputStyle  string   `validate:"omitempty,oneof=compressed expanded"` // "compressed" (default) or "expanded"
	IncludePaths []string // Extra load paths
	Binary       string   // Dart Sass executable (default: "sass")
}

// LessOptions configures the lessc compiler
type LessOptions struct {
	Compress     bool
	IncludePaths []string
	Binary       string // default: "lessc"
}

// StylusOptions configures the stylus compiler
type StylusOptions struct {
	Compress     bool
	IncludePaths []string
	Binary       string // default: "stylus"
}

// Preprocessor names accepted in configuration.
const (
	PreprocessorSass   = "sass"
	PreprocessorLess   = "less"
	PreprocessorStylus = "stylus"
)

func (SassOptions) Name() string      { return PreprocessorSass }
func (SassOptions) Extension() string { return "scss" }
func (SassOptions) preprocessor()     {}

func (LessOptions) Name() string      { return PreprocessorLess }
func (LessOptions) Extension() string { return "less" }
func (LessOptions) preprocessor()     {}

func (StylusOptions) Name() string      { return PreprocessorStylus }
func (StylusOptions) Extension() string { return "styl" }
func (StylusOptions) preprocessor()     {}

// SourceMapMode controls how finalized source maps are written
type SourceMapMode string

const (
	// SourceMapFile writes a companion <name>.css.map next to each CSS file.
	SourceMapFile SourceMapMode = "file"
	// SourceMapInline embeds the map as a base64 data URL comment.
	SourceMapInline SourceMapMode = "inline"
	// SourceMapNone drops source maps.
	SourceMapNone SourceMapMode = "none"
)

// Config holds the pipeline configuration. It is fixed once loaded; every run
// of a Builder uses the same Config.
type Config struct {
	Root          string        `validate:"required"`                  // Project root, all relative paths resolve against it
	Sources       []string      `validate:"required,min=1"`            // Entry globs: ["client/styles/main.scss"]
	Dest          string        `validate:"required"`                  // "public/styles"
	Manifest      string        `validate:"required"`                  // "bower.json"
	ComponentsDir string                                              // Overrides .bowerrc; empty means auto-detect
	StartMarker   string        `validate:"required"`                  // "/* inject:imports */"
	EndMarker     string        `validate:"required"`                  // "/* endinject */"
	Preprocessor  Preprocessor  `validate:"required"`                  // Exactly one variant
	SourceRoot    string                                              // "/client/styles"
	SourceMaps    SourceMapMode `validate:"oneof=file inline none"`    // How maps are written
	Autoprefix    bool                                                // Run the vendor prefix stage (default: true)
	Vendors       []string      `validate:"dive,oneof=webkit moz ms"` // Vendors to emit prefixes for
	ReloadMatch   string        `validate:"required"`                  // "**/*.css"
	Verbose       bool                                                // Debug logging per asset
}

// Asset is a single file flowing through the pipeline
type Asset struct {
	Base      string     // Absolute glob base directory of the source
	Path      string     // Slash-separated path relative to Base ("main.scss" → "main.css")
	Source    string     // Absolute path of the originating entry file
	Contents  []byte     // Current contents
	SourceMap *SourceMap // nil until sourcemaps.init
}

// WithExt returns a copy of the asset path with its extension replaced
func (a *Asset) WithExt(ext string) string {
	return strings.TrimSuffix(a.Path, path.Ext(a.Path)) + ext
}

// Result summarizes a single pipeline run
type Result struct {
	Preprocessor string
	Dependencies []string      // Resolved dependency files injected into entries
	FilesRead    int           // Entry files read
	Written      []string      // Destination paths written
	Reloaded     []string      // Paths pushed to live reload
	Errors       []*BuildError // Recovered (reported) errors
	Duration     time.Duration
}

// OK reports whether the run finished without any reported errors
func (r *Result) OK() bool {
	return len(r.Errors) == 0
}
