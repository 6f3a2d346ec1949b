package stylepipe

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Default values shared by the library and the CLI
const (
	DefaultStartMarker = "/* inject:imports */"
	DefaultEndMarker   = "/* endinject */"
	DefaultSourceRoot  = "/client/styles"
	DefaultReloadMatch = "**/*.css"
	DefaultManifest    = "bower.json"
	DefaultDest        = "public/styles"
)

// DefaultVendors lists the vendors the prefixer emits by default
var DefaultVendors = []string{"webkit", "moz", "ms"}

// DefaultSources returns the entry globs for a preprocessor
func DefaultSources(p Preprocessor) []string {
	return []string{"client/styles/main." + p.Extension()}
}

// NewPreprocessor returns the default options for a named preprocessor.
// Unknown or empty names are a configuration error.
func NewPreprocessor(name string) (Preprocessor, error) {
	switch name {
	case PreprocessorSass:
		return SassOptions{OutputStyle: "compressed", Binary: "sass"}, nil
	case PreprocessorLess:
		return LessOptions{Compress: true, Binary: "lessc"}, nil
	case PreprocessorStylus:
		return StylusOptions{Compress: true, Binary: "stylus"}, nil
	case "":
		return nil, ConfigError("no preprocessor selected (want one of sass, less, stylus)")
	default:
		return nil, ConfigError("unknown preprocessor %q (want one of sass, less, stylus)", name)
	}
}

// DefaultConfig returns a configuration for the given preprocessor rooted at root
func DefaultConfig(root string, p Preprocessor) Config {
	return Config{
		Root:         root,
		Sources:      DefaultSources(p),
		Dest:         DefaultDest,
		Manifest:     DefaultManifest,
		StartMarker:  DefaultStartMarker,
		EndMarker:    DefaultEndMarker,
		Preprocessor: p,
		SourceRoot:   DefaultSourceRoot,
		SourceMaps:   SourceMapFile,
		Autoprefix:   true,
		Vendors:      DefaultVendors,
		ReloadMatch:  DefaultReloadMatch,
	}
}

var validate = validator.New()

// Validate checks the configuration. Errors are KindConfig build errors.
func (c Config) Validate() error {
	if sass, ok := c.Preprocessor.(SassOptions); ok {
		if err := validate.Struct(sass); err != nil {
			return ConfigError("sass output style must be compressed or expanded, got %q", sass.OutputStyle)
		}
	}

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return ConfigError("invalid fields: %s", strings.Join(fields, ", "))
		}
		return ConfigError("%v", err)
	}

	for _, marker := range []string{c.StartMarker, c.EndMarker} {
		if !strings.HasPrefix(marker, "/*") || !strings.HasSuffix(marker, "*/") {
			return ConfigError("inject marker %q must be a block comment", marker)
		}
	}
	if c.StartMarker == c.EndMarker {
		return ConfigError("inject start and end markers must differ")
	}

	return nil
}
