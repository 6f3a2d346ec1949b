package stylepipe

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a BuildError
type ErrorKind string

const (
	// KindCompile is a preprocessor or transform failure on a single file. Recoverable.
	KindCompile ErrorKind = "compile"
	// KindInjection is an unreadable manifest or a missing marker region. Fatal.
	KindInjection ErrorKind = "injection"
	// KindIO is an unreadable source or unwritable destination. Fatal.
	KindIO ErrorKind = "io"
	// KindConfig is an invalid pipeline configuration. Fatal.
	KindConfig ErrorKind = "config"
)

// BuildError carries the failing plugin and a human-readable message
type BuildError struct {
	Kind    ErrorKind
	Plugin  string // "sass", "less", "stylus", "inject", "autoprefixer", "dest", ...
	File    string // Source file, when known
	Message string
	Err     error
}

func (e *BuildError) Error() string {
	var b strings.Builder
	b.WriteString("[" + e.Plugin + "] ")
	if e.File != "" {
		b.WriteString(e.File + ": ")
	}
	b.WriteString(e.Message)
	return b.String()
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// Recoverable reports whether the pipeline may continue past this error
func (e *BuildError) Recoverable() bool {
	return e.Kind == KindCompile
}

// CompileError builds a recoverable error for a plugin that failed on a file
func CompileError(plugin, file string, err error) *BuildError {
	return &BuildError{Kind: KindCompile, Plugin: plugin, File: file, Message: err.Error(), Err: err}
}

func injectionError(file, format string, args ...any) *BuildError {
	return &BuildError{Kind: KindInjection, Plugin: "inject", File: file, Message: fmt.Sprintf(format, args...)}
}

func ioError(plugin, file string, err error) *BuildError {
	return &BuildError{Kind: KindIO, Plugin: plugin, File: file, Message: err.Error(), Err: err}
}

// ConfigError builds a fatal error for an invalid pipeline configuration
func ConfigError(format string, args ...any) *BuildError {
	return &BuildError{Kind: KindConfig, Plugin: "config", Message: fmt.Sprintf(format, args...)}
}

// IsRecoverable reports whether err is (or wraps) a recoverable BuildError
func IsRecoverable(err error) bool {
	var be *BuildError
	return errors.As(err, &be) && be.Recoverable()
}

// IsKind reports whether err is (or wraps) a BuildError of the given kind
func IsKind(err error, kind ErrorKind) bool {
	var be *BuildError
	return errors.As(err, &be) && be.Kind == kind
}
