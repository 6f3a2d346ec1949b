package stylepipe

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"

	"github.com/bep/godartsass/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCompiler records requests and returns canned output
type fakeCompiler struct {
	mu       sync.Mutex
	name     string
	calls    int
	requests []CompileRequest
	closed   bool
	compile  func(req CompileRequest) (*CompileResult, error)
}

func (f *fakeCompiler) Compile(_ context.Context, req CompileRequest) (*CompileResult, error) {
	f.mu.Lock()
	f.calls++
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.compile != nil {
		return f.compile(req)
	}
	return &CompileResult{CSS: req.Source}, nil
}

func (f *fakeCompiler) Close() error {
	f.closed = true
	return nil
}

// countingFactory builds fakes and counts constructor calls per variant
type countingFactory struct {
	built   map[string]int
	options []Preprocessor
	fakes   map[string]*fakeCompiler
}

func newCountingFactory() *countingFactory {
	return &countingFactory{built: map[string]int{}, fakes: map[string]*fakeCompiler{}}
}

func (c *countingFactory) make(p Preprocessor) Compiler {
	c.built[p.Name()]++
	c.options = append(c.options, p)
	f := &fakeCompiler{name: p.Name()}
	c.fakes[p.Name()] = f
	return f
}

func (c *countingFactory) Factory() CompilerFactory {
	return CompilerFactory{
		Sass:   func(o SassOptions) Compiler { return c.make(o) },
		Less:   func(o LessOptions) Compiler { return c.make(o) },
		Stylus: func(o StylusOptions) Compiler { return c.make(o) },
	}
}

func TestCompilerFactory_ExactlyOneCompilerPerVariant(t *testing.T) {
	variants := []Preprocessor{
		SassOptions{OutputStyle: "expanded", IncludePaths: []string{"lib"}},
		LessOptions{Compress: true},
		StylusOptions{Compress: false, IncludePaths: []string{"mixins"}},
	}

	for _, p := range variants {
		t.Run(p.Name(), func(t *testing.T) {
			cf := newCountingFactory()
			c, err := cf.Factory().For(p)
			require.NoError(t, err)
			require.NotNil(t, c)

			assert.Equal(t, map[string]int{p.Name(): 1}, cf.built)
			assert.Equal(t, []Preprocessor{p}, cf.options, "options are passed through unchanged")
		})
	}
}

func TestCompilerFactory_Errors(t *testing.T) {
	_, err := CompilerFactory{}.For(nil)
	assert.True(t, IsKind(err, KindConfig))

	_, err = CompilerFactory{}.For(LessOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no compiler registered for less")
}

func TestDefaultCompilers(t *testing.T) {
	f := DefaultCompilers()

	c, err := f.For(SassOptions{})
	require.NoError(t, err)
	assert.IsType(t, &SassCompiler{}, c)

	c, err = f.For(LessOptions{})
	require.NoError(t, err)
	require.IsType(t, &ExecCompiler{}, c)
	assert.Equal(t, "lessc", c.(*ExecCompiler).binary)

	c, err = f.For(StylusOptions{})
	require.NoError(t, err)
	require.IsType(t, &ExecCompiler{}, c)
	assert.Equal(t, "stylus", c.(*ExecCompiler).binary)
}

func TestCompileStage(t *testing.T) {
	t.Run("renames to css and passes load paths", func(t *testing.T) {
		fake := &fakeCompiler{compile: func(req CompileRequest) (*CompileResult, error) {
			return &CompileResult{CSS: []byte("a{}")}, nil
		}}
		st := &compileStage{plugin: "sass", compiler: fake, loadPaths: []string{"/root"}}
		a := &Asset{Base: "/root/styles", Path: "sub/main.scss", Source: "/root/styles/sub/main.scss", Contents: []byte("a{}")}

		out, err := st.Process(context.Background(), a)
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, "sub/main.css", out[0].Path)
		assert.Equal(t, []string{"/root/styles", "/root"}, fake.requests[0].LoadPaths)
		assert.False(t, fake.requests[0].TrackMaps)
	})

	t.Run("compiler map replaces the initial map", func(t *testing.T) {
		compiled := &SourceMap{Version: 3, Sources: []string{"x"}, Mappings: "AAAA"}
		fake := &fakeCompiler{compile: func(req CompileRequest) (*CompileResult, error) {
			return &CompileResult{CSS: []byte("a{}"), SourceMap: compiled}, nil
		}}
		st := &compileStage{plugin: "less", compiler: fake}
		a := &Asset{Path: "main.less", Source: "/p/main.less", Contents: []byte("a{}")}
		a.SourceMap = identitySourceMap(a.Source, a.Contents)

		out, err := st.Process(context.Background(), a)
		require.NoError(t, err)
		assert.True(t, fake.requests[0].TrackMaps)
		assert.Same(t, compiled, out[0].SourceMap)
	})

	t.Run("failure is a recoverable compile error", func(t *testing.T) {
		fake := &fakeCompiler{compile: func(CompileRequest) (*CompileResult, error) {
			return nil, errors.New("unexpected }")
		}}
		st := &compileStage{plugin: "stylus", compiler: fake}

		_, err := st.Process(context.Background(), &Asset{Path: "main.styl", Source: "/p/main.styl"})
		require.Error(t, err)
		assert.True(t, IsRecoverable(err))
		assert.Equal(t, "[stylus] /p/main.styl: unexpected }", err.Error())
	})

	t.Run("configuration failure stays fatal", func(t *testing.T) {
		fake := &fakeCompiler{compile: func(CompileRequest) (*CompileResult, error) {
			return nil, ConfigError("less compiler %q not found in PATH", "lessc")
		}}
		st := &compileStage{plugin: "less", compiler: fake}

		_, err := st.Process(context.Background(), &Asset{Path: "main.less"})
		assert.True(t, IsKind(err, KindConfig))
	})
}

func TestLessArgs(t *testing.T) {
	req := CompileRequest{LoadPaths: []string{"/p/styles", "/p"}, TrackMaps: true}
	args := lessArgs(LessOptions{Compress: true, IncludePaths: []string{"/p/lib"}}, req)

	sep := string(filepath.ListSeparator)
	assert.Equal(t, []string{
		"-", "--no-color", "--compress",
		"--include-path=/p/styles" + sep + "/p" + sep + "/p/lib",
		"--source-map-inline", "--source-map-include-source",
	}, args)

	assert.Equal(t, []string{"-", "--no-color"}, lessArgs(LessOptions{}, CompileRequest{}))
}

func TestStylusArgs(t *testing.T) {
	req := CompileRequest{LoadPaths: []string{"/p/styles"}, TrackMaps: true}
	args := stylusArgs(StylusOptions{Compress: true, IncludePaths: []string{"/p/mixins"}}, req)

	assert.Equal(t, []string{"--compress", "--include", "/p/styles", "--include", "/p/mixins", "--sourcemap-inline"}, args)
	assert.Empty(t, stylusArgs(StylusOptions{}, CompileRequest{}))
}

func TestSassOutputStyle(t *testing.T) {
	assert.Equal(t, godartsass.OutputStyleExpanded, sassOutputStyle("expanded"))
	assert.Equal(t, godartsass.OutputStyleCompressed, sassOutputStyle("compressed"))
	assert.Equal(t, godartsass.OutputStyleCompressed, sassOutputStyle(""))
}

func TestSassCompiler(t *testing.T) {
	if _, err := exec.LookPath("sass"); err != nil {
		t.Skip("sass not found in PATH")
	}
	if _, err := godartsass.Version("sass"); err != nil {
		t.Skipf("sass does not speak the embedded protocol: %v", err)
	}
	c := NewSassCompiler(SassOptions{OutputStyle: "expanded"})
	t.Cleanup(func() { _ = c.Close() })

	dir := t.TempDir()
	entry := filepath.Join(dir, "main.scss")

	t.Run("compiles with a source map", func(t *testing.T) {
		res, err := c.Compile(context.Background(), CompileRequest{
			Source:    []byte("$accent: red;\n.a { color: $accent; }\n"),
			Filename:  entry,
			LoadPaths: []string{dir},
			TrackMaps: true,
		})
		require.NoError(t, err)
		assert.Contains(t, string(res.CSS), "color: red")
		require.NotNil(t, res.SourceMap)
		require.NotEmpty(t, res.SourceMap.Sources)
		assert.True(t, strings.HasSuffix(res.SourceMap.Sources[0], "main.scss"), res.SourceMap.Sources[0])
		assert.NotEmpty(t, res.SourceMap.Mappings)
	})

	t.Run("no map unless tracked", func(t *testing.T) {
		res, err := c.Compile(context.Background(), CompileRequest{
			Source:   []byte(".a { color: blue; }\n"),
			Filename: entry,
		})
		require.NoError(t, err)
		assert.Nil(t, res.SourceMap)
	})

	t.Run("syntax error is reported on one line", func(t *testing.T) {
		_, err := c.Compile(context.Background(), CompileRequest{
			Source:   []byte(".a { color: red }}\n"),
			Filename: entry,
		})
		require.Error(t, err)
		assert.NotEmpty(t, err.Error())

		var stderr bytes.Buffer
		NewErrorReporter(&stderr, false, false).Report(CompileError("sass", entry, err))
		assert.Equal(t, 1, strings.Count(stderr.String(), "\n"))
		assert.True(t, strings.HasPrefix(stderr.String(), "[sass] "+entry+": "))
	})
}

func TestResolveStdinSources(t *testing.T) {
	m := &SourceMap{Sources: []string{"input", "partials/_a.less", "/abs/b.less"}}
	resolveStdinSources(m, "/p/styles", "/p/styles/main.less")

	assert.Equal(t, []string{
		"/p/styles/main.less",
		filepath.Join("/p/styles", "partials", "_a.less"),
		"/abs/b.less",
	}, m.Sources)
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on windows")
	}
	path := filepath.Join(t.TempDir(), "compiler")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestExecCompiler(t *testing.T) {
	dir := t.TempDir()
	req := CompileRequest{Source: []byte("a{b:c}"), Filename: filepath.Join(dir, "main.less")}

	t.Run("stdout is the css", func(t *testing.T) {
		c := NewLessCompiler(LessOptions{Binary: writeScript(t, "cat")})
		res, err := c.Compile(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, "a{b:c}", string(res.CSS))
		assert.Nil(t, res.SourceMap)
		assert.NoError(t, c.Close())
	})

	t.Run("stderr becomes the error message", func(t *testing.T) {
		c := NewStylusCompiler(StylusOptions{Binary: writeScript(t, "echo 'ParseError: expected indent' >&2\nexit 1")})
		_, err := c.Compile(context.Background(), req)
		require.Error(t, err)
		assert.Equal(t, "ParseError: expected indent", err.Error())
	})

	t.Run("missing binary is a config error", func(t *testing.T) {
		c := NewLessCompiler(LessOptions{Binary: filepath.Join(dir, "no-such-lessc")})
		_, err := c.Compile(context.Background(), req)
		assert.True(t, IsKind(err, KindConfig))
	})
}
