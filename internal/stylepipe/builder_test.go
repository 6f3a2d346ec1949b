package stylepipe

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	charmlog "github.com/charmbracelet/log"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yacobolo/stylepipe/internal/livereload"
	"github.com/yacobolo/stylepipe/internal/metrics"
)

const entryTemplate = "/* inject:imports */\n/* endinject */\n\nbody { display: flex; }\n"

// newProject lays out a bower project with one package whose main files are
// vendor/a.scss, vendor/b.less and vendor/c.scss
func newProject(t *testing.T, ext string) string {
	t.Helper()
	root := t.TempDir()
	touch(t, filepath.Join(root, "bower.json"), `{"name": "app", "dependencies": {"vendor": "*"}}`)
	pkg := filepath.Join(root, "bower_components", "vendor")
	touch(t, filepath.Join(pkg, "bower.json"), `{"main": ["vendor/a.scss", "vendor/b.less", "vendor/c.scss", "vendor/d.styl"]}`)
	for _, f := range []string{"a.scss", "b.less", "c.scss", "d.styl"} {
		touch(t, filepath.Join(pkg, "vendor", f), "")
	}
	touch(t, filepath.Join(root, "client", "styles", "main."+ext), entryTemplate)
	return root
}

type recordingNotifier struct {
	mu    sync.Mutex
	paths []string
}

func (n *recordingNotifier) Notify(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paths = append(n.paths, path)
}

func (n *recordingNotifier) Paths() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.paths...)
}

func newTestBuilder(t *testing.T, root string, p Preprocessor, cf *countingFactory, opts ...Option) (*Builder, *bytes.Buffer) {
	t.Helper()
	var stderr bytes.Buffer
	opts = append([]Option{
		WithCompilers(cf.Factory()),
		WithReporter(NewErrorReporter(&stderr, false, true)),
	}, opts...)
	b, err := NewBuilder(DefaultConfig(root, p), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b, &stderr
}

func TestBuilder_EndToEnd(t *testing.T) {
	root := newProject(t, "scss")
	cf := newCountingFactory()
	notifier := &recordingNotifier{}
	b, stderr := newTestBuilder(t, root, SassOptions{OutputStyle: "compressed"}, cf, WithNotifier(notifier))

	res, err := b.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Empty(t, stderr.String())

	vendor := filepath.Join(root, "bower_components", "vendor", "vendor")
	assert.Equal(t, []string{filepath.Join(vendor, "a.scss"), filepath.Join(vendor, "c.scss")}, res.Dependencies)
	assert.Equal(t, 1, res.FilesRead)

	// The fake compiler echoes its input, so the output shows the injected block
	data, err := os.ReadFile(filepath.Join(root, "public", "styles", "main.css"))
	require.NoError(t, err)
	css := string(data)
	assert.Contains(t, css, "/* inject:imports */\n"+
		"@import '../../bower_components/vendor/vendor/a.scss';\n"+
		"@import '../../bower_components/vendor/vendor/c.scss';\n"+
		"/* endinject */")
	assert.NotContains(t, css, "b.less")
	assert.NotContains(t, css, "d.styl")
	assert.Contains(t, css, "display:-webkit-box;display:-ms-flexbox;display: flex;")
	assert.True(t, strings.HasSuffix(css, "/*# sourceMappingURL=main.css.map */\n"))

	mapData, err := os.ReadFile(filepath.Join(root, "public", "styles", "main.css.map"))
	require.NoError(t, err)
	m, err := ParseSourceMap(mapData)
	require.NoError(t, err)
	assert.Equal(t, "/client/styles", m.SourceRoot)
	assert.Equal(t, []string{"main.scss"}, m.Sources)
	// Maps describe the injected entry the compiler saw
	require.Len(t, m.SourcesContent, 1)
	assert.Contains(t, m.SourcesContent[0], "@import '../../bower_components/vendor/vendor/a.scss';")
	assert.True(t, strings.HasSuffix(m.SourcesContent[0], "body { display: flex; }\n"))

	assert.ElementsMatch(t, []string{
		filepath.Join(root, "public", "styles", "main.css"),
		filepath.Join(root, "public", "styles", "main.css.map"),
	}, res.Written)
	assert.Equal(t, []string{"main.css"}, notifier.Paths())
	assert.Equal(t, []string{"main.css"}, res.Reloaded)

	// The entry on disk is untouched by a build
	entry, err := os.ReadFile(filepath.Join(root, "client", "styles", "main.scss"))
	require.NoError(t, err)
	assert.Equal(t, entryTemplate, string(entry))
}

func TestBuilder_ReloadCountedOncePerPush(t *testing.T) {
	root := newProject(t, "scss")
	reg := prom.NewRegistry()
	rec := metrics.NewPrometheusRecorder(reg)
	hub := livereload.NewHub(nil, rec)
	defer hub.Shutdown()

	b, _ := newTestBuilder(t, root, SassOptions{}, newCountingFactory(), WithRecorder(rec), WithNotifier(hub))

	res, err := b.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"main.css"}, res.Reloaded)

	expected := `
# HELP stylepipe_reload_notifications_total Stylesheets pushed to live-reload clients
# TYPE stylepipe_reload_notifications_total counter
stylepipe_reload_notifications_total 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "stylepipe_reload_notifications_total"))
}

func TestBuilder_CompileErrorLeavesOneLineOnStderr(t *testing.T) {
	root := newProject(t, "scss")
	touch(t, filepath.Join(root, "client", "styles", "main.scss"), entryTemplate+"a { color: red }}\n")

	// Logger and reporter share stderr, as in the CLI
	var stderr bytes.Buffer
	log := charmlog.NewWithOptions(&stderr, charmlog.Options{Level: charmlog.InfoLevel})
	cf := newCountingFactory()
	b, err := NewBuilder(DefaultConfig(root, SassOptions{}),
		WithCompilers(cf.Factory()),
		WithReporter(NewErrorReporter(&stderr, false, true)),
		WithLogger(log),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	cf.fakes["sass"].compile = func(req CompileRequest) (*CompileResult, error) {
		return nil, errors.New("expected selector.")
	}

	res, err := b.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 1, strings.Count(stderr.String(), "\n"))
	assert.True(t, strings.HasPrefix(stderr.String(), "[sass] "))
}

func TestBuilder_ExactlyOneCompilerRuns(t *testing.T) {
	variants := []Preprocessor{
		SassOptions{OutputStyle: "expanded"},
		LessOptions{Compress: true},
		StylusOptions{Compress: true},
	}

	for _, p := range variants {
		t.Run(p.Name(), func(t *testing.T) {
			root := newProject(t, p.Extension())
			cf := newCountingFactory()
			b, _ := newTestBuilder(t, root, p, cf)

			for i := 0; i < 2; i++ {
				_, err := b.Run(context.Background())
				require.NoError(t, err)
			}

			assert.Equal(t, map[string]int{p.Name(): 1}, cf.built, "compiler chosen once per builder")
			require.Contains(t, cf.fakes, p.Name())
			assert.Equal(t, 2, cf.fakes[p.Name()].calls)

			reqs := cf.fakes[p.Name()].requests
			assert.Contains(t, string(reqs[0].Source), "."+p.Extension()+"';")
		})
	}
}

func TestBuilder_ErrorContainment(t *testing.T) {
	root := newProject(t, "scss")
	entry := filepath.Join(root, "client", "styles", "main.scss")
	touch(t, entry, entryTemplate+"a { color: red }}\n")

	cf := newCountingFactory()
	b, stderr := newTestBuilder(t, root, SassOptions{}, cf)
	cf.fakes["sass"].compile = func(req CompileRequest) (*CompileResult, error) {
		if bytes.Contains(req.Source, []byte("}}")) {
			return nil, errors.New("expected selector.\n  ╷\n3 │ a { color: red }}\n  ╵")
		}
		return &CompileResult{CSS: req.Source}, nil
	}

	res, err := b.Run(context.Background())
	require.NoError(t, err, "compile errors do not fail the run")
	require.Len(t, res.Errors, 1)
	assert.Equal(t, KindCompile, res.Errors[0].Kind)
	assert.Equal(t, "sass", res.Errors[0].Plugin)
	assert.Empty(t, res.Written)
	assert.Empty(t, res.Reloaded)

	out := stderr.String()
	assert.Equal(t, 1, strings.Count(out, "\n"), "exactly one line reported")
	assert.True(t, strings.HasPrefix(out, "[sass] "+entry+": expected selector."))
	assert.True(t, strings.HasSuffix(out, "\n\a"))
	assert.NoFileExists(t, filepath.Join(root, "public", "styles", "main.css"))

	// Fix the file; the same builder produces output on the next run
	touch(t, entry, entryTemplate)
	stderr.Reset()

	res, err = b.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Empty(t, stderr.String())
	assert.FileExists(t, filepath.Join(root, "public", "styles", "main.css"))
}

func TestBuilder_OneBadEntryDoesNotStopOthers(t *testing.T) {
	root := newProject(t, "less")
	touch(t, filepath.Join(root, "client", "styles", "broken.less"), entryTemplate+"}}")

	cf := newCountingFactory()
	b, stderr := newTestBuilder(t, root, LessOptions{}, cf)
	b.cfg.Sources = []string{"client/styles/*.less"}
	cf.fakes["less"].compile = func(req CompileRequest) (*CompileResult, error) {
		if strings.HasSuffix(req.Filename, "broken.less") {
			return nil, errors.New("Unrecognised input")
		}
		return &CompileResult{CSS: []byte("a{}")}, nil
	}

	res, err := b.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.Errors, 1)
	assert.Equal(t, 2, res.FilesRead)
	assert.Contains(t, stderr.String(), "[less] ")
	assert.FileExists(t, filepath.Join(root, "public", "styles", "main.css"))
	assert.NoFileExists(t, filepath.Join(root, "public", "styles", "broken.css"))
}

func TestBuilder_FatalErrors(t *testing.T) {
	t.Run("missing markers", func(t *testing.T) {
		root := newProject(t, "scss")
		touch(t, filepath.Join(root, "client", "styles", "main.scss"), "body{}")
		b, _ := newTestBuilder(t, root, SassOptions{}, newCountingFactory())

		_, err := b.Run(context.Background())
		require.Error(t, err)
		assert.True(t, IsKind(err, KindInjection))
		assert.NoFileExists(t, filepath.Join(root, "public", "styles", "main.css"))
	})

	t.Run("unreadable manifest", func(t *testing.T) {
		root := newProject(t, "scss")
		require.NoError(t, os.Remove(filepath.Join(root, "bower.json")))
		b, _ := newTestBuilder(t, root, SassOptions{}, newCountingFactory())

		_, err := b.Run(context.Background())
		require.Error(t, err)
		assert.True(t, IsKind(err, KindInjection))
	})

	t.Run("missing entry", func(t *testing.T) {
		root := newProject(t, "scss")
		require.NoError(t, os.Remove(filepath.Join(root, "client", "styles", "main.scss")))
		b, _ := newTestBuilder(t, root, SassOptions{}, newCountingFactory())

		_, err := b.Run(context.Background())
		require.Error(t, err)
		assert.True(t, IsKind(err, KindIO))
	})
}

func TestBuilder_Options(t *testing.T) {
	root := newProject(t, "styl")
	cf := newCountingFactory()
	cfg := DefaultConfig(root, StylusOptions{})
	cfg.SourceMaps = SourceMapNone
	cfg.Autoprefix = false
	cfg.Dest = "build"

	b, err := NewBuilder(cfg, WithCompilers(cf.Factory()), WithReporter(NewErrorReporter(&bytes.Buffer{}, false, false)))
	require.NoError(t, err)

	res, err := b.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "build", "main.css")}, res.Written)
	assert.False(t, cf.fakes["stylus"].requests[0].TrackMaps)

	data, err := os.ReadFile(filepath.Join(root, "build", "main.css"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "body { display: flex; }")
	assert.NotContains(t, string(data), "sourceMappingURL")
}

func TestNewBuilder_InvalidConfig(t *testing.T) {
	_, err := NewBuilder(Config{Root: t.TempDir()})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindConfig))
}

func TestBuilder_Inject(t *testing.T) {
	root := newProject(t, "scss")
	b, _ := newTestBuilder(t, root, SassOptions{}, newCountingFactory())

	changed, err := b.Inject()
	require.NoError(t, err)
	entry := filepath.Join(root, "client", "styles", "main.scss")
	assert.Equal(t, []string{entry}, changed)

	first, err := os.ReadFile(entry)
	require.NoError(t, err)
	assert.Contains(t, string(first), "@import '../../bower_components/vendor/vendor/c.scss';")

	changed, err = b.Inject()
	require.NoError(t, err)
	assert.Empty(t, changed)

	second, err := os.ReadFile(entry)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestBuilder_WatchRebuildsOnChange(t *testing.T) {
	root := newProject(t, "scss")
	b, _ := newTestBuilder(t, root, SassOptions{}, newCountingFactory())

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	builds := make(chan *Result, 8)
	done := make(chan error, 1)
	go func() {
		done <- b.Watch(ctx, func(res *Result, err error) {
			assert.NoError(t, err)
			builds <- res
		})
	}()

	select {
	case <-builds:
	case <-time.After(5 * time.Second):
		t.Fatal("initial build did not run")
	}

	touch(t, filepath.Join(root, "client", "styles", "_partial.scss"), "a{}")

	select {
	case res := <-builds:
		assert.True(t, res.OK())
	case <-time.After(5 * time.Second):
		t.Fatal("change did not trigger a rebuild")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}
