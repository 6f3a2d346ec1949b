package stylepipe

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yacobolo/stylepipe/internal/metrics"
)

// Stage transforms one asset into zero or more assets.
// A recoverable *BuildError drops only the asset being processed; any other
// error stops the run.
type Stage interface {
	Name() string
	Process(ctx context.Context, a *Asset) ([]*Asset, error)
}

// Logger is the structured logger used by the builder
type Logger interface {
	Debug(msg interface{}, keyvals ...interface{})
	Info(msg interface{}, keyvals ...interface{})
	Warn(msg interface{}, keyvals ...interface{})
	Error(msg interface{}, keyvals ...interface{})
}

// pipeline streams assets through stages, one goroutine per stage
type pipeline struct {
	stages   []Stage
	reporter *ErrorReporter
	log      Logger
	recorder metrics.Recorder

	mu     sync.Mutex
	errors []*BuildError
}

// pipelineOutput is what reached the end of the stage chain
type pipelineOutput struct {
	read   int
	assets []*Asset
}

// run reads each source lazily and pushes it through the stages. Unbuffered
// channels keep at most one asset in flight per stage.
func (p *pipeline) run(ctx context.Context, sources []sourceFile) (*pipelineOutput, error) {
	g, gctx := errgroup.WithContext(ctx)
	out := &pipelineOutput{}

	src := make(chan *Asset)
	g.Go(func() error {
		defer close(src)
		for _, f := range sources {
			// #nosec G304 - entry paths come from configured globs
			data, err := os.ReadFile(f.Abs)
			if err != nil {
				return ioError("src", f.Abs, err)
			}
			out.read++
			p.log.Debug("read entry", "file", f.Abs)
			a := &Asset{Base: f.Base, Path: f.Rel, Source: f.Abs, Contents: data}
			select {
			case src <- a:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	in := src
	for _, st := range p.stages {
		next := make(chan *Asset)
		g.Go(p.stageLoop(gctx, st, in, next))
		in = next
	}

	g.Go(func() error {
		for a := range in {
			out.assets = append(out.assets, a)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, nil
}

func (p *pipeline) stageLoop(ctx context.Context, st Stage, in <-chan *Asset, out chan<- *Asset) func() error {
	return func() error {
		defer close(out)
		for a := range in {
			file := a.Path
			start := time.Now()
			results, err := st.Process(ctx, a)
			p.recorder.ObserveStageDuration(st.Name(), time.Since(start))

			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				var be *BuildError
				if errors.As(err, &be) && be.Recoverable() {
					p.recorder.IncStageResult(st.Name(), metrics.StageRecovered)
					p.report(be)
					continue
				}
				p.recorder.IncStageResult(st.Name(), metrics.StageFatal)
				return err
			}
			p.recorder.IncStageResult(st.Name(), metrics.StageSuccess)
			p.log.Debug("stage done", "stage", st.Name(), "file", file)

			for _, r := range results {
				select {
				case out <- r:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
		return nil
	}
}

func (p *pipeline) report(be *BuildError) {
	p.mu.Lock()
	p.errors = append(p.errors, be)
	p.mu.Unlock()
	p.reporter.Report(be)
}
