package main

import (
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	summary "github.com/yacobolo/stylepipe"
	"github.com/yacobolo/stylepipe/internal/livereload"
	"github.com/yacobolo/stylepipe/internal/metrics"
	"github.com/yacobolo/stylepipe/internal/stylepipe"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Rebuild on every change and push CSS to live reload",
	Long: `Run the pipeline, then again whenever an entry file, a partial, the bower
manifest or an installed component changes. With --serve, written CSS is
pushed to browsers over server-sent events and Prometheus metrics are
exposed on /metrics.

Add the client to a page with:
  <script src="http://localhost:35729/livereload.js"></script>`,
	PreRunE: func(cmd *cobra.Command, _ []string) error {
		return loadConfig(cmd)
	},
	RunE: runWatch,
}

func init() {
	addPipelineFlags(watchCmd.Flags())
	watchCmd.Flags().String("serve", "", "Serve live reload and metrics on this address (e.g. :35729)")
}

func runWatch(cmd *cobra.Command, _ []string) error {
	log, err := newLogger()
	if err != nil {
		return err
	}

	reg := prom.NewRegistry()
	recorder := metrics.NewPrometheusRecorder(reg)
	opts := []stylepipe.Option{stylepipe.WithRecorder(recorder)}

	addr := getString("reload.serve", "")
	var server *livereload.Server
	if addr != "" {
		hub := livereload.NewHub(log, recorder)
		server = livereload.NewServer(addr, hub, metrics.HTTPHandler(reg))
		opts = append(opts, stylepipe.WithNotifier(hub))
	}

	b, err := newBuilder(log, opts...)
	if err != nil {
		return err
	}
	defer func() { _ = b.Close() }()

	format := summary.DetermineOutputFormat(getString("output-format", ""), getBool("quiet", false))
	out := cmd.OutOrStdout()
	useColors := stylepipe.ShouldUseColors(getBool("color", false), out)

	g, ctx := errgroup.WithContext(cmd.Context())
	if server != nil {
		g.Go(func() error {
			log.Info("live reload listening", "addr", addr)
			return server.ListenAndServe(ctx)
		})
	}
	g.Go(func() error {
		return b.Watch(ctx, func(result *stylepipe.Result, err error) {
			if werr := summary.WriteOutput(out, result, err, format, useColors); werr != nil {
				log.Error("write summary", "err", werr)
			}
		})
	})

	return g.Wait()
}
