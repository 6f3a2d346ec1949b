package main

import (
	"errors"
	"os"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	summary "github.com/yacobolo/stylepipe"
	"github.com/yacobolo/stylepipe/internal/logger"
	"github.com/yacobolo/stylepipe/internal/stylepipe"
)

// errBuildFailed is returned after the build summary has been written
var errBuildFailed = errors.New("build failed")

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Run the style pipeline once",
	Long: `Inject dependency imports, compile every entry file, add vendor prefixes,
write source maps and write the CSS to the destination directory.
Compile errors are reported on stderr and do not stop the other entries.`,
	PreRunE: func(cmd *cobra.Command, _ []string) error {
		return loadConfig(cmd)
	},
	RunE: runBuild,
}

func init() {
	addPipelineFlags(buildCmd.Flags())
	buildCmd.Flags().Bool("strict", false, "Exit 1 when any entry failed to compile")
}

// addPipelineFlags registers the flags shared by build, watch and inject
func addPipelineFlags(f *pflag.FlagSet) {
	f.String("root", ".", "Project root")
	f.StringSlice("source", nil, "Entry globs (default: client/styles/main.<ext>)")
	f.String("dest", stylepipe.DefaultDest, "Destination directory")
	f.String("manifest", stylepipe.DefaultManifest, "Bower manifest")
	f.String("components-dir", "", "Bower components directory (default: from .bowerrc)")
	f.String("source-maps", string(stylepipe.SourceMapFile), "Source maps: file|inline|none")
	f.String("source-root", stylepipe.DefaultSourceRoot, "sourceRoot written into source maps")
	f.Bool("autoprefix", true, "Add vendor prefixes")
	f.StringSlice("vendors", nil, "Vendors to prefix for (default: webkit,moz,ms)")
	f.String("reload", stylepipe.DefaultReloadMatch, "Glob of written files pushed to live reload")
}

// newLogger creates the CLI logger from koanf state
func newLogger() (*charmlog.Logger, error) {
	logCfg, err := buildLoggerConfig()
	if err != nil {
		return nil, err
	}
	return logger.New(logCfg), nil
}

// newBuilder creates a builder from koanf state with the stderr reporter
func newBuilder(log *charmlog.Logger, opts ...stylepipe.Option) (*stylepipe.Builder, error) {
	config, err := buildConfig()
	if err != nil {
		return nil, err
	}

	useColors := stylepipe.ShouldUseColors(getBool("color", false), os.Stderr)
	base := []stylepipe.Option{
		stylepipe.WithLogger(log),
		stylepipe.WithReporter(stylepipe.NewErrorReporter(os.Stderr, useColors, true)),
	}
	return stylepipe.NewBuilder(config, append(base, opts...)...)
}

func runBuild(cmd *cobra.Command, _ []string) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	b, err := newBuilder(log)
	if err != nil {
		return err
	}
	defer func() { _ = b.Close() }()

	result, runErr := b.Run(cmd.Context())

	format := summary.DetermineOutputFormat(getString("output-format", ""), getBool("quiet", false))
	useColors := stylepipe.ShouldUseColors(getBool("color", false), cmd.OutOrStdout())
	if err := summary.WriteOutput(cmd.OutOrStdout(), result, runErr, format, useColors); err != nil {
		return err
	}

	if runErr != nil {
		return errBuildFailed
	}
	strict, _ := cmd.Flags().GetBool("strict")
	if strict && !result.OK() {
		return errBuildFailed
	}
	return nil
}
