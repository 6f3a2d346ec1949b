package main

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "stylepipe",
	Short: "Stylesheet build pipeline with bower import injection",
	Long: `Inject bower dependency imports into entry stylesheets, compile them with
Sass, Less or Stylus, add vendor prefixes, write source maps and push the
resulting CSS to live reload.`,
	// Default behavior: run build when no subcommand is given.
	// PreRunE of buildCmd is not triggered when delegating, so load here.
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := loadConfig(cmd); err != nil {
			return err
		}
		return runBuild(cmd, nil)
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	// Global persistent flags (inherited by all subcommands)
	f := rootCmd.PersistentFlags()
	f.String("config", ".stylepipe.yaml", "Config file path")
	f.String("env-file", ".env", "Optional file of STYLEPIPE_* variables")
	f.StringP("preprocessor", "p", "", "Preprocessor: sass|less|stylus")
	f.BoolP("verbose", "v", false, "Enable debug logging per asset")
	f.Bool("quiet", false, "Suppress all output (exit code only)")
	f.Bool("color", false, "Force color output")
	f.String("log-level", "", "Log level: debug|info|warn|error")
	f.Bool("log-json", false, "Log as JSON")
	f.String("output-format", "", "Summary format: text|json|none")

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(injectCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(completionCmd)
	rootCmd.AddCommand(versionCmd)
}
