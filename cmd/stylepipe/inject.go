package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var injectCmd = &cobra.Command{
	Use:   "inject",
	Short: "Write dependency imports into the entry files",
	Long: `Resolve the bower manifest and rewrite the region between the inject markers
of every entry file on disk. Running it twice leaves the files unchanged.`,
	PreRunE: func(cmd *cobra.Command, _ []string) error {
		return loadConfig(cmd)
	},
	RunE: runInject,
}

func init() {
	addPipelineFlags(injectCmd.Flags())
}

func runInject(cmd *cobra.Command, _ []string) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	b, err := newBuilder(log)
	if err != nil {
		return err
	}
	defer func() { _ = b.Close() }()

	changed, err := b.Inject()
	if err != nil {
		return err
	}

	if getBool("quiet", false) {
		return nil
	}
	out := cmd.OutOrStdout()
	if len(changed) == 0 {
		fmt.Fprintln(out, "Entry files are up to date")
		return nil
	}
	for _, file := range changed {
		fmt.Fprintf(out, "Injected %s\n", file)
	}
	return nil
}
