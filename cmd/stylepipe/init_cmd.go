package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yacobolo/stylepipe/internal/stylepipe"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a default .stylepipe.yaml config file",
	Long: `Create a .stylepipe.yaml configuration file in the current directory with
sensible defaults for the chosen preprocessor.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		force, _ := cmd.Flags().GetBool("force")
		name, _ := cmd.Flags().GetString("preprocessor")
		if name == "" {
			name = stylepipe.PreprocessorSass
		}

		content, err := renderDefaultConfig(name)
		if err != nil {
			return err
		}

		if _, err := os.Stat(".stylepipe.yaml"); err == nil && !force {
			return fmt.Errorf(".stylepipe.yaml already exists (use --force to overwrite)")
		}

		if err := os.WriteFile(".stylepipe.yaml", []byte(content), 0o600); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), "Created .stylepipe.yaml")
		return nil
	},
}

const defaultConfig = `# stylepipe configuration
# Environment variables override this file: STYLEPIPE_DEST, STYLEPIPE_SASS_BINARY, ...

preprocessor: {{preprocessor}}   # sass | less | stylus
root: .
sources:
  - "client/styles/main.{{ext}}"
dest: public/styles
manifest: bower.json
# components-dir: bower_components   # default: from .bowerrc

markers:
  start: "/* inject:imports */"
  end: "/* endinject */"

sourcemaps:
  mode: file               # file | inline | none
  source-root: /client/styles

autoprefix:
  enabled: true
  vendors: [webkit, moz, ms]

reload:
  match: "**/*.css"
  # serve: ":35729"

log:
  level: info              # debug | info | warn | error
  json: false

# Options for the selected preprocessor only
{{options}}`

var defaultOptions = map[string]string{
	stylepipe.PreprocessorSass: `sass:
  output-style: compressed # compressed | expanded
  binary: sass
  include-paths: []
`,
	stylepipe.PreprocessorLess: `less:
  compress: true
  binary: lessc
  include-paths: []
`,
	stylepipe.PreprocessorStylus: `stylus:
  compress: true
  binary: stylus
  include-paths: []
`,
}

// renderDefaultConfig fills the config template for a preprocessor
func renderDefaultConfig(name string) (string, error) {
	p, err := stylepipe.NewPreprocessor(name)
	if err != nil {
		return "", err
	}
	return strings.NewReplacer(
		"{{preprocessor}}", p.Name(),
		"{{ext}}", p.Extension(),
		"{{options}}", defaultOptions[p.Name()],
	).Replace(defaultConfig), nil
}

func init() {
	initCmd.Flags().Bool("force", false, "Overwrite existing config file")
}
