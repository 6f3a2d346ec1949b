package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/yacobolo/stylepipe/internal/logger"
	"github.com/yacobolo/stylepipe/internal/stylepipe"
)

var k = koanf.New(".")

// flagKeys maps flag names to their config file keys. Flags not listed use
// their own name.
var flagKeys = map[string]string{
	"source":      "sources",
	"source-maps": "sourcemaps.mode",
	"source-root": "sourcemaps.source-root",
	"autoprefix":  "autoprefix.enabled",
	"vendors":     "autoprefix.vendors",
	"reload":      "reload.match",
	"serve":       "reload.serve",
	"log-level":   "log.level",
	"log-json":    "log.json",
}

// envKeys maps environment-derived keys back to hyphenated config keys.
// STYLEPIPE_SASS_OUTPUT_STYLE arrives as sass.output.style.
var envKeys = map[string]string{
	"components.dir":         "components-dir",
	"output.format":          "output-format",
	"sourcemaps.source.root": "sourcemaps.source-root",
	"sass.output.style":      "sass.output-style",
	"sass.include.paths":     "sass.include-paths",
	"less.include.paths":     "less.include-paths",
	"stylus.include.paths":   "stylus.include-paths",
}

// envListKeys are split on commas when set from the environment
var envListKeys = map[string]bool{
	"sources":              true,
	"autoprefix.vendors":   true,
	"sass.include-paths":   true,
	"less.include-paths":   true,
	"stylus.include-paths": true,
}

// loadConfig loads configuration with precedence: flags > env > file > defaults.
// It must be called after cobra parses flags (in PreRunE or RunE).
func loadConfig(cmd *cobra.Command) error {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath == "" {
		configPath = ".stylepipe.yaml"
	}

	envFile, _ := cmd.Flags().GetString("env-file")
	if err := loadEnvFile(envFile); err != nil {
		return err
	}

	if err := loadConfigFromPath(configPath); err != nil {
		return err
	}

	// 3. CLI flags (highest precedence, only flags that were explicitly set)
	if err := loadFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("loading command flags: %w", err)
	}

	return nil
}

// loadEnvFile exports the variables of an optional .env file. Variables
// already set in the environment are kept.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat env file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("env file %s is not a regular file", path)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading env file %s: %w", path, err)
	}
	return nil
}

// loadFlags merges the explicitly set flags of fs under their config keys
func loadFlags(fs *pflag.FlagSet) error {
	return k.Load(posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, interface{}) {
		if !f.Changed {
			return "", nil
		}
		key := f.Name
		if mapped, ok := flagKeys[key]; ok {
			key = mapped
		}
		return key, posflag.FlagVal(fs, f)
	}), nil)
}

// loadConfigFromPath loads configuration from a file and environment variables.
// This is separated from loadConfig to allow testing without a cobra command.
func loadConfigFromPath(configPath string) error {
	// 1. Config file (lowest precedence among providers)
	if _, err := os.Stat(configPath); err == nil {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return fmt.Errorf("loading config file %s: %w", configPath, err)
		}
	}

	// 2. Environment variables (STYLEPIPE_* prefix)
	if err := k.Load(env.ProviderWithValue("STYLEPIPE_", ".", func(key, value string) (string, interface{}) {
		// STYLEPIPE_PREPROCESSOR -> preprocessor
		// STYLEPIPE_SASS_BINARY -> sass.binary
		// STYLEPIPE_SOURCES=a.scss,b.scss -> sources: [a.scss, b.scss]
		// STYLEPIPE_COMPONENTS_DIR -> components-dir
		key = strings.ReplaceAll(
			strings.ToLower(strings.TrimPrefix(key, "STYLEPIPE_")),
			"_", ".",
		)
		if mapped, ok := envKeys[key]; ok {
			key = mapped
		}
		if envListKeys[key] {
			return key, splitList(value)
		}
		return key, value
	}), nil); err != nil {
		return fmt.Errorf("loading environment variables: %w", err)
	}

	return nil
}

// variants lists the per-preprocessor option blocks
var variants = []string{stylepipe.PreprocessorSass, stylepipe.PreprocessorLess, stylepipe.PreprocessorStylus}

// buildPreprocessor selects exactly one preprocessor. An option block for a
// preprocessor other than the selected one is a configuration error.
func buildPreprocessor() (stylepipe.Preprocessor, error) {
	name := strings.ToLower(getString("preprocessor", ""))
	p, err := stylepipe.NewPreprocessor(name)
	if err != nil {
		return nil, err
	}
	for _, v := range variants {
		if v != name && k.Exists(v) {
			return nil, stylepipe.ConfigError("%q options given but preprocessor is %q", v, name)
		}
	}

	switch opts := p.(type) {
	case stylepipe.SassOptions:
		opts.OutputStyle = getString("sass.output-style", opts.OutputStyle)
		opts.IncludePaths = getStrings("sass.include-paths")
		opts.Binary = getString("sass.binary", opts.Binary)
		return opts, nil
	case stylepipe.LessOptions:
		opts.Compress = getBool("less.compress", opts.Compress)
		opts.IncludePaths = getStrings("less.include-paths")
		opts.Binary = getString("less.binary", opts.Binary)
		return opts, nil
	case stylepipe.StylusOptions:
		opts.Compress = getBool("stylus.compress", opts.Compress)
		opts.IncludePaths = getStrings("stylus.include-paths")
		opts.Binary = getString("stylus.binary", opts.Binary)
		return opts, nil
	}
	return p, nil
}

// buildConfig constructs the pipeline Config from koanf state.
func buildConfig() (stylepipe.Config, error) {
	p, err := buildPreprocessor()
	if err != nil {
		return stylepipe.Config{}, err
	}

	config := stylepipe.DefaultConfig(getString("root", "."), p)
	if sources := getStrings("sources"); sources != nil {
		config.Sources = sources
	}
	config.Dest = getString("dest", config.Dest)
	config.Manifest = getString("manifest", config.Manifest)
	config.ComponentsDir = getString("components-dir", "")
	config.StartMarker = getString("markers.start", config.StartMarker)
	config.EndMarker = getString("markers.end", config.EndMarker)
	config.SourceMaps = stylepipe.SourceMapMode(getString("sourcemaps.mode", string(config.SourceMaps)))
	config.SourceRoot = getString("sourcemaps.source-root", config.SourceRoot)
	config.Autoprefix = getBool("autoprefix.enabled", config.Autoprefix)
	if vendors := getStrings("autoprefix.vendors"); vendors != nil {
		config.Vendors = vendors
	}
	config.ReloadMatch = getString("reload.match", config.ReloadMatch)
	config.Verbose = getBool("verbose", false)

	return config, config.Validate()
}

// buildLoggerConfig constructs the logger settings. --verbose raises the
// level to debug unless a level is set explicitly.
func buildLoggerConfig() (*logger.Config, error) {
	level, err := logger.ParseLevel(getString("log.level", ""))
	if err != nil {
		return nil, err
	}
	if getBool("verbose", false) && !k.Exists("log.level") {
		level = logger.DebugLevel
	}
	cfg := logger.DefaultConfig()
	cfg.Level = level
	cfg.JSON = getBool("log.json", false)
	return cfg, nil
}

// getString returns the value at key, or defaultVal when unset or empty.
func getString(key, defaultVal string) string {
	if v := k.String(key); v != "" {
		return v
	}
	return defaultVal
}

// getBool returns the value at key, or defaultVal when unset.
func getBool(key string, defaultVal bool) bool {
	if k.Exists(key) {
		return k.Bool(key)
	}
	return defaultVal
}

// getStrings returns the list at key, or nil when unset or empty.
func getStrings(key string) []string {
	if v := k.Strings(key); len(v) > 0 {
		return v
	}
	return nil
}

// splitList splits a comma-separated value, dropping empty items
func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
