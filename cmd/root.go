// Package cmd provides the command-line interface for mdpreview with
// configuration management supporting multiple configuration sources.
//
// Configuration System:
//
//	The CLI supports configuration through multiple sources with clear precedence:
//	1. Command-line flags (--port, --debounce, etc.) - highest priority
//	2. Individual environment variables (MDPREVIEW_SERVER_PORT, etc.)
//	3. Configuration file (--config, MDPREVIEW_CONFIG_FILE or .mdpreview.yml)
//	4. Built-in defaults - lowest priority
//
// Environment Variables:
//
//	MDPREVIEW_CONFIG_FILE: Path to custom configuration file
//	MDPREVIEW_SERVER_PORT: Override the page port
//	MDPREVIEW_SERVER_WS_PORT: Override the websocket port
//	MDPREVIEW_WATCH_DEBOUNCE: Override the debounce window
//	And the rest following the MDPREVIEW_<SECTION>_<OPTION> pattern
package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/conneroisu/mdpreview/internal/config"
	"github.com/conneroisu/mdpreview/internal/errors"
	"github.com/conneroisu/mdpreview/internal/logging"
	"github.com/conneroisu/mdpreview/internal/preview"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd previews a document when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "mdpreview [flags] FILE",
	Short: "Live preview for Markdown documents",
	Long: `mdpreview renders a Markdown document to HTML and serves it to your
browser. Every time the document (or its stylesheet) is saved, the new
rendering is pushed to all open viewers over a websocket, without a reload.

Examples:
  mdpreview README.md                       # Preview on http://127.0.0.1:8000
  mdpreview -s docs/style.css notes.md      # Use a custom stylesheet
  mdpreview -p 9000 --ws-port 9001 doc.md   # Use other ports
  mdpreview --no-open --debounce 100ms doc.md

Documentation: https://github.com/conneroisu/mdpreview`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runPreview,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// Failures are reported on stderr before being returned.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		reportError(rootCmd.ErrOrStderr(), err)
	}
	return err
}

// reportError prints the startup diagnostic and a hint for the failures a
// user can fix from the command line.
func reportError(w io.Writer, err error) {
	fmt.Fprintln(w, "Error:", errors.FormatError(err))

	switch {
	case errors.IsConfigError(err):
		fmt.Fprintln(w, "Hint: run 'mdpreview config validate' to check the configuration")
	case errors.IsType(err, errors.ErrorTypeNetwork):
		fmt.Fprintln(w, "Hint: choose free ports with --port and --ws-port (0 picks any free port)")
	case errors.IsType(err, errors.ErrorTypeWatch):
		fmt.Fprintln(w, "Hint: check that the directory exists and the watch limit is not exhausted")
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is .mdpreview.yml, can also use MDPREVIEW_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", config.DefaultLogLevel, "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", config.DefaultLogFormat, "log format (text, json)")

	addPreviewFlags(rootCmd.PersistentFlags())

	SetViperBindings(rootCmd.PersistentFlags(), previewBindings)
}

// initConfig points Viper at the configuration file and the environment.
//
// Configuration file priority (highest to lowest):
//  1. --config flag
//  2. MDPREVIEW_CONFIG_FILE environment variable
//  3. .mdpreview.yml in the current directory
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("MDPREVIEW_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".mdpreview")
	}

	// MDPREVIEW_SERVER_WS_PORT, MDPREVIEW_SERVER_NO_OPEN, ...
	viper.SetEnvPrefix("MDPREVIEW")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
	_ = viper.BindEnv("document")

	// A missing default file is fine; flags and defaults still apply.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadConfig records the document argument, if any, and loads the merged
// configuration.
func loadConfig(args []string) (*config.Config, error) {
	if len(args) > 0 {
		viper.Set("document", args[0])
	}
	return config.Load()
}

func newLogger(cfg config.LogConfig, w io.Writer) logging.Logger {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		level = logging.LevelInfo
	}
	return logging.NewLogger(&logging.LoggerConfig{
		Level:     level,
		Format:    cfg.Format,
		Output:    w,
		Component: "mdpreview",
	})
}

func runPreview(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Log, cmd.ErrOrStderr())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := preview.New(cfg, logger)
	if err != nil {
		return err
	}
	if err := p.Start(ctx); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Previewing %s at %s (press Ctrl+C to stop)\n", cfg.Document, p.URL())

	return p.Wait()
}
