package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/conneroisu/mdpreview/internal/config"
	"github.com/conneroisu/mdpreview/internal/renderer"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// previewBindings maps flag names to configuration keys.
var previewBindings = map[string]string{
	"stylesheet":      "stylesheet",
	"host":            "server.host",
	"port":            "server.port",
	"ws-port":         "server.ws_port",
	"no-open":         "server.no-open",
	"highlight-style": "render.highlight_style",
	"sanitize":        "render.sanitize",
	"debounce":        "watch.debounce",
	"ignore":          "watch.ignore",
	"log-level":       "log.level",
	"log-format":      "log.format",
}

// addPreviewFlags defines the flags that shape a preview. They are
// persistent so `config show` and `config validate` resolve the same
// values the preview would.
func addPreviewFlags(flags *pflag.FlagSet) {
	flags.StringP("stylesheet", "s", "", "CSS file applied to the document and watched for changes")
	flags.String("host", config.DefaultHost, "Host to bind to")
	flags.IntP("port", "p", config.DefaultPort, "Port for the preview page (0 picks a free port)")
	flags.Int("ws-port", config.DefaultWebSocketPort, "Port for the websocket (0 picks a free port)")
	flags.Bool("no-open", false, "Don't open browser automatically")
	flags.String("highlight-style", renderer.DefaultHighlightStyle,
		fmt.Sprintf("Chroma style for code blocks (%q disables highlighting)", renderer.NoHighlight))
	flags.Bool("sanitize", false, "Strip scripts and unsafe HTML from the rendered document")
	flags.Duration("debounce", config.DefaultDebounce, "Quiet period before a burst of changes is rendered")
	flags.StringSlice("ignore", nil, "Glob patterns for files to ignore (default: editor swap files)")

	AddFlagValidation(flags, "port", ValidatePort)
	AddFlagValidation(flags, "ws-port", ValidatePort)
	AddFlagValidation(flags, "stylesheet", ValidateFileExists)
}

// SetViperBindings binds flags to viper configuration keys
func SetViperBindings(flags *pflag.FlagSet, bindings map[string]string) {
	for flagName, configKey := range bindings {
		if flag := flags.Lookup(flagName); flag != nil {
			_ = viper.BindPFlag(configKey, flag)
		}
	}
}

// AddFlagValidation adds validation for a specific flag
func AddFlagValidation(flags *pflag.FlagSet, flagName string, validator func(string) error) {
	flag := flags.Lookup(flagName)
	if flag == nil {
		return
	}

	flag.Value = &validatingValue{
		Value:     flag.Value,
		validator: validator,
	}
}

type validatingValue struct {
	pflag.Value
	validator func(string) error
}

func (v *validatingValue) Set(val string) error {
	if v.validator != nil {
		if err := v.validator(val); err != nil {
			return err
		}
	}
	return v.Value.Set(val)
}

// ValidatePort accepts 0 (any free port) through 65535.
func ValidatePort(portStr string) error {
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid port number: %s", portStr)
	}

	if port < 0 || port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535, got %d", port)
	}

	return nil
}

// ValidateFileExists rejects paths that do not exist. Empty is valid for
// optional files.
func ValidateFileExists(filename string) error {
	if filename == "" {
		return nil
	}

	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return fmt.Errorf("file does not exist: %s", filename)
	}

	return nil
}
