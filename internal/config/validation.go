package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/conneroisu/mdpreview/internal/errors"
	"github.com/conneroisu/mdpreview/internal/logging"
	"github.com/conneroisu/mdpreview/internal/renderer"
	"github.com/conneroisu/mdpreview/internal/watcher"
)

// ValidationError represents a configuration validation error with suggestions
type ValidationError struct {
	Field       string
	Value       interface{}
	Message     string
	Suggestions []string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", ve.Field, ve.Message)
}

// ValidationResult holds the result of configuration validation
type ValidationResult struct {
	Valid    bool
	Errors   []ValidationError
	Warnings []ValidationError
}

// HasErrors returns true if there are any validation errors
func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings
func (vr *ValidationResult) HasWarnings() bool {
	return len(vr.Warnings) > 0
}

// String returns a formatted string of all validation issues
func (vr *ValidationResult) String() string {
	var builder strings.Builder

	if len(vr.Errors) > 0 {
		builder.WriteString("❌ Validation Errors:\n")
		for _, err := range vr.Errors {
			builder.WriteString(fmt.Sprintf("  • %s: %s\n", err.Field, err.Message))
			for _, suggestion := range err.Suggestions {
				builder.WriteString(fmt.Sprintf("    💡 %s\n", suggestion))
			}
		}
		builder.WriteString("\n")
	}

	if len(vr.Warnings) > 0 {
		builder.WriteString("⚠️  Validation Warnings:\n")
		for _, warning := range vr.Warnings {
			builder.WriteString(fmt.Sprintf("  • %s: %s\n", warning.Field, warning.Message))
			for _, suggestion := range warning.Suggestions {
				builder.WriteString(fmt.Sprintf("    💡 %s\n", suggestion))
			}
		}
	}

	return builder.String()
}

func (vr *ValidationResult) addError(field string, value interface{}, message string, suggestions ...string) {
	vr.Valid = false
	vr.Errors = append(vr.Errors, ValidationError{
		Field:       field,
		Value:       value,
		Message:     message,
		Suggestions: suggestions,
	})
}

func (vr *ValidationResult) addWarning(field string, value interface{}, message string, suggestions ...string) {
	vr.Warnings = append(vr.Warnings, ValidationError{
		Field:       field,
		Value:       value,
		Message:     message,
		Suggestions: suggestions,
	})
}

// ValidateConfigWithDetails performs comprehensive validation with detailed
// feedback. Errors make the configuration unusable; warnings describe
// settings that work but are probably not what was intended.
func ValidateConfigWithDetails(config *Config) *ValidationResult {
	result := &ValidationResult{
		Valid:    true,
		Errors:   []ValidationError{},
		Warnings: []ValidationError{},
	}

	validateTargetsDetails(config, result)
	validateServerConfigDetails(&config.Server, result)
	validateRenderConfigDetails(&config.Render, result)
	validateWatchConfigDetails(&config.Watch, result)
	validateLogConfigDetails(&config.Log, result)

	return result
}

// validateConfig returns the first validation error as a PreviewError.
func validateConfig(config *Config) error {
	result := ValidateConfigWithDetails(config)
	if !result.HasErrors() {
		return nil
	}

	first := result.Errors[0]
	code := errors.ErrCodeConfigInvalid
	switch first.Field {
	case "document":
		code = errors.ErrCodeDocumentMissing
	case "stylesheet":
		code = errors.ErrCodeStylesheet
	}

	return errors.NewConfigError(code, first.Error()).WithContext("field", first.Field)
}

func validateTargetsDetails(config *Config, result *ValidationResult) {
	if strings.TrimSpace(config.Document) == "" {
		result.addError("document", config.Document, "a Markdown document is required",
			"Pass the file to preview: mdpreview README.md")
		return
	}

	if info, err := os.Stat(config.Document); err == nil && info.IsDir() {
		result.addError("document", config.Document, "document is a directory",
			"Point mdpreview at a single Markdown file")
	} else if err != nil {
		result.addWarning("document", config.Document, "document does not exist yet")
	}

	ext := strings.ToLower(filepath.Ext(config.Document))
	if ext != ".md" && ext != ".markdown" && ext != ".mdown" && ext != ".mkd" {
		result.addWarning("document", config.Document, "file does not have a Markdown extension")
	}

	if config.Stylesheet == "" {
		return
	}

	if info, err := os.Stat(config.Stylesheet); err == nil && info.IsDir() {
		result.addError("stylesheet", config.Stylesheet, "stylesheet is a directory")
	} else if err != nil {
		result.addWarning("stylesheet", config.Stylesheet, "stylesheet does not exist yet")
	}

	if filepath.Clean(config.Stylesheet) == filepath.Clean(config.Document) {
		result.addError("stylesheet", config.Stylesheet, "stylesheet and document are the same file")
	}
}

func validateServerConfigDetails(config *ServerConfig, result *ValidationResult) {
	// Allow 0 for system-assigned ports
	if config.Port < 0 || config.Port > 65535 {
		result.addError("server.port", config.Port,
			fmt.Sprintf("port %d is not in valid range 0-65535", config.Port),
			"Use the default port 8000")
	}
	if config.WebSocketPort < 0 || config.WebSocketPort > 65535 {
		result.addError("server.ws_port", config.WebSocketPort,
			fmt.Sprintf("port %d is not in valid range 0-65535", config.WebSocketPort),
			"Use the default port 3012")
	}
	if config.Port != 0 && config.Port == config.WebSocketPort {
		result.addError("server.ws_port", config.WebSocketPort,
			"page and websocket ports must differ",
			fmt.Sprintf("Try --ws-port %d", DefaultWebSocketPort))
	}
	if config.Port > 0 && config.Port < 1024 {
		result.addWarning("server.port", config.Port, "privileged port may require elevated permissions")
	}

	if err := validateHostname(config.Host); err != nil {
		result.addError("server.host", config.Host, err.Error(), "Use 127.0.0.1 or localhost")
		return
	}
	if ip := net.ParseIP(config.Host); ip != nil && !ip.IsLoopback() {
		result.addWarning("server.host", config.Host,
			"preview is reachable from other machines; the websocket only accepts local origins")
	}
}

func validateRenderConfigDetails(config *RenderConfig, result *ValidationResult) {
	if !renderer.IsKnownStyle(config.HighlightStyle) {
		result.addError("render.highlight_style", config.HighlightStyle,
			fmt.Sprintf("unknown highlight style %q", config.HighlightStyle),
			"Use a chroma style such as github, monokai or dracula",
			fmt.Sprintf("Use %q to disable highlighting", renderer.NoHighlight))
	}
}

func validateWatchConfigDetails(config *WatchConfig, result *ValidationResult) {
	if config.Debounce <= 0 {
		result.addError("watch.debounce", config.Debounce.String(), "debounce must be positive",
			"Use the default of 30ms")
	} else if config.Debounce > 2*time.Second {
		result.addWarning("watch.debounce", config.Debounce.String(),
			"long debounce makes the preview feel sluggish")
	}

	if config.BufferSize < 0 {
		result.addError("watch.buffer_size", config.BufferSize, "buffer size cannot be negative")
	}

	if _, err := watcher.CompilePatterns(config.Ignore); err != nil {
		result.addError("watch.ignore", config.Ignore, err.Error(),
			"Patterns use glob syntax, e.g. *.swp or .#*")
	}
}

func validateLogConfigDetails(config *LogConfig, result *ValidationResult) {
	if _, err := logging.ParseLevel(config.Level); err != nil {
		result.addError("log.level", config.Level, err.Error(), "Use debug, info, warn or error")
	}
	switch config.Format {
	case "text", "json":
	default:
		result.addError("log.format", config.Format, fmt.Sprintf("unknown log format %q", config.Format),
			"Use text or json")
	}
}

// validateHostname rejects hosts that are empty or carry shell or URL
// metacharacters.
func validateHostname(host string) error {
	if host == "" {
		return fmt.Errorf("host cannot be empty")
	}

	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\", "/", " "}
	for _, char := range dangerousChars {
		if strings.Contains(host, char) {
			return fmt.Errorf("host contains dangerous character: %s", char)
		}
	}
	return nil
}
