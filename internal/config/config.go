// Package config provides configuration management for mdpreview using
// Viper, so settings can come from a YAML file, MDPREVIEW_ environment
// variables or command-line flags.
//
// Load reads the merged Viper state into a Config, fills in defaults and
// validates the result. Configuration errors are fatal: there is nothing to
// preview without a valid document and free ports.
package config

import (
	"encoding/json"
	"time"

	"github.com/conneroisu/mdpreview/internal/errors"
	"github.com/conneroisu/mdpreview/internal/renderer"
	"github.com/conneroisu/mdpreview/internal/watcher"
	"github.com/spf13/viper"
)

// Default values.
const (
	DefaultHost          = "127.0.0.1"
	DefaultPort          = 8000
	DefaultWebSocketPort = 3012
	DefaultDebounce      = 30 * time.Millisecond
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "text"
)

type Config struct {
	Document   string       `yaml:"document" json:"document" mapstructure:"document"`
	Stylesheet string       `yaml:"stylesheet,omitempty" json:"stylesheet,omitempty" mapstructure:"stylesheet"`
	Server     ServerConfig `yaml:"server" json:"server" mapstructure:"server"`
	Render     RenderConfig `yaml:"render" json:"render" mapstructure:"render"`
	Watch      WatchConfig  `yaml:"watch" json:"watch" mapstructure:"watch"`
	Log        LogConfig    `yaml:"log" json:"log" mapstructure:"log"`
}

type ServerConfig struct {
	Host          string `yaml:"host" json:"host" mapstructure:"host"`
	Port          int    `yaml:"port" json:"port" mapstructure:"port"`
	WebSocketPort int    `yaml:"ws_port" json:"ws_port" mapstructure:"ws_port"`
	Open          bool   `yaml:"open" json:"open" mapstructure:"open"`
	NoOpen        bool   `yaml:"-" json:"-" mapstructure:"no-open"`
}

type RenderConfig struct {
	HighlightStyle string `yaml:"highlight_style" json:"highlight_style" mapstructure:"highlight_style"`
	Sanitize       bool   `yaml:"sanitize" json:"sanitize" mapstructure:"sanitize"`
}

type WatchConfig struct {
	Debounce   time.Duration `yaml:"debounce" json:"debounce" mapstructure:"debounce"`
	Ignore     []string      `yaml:"ignore" json:"ignore" mapstructure:"ignore"`
	BufferSize int           `yaml:"buffer_size" json:"buffer_size" mapstructure:"buffer_size"`
}

type LogConfig struct {
	Level  string `yaml:"level" json:"level" mapstructure:"level"`
	Format string `yaml:"format" json:"format" mapstructure:"format"`
}

// Load builds a Config from the global Viper instance and validates it.
func Load() (*Config, error) {
	config, err := Resolve()
	if err != nil {
		return nil, err
	}

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	return config, nil
}

// Resolve builds a Config from the global Viper instance with defaults
// applied but without validating it.
func Resolve() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, errors.WrapConfig(err, errors.ErrCodeConfigInvalid, "decoding configuration")
	}

	// Handle ignore patterns set via viper (workaround for viper slice handling)
	if viper.IsSet("watch.ignore") && len(config.Watch.Ignore) == 0 {
		config.Watch.Ignore = viper.GetStringSlice("watch.ignore")
	}

	applyDefaults(&config)

	// Override open if no-open is explicitly set via flag
	if viper.IsSet("server.no-open") && viper.GetBool("server.no-open") {
		config.Server.Open = false
	}

	return &config, nil
}

// applyDefaults fills every zero value that has a non-zero default.
func applyDefaults(config *Config) {
	if config.Server.Host == "" {
		config.Server.Host = DefaultHost
	}
	if !viper.IsSet("server.port") && config.Server.Port == 0 {
		config.Server.Port = DefaultPort
	}
	if !viper.IsSet("server.ws_port") && config.Server.WebSocketPort == 0 {
		config.Server.WebSocketPort = DefaultWebSocketPort
	}
	if !viper.IsSet("server.open") {
		config.Server.Open = true
	}

	if config.Render.HighlightStyle == "" {
		config.Render.HighlightStyle = renderer.DefaultHighlightStyle
	}

	if config.Watch.Debounce == 0 {
		config.Watch.Debounce = DefaultDebounce
	}
	if !viper.IsSet("watch.ignore") && len(config.Watch.Ignore) == 0 {
		config.Watch.Ignore = append([]string(nil), watcher.DefaultIgnorePatterns...)
	}
	if config.Watch.BufferSize == 0 {
		config.Watch.BufferSize = watcher.DefaultBufferSize
	}

	if config.Log.Level == "" {
		config.Log.Level = DefaultLogLevel
	}
	if config.Log.Format == "" {
		config.Log.Format = DefaultLogFormat
	}
}

type watchView struct {
	Debounce   string   `yaml:"debounce" json:"debounce"`
	Ignore     []string `yaml:"ignore" json:"ignore"`
	BufferSize int      `yaml:"buffer_size" json:"buffer_size"`
}

func (w WatchConfig) view() watchView {
	return watchView{Debounce: w.Debounce.String(), Ignore: w.Ignore, BufferSize: w.BufferSize}
}

// MarshalYAML writes the debounce as a duration string so the output can be
// fed back in as a config file.
func (w WatchConfig) MarshalYAML() (interface{}, error) {
	return w.view(), nil
}

// MarshalJSON writes the debounce as a duration string.
func (w WatchConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(w.view())
}
