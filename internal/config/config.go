// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/ollapa/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete ollapa configuration.
type Config struct {
	// APIURL is the Ollama server base URL
	APIURL string `toml:"api_url" json:"api_url"`

	// DefaultModel is used for new chats when none is given
	DefaultModel string `toml:"default_model" json:"default_model"`

	Storage StorageConfig `toml:"storage" json:"storage"`
	Errors  ErrorsConfig  `toml:"errors" json:"errors"`
	Log     LogConfig     `toml:"log" json:"log"`
	UI      UIConfig      `toml:"ui" json:"ui"`
}

// StorageConfig controls where chats are kept.
type StorageConfig struct {
	// DataDir holds the chat database and log file (default: config dir)
	DataDir string `toml:"data_dir" json:"data_dir"`
}

// ErrorsConfig controls the transient error banner.
type ErrorsConfig struct {
	// ExpirySecs is how long an error stays visible
	ExpirySecs int `toml:"expiry_secs" json:"expiry_secs"`
}

// LogConfig controls diagnostic logging.
type LogConfig struct {
	// File receives log output (default: <data_dir>/ollapa.log)
	File string `toml:"file" json:"file"`

	// Verbose mirrors log output to stderr
	Verbose bool `toml:"verbose" json:"verbose"`
}

// UIConfig controls terminal output.
type UIConfig struct {
	// RenderMarkdown renders assistant replies with glamour on a TTY
	RenderMarkdown bool `toml:"render_markdown" json:"render_markdown"`

	// Color is "auto", "always" or "never"
	Color string `toml:"color" json:"color"`
}

// DefaultAPIURL is the address of a stock local Ollama install.
const DefaultAPIURL = "http://localhost:11434"

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		APIURL:       DefaultAPIURL,
		DefaultModel: "",
		Errors: ErrorsConfig{
			ExpirySecs: 5,
		},
		UI: UIConfig{
			RenderMarkdown: true,
			Color:          "auto",
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// Dir returns the ollapa configuration directory. OLLAPA_HOME overrides
// the default of ~/.ollapa.
func Dir() (string, error) {
	if home := os.Getenv("OLLAPA_HOME"); home != "" {
		return util.ExpandHome(home), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".ollapa"), nil
}

// Path returns the path to the TOML config file.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// DataDir returns the resolved data directory.
func (c *Config) DataDir() string {
	if c.Storage.DataDir != "" {
		return util.ExpandHome(c.Storage.DataDir)
	}
	dir, err := Dir()
	if err != nil {
		return "."
	}
	return dir
}

// LogPath returns the resolved log file path.
func (c *Config) LogPath() string {
	if c.Log.File != "" {
		return util.ExpandHome(c.Log.File)
	}
	return filepath.Join(c.DataDir(), "ollapa.log")
}

// ErrorExpiry returns the error banner lifetime as a duration.
func (c *Config) ErrorExpiry() time.Duration {
	return time.Duration(c.Errors.ExpirySecs) * time.Second
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the default path. A missing file yields
// the defaults. Environment overrides are applied last.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom loads configuration from path with full validation. A missing
// file yields the defaults.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); err == nil {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat config %s: %w", path, err)
	}

	cfg.ApplyEnvOverrides()
	cfg.Migrate()
	fillDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFile reads the config file as written, without environment
// overrides or validation. A missing file yields the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); err == nil {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	cfg.Migrate()
	fillDefaults(cfg)
	return cfg, nil
}

// LoadTOML decodes a TOML file over cfg. Keys absent from the file keep
// their current values.
func LoadTOML(cfg *Config, path string) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	return nil
}

// fillDefaults fills in any missing values with defaults.
func fillDefaults(cfg *Config) {
	defaults := Default()

	if cfg.APIURL == "" {
		cfg.APIURL = defaults.APIURL
	}
	if cfg.Errors.ExpirySecs == 0 {
		cfg.Errors.ExpirySecs = defaults.Errors.ExpirySecs
	}
	if cfg.UI.Color == "" {
		cfg.UI.Color = defaults.UI.Color
	}
}

// Migrate normalizes values written by older versions or by hand.
func (c *Config) Migrate() {
	c.APIURL = strings.TrimRight(strings.TrimSpace(c.APIURL), "/")

	switch strings.ToLower(strings.TrimSpace(c.UI.Color)) {
	case "false", "off", "no", "none":
		c.UI.Color = "never"
	case "true", "on", "yes":
		c.UI.Color = "always"
	default:
		c.UI.Color = strings.ToLower(strings.TrimSpace(c.UI.Color))
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default path.
func Save(cfg *Config) error {
	path, err := Path()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes the configuration to path atomically with 0600
// permissions.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# ollapa configuration file\n")
	buf.WriteString("# Edited by `ollapa config set`; comments are not preserved\n\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	// RELIABILITY: Atomic write so a crash never leaves half a config
	if err := util.AtomicWriteFileWithDir(path, buf.Bytes(), 0600, 0700); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// ValidateAPIURL checks that raw is an absolute http(s) URL.
func ValidateAPIURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("URL has no host")
	}
	return nil
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if err := ValidateAPIURL(c.APIURL); err != nil {
		errs = append(errs, ValidationError{Field: "api_url", Message: err.Error()})
	}

	if strings.ContainsAny(c.DefaultModel, " \t\n") {
		errs = append(errs, ValidationError{
			Field:   "default_model",
			Message: fmt.Sprintf("model name %q contains whitespace", c.DefaultModel),
		})
	}

	if c.Errors.ExpirySecs < 1 || c.Errors.ExpirySecs > 3600 {
		errs = append(errs, ValidationError{
			Field:   "errors.expiry_secs",
			Message: fmt.Sprintf("must be between 1 and 3600, got %d", c.Errors.ExpirySecs),
		})
	}

	switch c.UI.Color {
	case "auto", "always", "never":
	default:
		errs = append(errs, ValidationError{
			Field:   "ui.color",
			Message: fmt.Sprintf("invalid value '%s', must be one of: auto, always, never", c.UI.Color),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - OLLAPA_API_URL: overrides api_url
//   - OLLAPA_MODEL: overrides default_model
//   - OLLAPA_DATA_DIR: overrides storage.data_dir
//   - OLLAPA_ERROR_EXPIRY: overrides errors.expiry_secs
//   - NO_COLOR: any value sets ui.color to "never"
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("OLLAPA_API_URL"); v != "" {
		c.APIURL = v
	}
	if v := os.Getenv("OLLAPA_MODEL"); v != "" {
		c.DefaultModel = v
	}
	if v := os.Getenv("OLLAPA_DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}
	if v := os.Getenv("OLLAPA_ERROR_EXPIRY"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			c.Errors.ExpirySecs = secs
		}
	}
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		c.UI.Color = "never"
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Keys returns every settable key in dot notation.
func Keys() []string {
	return []string{
		"api_url",
		"default_model",
		"storage.data_dir",
		"errors.expiry_secs",
		"log.file",
		"log.verbose",
		"ui.render_markdown",
		"ui.color",
	}
}

// Get retrieves a configuration value using dot notation (e.g., "ui.color").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation. String values are
// converted to the field's type.
func (c *Config) Set(key string, value interface{}) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

// lookup walks the struct along the dotted key.
func (c *Config) lookup(key string) (reflect.Value, error) {
	if strings.TrimSpace(key) == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)
		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})
		if !field.IsValid() {
			return reflect.Value{}, fmt.Errorf("unknown key: %s", strings.Join(parts[:i+1], "."))
		}

		if i == len(parts)-1 {
			if field.Kind() == reflect.Struct {
				return reflect.Value{}, fmt.Errorf("key %s is a section", key)
			}
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("key '%s' is not a section", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

// normalizeFieldName converts a snake_case or kebab-case name to its Go field equivalent.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})

	var result strings.Builder
	for _, part := range parts {
		if len(part) > 0 {
			result.WriteString(strings.ToUpper(part[:1]))
			result.WriteString(strings.ToLower(part[1:]))
		}
	}
	return result.String()
}

// setFieldValue sets a reflect.Value from an interface{} value with type conversion.
func setFieldValue(field reflect.Value, value interface{}) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strings.TrimSpace(strVal), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Bool:
			boolVal, err := strconv.ParseBool(strings.TrimSpace(strVal))
			if err != nil {
				return fmt.Errorf("invalid boolean value %q", strVal)
			}
			field.SetBool(boolVal)
			return nil
		}
	}

	val := reflect.ValueOf(value)
	if !val.IsValid() {
		return fmt.Errorf("cannot assign nil to %s", field.Type())
	}
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) && val.Kind() != reflect.String {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}
