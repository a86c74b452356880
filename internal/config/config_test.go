// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv isolates a test from the caller's OLLAPA_* environment.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"OLLAPA_HOME", "OLLAPA_API_URL", "OLLAPA_MODEL", "OLLAPA_DATA_DIR", "OLLAPA_ERROR_EXPIRY", "NO_COLOR"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

// TestConfig_Default tests that Default() returns a valid config with defaults.
func TestConfig_Default(t *testing.T) {
	cfg := Default()

	if cfg.APIURL != "http://localhost:11434" {
		t.Errorf("APIURL = %q, want %q", cfg.APIURL, "http://localhost:11434")
	}
	if cfg.Errors.ExpirySecs != 5 {
		t.Errorf("ExpirySecs = %d, want 5", cfg.Errors.ExpirySecs)
	}
	if cfg.ErrorExpiry() != 5*time.Second {
		t.Errorf("ErrorExpiry() = %v, want 5s", cfg.ErrorExpiry())
	}
	if !cfg.UI.RenderMarkdown {
		t.Error("RenderMarkdown should default to true")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default().Validate() = %v", err)
	}
}

// TestConfig_Validate tests configuration validation.
func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(c *Config)
		wantErr string
	}{
		{name: "valid default config", modify: func(c *Config) {}},
		{name: "https url", modify: func(c *Config) { c.APIURL = "https://ollama.example.com:8443" }},
		{name: "url without scheme", modify: func(c *Config) { c.APIURL = "localhost:11434" }, wantErr: "api_url"},
		{name: "ftp scheme", modify: func(c *Config) { c.APIURL = "ftp://host" }, wantErr: "api_url"},
		{name: "url without host", modify: func(c *Config) { c.APIURL = "http://" }, wantErr: "api_url"},
		{name: "model with space", modify: func(c *Config) { c.DefaultModel = "llama 3" }, wantErr: "default_model"},
		{name: "expiry zero", modify: func(c *Config) { c.Errors.ExpirySecs = 0 }, wantErr: "errors.expiry_secs"},
		{name: "expiry too large", modify: func(c *Config) { c.Errors.ExpirySecs = 3601 }, wantErr: "errors.expiry_secs"},
		{name: "expiry at maximum", modify: func(c *Config) { c.Errors.ExpirySecs = 3600 }},
		{name: "invalid color", modify: func(c *Config) { c.UI.Color = "sometimes" }, wantErr: "ui.color"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error mentioning %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ValidateCollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.APIURL = "nope"
	cfg.UI.Color = "nope"

	err := cfg.Validate()
	var verrs ValidateErrors
	require.ErrorAs(t, err, &verrs)
	assert.Len(t, verrs, 2)
}

func TestLoadFrom_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "config.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFrom_PartialFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, `
api_url = "http://gpu-box:11434/"
default_model = "llama3"

[ui]
render_markdown = false
`)

	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, "http://gpu-box:11434", cfg.APIURL, "trailing slash is trimmed")
	assert.Equal(t, "llama3", cfg.DefaultModel)
	assert.False(t, cfg.UI.RenderMarkdown)
	assert.Equal(t, "auto", cfg.UI.Color)
	assert.Equal(t, 5, cfg.Errors.ExpirySecs)
}

func TestLoadFrom_Errors(t *testing.T) {
	clearEnv(t)

	tests := []struct {
		name    string
		content string
	}{
		{"syntax error", "api_url = \n"},
		{"unknown key", "colour = \"red\"\n"},
		{"invalid value", "api_url = \"gopher://x\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			writeFile(t, path, tt.content)
			if _, err := LoadFrom(path); err == nil {
				t.Error("LoadFrom() should return error")
			}
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("OLLAPA_API_URL", "http://env-host:1234")
	t.Setenv("OLLAPA_MODEL", "mistral")
	t.Setenv("OLLAPA_DATA_DIR", "/tmp/ollapa-data")
	t.Setenv("OLLAPA_ERROR_EXPIRY", "12")
	t.Setenv("NO_COLOR", "")

	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, "api_url = \"http://file-host:11434\"\n")

	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, "http://env-host:1234", cfg.APIURL)
	assert.Equal(t, "mistral", cfg.DefaultModel)
	assert.Equal(t, "/tmp/ollapa-data", cfg.DataDir())
	assert.Equal(t, 12*time.Second, cfg.ErrorExpiry())
	assert.Equal(t, "never", cfg.UI.Color)
}

func TestApplyEnvOverrides_BadExpiryIgnored(t *testing.T) {
	clearEnv(t)
	t.Setenv("OLLAPA_ERROR_EXPIRY", "soon")

	cfg := Default()
	cfg.ApplyEnvOverrides()
	if cfg.Errors.ExpirySecs != 5 {
		t.Errorf("ExpirySecs = %d, want 5", cfg.Errors.ExpirySecs)
	}
}

func TestMigrate(t *testing.T) {
	tests := []struct {
		color string
		want  string
	}{
		{"off", "never"},
		{"TRUE", "always"},
		{" Auto ", "auto"},
		{"never", "never"},
	}
	for _, tt := range tests {
		cfg := Default()
		cfg.UI.Color = tt.color
		cfg.Migrate()
		if cfg.UI.Color != tt.want {
			t.Errorf("Migrate() color %q = %q, want %q", tt.color, cfg.UI.Color, tt.want)
		}
	}
}

func TestPaths(t *testing.T) {
	clearEnv(t)
	home := t.TempDir()
	t.Setenv("OLLAPA_HOME", home)

	dir, err := Dir()
	require.NoError(t, err)
	assert.Equal(t, home, dir)

	path, err := Path()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "config.toml"), path)

	cfg := Default()
	assert.Equal(t, home, cfg.DataDir())
	assert.Equal(t, filepath.Join(home, "ollapa.log"), cfg.LogPath())

	cfg.Storage.DataDir = "/srv/ollapa"
	cfg.Log.File = "/var/log/ollapa.log"
	assert.Equal(t, "/srv/ollapa", cfg.DataDir())
	assert.Equal(t, "/var/log/ollapa.log", cfg.LogPath())
}

func TestSaveTOML_RoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg := Default()
	cfg.APIURL = "http://10.0.0.5:11434"
	cfg.DefaultModel = "qwen2.5"
	cfg.UI.RenderMarkdown = false
	cfg.Errors.ExpirySecs = 9
	require.NoError(t, SaveTOML(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("config file mode = %o, want 600", perm)
	}

	loaded, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "# ollapa configuration file"))
}

// TestConfig_GetSet tests Get and Set methods with dot notation.
func TestConfig_GetSet(t *testing.T) {
	cfg := Default()

	val, err := cfg.Get("api_url")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if val != "http://localhost:11434" {
		t.Errorf("Get('api_url') = %v, want 'http://localhost:11434'", val)
	}

	if err := cfg.Set("errors.expiry_secs", "30"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if cfg.Errors.ExpirySecs != 30 {
		t.Errorf("ExpirySecs after Set = %d, want 30", cfg.Errors.ExpirySecs)
	}

	if err := cfg.Set("ui.render_markdown", "false"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if cfg.UI.RenderMarkdown {
		t.Error("RenderMarkdown should be false after Set")
	}

	if err := cfg.Set("ui.render-markdown", true); err != nil {
		t.Fatalf("Set() with kebab key error = %v", err)
	}
	if !cfg.UI.RenderMarkdown {
		t.Error("RenderMarkdown should be true after Set")
	}

	for _, key := range []string{"invalid.key", "ui", "api_url.host", ""} {
		if _, err := cfg.Get(key); err == nil {
			t.Errorf("Get(%q) should return error", key)
		}
	}
	if err := cfg.Set("errors.expiry_secs", "many"); err == nil {
		t.Error("Set() with non-integer should return error")
	}
	if err := cfg.Set("log.verbose", "maybe"); err == nil {
		t.Error("Set() with non-boolean should return error")
	}
}

func TestKeys_AllResolvable(t *testing.T) {
	cfg := Default()
	for _, key := range Keys() {
		if _, err := cfg.Get(key); err != nil {
			t.Errorf("Get(%q) error = %v", key, err)
		}
	}
}

// TestConfig_Clone tests that Clone creates an independent copy.
func TestConfig_Clone(t *testing.T) {
	original := Default()
	clone := original.Clone()
	clone.APIURL = "http://other:1"
	clone.UI.Color = "never"

	if original.APIURL != DefaultAPIURL || original.UI.Color != "auto" {
		t.Error("Clone should create an independent copy")
	}
}

func TestLoadFile_IgnoresEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("OLLAPA_API_URL", "http://env-host:11434")
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, "api_url = \"http://file-host:11434\"\n")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "http://file-host:11434", cfg.APIURL)

	withEnv, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "http://env-host:11434", withEnv.APIURL)

	missing, err := LoadFile(filepath.Join(t.TempDir(), "none.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultAPIURL, missing.APIURL)
}

func TestPreferences_SetAPIURL(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, "default_model = \"llama3\"\n\n[ui]\nrender_markdown = false\n")

	prefs := NewPreferences(path)
	require.NoError(t, prefs.SetAPIURL("http://remote:11434"))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "http://remote:11434", cfg.APIURL)
	assert.Equal(t, "llama3", cfg.DefaultModel, "other keys survive")
	assert.False(t, cfg.UI.RenderMarkdown)
}

func TestPreferences_DoesNotPersistEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("OLLAPA_MODEL", "from-env")
	path := filepath.Join(t.TempDir(), "config.toml")

	prefs := NewPreferences(path)
	require.NoError(t, prefs.SetAPIURL("http://remote:11434"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "from-env")
}

func TestPreferences_UnchangedSkipsWrite(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")

	prefs := NewPreferences(path)
	require.NoError(t, prefs.SetAPIURL(DefaultAPIURL))

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("config file should not be created for an unchanged value, stat err = %v", err)
	}
}

func TestPreferences_InvalidURL(t *testing.T) {
	prefs := NewPreferences(filepath.Join(t.TempDir(), "config.toml"))
	if err := prefs.SetAPIURL("not a url"); err == nil {
		t.Error("SetAPIURL() should reject an invalid URL")
	}
}

func TestPreferences_Set(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	prefs := NewPreferences(path)

	require.NoError(t, prefs.Set("errors.expiry_secs", "12"))
	require.NoError(t, prefs.Set("ui.color", "off"))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Errors.ExpirySecs)
	assert.Equal(t, "never", cfg.UI.Color)

	assert.Error(t, prefs.Set("errors.expiry_secs", "0"), "out of range")
	assert.Error(t, prefs.Set("errors.expiry_secs", "soon"), "not a number")
	assert.Error(t, prefs.Set("no.such_key", "x"))

	cfg, err = LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Errors.ExpirySecs, "rejected values are not written")
}

func TestPreferences_Concurrent(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	prefs := NewPreferences(path)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = prefs.SetAPIURL("http://a:1")
		}()
		go func() {
			defer wg.Done()
			_ = prefs.SetDefaultModel("m")
		}()
	}
	wg.Wait()

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "http://a:1", cfg.APIURL)
	assert.Equal(t, "m", cfg.DefaultModel)
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, "api_url = \"http://first:11434\"\n")

	var mu sync.Mutex
	var got []string
	w, err := NewWatcher(path, 20*time.Millisecond, func(c *Config) {
		mu.Lock()
		got = append(got, c.APIURL)
		mu.Unlock()
	}, func(error) {})
	require.NoError(t, err)
	w.Watch()
	defer w.Close()

	require.NoError(t, SaveTOML(&Config{
		APIURL: "http://second:11434",
		Errors: ErrorsConfig{ExpirySecs: 5},
		UI:     UIConfig{Color: "auto"},
	}, path))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) > 0 && got[len(got)-1] == "http://second:11434"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_ReportsInvalidFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")

	errs := make(chan error, 4)
	w, err := NewWatcher(path, 20*time.Millisecond, func(*Config) {
		t.Error("onChange should not be called for an invalid file")
	}, func(err error) {
		select {
		case errs <- err:
		default:
		}
	})
	require.NoError(t, err)
	w.Watch()
	defer w.Close()

	writeFile(t, path, "api_url = 42\n")

	select {
	case err := <-errs:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a load error")
	}
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	called := make(chan struct{}, 1)
	w, err := NewWatcher(path, 10*time.Millisecond, func(*Config) {
		called <- struct{}{}
	}, nil)
	require.NoError(t, err)
	w.Watch()
	defer w.Close()

	writeFile(t, filepath.Join(dir, "chats.db"), "x")

	select {
	case <-called:
		t.Error("onChange called for an unrelated file")
	case <-time.After(150 * time.Millisecond):
	}
}
