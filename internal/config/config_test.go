package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8001/api", cfg.API.BaseURL)
	assert.Equal(t, 60*time.Second, cfg.API.Timeout)
	assert.Equal(t, int64(5*MiB), cfg.Upload.ChunkSize)
	assert.Equal(t, 0.0, cfg.Upload.ProgressLo)
	assert.Equal(t, 60.0, cfg.Upload.ProgressHi)
	assert.Equal(t, "balanced", cfg.Scan.Speed)
	assert.Equal(t, "normal", cfg.Scan.RelevanceMode)
	assert.False(t, cfg.Scan.Pro)
	assert.Zero(t, cfg.Scan.PageStart)
	assert.Zero(t, cfg.Scan.PageEnd)
	assert.Equal(t, "history.sqlite", filepath.Base(cfg.History.DBPath))
	assert.Equal(t, "deepscan.log", filepath.Base(cfg.Log.Path))
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deepscan.yaml")
	data := []byte(`
api:
  base_url: http://scanner.internal/api
  timeout: 15s
scan:
  speed: thorough
  pro: true
  page_start: 10
  page_end: 50
upload:
  chunk_size: 1048576
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	t.Setenv("DEEPSCAN_SPEED", "fast")
	t.Setenv("DEEPSCAN_PAGE_END", "80")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://scanner.internal/api", cfg.API.BaseURL)
	assert.Equal(t, 15*time.Second, cfg.API.Timeout)
	assert.True(t, cfg.Scan.Pro)
	assert.Equal(t, int64(MiB), cfg.Upload.ChunkSize)
	assert.Equal(t, "fast", cfg.Scan.Speed, "environment should override the file")
	assert.Equal(t, 10, cfg.Scan.PageStart)
	assert.Equal(t, 80, cfg.Scan.PageEnd)
	assert.Equal(t, "gemini-2.5-flash", cfg.Scan.Model, "unset keys keep their defaults")
}

func TestLoadMissingFileIsIgnored(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.API.BaseURL)
}

func TestLoadRejectsBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api: [unterminated"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			API:     APIConfig{BaseURL: "http://x/api", Timeout: time.Second},
			Scan:    ScanConfig{Speed: "fast", RelevanceMode: "strict"},
			Upload:  UploadConfig{ChunkSize: 1, ProgressLo: 0, ProgressHi: 60},
			History: HistoryConfig{TTL: time.Minute},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "empty base url", mutate: func(c *Config) { c.API.BaseURL = "" }, wantErr: true},
		{name: "unknown speed", mutate: func(c *Config) { c.Scan.Speed = "ludicrous" }, wantErr: true},
		{name: "unknown relevance", mutate: func(c *Config) { c.Scan.RelevanceMode = "loose" }, wantErr: true},
		{name: "zero chunk", mutate: func(c *Config) { c.Upload.ChunkSize = 0 }, wantErr: true},
		{name: "inverted range", mutate: func(c *Config) { c.Upload.ProgressLo = 70 }, wantErr: true},
		{name: "range above 100", mutate: func(c *Config) { c.Upload.ProgressHi = 120 }, wantErr: true},
		{name: "open page range", mutate: func(c *Config) { c.Scan.PageStart = 5 }},
		{name: "inverted page range", mutate: func(c *Config) { c.Scan.PageStart, c.Scan.PageEnd = 50, 10 }, wantErr: true},
		{name: "negative page", mutate: func(c *Config) { c.Scan.PageEnd = -1 }, wantErr: true},
		{name: "zero ttl", mutate: func(c *Config) { c.History.TTL = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
