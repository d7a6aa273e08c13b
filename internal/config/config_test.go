package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoadFile tests LoadFile with various scenarios
func TestLoadFile(t *testing.T) {
	tests := []struct {
		name        string
		env         map[string]string
		yaml        string
		wantErr     bool
		validateCfg func(*testing.T, *Config)
	}{
		{
			name: "defaults without file or env",
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "info", cfg.Logging.Level)
				assert.Equal(t, "json", cfg.Logging.Format)
				assert.Equal(t, "cash", cfg.Loader.Dataset)
				assert.Equal(t, "csv", cfg.Source.Kind)
				assert.Equal(t, "buyback_auth", cfg.Source.Table)
				assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
				assert.Empty(t, cfg.Server.Addr)
			},
		},
		{
			name: "file overrides defaults",
			yaml: `
loader:
  dataset: share
  workers: 4
source:
  kind: sqlite
  path: /tmp/events.db
  order_column: id
`,
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "share", cfg.Loader.Dataset)
				assert.Equal(t, 4, cfg.Loader.Workers)
				assert.Equal(t, "sqlite", cfg.Source.Kind)
				assert.Equal(t, "/tmp/events.db", cfg.Source.Path)
				assert.Equal(t, "id", cfg.Source.OrderColumn)
				assert.Equal(t, "buyback_auth", cfg.Source.Table, "unset keys keep defaults")
			},
		},
		{
			name: "env overrides file",
			yaml: `
loader:
  workers: 4
`,
			env: map[string]string{
				"PIT_LOADER_WORKERS": "16",
				"PIT_LOGGING_LEVEL":  "debug",
				"PIT_SERVER_ADDR":    ":9090",
			},
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 16, cfg.Loader.Workers)
				assert.Equal(t, "debug", cfg.Logging.Level)
				assert.Equal(t, ":9090", cfg.Server.Addr)
			},
		},
		{
			name: "postgres requires dsn",
			env: map[string]string{
				"PIT_SOURCE_KIND": "postgres",
			},
			wantErr: true,
		},
		{
			name: "postgres with dsn",
			env: map[string]string{
				"PIT_SOURCE_KIND": "postgres",
				"PIT_SOURCE_FILE": "",
				"PIT_SOURCE_DSN":  "postgres://localhost:5432/events",
			},
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "postgres", cfg.Source.Kind)
			},
		},
		{
			name:    "unknown dataset",
			env:     map[string]string{"PIT_LOADER_DATASET": "dividends"},
			wantErr: true,
		},
		{
			name:    "unknown source kind",
			yaml:    "source:\n  kind: parquet\n",
			wantErr: true,
		},
		{
			name:    "malformed yaml",
			yaml:    "loader: [",
			wantErr: true,
		},
		{
			name: "file logging needs a path",
			yaml: `
logging:
  output: file
  file_path: ""
`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			path := ""
			if tt.yaml != "" {
				path = filepath.Join(t.TempDir(), "pitloader.yaml")
				require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o600))
			}

			cfg, err := LoadFile(path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.validateCfg != nil {
				tt.validateCfg(t, cfg)
			}
		})
	}
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadUsesConfigEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("loader:\n  dataset: share\n"), 0o600))
	t.Setenv("PIT_CONFIG", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "share", cfg.Loader.Dataset)
}

func TestDefaultIsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}
