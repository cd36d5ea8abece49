package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.toml"))
	t.Setenv("OPENAI_API_KEY", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, int64(50<<20), cfg.Upload.MaxUploadBytes)
	assert.Equal(t, time.Hour, cfg.TicketTTL())
	assert.Equal(t, 5, cfg.Retrieval.DefaultTopK)
	assert.Equal(t, 10, cfg.Retrieval.MaxTopK)
	assert.Empty(t, cfg.LLM.APIKey)
}

func TestLoadFileThenEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[app]
port = 9090

[database]
driver = "sqlite"
path = "file::memory:"

[queue]
driver = "rabbitmq"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("APP_PORT", "9191")
	t.Setenv("UPLOAD_MAX_BYTES", "1024")
	t.Setenv("REDIS_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.App.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "file::memory:", cfg.DatabaseDSN())
	assert.Equal(t, "rabbitmq", cfg.Queue.Driver)
	assert.Equal(t, int64(1024), cfg.Upload.MaxUploadBytes)
	assert.False(t, cfg.Redis.Enabled)
}

func TestValidateRejectsUnknownDrivers(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"database", func(c *Config) { c.Database.Driver = "oracle" }},
		{"queue", func(c *Config) { c.Queue.Driver = "kafka" }},
		{"embedding", func(c *Config) { c.Embedding.Provider = "cohere" }},
		{"secret", func(c *Config) { c.Upload.Secret = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaultConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDatabaseDSN(t *testing.T) {
	cfg := defaultConfig()
	assert.Equal(t, "host=127.0.0.1 port=5432 user=postgres password= dbname=docchat sslmode=disable", cfg.DatabaseDSN())

	cfg.Database = DatabaseConfig{Driver: "mysql", Host: "db", Port: 3306, User: "root", Password: "pw", DB: "docchat", Params: "parseTime=true"}
	assert.Equal(t, "root:pw@tcp(db:3306)/docchat?parseTime=true", cfg.DatabaseDSN())
}
