package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	c, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", c.Listen)
	assert.Equal(t, "sqlite3", c.Database.Driver)
	assert.Contains(t, c.Database.DSN, "_foreign_keys=on")
	assert.Equal(t, 12*time.Hour, c.Session.TTL)
	assert.Equal(t, 10*time.Minute, c.Session.SweepInterval)
	assert.Equal(t, "optica_session", c.Session.Cookie)
	assert.Equal(t, "fs", c.Blob.Driver)
	assert.Equal(t, 30*time.Second, c.Print.Timeout)
	assert.Equal(t, "info", c.Log.Level)
	assert.Equal(t, c, GetConfig())
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "optica.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen: ":9090"
database:
  driver: pgx
  dsn: postgres://localhost/optica
blob:
  driver: s3
  s3:
    bucket: clinic-files
    region: eu-west-1
session:
  ttl: 2h
`), 0o644))
	t.Setenv("OPTICA_LISTEN", ":7070")
	t.Setenv("OPTICA_LOG_LEVEL", "debug")

	c, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":7070", c.Listen)
	assert.Equal(t, "pgx", c.Database.Driver)
	assert.Equal(t, "postgres://localhost/optica", c.Database.DSN)
	assert.Equal(t, "s3", c.Blob.Driver)
	assert.Equal(t, "clinic-files", c.Blob.S3.Bucket)
	assert.Equal(t, 2*time.Hour, c.Session.TTL)
	assert.Equal(t, "debug", c.Log.Level)
}

func TestLoadConfigExplicitMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Chdir(t.TempDir())
	base, err := LoadConfig("")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
		msg    string
	}{
		{"db driver", func(c *Config) { c.Database.Driver = "mysql" }, "database.driver"},
		{"blob driver", func(c *Config) { c.Blob.Driver = "ftp" }, "blob.driver"},
		{"s3 bucket", func(c *Config) { c.Blob.Driver = "s3" }, "blob.s3.bucket"},
		{"ttl", func(c *Config) { c.Session.TTL = 0 }, "session.ttl"},
		{"sweep", func(c *Config) { c.Session.SweepInterval = -time.Second }, "session.sweep_interval"},
		{"print timeout", func(c *Config) { c.Print.Timeout = 0 }, "print.timeout"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			tt.mutate(&c)
			err := c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}
