package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("AUTH_JWT_SECRET", "s3cret")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, ":50051", cfg.GRPCAddr)
	assert.Equal(t, StoreMySQL, cfg.Store)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 50, cfg.MySQL.MaxOpenConns)
	assert.Equal(t, 5*time.Minute, cfg.MySQL.ConnMaxLifetime)
	assert.Equal(t, 4, cfg.Workers.Count)
	assert.False(t, cfg.MinIO.Enabled())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("AUTH_JWT_SECRET", "s3cret")
	t.Setenv("MYSQL_DSN", "u:p@tcp(db:3306)/x")
	t.Setenv("REDIS_ADDR", "cache:6379")
	t.Setenv("STORE", "MEMORY")
	t.Setenv("WORKERS_COUNT", "8")
	t.Setenv("MINIO_ENDPOINT", "minio:9000")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "u:p@tcp(db:3306)/x", cfg.MySQL.DSN)
	assert.Equal(t, "cache:6379", cfg.Redis.Addr)
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, 8, cfg.Workers.Count)
	assert.True(t, cfg.MinIO.Enabled())
}

func TestLoad_DotEnvFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("AUTH_JWT_SECRET=from-file\nHTTP_ADDR=:9090\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("AUTH_JWT_SECRET")
		os.Unsetenv("HTTP_ADDR")
	})

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.Auth.JWTSecret)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("AUTH_JWT_SECRET", "s3cret")
	path := filepath.Join(dir, "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte("grpc:\n  addr: \":6000\"\nworkers:\n  queue_size: 5\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":6000", cfg.GRPCAddr)
	assert.Equal(t, 5, cfg.Workers.QueueSize)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	t.Chdir(t.TempDir())

	t.Run("missing secret", func(t *testing.T) {
		t.Setenv("AUTH_JWT_SECRET", "")
		_, err := Load("")
		assert.ErrorContains(t, err, "AUTH_JWT_SECRET")
	})

	t.Run("unknown store", func(t *testing.T) {
		t.Setenv("AUTH_JWT_SECRET", "s3cret")
		t.Setenv("STORE", "postgres")
		_, err := Load("")
		assert.ErrorContains(t, err, "unknown store")
	})

	t.Run("no workers", func(t *testing.T) {
		t.Setenv("AUTH_JWT_SECRET", "s3cret")
		t.Setenv("WORKERS_COUNT", "0")
		_, err := Load("")
		assert.ErrorContains(t, err, "workers.count")
	})
}

func TestLoadClient(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("INVCTL_SERVER", "http://inv.example:8080/")
	t.Setenv("INVCTL_TOKEN", "tok")
	t.Setenv("INVCTL_TIMEOUT", "3s")
	t.Setenv("INVCTL_VERSION_CHECK", "true")

	cfg, err := LoadClient()
	require.NoError(t, err)
	assert.Equal(t, "http://inv.example:8080", cfg.ServerURL)
	assert.Equal(t, "tok", cfg.Token)
	assert.Equal(t, 3*time.Second, cfg.Timeout)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.True(t, cfg.VersionCheck)
}
