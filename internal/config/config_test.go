package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configEnv = []string{
	"SERVER_ADDRESS", "STORAGE", "DATABASE_DSN", "REDIS_ADDR", "REDIS_PREFIX",
	"JWT_SECRET", "TOKEN_TTL", "ADMIN_USER", "ADMIN_PASSWORD", "TLS_CERT",
	"TLS_KEY", "LOG_LEVEL", "CONFIG",
}

// isolate clears every variable Load reads and points dotenvPath at dir.
// Values set by godotenv during the test are restored afterwards.
func isolate(t *testing.T) string {
	t.Helper()
	for _, k := range configEnv {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
	dir := t.TempDir()
	old := dotenvPath
	dotenvPath = filepath.Join(dir, ".env")
	t.Cleanup(func() { dotenvPath = old })
	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestLoad_Defaults(t *testing.T) {
	dir := isolate(t)

	opts, err := Load([]string{"-c", filepath.Join(dir, "missing.json")})
	require.NoError(t, err)

	assert.Equal(t, "localhost:8080", opts.Port)
	assert.Equal(t, StorageMemory, opts.Storage)
	assert.Equal(t, "localhost:6379", opts.RedisAddr)
	assert.Equal(t, "projectshelf", opts.RedisPrefix)
	assert.Equal(t, DefaultTokenTTL, opts.TokenTTL)
	assert.Equal(t, "info", opts.LogLevel)
	assert.Empty(t, opts.JWTSecret)
	assert.False(t, opts.TLSEnabled())
}

func TestLoad_Flags(t *testing.T) {
	dir := isolate(t)

	opts, err := Load([]string{
		"-a", ":9000", "-s", "postgres", "-d", "postgres://x", "-k", "s3cret",
		"-ttl", "15m", "-admin-user", "root", "-admin-password", "pw",
		"-tls-cert", "c.pem", "-tls-key", "k.pem", "-l", "debug",
		"-config", filepath.Join(dir, "none.json"),
	})
	require.NoError(t, err)

	assert.Equal(t, ":9000", opts.Port)
	assert.Equal(t, StoragePostgres, opts.Storage)
	assert.Equal(t, "postgres://x", opts.DatabaseDSN)
	assert.Equal(t, "s3cret", opts.JWTSecret)
	assert.Equal(t, 15*time.Minute, opts.TokenTTL)
	assert.Equal(t, "root", opts.AdminUser)
	assert.True(t, opts.TLSEnabled())
	assert.Equal(t, "debug", opts.LogLevel)
}

func TestLoad_Precedence(t *testing.T) {
	dir := isolate(t)
	cfgPath := filepath.Join(dir, "config.json")
	writeFile(t, cfgPath, `{"server_address":":7000","storage":"redis","redis_prefix":"file","token_ttl":"90m","log_level":"warn"}`)
	writeFile(t, dotenvPath, "REDIS_PREFIX=dotenv\nLOG_LEVEL=error\n")
	t.Setenv("LOG_LEVEL", "debug")

	opts, err := Load([]string{"-a", ":6000", "-redis-prefix", "flag", "-c", cfgPath})
	require.NoError(t, err)

	assert.Equal(t, ":7000", opts.Port, "file overrides flag")
	assert.Equal(t, StorageRedis, opts.Storage)
	assert.Equal(t, 90*time.Minute, opts.TokenTTL)
	assert.Equal(t, "dotenv", opts.RedisPrefix, ".env overrides file")
	assert.Equal(t, "debug", opts.LogLevel, "environment wins over .env")
}

func TestLoad_ConfigPathFromEnv(t *testing.T) {
	dir := isolate(t)
	cfgPath := filepath.Join(dir, "alt.json")
	writeFile(t, cfgPath, `{"jwt_secret":"from-file"}`)
	t.Setenv("CONFIG", cfgPath)

	opts, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "from-file", opts.JWTSecret)
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := isolate(t)
	t.Setenv("SERVER_ADDRESS", ":8443")
	t.Setenv("TOKEN_TTL", "1h")
	t.Setenv("TLS_CERT", "server.crt")
	t.Setenv("TLS_KEY", "server.key")

	opts, err := Load([]string{"-c", filepath.Join(dir, "none.json")})
	require.NoError(t, err)
	assert.Equal(t, ":8443", opts.Port)
	assert.Equal(t, time.Hour, opts.TokenTTL)
	assert.True(t, opts.TLSEnabled())
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		file string
		env  map[string]string
	}{
		{name: "unknown flag", args: []string{"-nope"}},
		{name: "unknown storage", args: []string{"-s", "etcd"}},
		{name: "postgres without dsn", args: []string{"-s", "postgres"}},
		{name: "non-positive ttl", args: []string{"-ttl", "0s"}},
		{name: "cert without key", args: []string{"-tls-cert", "c.pem"}},
		{name: "admin without password", args: []string{"-admin-user", "root"}},
		{name: "bad json", file: `{"storage":`},
		{name: "bad ttl in file", file: `{"token_ttl":"soon"}`},
		{name: "bad ttl in env", env: map[string]string{"TOKEN_TTL": "later"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := isolate(t)
			cfgPath := filepath.Join(dir, "config.json")
			if tt.file != "" {
				writeFile(t, cfgPath, tt.file)
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(append([]string{"-c", cfgPath}, tt.args...))
			assert.Error(t, err)
		})
	}
}
