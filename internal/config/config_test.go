package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unsetEnv clears key for the duration of the test
func unsetEnv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
}

func clearEnv(t *testing.T) {
	for _, key := range []string{"CONFIG", "LOG_LEVEL", "LOG_FORMAT", "LISTEN", "CASE_ROOT", "METRICS", "GRACE_TIMEOUT", "OUTPUT_TAIL", "EXECUTABLES"} {
		unsetEnv(t, envPrefix+key)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, cfg.GraceTimeout)
	assert.Equal(t, 200, cfg.OutputTail)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "127.0.0.1:8088", cfg.Server.Listen)
	assert.True(t, cfg.Server.Metrics)
	assert.Empty(t, cfg.Executables)
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "cfdcase.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`executables:
  blockMesh: /opt/foam/bin/blockMesh
  simpleFoam: /opt/foam/bin/simpleFoam
grace_timeout: 30s
output_tail: 50
log:
  level: debug
server:
  listen: ":9000"
`), 0o644))

	t.Setenv("CFDCASE_LOG_FORMAT", "json")
	t.Setenv("CFDCASE_OUTPUT_TAIL", "75")
	t.Setenv("CFDCASE_EXECUTABLES", "simpleFoam=/usr/local/bin/simpleFoam, sh=/bin/sh")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.GraceTimeout)
	assert.Equal(t, 75, cfg.OutputTail)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, ":9000", cfg.Server.Listen)
	assert.Equal(t, map[string]string{
		"blockMesh":  "/opt/foam/bin/blockMesh",
		"simpleFoam": "/usr/local/bin/simpleFoam",
		"sh":         "/bin/sh",
	}, cfg.Executables)
}

func TestLoad_ConfigFromEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("output_tail: 10\n"), 0o644))
	t.Setenv("CFDCASE_CONFIG", path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.OutputTail)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	unknown := filepath.Join(dir, "unknown.yaml")
	require.NoError(t, os.WriteFile(unknown, []byte("grace: 1s\n"), 0o644))
	negative := filepath.Join(dir, "negative.yaml")
	require.NoError(t, os.WriteFile(negative, []byte("output_tail: -1\nlog:\n  format: xml\n"), 0o644))

	tests := []struct {
		name    string
		path    string
		env     map[string]string
		wantErr string
	}{
		{name: "missing file", path: filepath.Join(dir, "nope.yaml"), wantErr: "config file not found"},
		{name: "unknown field", path: unknown, wantErr: "failed to parse config file"},
		{name: "invalid values", path: negative, wantErr: "output_tail must be positive; unknown log format \"xml\""},
		{name: "bad duration", env: map[string]string{"CFDCASE_GRACE_TIMEOUT": "soon"}, wantErr: "invalid CFDCASE_GRACE_TIMEOUT"},
		{name: "bad executables", env: map[string]string{"CFDCASE_EXECUTABLES": "blockMesh"}, wantErr: "want tool=path"},
		{name: "bad metrics flag", env: map[string]string{"CFDCASE_METRICS": "maybe"}, wantErr: "invalid CFDCASE_METRICS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(tt.path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("CFDCASE_LISTEN=0.0.0.0:7000\nCFDCASE_LOG_LEVEL=warn\n"), 0o644))
	t.Setenv("CFDCASE_LOG_LEVEL", "error")

	loadDotEnv(filepath.Join(t.TempDir(), "missing.env"), path)
	assert.Equal(t, "0.0.0.0:7000", os.Getenv("CFDCASE_LISTEN"))
	// variables already set win over the file
	assert.Equal(t, "error", os.Getenv("CFDCASE_LOG_LEVEL"))
}
