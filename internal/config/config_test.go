package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prevail.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	require.NoError(t, Default().Validate())

	cfg, err := LoadWithEnv("", env(nil))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_FileOverDefaults(t *testing.T) {
	path := writeFile(t, `
data_dir: /tmp/catalog
serializer: bson
snapshot:
  interval: 90m
search:
  enabled: false
`)
	cfg, err := LoadWithEnv(path, env(nil))
	require.NoError(t, err)

	assert.Equal(t, "/tmp/catalog", cfg.DataDir)
	assert.Equal(t, "bson", cfg.Serializer)
	assert.Equal(t, 90*time.Minute, cfg.Snapshot.Interval)
	assert.Equal(t, 3, cfg.Snapshot.Retain, "absent keys keep defaults")
	assert.False(t, cfg.Search.Enabled)
	assert.Equal(t, 20, cfg.Search.BatchSize)
}

func TestLoad_EmptyFile(t *testing.T) {
	cfg, err := LoadWithEnv(writeFile(t, ""), env(nil))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_EnvOverFile(t *testing.T) {
	path := writeFile(t, "data_dir: /from/file\n")
	cfg, err := LoadWithEnv(path, env(map[string]string{
		"PREVAIL_DATA_DIR":          "/from/env",
		"PREVAIL_SNAPSHOT_INTERVAL": "1h",
		"PREVAIL_SNAPSHOT_RETAIN":   "5",
		"PREVAIL_SEARCH_ENABLED":    "false",
		"PREVAIL_SEARCH_BATCH_SIZE": "50",
		"PREVAIL_LOG_LEVEL":         "debug",
		"PREVAIL_LOG_FORMAT":        "json",
		"PREVAIL_SERIALIZER":        "",
	}))
	require.NoError(t, err)

	assert.Equal(t, "/from/env", cfg.DataDir)
	assert.Equal(t, "msgpack", cfg.Serializer, "empty values are ignored")
	assert.Equal(t, time.Hour, cfg.Snapshot.Interval)
	assert.Equal(t, 5, cfg.Snapshot.Retain)
	assert.False(t, cfg.Search.Enabled)
	assert.Equal(t, 50, cfg.Search.BatchSize)
	assert.Equal(t, LogConfig{Level: "debug", Format: "json"}, cfg.Log)
}

func TestLoad_Errors(t *testing.T) {
	cases := map[string]struct {
		file string
		env  map[string]string
		want string
	}{
		"unknown key":        {file: "datadir: /x\n", want: "failed to parse YAML"},
		"bad serializer":     {file: "serializer: xml\n", want: "invalid config"},
		"retain below one":   {file: "snapshot:\n  retain: 0\n", want: "invalid config"},
		"zero interval":      {file: "snapshot:\n  interval: 0s\n", want: "snapshot.interval"},
		"empty data dir":     {file: "data_dir: \"\"\n", want: "invalid config"},
		"bad log level":      {file: "log:\n  level: loud\n", want: "invalid config"},
		"bad env int":        {env: map[string]string{"PREVAIL_SNAPSHOT_RETAIN": "many"}, want: "PREVAIL_SNAPSHOT_RETAIN"},
		"bad env bool":       {env: map[string]string{"PREVAIL_SEARCH_ENABLED": "maybe"}, want: "PREVAIL_SEARCH_ENABLED"},
		"bad env duration":   {env: map[string]string{"PREVAIL_SNAPSHOT_INTERVAL": "daily"}, want: "PREVAIL_SNAPSHOT_INTERVAL"},
		"bad env serializer": {env: map[string]string{"PREVAIL_SERIALIZER": "gob"}, want: "invalid config"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			path := ""
			if tc.file != "" {
				path = writeFile(t, tc.file)
			}
			_, err := LoadWithEnv(path, env(tc.env))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := LoadWithEnv(filepath.Join(t.TempDir(), "nope.yaml"), env(nil))
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestMarshal_RoundTrip(t *testing.T) {
	data, err := Default().Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(data), "interval: 24h0m0s")

	cfg := Config{}
	require.NoError(t, Parse(data, &cfg))
	assert.Equal(t, Default(), cfg)
}

func TestApplyFlags(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--serializer", "bson"}))

	cfg := Default()
	require.NoError(t, ApplyFlags(fs, &cfg))
	assert.Equal(t, "bson", cfg.Serializer)
	assert.Equal(t, Default().DataDir, cfg.DataDir, "unset flags leave values alone")

	fs = pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--serializer", "xml"}))
	cfg = Default()
	assert.Error(t, ApplyFlags(fs, &cfg))
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(LogConfig{Level: "warn", Format: "json"}, &buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", "seq", 7)
	out := strings.TrimSpace(buf.String())
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"seq":7`)

	buf.Reset()
	logger, err = NewLogger(LogConfig{Level: "debug"}, &buf)
	require.NoError(t, err)
	logger.Debug("text", "k", "v")
	assert.Contains(t, buf.String(), "k=v")

	_, err = NewLogger(LogConfig{Level: "loud"}, &buf)
	assert.Error(t, err)
	_, err = NewLogger(LogConfig{Level: "info", Format: "xml"}, &buf)
	assert.Error(t, err)
}
