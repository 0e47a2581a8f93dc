package config

import (
	"flag"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/netsampler/nfcapd/nffile"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("nfcapd", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func TestDefaults(t *testing.T) {
	cfg, err := Load(newFlagSet(), []string{"-w", "/data"})
	require.NoError(t, err)
	assert.Equal(t, "/data", cfg.DataDir)
	assert.Equal(t, 5*time.Minute, cfg.Interval)
	assert.Equal(t, nffile.CompressionLZ4, cfg.Compression)
	assert.Equal(t, nffile.WriteBufferSize, cfg.BlockSize)
	assert.Equal(t, "-", cfg.Input)
	assert.NoError(t, cfg.Check())
}

func TestFlags(t *testing.T) {
	cfg, err := Load(newFlagSet(), []string{
		"-n", "a,192.0.2.1,/data/a",
		"-n", "b,192.0.2.2,/data/b",
		"-t", "30s",
		"-S", "2",
		"-z", "zstd",
		"-nsel",
	})
	require.NoError(t, err)
	assert.Equal(t, SourceList{"a,192.0.2.1,/data/a", "b,192.0.2.2,/data/b"}, cfg.Sources)
	assert.Equal(t, 30*time.Second, cfg.Interval)
	assert.Equal(t, 2, cfg.SubdirLayout)
	assert.Equal(t, nffile.CompressionZstd, cfg.Compression)
	assert.True(t, cfg.NSEL)
	assert.NoError(t, cfg.Check())

	_, err = Load(newFlagSet(), []string{"-z", "gzip"})
	assert.Error(t, err)
}

func TestPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nfcapd.yaml")
	content := "datadir: /from/yaml\ninterval: 1m\ncompression: s2\nloglevel: debug\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	t.Setenv("NFCAPD_INTERVAL", "2m")
	t.Setenv("NFCAPD_SOURCES", "a,192.0.2.1,/a;b,192.0.2.2,/b")

	cfg, err := Load(newFlagSet(), []string{"-config", path, "-loglevel", "warn"})
	require.NoError(t, err)
	assert.Equal(t, path, cfg.ConfigFile)
	assert.Equal(t, "/from/yaml", cfg.DataDir)
	assert.Equal(t, nffile.CompressionS2, cfg.Compression)
	assert.Equal(t, 2*time.Minute, cfg.Interval, "environment overrides the file")
	assert.Equal(t, "warn", cfg.LogLevel, "flags override the file")
	assert.Equal(t, SourceList{"a,192.0.2.1,/a", "b,192.0.2.2,/b"}, cfg.Sources)
}

func TestConfigFileErrors(t *testing.T) {
	_, err := Load(newFlagSet(), []string{"-config", filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "nfcapd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("unknown_key: 1\n"), 0o644))
	_, err = Load(newFlagSet(), []string{"--config=" + path})
	assert.Error(t, err)
}

func TestConfigPath(t *testing.T) {
	assert.Equal(t, "a.yaml", configPath([]string{"-w", "/d", "-config", "a.yaml"}))
	assert.Equal(t, "b.yaml", configPath([]string{"--config=b.yaml"}))
	assert.Equal(t, "", configPath([]string{"--", "-config", "c.yaml"}))
	assert.Equal(t, "", configPath([]string{"-config"}))
}

func TestCheck(t *testing.T) {
	t.Run("no directory", func(t *testing.T) {
		cfg := &Config{}
		cfg.SetDefaults()
		assert.Error(t, cfg.Check())
	})
	t.Run("dynamic and static", func(t *testing.T) {
		cfg := &Config{}
		cfg.SetDefaults()
		cfg.DynamicDir = "/dyn"
		cfg.Sources = SourceList{"a,192.0.2.1,/a"}
		assert.Error(t, cfg.Check())
	})
	t.Run("bad layout and interval", func(t *testing.T) {
		cfg := &Config{}
		cfg.SetDefaults()
		cfg.DataDir = "/data"
		cfg.SubdirLayout = 12
		cfg.Interval = time.Second
		err := cfg.Check()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "layout")
		assert.Contains(t, err.Error(), "interval")
	})
}
