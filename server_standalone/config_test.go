package main

import (
	"bytes"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkg/tftp"
)

func writeConfig(t *testing.T, text string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "tftp.yaml")
	require.NoError(t, os.WriteFile(path, []byte(text), 0o600))
	return path
}

func TestParseFlagsDefaults(t *testing.T) {
	cfg, err := parseFlags(nil)
	require.NoError(t, err)

	assert.Equal(t, ":69", cfg.Addr)
	assert.Equal(t, "file", cfg.Backend)
	assert.Equal(t, tftp.DefaultMaxRetries, cfg.MaxRetries)
	assert.Equal(t, tftp.DefaultLinger, cfg.Linger)
	assert.False(t, cfg.ReadOnly)
	assert.False(t, cfg.Debug)
}

func TestParseFlagsOnly(t *testing.T) {
	cfg, err := parseFlags([]string{"-addr", "127.0.0.1:6969", "-root", "/srv/tftp", "-R", "-no-overwrite", "-retries", "7", "-e"})
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:6969", cfg.Addr)
	assert.Equal(t, "/srv/tftp", cfg.Root)
	assert.True(t, cfg.ReadOnly)
	assert.True(t, cfg.NoOverwrite)
	assert.Equal(t, 7, cfg.MaxRetries)
	assert.True(t, cfg.Debug)
}

func TestConfigFile(t *testing.T) {
	path := writeConfig(t, `
addr: ":1069"
root: /var/lib/tftpboot
read_only: true
max_retries: 5
linger: 10s
idle_timeout: 1m
backend: s3
s3:
  bucket: firmware
  prefix: images
  region: eu-west-1
  kms_key_id: alias/tftp
`)

	cfg, err := parseFlags([]string{"-config", path})
	require.NoError(t, err)

	assert.Equal(t, ":1069", cfg.Addr)
	assert.Equal(t, "/var/lib/tftpboot", cfg.Root)
	assert.True(t, cfg.ReadOnly)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 10*time.Second, cfg.Linger)
	assert.Equal(t, time.Minute, cfg.IdleTimeout)
	assert.Equal(t, "s3", cfg.Backend)
	assert.Equal(t, S3Config{
		Bucket:   "firmware",
		Prefix:   "images",
		Region:   "eu-west-1",
		KMSKeyID: "alias/tftp",
	}, cfg.S3)
}

func TestFlagsOverrideConfigFile(t *testing.T) {
	path := writeConfig(t, "addr: \":1069\"\nmax_retries: 5\nread_only: true\n")

	cfg, err := parseFlags([]string{"-config", path, "-retries", "1", "-R=false"})
	require.NoError(t, err)

	assert.Equal(t, ":1069", cfg.Addr, "unset flags keep the file value")
	assert.Equal(t, 1, cfg.MaxRetries)
	assert.False(t, cfg.ReadOnly)
}

func TestConfigErrors(t *testing.T) {
	for _, tt := range []struct {
		name string
		text string
	}{
		{"unknown field", "adress: \":69\"\n"},
		{"unknown backend", "backend: ftp\n"},
		{"s3 without bucket", "backend: s3\n"},
		{"negative retries", "max_retries: -1\n"},
		{"bad duration", "linger: soon\n"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseFlags([]string{"-config", writeConfig(t, tt.text)})
			assert.Error(t, err)
		})
	}

	_, err := parseFlags([]string{"-config", filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, err)

	_, err = parseFlags([]string{"-bogus"})
	assert.Error(t, err)
}

func TestEmptyConfigFile(t *testing.T) {
	cfg, err := parseFlags([]string{"-config", writeConfig(t, "")})
	require.NoError(t, err)
	assert.Equal(t, defaultConfig(), cfg)
}

func TestServerOptions(t *testing.T) {
	cfg := defaultConfig()
	cfg.Root = t.TempDir()
	cfg.ReadOnly = true

	opts, err := cfg.serverOptions(cfg.logger(nil))
	require.NoError(t, err)

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	svr, err := tftp.NewServer(pc, opts...)
	require.NoError(t, err)
	require.NoError(t, svr.Close())
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer

	cfg := defaultConfig()
	cfg.logger(&buf).Debug("hidden")
	assert.Zero(t, buf.Len())

	cfg.Debug = true
	cfg.logger(&buf).Debug("shown", "peer", "10.0.0.1:1234")
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), "peer=10.0.0.1:1234")
}
