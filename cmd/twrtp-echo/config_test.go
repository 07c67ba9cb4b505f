package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "echo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
channel: ts3
remote: 127.0.0.1:4000
dscp: 46
port_range:
  start: 16384
  end: 16400
endpoint:
  clock_khz: 8
  quantum_ms: 20
  payload_type: 8
  jitter:
    bd_start: 3
    bd_hiwat: 5
  sdes:
    cname: bts@example
`)

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "ts3", cfg.Channel)
	assert.Equal(t, "info", cfg.LogLevel)
	require.NotNil(t, cfg.DSCP)
	assert.Equal(t, 46, *cfg.DSCP)
	assert.Nil(t, cfg.SocketPriority)
	assert.Equal(t, 16384, cfg.PortRange.Start)
	assert.Equal(t, uint8(8), cfg.Endpoint.PayloadType)
	assert.Equal(t, uint16(250), cfg.Endpoint.AutoRTCPInterval, "unset fields keep defaults")
	assert.Equal(t, uint16(3), cfg.Endpoint.Jitter.BdStart)
	assert.Equal(t, uint16(17), cfg.Endpoint.Jitter.ThinningInt)
	assert.Equal(t, "bts@example", cfg.Endpoint.SDES.CNAME)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	path := writeConfig(t, "remote: 127.0.0.1:4000\n")
	t.Setenv("TWRTP_REMOTE", "127.0.0.1:6000")
	t.Setenv("TWRTP_BIND_PORT", "5004")
	t.Setenv("TWRTP_LOG_LEVEL", "debug")

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:6000", cfg.Remote)
	assert.Equal(t, 5004, cfg.BindPort)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, strings.HasPrefix(cfg.Endpoint.SDES.CNAME, "twrtp-echo-"))
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := loadConfig(writeConfig(t, "channel: x\n"))
	assert.ErrorContains(t, err, "remote is required")

	_, err = loadConfig(writeConfig(t, "remote: 127.0.0.1:4000\nlog_level: loud\n"))
	assert.Error(t, err)

	_, err = loadConfig(writeConfig(t, "remote: 127.0.0.1:4000\nendpoint:\n  quantum_ms: 7\n"))
	assert.Error(t, err)

	t.Setenv("TWRTP_BIND_PORT", "even")
	_, err = loadConfig(writeConfig(t, "remote: 127.0.0.1:4000\n"))
	assert.ErrorContains(t, err, "TWRTP_BIND_PORT")
}
