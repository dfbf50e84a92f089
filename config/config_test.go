package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jd3nn1s/aerostat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadTOML(t *testing.T) {
	data := `
[serial]
port = "/dev/ttyUSB0"
baud_rate = 9600
read_timeout = "250ms"

[protocol]
revision = "A"

[uplink]
enabled = true
base_url = "http://172.16.8.85:8080"
password = "admin123"
task_id = "test"
interval = "2s"

[export]
path = "flight.csv"
`
	cfg, err := LoadFromReader(bytes.NewBufferString(data), TOML)
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyUSB0", cfg.Serial.Port)
	assert.Equal(t, 9600, cfg.Serial.BaudRate)
	assert.Equal(t, 250*time.Millisecond, cfg.Serial.ReadTimeout)
	assert.True(t, cfg.Uplink.Enabled)
	assert.Equal(t, "admin", cfg.Uplink.Username, "defaults survive a partial section")
	assert.Equal(t, 2*time.Second, cfg.Uplink.Interval)
	assert.Equal(t, 5*time.Second, cfg.Uplink.Timeout)
	assert.Equal(t, "flight.csv", cfg.Export.Path)
	assert.Equal(t, aerostat.DefaultSentinel, cfg.Protocol.Sentinel)

	rev, err := cfg.Revision()
	require.NoError(t, err)
	assert.Equal(t, aerostat.RevisionA, rev)
}

func TestLoadYAML(t *testing.T) {
	data := `
serial:
  port: COM3
protocol:
  revision: b
  sentinel: TLM
session:
  queue_size: 16
  reconnect: true
  reconnect_backoff: 500ms
console:
  enabled: true
  addr: ":9090"
log:
  level: debug
`
	cfg, err := LoadFromReader(bytes.NewBufferString(data), YAML)
	require.NoError(t, err)
	assert.Equal(t, "COM3", cfg.Serial.Port)
	assert.Equal(t, 115200, cfg.Serial.BaudRate)
	assert.Equal(t, "TLM", cfg.Protocol.Sentinel)
	assert.Equal(t, 16, cfg.Session.QueueSize)
	assert.True(t, cfg.Session.Reconnect)
	assert.Equal(t, 500*time.Millisecond, cfg.Session.ReconnectBackoff)
	assert.Equal(t, ":9090", cfg.Console.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadInvalid(t *testing.T) {
	for name, tc := range map[string]struct {
		data   string
		format Format
	}{
		"revision":      {"[protocol]\nrevision = \"C\"\n", TOML},
		"uplink url":    {"[uplink]\nenabled = true\n", TOML},
		"export format": {"[export]\npath = \"flight.xls\"\n", TOML},
		"log level":     {"log:\n  level: loud\n", YAML},
		"unknown yaml":  {"serial:\n  parity: odd\n", YAML},
		"syntax":        {"[serial\n", TOML},
		"format":        {"", Format("ini")},
	} {
		_, err := LoadFromReader(bytes.NewBufferString(tc.data), tc.format)
		assert.Error(t, err, name)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "groundstation.yml")
	require.NoError(t, os.WriteFile(path, []byte("archive:\n  enabled: true\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Archive.Enabled)
	assert.Equal(t, "flights.db", cfg.Archive.Path)

	_, err = Load(filepath.Join(dir, "groundstation.json"))
	assert.Error(t, err)
	_, err = Load(filepath.Join(dir, "missing.toml"))
	assert.Error(t, err)
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())
}
