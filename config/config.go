// Package config loads the ground station configuration from TOML or YAML.
package config

import (
	"bytes"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/jd3nn1s/aerostat"
	"github.com/jd3nn1s/aerostat/export"
	"github.com/jd3nn1s/aerostat/serialport"
	"github.com/jd3nn1s/aerostat/uplink"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

type Format string

const (
	TOML Format = "toml"
	YAML Format = "yaml"
)

type Config struct {
	Serial   serialport.Config `toml:"serial" yaml:"serial"`
	Protocol ProtocolConfig    `toml:"protocol" yaml:"protocol"`
	Session  SessionConfig     `toml:"session" yaml:"session"`
	Uplink   uplink.Config     `toml:"uplink" yaml:"uplink"`
	Export   ExportConfig      `toml:"export" yaml:"export"`
	Archive  ArchiveConfig     `toml:"archive" yaml:"archive"`
	Console  ConsoleConfig     `toml:"console" yaml:"console"`
	Log      LogConfig         `toml:"log" yaml:"log"`
}

type ProtocolConfig struct {
	Revision string `toml:"revision" yaml:"revision"`
	Sentinel string `toml:"sentinel" yaml:"sentinel"`
}

type SessionConfig struct {
	QueueSize        int           `toml:"queue_size" yaml:"queue_size"`
	Reconnect        bool          `toml:"reconnect" yaml:"reconnect"`
	ReconnectBackoff time.Duration `toml:"reconnect_backoff" yaml:"reconnect_backoff"`
}

type ExportConfig struct {
	Path string `toml:"path" yaml:"path"`
}

type ArchiveConfig struct {
	Enabled bool   `toml:"enabled" yaml:"enabled"`
	Path    string `toml:"path" yaml:"path"`
}

type ConsoleConfig struct {
	Enabled bool   `toml:"enabled" yaml:"enabled"`
	Addr    string `toml:"addr" yaml:"addr"`
}

type LogConfig struct {
	Level string `toml:"level" yaml:"level"`
}

func Default() Config {
	return Config{
		Serial: serialport.Config{
			BaudRate:    serialport.DefaultBaudRate,
			ReadTimeout: serialport.DefaultReadTimeout,
		},
		Protocol: ProtocolConfig{
			Revision: aerostat.RevisionB.Name,
			Sentinel: aerostat.DefaultSentinel,
		},
		Session: SessionConfig{
			QueueSize:        64,
			ReconnectBackoff: time.Second,
		},
		Uplink: uplink.Config{
			Username:     "admin",
			Interval:     uplink.DefaultInterval,
			Timeout:      uplink.DefaultTimeout,
			MaxBackoff:   uplink.DefaultMaxBackoff,
			TokenRefresh: uplink.DefaultTokenRefresh,
			Status:       uplink.DefaultStatus,
		},
		Export: ExportConfig{
			Path: export.DefaultPath,
		},
		Archive: ArchiveConfig{
			Path: "flights.db",
		},
		Console: ConsoleConfig{
			Addr: "127.0.0.1:8080",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// FormatFromPath picks TOML or YAML from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return TOML, nil
	case ".yaml", ".yml":
		return YAML, nil
	}
	return "", errors.Errorf("unknown config format for %s", path)
}

// Load reads the file at path over the defaults.
func Load(path string) (Config, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return Config{}, err
	}
	file, err := os.Open(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "unable to open file %s", path)
	}
	defer file.Close()
	return LoadFromReader(file, format)
}

func LoadFromReader(configReader io.Reader, format Format) (Config, error) {
	cfg := Default()
	configData, err := ioutil.ReadAll(configReader)
	if err != nil {
		return cfg, errors.Wrap(err, "unable to read config reader")
	}

	switch format {
	case TOML:
		md, err := toml.Decode(string(configData), &cfg)
		if err != nil {
			return cfg, errors.Wrap(err, "unable to load toml configuration")
		}
		for _, key := range md.Undecoded() {
			log.WithField("key", key.String()).Warn("unknown configuration key")
		}
	case YAML:
		dec := yaml.NewDecoder(bytes.NewReader(configData))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && err != io.EOF {
			return cfg, errors.Wrap(err, "unable to load yaml configuration")
		}
	default:
		return cfg, errors.Errorf("unknown config format %q", format)
	}
	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	if _, err := c.Revision(); err != nil {
		return err
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(err, "log.level")
	}
	if c.Uplink.Enabled && c.Uplink.BaseURL == "" {
		return errors.New("uplink.base_url is required when uplink is enabled")
	}
	if c.Export.Path != "" {
		if _, err := export.FormatFromPath(c.Export.Path); err != nil {
			return errors.Wrap(err, "export.path")
		}
	}
	if c.Archive.Enabled && c.Archive.Path == "" {
		return errors.New("archive.path is required when archive is enabled")
	}
	return nil
}

func (c *Config) Revision() (*aerostat.Revision, error) {
	return aerostat.RevisionByName(c.Protocol.Revision)
}
