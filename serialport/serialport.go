package serialport

import (
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

const (
	DefaultBaudRate    = 115200
	DefaultReadTimeout = 500 * time.Millisecond
)

// BaudRates are the rates offered by the ground station radios.
var BaudRates = []int{9600, 19200, 38400, 57600, 115200}

type Config struct {
	Port        string        `toml:"port" yaml:"port"`
	BaudRate    int           `toml:"baud_rate" yaml:"baud_rate"`
	ReadTimeout time.Duration `toml:"read_timeout" yaml:"read_timeout"`
}

type port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
}

// to allow testing
var openPort = func(name string, mode *serial.Mode) (port, error) {
	p, err := serial.Open(name, mode)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Connection is an open serial port. Reads return after the read timeout
// with no data so the caller can notice cancellation.
type Connection struct {
	name string

	mu     sync.Mutex
	port   port
	closed bool
}

func Connect(cfg Config) (*Connection, error) {
	if cfg.Port == "" {
		return nil, errors.New("serial port name is required")
	}
	baud := cfg.BaudRate
	if baud == 0 {
		baud = DefaultBaudRate
	}
	timeout := cfg.ReadTimeout
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}

	p, err := openPort(cfg.Port, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open serial port %s", cfg.Port)
	}
	if err := p.SetReadTimeout(timeout); err != nil {
		_ = p.Close()
		return nil, errors.Wrapf(err, "unable to set read timeout on %s", cfg.Port)
	}
	// stale bytes from before the open would start us mid-line
	if err := p.ResetInputBuffer(); err != nil {
		log.WithField("port", cfg.Port).
			WithField("err", err).
			Warn("unable to reset serial input buffer")
	}

	log.WithField("port", cfg.Port).
		WithField("baud", baud).
		Info("serial port opened")
	return &Connection{
		name: cfg.Port,
		port: p,
	}, nil
}

func (c *Connection) Name() string {
	return c.name
}

func (c *Connection) Read(b []byte) (int, error) {
	return c.port.Read(b)
}

func (c *Connection) Write(b []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, errors.New("serial port not connected")
	}
	log.WithField("port", c.name).
		WithField("bytes", len(b)).
		Debug("writing to serial port")
	return c.port.Write(b)
}

// Close closes the port. Closing twice is not an error.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.port.Close()
}
