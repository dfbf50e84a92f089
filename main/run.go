package main

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jd3nn1s/aerostat"
	"github.com/jd3nn1s/aerostat/archive"
	"github.com/jd3nn1s/aerostat/config"
	"github.com/jd3nn1s/aerostat/console"
	"github.com/jd3nn1s/aerostat/export"
	"github.com/jd3nn1s/aerostat/serialport"
	"github.com/jd3nn1s/aerostat/uplink"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	simulatorInterval = time.Second
	maxReconnectDelay = 30 * time.Second
)

type runCmd struct {
	Port     string `help:"Serial port, overrides serial.port."`
	Baud     int    `help:"Baud rate, overrides serial.baud_rate."`
	Revision string `help:"Protocol revision A or B, overrides protocol.revision."`
	Simulate bool   `help:"Use the built-in simulator instead of a serial port."`
	Commands bool   `help:"Read ballast,gas commands from stdin."`
	Export   string `help:"File written when the session stops, overrides export.path."`
}

// logSink prints pass-through lines from the aerostat.
type logSink struct{}

func (logSink) Line(text string) {
	log.WithField("line", text).Info("aerostat")
}

func (r *runCmd) apply(cfg *config.Config) error {
	if r.Port != "" {
		cfg.Serial.Port = r.Port
	}
	if r.Baud != 0 {
		cfg.Serial.BaudRate = r.Baud
	}
	if r.Revision != "" {
		cfg.Protocol.Revision = r.Revision
	}
	if r.Simulate {
		// the simulator speaks the current revision
		cfg.Protocol.Revision = aerostat.RevisionB.Name
		cfg.Protocol.Sentinel = aerostat.DefaultSentinel
	}
	if r.Export != "" {
		cfg.Export.Path = r.Export
	}
	return cfg.Validate()
}

func (r *runCmd) Run(g *Globals) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	if err := r.apply(&cfg); err != nil {
		return err
	}
	rev, err := cfg.Revision()
	if err != nil {
		return err
	}
	if !r.Simulate && cfg.Serial.Port == "" {
		return errors.New("no serial port configured, use --port or --simulate")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	session := aerostat.NewSession(
		aerostat.WithRevision(rev),
		aerostat.WithSentinel(cfg.Protocol.Sentinel),
		aerostat.WithQueueSize(cfg.Session.QueueSize))
	session.AddLineSink(logSink{})

	var wg sync.WaitGroup
	if cfg.Archive.Enabled {
		rec, err := archive.New(ctx, cfg.Archive.Path, rev, cfg.Protocol.Sentinel)
		if err != nil {
			return err
		}
		defer rec.Close()
		session.AddForwarder(rec)
	}

	var up *uplink.Session
	if cfg.Uplink.Enabled {
		if up, err = uplink.NewSession(cfg.Uplink, session.State()); err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = up.Run(ctx)
		}()
	}

	if cfg.Console.Enabled {
		con := console.New(session)
		defer con.Close()
		if up != nil {
			con.SetUplink(up)
		}
		session.AddForwarder(con)
		session.AddLineSink(con)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := con.Run(ctx, cfg.Console.Addr); err != nil && err != context.Canceled {
				log.WithField("err", err).Error("console stopped")
			}
		}()
	}

	if r.Commands {
		go readCommands(os.Stdin, session)
	}

	session.Start()
	ingestErr := r.ingest(ctx, session, cfg)

	cancel()
	wg.Wait()
	session.Stop()

	stats := session.Stats()
	log.WithField("frames", humanize.Comma(int64(stats.Frames))).
		WithField("lines", humanize.Comma(int64(stats.Lines))).
		WithField("decode_errors", stats.DecodeErrors).
		Info("session stopped")

	if cfg.Export.Path != "" {
		if err := export.Export(session.State().Snapshot(), cfg.Export.Path); err != nil {
			log.WithField("err", err).Error("unable to export flight")
			if ingestErr == nil {
				ingestErr = err
			}
		}
	}
	return ingestErr
}

func (r *runCmd) ingest(ctx context.Context, session *aerostat.Session, cfg config.Config) error {
	name := cfg.Serial.Port
	open := func() (aerostat.Transport, error) {
		conn, err := serialport.Connect(cfg.Serial)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
	if r.Simulate {
		name = "simulator"
		open = func() (aerostat.Transport, error) {
			return aerostat.NewSimulator(simulatorInterval, time.Now()), nil
		}
	}

	var err error
	if cfg.Session.Reconnect {
		b := aerostat.NewBackoff(cfg.Session.ReconnectBackoff, maxReconnectDelay)
		err = session.IngestWithReconnect(ctx, name, open, b)
	} else {
		var t aerostat.Transport
		if t, err = open(); err != nil {
			return err
		}
		err = session.Ingest(ctx, t)
		_ = t.Close()
	}
	if err == io.EOF || err == context.Canceled {
		return nil
	}
	if err != nil {
		log.WithField("err", err).Error("telemetry link failed")
	}
	return err
}

// readCommands sends each "ballast,gas" line from r to the aerostat.
func readCommands(r io.Reader, session *aerostat.Session) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		cmd, err := parseCommand(line)
		if err == nil {
			err = session.SendCommand(cmd)
		}
		if err != nil {
			log.WithField("err", err).
				WithField("input", line).
				Error("command not sent")
		}
	}
}

func parseCommand(line string) (aerostat.OutboundCommand, error) {
	parts := strings.FieldsFunc(line, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	if len(parts) != 2 {
		return aerostat.OutboundCommand{}, errors.Errorf("expected <ballast>,<gas>, got %q", line)
	}
	return aerostat.OutboundCommand{Ballast: parts[0], Gas: parts[1]}, nil
}
