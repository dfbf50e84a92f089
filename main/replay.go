package main

import (
	"context"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/jd3nn1s/aerostat"
	"github.com/jd3nn1s/aerostat/export"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

type replayCmd struct {
	File     string `arg:"" type:"existingfile" help:"Captured serial log."`
	Revision string `help:"Protocol revision A or B, overrides protocol.revision."`
	Export   string `help:"File to export the decoded flight to, overrides export.path."`
}

// readOnly is a captured log used as a transport. Commands cannot be sent.
type readOnly struct {
	io.ReadCloser
}

func (readOnly) Write([]byte) (int, error) {
	return 0, errors.New("replay transport is read-only")
}

func (r *replayCmd) Run(g *Globals) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	if r.Revision != "" {
		cfg.Protocol.Revision = r.Revision
	}
	if r.Export != "" {
		cfg.Export.Path = r.Export
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	rev, err := cfg.Revision()
	if err != nil {
		return err
	}

	file, err := os.Open(r.File)
	if err != nil {
		return errors.Wrapf(err, "unable to open file %s", r.File)
	}
	defer file.Close()

	session := aerostat.NewSession(
		aerostat.WithRevision(rev),
		aerostat.WithSentinel(cfg.Protocol.Sentinel),
		aerostat.WithQueueSize(cfg.Session.QueueSize))
	session.Start()
	err = session.Ingest(context.Background(), readOnly{file})
	session.Stop()
	if err != nil && err != io.EOF {
		return err
	}

	stats := session.Stats()
	frames, track := session.State().Len()
	log.WithField("file", r.File).
		WithField("frames", humanize.Comma(int64(frames))).
		WithField("fixes", humanize.Comma(int64(track))).
		WithField("lines", stats.Lines).
		WithField("decode_errors", stats.DecodeErrors).
		Info("replay complete")

	if cfg.Export.Path == "" {
		return nil
	}
	return export.Export(session.State().Snapshot(), cfg.Export.Path)
}
