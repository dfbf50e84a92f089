package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/jd3nn1s/aerostat/archive"
	"github.com/jd3nn1s/aerostat/export"
)

type sessionsCmd struct {
	Archive string `help:"Archive database, overrides archive.path." type:"path"`
}

func (s *sessionsCmd) Run(g *Globals) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	if s.Archive != "" {
		cfg.Archive.Path = s.Archive
	}
	r, err := archive.OpenReader(cfg.Archive.Path)
	if err != nil {
		return err
	}
	defer r.Close()

	sessions, err := r.Sessions(context.Background())
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTARTED\tREVISION\tFRAMES")
	for _, sess := range sessions {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n",
			sess.ID,
			humanize.Time(sess.StartTime),
			sess.Revision,
			humanize.Comma(int64(sess.Frames)))
	}
	return w.Flush()
}

type dumpCmd struct {
	Session int64  `arg:"" help:"Session ID, see the sessions command."`
	Output  string `arg:"" help:"Output file, .xlsx or .csv." type:"path"`
	Archive string `help:"Archive database, overrides archive.path." type:"path"`
}

func (d *dumpCmd) Run(g *Globals) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	if d.Archive != "" {
		cfg.Archive.Path = d.Archive
	}
	r, err := archive.OpenReader(cfg.Archive.Path)
	if err != nil {
		return err
	}
	defer r.Close()

	fs, err := r.State(context.Background(), d.Session)
	if err != nil {
		return err
	}
	return export.Export(fs.Snapshot(), d.Output)
}
