package main

import (
	"github.com/alecthomas/kong"
	"github.com/jd3nn1s/aerostat/config"
	log "github.com/sirupsen/logrus"
)

type Globals struct {
	Config   string `help:"Path to a TOML or YAML config file." short:"c" type:"path"`
	LogLevel string `help:"Override log.level from the config." name:"log-level"`
}

var cli struct {
	Globals

	Run      runCmd      `cmd:"" default:"1" help:"Receive live telemetry from the serial port or the simulator."`
	Replay   replayCmd   `cmd:"" help:"Decode a captured serial log."`
	Sessions sessionsCmd `cmd:"" help:"List sessions recorded in the archive."`
	Dump     dumpCmd     `cmd:"" help:"Export an archived session to xlsx or csv."`
}

// load reads the config file, if any, and applies the log level.
func (g *Globals) load() (config.Config, error) {
	cfg := config.Default()
	if g.Config != "" {
		var err error
		if cfg, err = config.Load(g.Config); err != nil {
			return cfg, err
		}
	}
	if g.LogLevel != "" {
		cfg.Log.Level = g.LogLevel
	}
	level, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		return cfg, err
	}
	log.SetLevel(level)
	return cfg, nil
}

func main() {
	log.SetLevel(log.InfoLevel)

	ctx := kong.Parse(&cli,
		kong.Name("groundstation"),
		kong.Description("Aerostat ground station telemetry pipeline."),
		kong.UsageOnError())
	err := ctx.Run(&cli.Globals)
	ctx.FatalIfErrorf(err)
}
