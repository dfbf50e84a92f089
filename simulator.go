package aerostat

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

const (
	simStartLatitude  = 39.9042
	simStartLongitude = 116.4074
	simNoFixFrames    = 3
	simLogEvery       = 10
)

// Simulator is a Transport that emits revision B telemetry on a timer,
// starting without a fix, and records any commands written to it.
type Simulator struct {
	interval time.Duration
	start    time.Time

	pr *io.PipeReader
	pw *io.PipeWriter

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	commands []string
}

func NewSimulator(interval time.Duration, start time.Time) *Simulator {
	pr, pw := io.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	sim := &Simulator{
		interval: interval,
		start:    start,
		pr:       pr,
		pw:       pw,
		cancel:   cancel,
	}
	sim.wg.Add(1)
	go sim.run(ctx)
	return sim
}

func (sim *Simulator) Read(p []byte) (int, error) {
	return sim.pr.Read(p)
}

func (sim *Simulator) Write(p []byte) (int, error) {
	sim.mu.Lock()
	sim.commands = append(sim.commands, string(p))
	sim.mu.Unlock()
	return len(p), nil
}

func (sim *Simulator) Close() error {
	sim.cancel()
	_ = sim.pr.Close()
	sim.wg.Wait()
	return sim.pw.Close()
}

// Commands returns the raw commands written so far.
func (sim *Simulator) Commands() []string {
	sim.mu.Lock()
	defer sim.mu.Unlock()
	ret := make([]string, len(sim.commands))
	copy(ret, sim.commands)
	return ret
}

func (sim *Simulator) run(ctx context.Context) {
	defer sim.wg.Done()

	ticker := time.NewTicker(sim.interval)
	defer ticker.Stop()

	alt := 0.0
	climb := 2.5
	down := false
	for n := 0; ; n++ {
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}

		if n > 0 && n%simLogEvery == 0 {
			if _, err := fmt.Fprintf(sim.pw, "LOG,simulator heartbeat %d\r\n", n); err != nil {
				return
			}
		}

		if down {
			alt -= climb
		} else {
			alt += climb
		}
		if alt >= 3000 {
			down = true
		} else if alt <= 0 {
			down = false
		}

		lat, lon := 0.0, 0.0
		if n >= simNoFixFrames {
			lat = simStartLatitude + float64(n)*0.0001
			lon = simStartLongitude + float64(n)*0.0002
		}
		tod := sim.start.Add(time.Duration(n) * time.Second)
		line := fmt.Sprintf("MXX,1,%s,%.2f,%.2f,%.2f,%.6f,%.6f,%.1f,%.1f,%.1f,0,%.1f,%.1f,%.1f,%.2f,%.2f,%d,%d\r\n",
			tod.Format("150405"),
			4.2, climb, -0.1,
			lon, lat,
			alt, alt+3, alt-2,
			3000.0,
			-20.5, 15.0,
			11.8, 4.9,
			n/20, n/30)
		if _, err := io.WriteString(sim.pw, line); err != nil {
			return
		}
	}
}
