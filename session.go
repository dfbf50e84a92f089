package aerostat

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const defaultQueueSize = 64

type event struct {
	frame *TelemetryFrame
	line  string
}

// Stats counts what the read loop has seen.
type Stats struct {
	Frames       uint64 `json:"frames"`
	Lines        uint64 `json:"lines"`
	DecodeErrors uint64 `json:"decode_errors"`
}

// Session owns the flight state for one flight. The read loop decodes lines
// onto a queue and a single consumer appends them to the state, so ingest is
// never held up by forwarders or readers of the state.
type Session struct {
	state   *FlightState
	decoder *Decoder
	encoder *CommandEncoder

	queueSize  int
	events     chan event
	forwarders []Forwarder
	sinks      []LineSink

	frames       atomic.Uint64
	lines        atomic.Uint64
	decodeErrors atomic.Uint64

	txMu      sync.Mutex
	transport Transport

	mu       sync.Mutex
	started  bool
	stopped  bool
	ingestWG sync.WaitGroup
	wg       sync.WaitGroup
}

// WithRevision selects the protocol revision for decoding and commands.
func WithRevision(rev *Revision) func(*Session) {
	return func(s *Session) {
		s.decoder.Revision = rev
		s.encoder.Revision = rev
	}
}

// WithSentinel overrides the token that marks telemetry lines.
func WithSentinel(sentinel string) func(*Session) {
	return func(s *Session) {
		if sentinel != "" {
			s.decoder.Sentinel = sentinel
		}
	}
}

// WithQueueSize sets how many decoded lines may wait for the consumer.
func WithQueueSize(n int) func(*Session) {
	return func(s *Session) {
		if n > 0 {
			s.queueSize = n
		}
	}
}

// WithFlightState uses an existing state instead of an empty one.
func WithFlightState(fs *FlightState) func(*Session) {
	return func(s *Session) {
		s.state = fs
	}
}

func NewSession(options ...func(*Session)) *Session {
	s := &Session{
		state:     NewFlightState(),
		decoder:   NewDecoder(RevisionB, DefaultSentinel),
		encoder:   NewCommandEncoder(RevisionB),
		queueSize: defaultQueueSize,
	}
	for _, option := range options {
		option(s)
	}
	s.events = make(chan event, s.queueSize)
	return s
}

func (s *Session) State() *FlightState {
	return s.state
}

func (s *Session) Revision() *Revision {
	return s.decoder.Revision
}

// AddForwarder registers fwd for every appended frame. Call before Start.
func (s *Session) AddForwarder(fwd Forwarder) {
	s.forwarders = append(s.forwarders, fwd)
}

// AddLineSink registers sink for pass-through log lines. Call before Start.
func (s *Session) AddLineSink(sink LineSink) {
	s.sinks = append(s.sinks, sink)
}

func (s *Session) Stats() Stats {
	return Stats{
		Frames:       s.frames.Load(),
		Lines:        s.lines.Load(),
		DecodeErrors: s.decodeErrors.Load(),
	}
}

// Start launches the consumer that applies queued frames to the state.
func (s *Session) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.consume()
	}()
}

// Stop waits for running ingests to return, then drains the queue. Cancel
// the context passed to Ingest, or close its transport, before calling Stop.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	s.ingestWG.Wait()
	close(s.events)
	s.wg.Wait()
}

// Ingest reads t until the context is done or the stream fails. It returns
// nil on cancellation, io.EOF at end of stream and a *TransportError when
// the read fails. Commands can be sent on t while Ingest runs.
func (s *Session) Ingest(ctx context.Context, t Transport) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return errors.New("session stopped")
	}
	s.ingestWG.Add(1)
	s.mu.Unlock()
	defer s.ingestWG.Done()

	s.attach(t)
	defer s.detach(t)

	fr := NewFrameReader(t)
	for {
		line, err := fr.ReadLine(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if err == io.EOF {
				return io.EOF
			}
			return err
		}
		ev, ok := s.decodeLine(line)
		if !ok {
			continue
		}
		select {
		case s.events <- ev:
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *Session) decodeLine(line string) (event, bool) {
	if line == "" {
		return event{}, false
	}
	frame, err := s.decoder.Decode(line)
	if err != nil {
		s.decodeErrors.Add(1)
		log.WithField("line", line).
			WithField("err", err).
			Warn("dropping telemetry frame")
		return event{line: line}, true
	}
	if frame == nil {
		s.lines.Add(1)
		return event{line: line}, true
	}
	s.frames.Add(1)
	return event{frame: frame}, true
}

func (s *Session) consume() {
	for ev := range s.events {
		if ev.frame == nil {
			for _, sink := range s.sinks {
				sink.Line(ev.line)
			}
			continue
		}
		s.state.Append(*ev.frame)
		log.WithField("time", ev.frame.Clock()).
			WithField("lat", ev.frame.Latitude).
			WithField("lon", ev.frame.Longitude).
			WithField("alt", ev.frame.Altitude).
			Debug("frame appended")
		for _, fwd := range s.forwarders {
			if err := fwd.Forward(ev.frame); err != nil {
				log.WithField("err", err).Warn("unable to forward frame")
			}
		}
	}
}

// SendCommand encodes cmd and writes it to the attached transport. It fails
// at once with ErrTransportClosed when no transport is attached.
func (s *Session) SendCommand(cmd OutboundCommand) error {
	data, err := s.encoder.Encode(cmd)
	if err != nil {
		return err
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()
	if s.transport == nil {
		return ErrTransportClosed
	}
	if _, err := s.transport.Write(data); err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	log.WithField("ballast", cmd.Ballast).
		WithField("gas", cmd.Gas).
		Info("command sent")
	return nil
}

func (s *Session) attach(t Transport) {
	s.txMu.Lock()
	s.transport = t
	s.txMu.Unlock()
}

func (s *Session) detach(t Transport) {
	s.txMu.Lock()
	if s.transport == t {
		s.transport = nil
	}
	s.txMu.Unlock()
}
