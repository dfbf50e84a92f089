package aerostat

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"
)

// pipeTransport feeds Ingest from a pipe and captures writes.
type pipeTransport struct {
	*io.PipeReader
	feed *io.PipeWriter

	mu      sync.Mutex
	written bytes.Buffer
	closed  bool
}

func createPipeTransport() *pipeTransport {
	pr, pw := io.Pipe()
	return &pipeTransport{
		PipeReader: pr,
		feed:       pw,
	}
}

func (p *pipeTransport) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.Write(b)
}

func (p *pipeTransport) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return p.PipeReader.Close()
}

func (p *pipeTransport) Written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.String()
}

func (p *pipeTransport) send(lines ...string) {
	for _, l := range lines {
		_, _ = io.WriteString(p.feed, l+"\r\n")
	}
}

// errTransport fails every read with err.
type errTransport struct {
	err error
}

func (e *errTransport) Read([]byte) (int, error)    { return 0, e.err }
func (e *errTransport) Write(b []byte) (int, error) { return len(b), nil }
func (e *errTransport) Close() error                { return nil }

type forwarderStub struct {
	mu     sync.Mutex
	frames []TelemetryFrame
	err    error
}

func (fwd *forwarderStub) Forward(frame *TelemetryFrame) error {
	fwd.mu.Lock()
	defer fwd.mu.Unlock()
	fwd.frames = append(fwd.frames, *frame)
	return fwd.err
}

func (fwd *forwarderStub) Frames() []TelemetryFrame {
	fwd.mu.Lock()
	defer fwd.mu.Unlock()
	return append([]TelemetryFrame(nil), fwd.frames...)
}

type lineSinkStub struct {
	mu    sync.Mutex
	lines []string
}

func (s *lineSinkStub) Line(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, text)
}

func (s *lineSinkStub) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

// revBLine builds a revision B line with the given position, fusion altitude
// and time. Every other numeric field is filled with its index.
func revBLine(lat, lon, alt float64, tod string) string {
	fields := make([]string, 19)
	for i := range fields {
		fields[i] = fmt.Sprintf("%d", i)
	}
	fields[0] = "MXX"
	fields[1] = "1"
	fields[2] = tod
	fields[6] = fmt.Sprintf("%v", lon)
	fields[7] = fmt.Sprintf("%v", lat)
	fields[8] = fmt.Sprintf("%v", alt)
	return strings.Join(fields, ",")
}
