// Package console serves the live flight to operators over HTTP and
// websockets, and accepts ballast/gas commands.
package console

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/jd3nn1s/aerostat"
	"github.com/jd3nn1s/aerostat/uplink"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/net/websocket"
)

const shutdownTimeout = 5 * time.Second

// Pipeline is the part of an aerostat.Session the console needs.
type Pipeline interface {
	State() *aerostat.FlightState
	Stats() aerostat.Stats
	SendCommand(cmd aerostat.OutboundCommand) error
}

type UplinkStatus interface {
	Status() uplink.Status
}

type message struct {
	Type  string                   `json:"type"`
	Frame *aerostat.TelemetryFrame `json:"frame,omitempty"`
	Line  string                   `json:"line,omitempty"`
}

type stateResponse struct {
	Latest *aerostat.TelemetryFrame `json:"latest"`
	Frames int                      `json:"frames"`
	Track  int                      `json:"track"`
	Stats  aerostat.Stats           `json:"stats"`
	Uplink *uplink.Status           `json:"uplink,omitempty"`
}

// Server is an aerostat.Forwarder and aerostat.LineSink that pushes
// everything it receives to connected websockets.
type Server struct {
	pipeline Pipeline
	uplink   UplinkStatus
	bc       *broadcaster
}

func New(pipeline Pipeline) *Server {
	return &Server{
		pipeline: pipeline,
		bc:       newBroadcaster(),
	}
}

// SetUplink adds the uplink state to /api/state. Call before serving.
func (s *Server) SetUplink(u UplinkStatus) {
	s.uplink = u
}

func (s *Server) Forward(frame *aerostat.TelemetryFrame) error {
	s.bc.SendJSON(message{Type: "frame", Frame: frame})
	return nil
}

func (s *Server) Line(text string) {
	s.bc.SendJSON(message{Type: "log", Line: text})
}

func (s *Server) Close() {
	s.bc.Close()
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/api/track", s.handleTrack)
	mux.HandleFunc("/api/frames", s.handleFrames)
	mux.HandleFunc("/api/command", s.handleCommand)
	mux.Handle("/ws", websocket.Server{Handler: s.handleWS})

	return handlers.RecoveryHandler(handlers.RecoveryLogger(log.StandardLogger()))(
		handlers.CustomLoggingHandler(io.Discard, mux, logFormatter))
}

// Run serves on addr until ctx is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "unable to listen on %s", addr)
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	log.WithField("addr", ln.Addr().String()).Info("console listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithField("err", err).Warn("console shutdown")
	}
	return ctx.Err()
}

func logFormatter(_ io.Writer, params handlers.LogFormatterParams) {
	log.WithField("method", params.Request.Method).
		WithField("path", params.URL.Path).
		WithField("status", params.StatusCode).
		WithField("size", params.Size).
		WithField("remote", params.Request.RemoteAddr).
		Debug("console request")
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	fs := s.pipeline.State()
	frames, track := fs.Len()
	resp := stateResponse{
		Frames: frames,
		Track:  track,
		Stats:  s.pipeline.Stats(),
	}
	if latest, ok := fs.Latest(); ok {
		resp.Latest = &latest
	}
	if s.uplink != nil {
		st := s.uplink.Status()
		resp.Uplink = &st
	}
	writeJSON(w, resp)
}

func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.pipeline.State().Snapshot().Track)
}

// handleFrames returns the frame series, or the frames from index since on.
func (s *Server) handleFrames(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	since := 0
	if v := r.URL.Query().Get("since"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid since", http.StatusBadRequest)
			return
		}
		since = n
	}
	frames := s.pipeline.State().Snapshot().Frames
	if since > len(frames) {
		since = len(frames)
	}
	writeJSON(w, frames[since:])
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var cmd aerostat.OutboundCommand
	if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&cmd); err != nil {
		http.Error(w, "invalid command payload: "+err.Error(), http.StatusBadRequest)
		return
	}

	err := s.pipeline.SendCommand(cmd)
	var transportErr *aerostat.TransportError
	switch {
	case err == nil:
	case errors.Is(err, aerostat.ErrEmptyCommandField):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, aerostat.ErrTransportClosed):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	case errors.As(err, &transportErr):
		log.WithField("err", err).Error("unable to send command")
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleWS(conn *websocket.Conn) {
	s.bc.AddSocket(conn)
	defer s.bc.RemoveSocket(conn)

	// the console never sends anything, reads only detect the close
	buf := make([]byte, 512)
	for {
		if _, err := conn.Read(buf); err != nil {
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithField("err", err).Warn("unable to encode console response")
	}
}
