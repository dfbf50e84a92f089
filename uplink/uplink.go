package uplink

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/dustin/go-humanize"
	"github.com/jd3nn1s/aerostat"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	tokenPath    = "/getToken"
	realTimePath = "/flightTask/flightMmg/realTimeData"

	codeOK           = 200
	codeUnauthorized = 401

	DefaultInterval     = time.Second
	DefaultTimeout      = 5 * time.Second
	DefaultMaxBackoff   = time.Minute
	DefaultTokenRefresh = 30 * time.Minute
	DefaultStatus       = "1"
)

type State int

const (
	Idle State = iota
	Acquiring
	Active
	Failed
)

var stateNames = map[State]string{
	Idle:      "Idle",
	Acquiring: "Acquiring",
	Active:    "Active",
	Failed:    "Failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "Unknown"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type Config struct {
	Enabled  bool   `toml:"enabled" yaml:"enabled"`
	BaseURL  string `toml:"base_url" yaml:"base_url"`
	Username string `toml:"username" yaml:"username"`
	Password string `toml:"password" yaml:"password"`
	TaskID   string `toml:"task_id" yaml:"task_id"`
	Status   string `toml:"status" yaml:"status"`

	Interval     time.Duration `toml:"interval" yaml:"interval"`
	Timeout      time.Duration `toml:"timeout" yaml:"timeout"`
	MaxBackoff   time.Duration `toml:"max_backoff" yaml:"max_backoff"`
	TokenRefresh time.Duration `toml:"token_refresh" yaml:"token_refresh"`
}

func (c *Config) setDefaults() {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = DefaultMaxBackoff
	}
	if c.TokenRefresh <= 0 {
		c.TokenRefresh = DefaultTokenRefresh
	}
	if c.Status == "" {
		c.Status = DefaultStatus
	}
}

type Credential struct {
	Token      string
	AcquiredAt time.Time
}

// Status is a point in time view of the uplink for display.
type Status struct {
	State      State     `json:"state"`
	AcquiredAt time.Time `json:"acquired_at,omitempty"`
	Forwarded  uint64    `json:"forwarded"`
	Failures   uint64    `json:"failures"`
}

// to allow testing
var now = time.Now

// Session forwards the latest frame of a flight to the remote service on
// every tick, acquiring and refreshing the token it needs along the way.
// Uplink failures are logged and retried; they never reach the caller.
type Session struct {
	Config *Config

	source  aerostat.LatestSource
	client  *http.Client
	baseURL string
	backoff *aerostat.Backoff

	mu        sync.Mutex
	state     State
	cred      *Credential
	retryAt   time.Time
	inFlight  bool
	lastIndex int
	forwarded uint64
	failures  uint64

	wg sync.WaitGroup
}

func NewSession(cfg Config, source aerostat.LatestSource) (*Session, error) {
	cfg.setDefaults()
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.Errorf("invalid uplink base url %q", cfg.BaseURL)
	}
	return &Session{
		Config:    &cfg,
		source:    source,
		client:    &http.Client{Timeout: cfg.Timeout},
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		backoff:   aerostat.NewBackoff(cfg.Interval, cfg.MaxBackoff),
		lastIndex: -1,
	}, nil
}

func NewSessionFromFile(fileName string, source aerostat.LatestSource) (*Session, error) {
	file, err := os.Open(fileName)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open file %s", fileName)
	}
	defer file.Close()
	return NewSessionFromReader(file, source)
}

func NewSessionFromReader(configReader io.Reader, source aerostat.LatestSource) (*Session, error) {
	configData, err := ioutil.ReadAll(configReader)
	if err != nil {
		return nil, errors.Wrap(err, "unable to read config reader")
	}
	config := Config{}
	if _, err := toml.Decode(string(configData), &config); err != nil {
		return nil, errors.Wrapf(err, "unable to load uplink configuration")
	}
	return NewSession(config, source)
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Credential() (Credential, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cred == nil {
		return Credential{}, false
	}
	return *s.cred, true
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		State:     s.state,
		Forwarded: s.forwarded,
		Failures:  s.failures,
	}
	if s.cred != nil {
		st.AcquiredAt = s.cred.AcquiredAt
	}
	return st
}

// Run ticks until ctx is done, then waits for any forward still in flight.
// In-flight calls are bounded by the client timeout.
func (s *Session) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.Config.Interval)
	defer ticker.Stop()
	defer s.wg.Wait()

	log.WithField("url", s.baseURL).
		WithField("interval", s.Config.Interval).
		Info("uplink started")
	for {
		select {
		case <-ticker.C:
			s.Tick()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Wait blocks until no forward is in flight.
func (s *Session) Wait() {
	s.wg.Wait()
}

// Tick advances the state machine by one timer period. It must not be called
// concurrently with itself.
func (s *Session) Tick() {
	s.mu.Lock()
	switch s.state {
	case Failed:
		if now().Before(s.retryAt) {
			s.mu.Unlock()
			return
		}
		s.state = Acquiring
	case Idle:
		s.state = Acquiring
	case Active:
		if s.cred != nil && now().Sub(s.cred.AcquiredAt) >= s.Config.TokenRefresh {
			log.WithField("acquired", humanize.Time(s.cred.AcquiredAt)).
				Info("refreshing uplink token")
			s.state = Acquiring
		}
	}
	if s.state == Active {
		s.dispatch()
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	token, err := s.acquire()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.cred = nil
		s.state = Failed
		s.failures++
		delay := s.backoff.Next()
		s.retryAt = now().Add(delay)
		log.WithField("err", err).
			WithField("retry", humanize.Time(s.retryAt)).
			Error("unable to acquire uplink token")
		return
	}
	s.backoff.Reset()
	s.cred = &Credential{
		Token:      token,
		AcquiredAt: now(),
	}
	s.state = Active
	log.Info("uplink token acquired")
	s.dispatch()
}

// dispatch starts a background forward of the latest frame. It is skipped
// when a forward is already in flight or the frame was already sent.
// s.mu must be held.
func (s *Session) dispatch() {
	if s.inFlight || s.source == nil {
		return
	}
	frame, idx, ok := s.source.LatestIndexed()
	if !ok || idx == s.lastIndex {
		return
	}
	token := s.cred.Token
	s.inFlight = true
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := s.forward(token, &frame)

		s.mu.Lock()
		defer s.mu.Unlock()
		s.inFlight = false
		if err == nil {
			s.lastIndex = idx
			s.forwarded++
			return
		}
		s.failures++
		if errors.Is(err, ErrUnauthorized) {
			// a refresh may already have replaced the token
			if s.cred != nil && s.cred.Token == token {
				s.cred = nil
				s.state = Acquiring
			}
			log.WithField("err", err).Warn("uplink token rejected, reacquiring")
			return
		}
		log.WithField("err", err).
			WithField("time", frame.Clock()).
			Error("unable to forward frame to uplink")
	}()
}

type tokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type response struct {
	Code  int    `json:"code"`
	Msg   string `json:"msg"`
	Token string `json:"token"`
}

func (s *Session) acquire() (string, error) {
	body, err := json.Marshal(tokenRequest{
		Username: s.Config.Username,
		Password: s.Config.Password,
	})
	if err != nil {
		return "", &AuthError{Err: err}
	}
	status, resp, err := s.post(tokenPath, "", body)
	if err != nil {
		return "", &AuthError{Status: status, Err: err}
	}
	if status != http.StatusOK || resp.Code != codeOK || resp.Token == "" {
		return "", &AuthError{Status: status, Code: resp.Code, Msg: resp.Msg}
	}
	return resp.Token, nil
}

func (s *Session) forward(token string, frame *aerostat.TelemetryFrame) error {
	body, err := json.Marshal(NewPayload(s.Config.TaskID, s.Config.Status, frame))
	if err != nil {
		return &UplinkError{Err: err}
	}
	status, resp, err := s.post(realTimePath, token, body)
	if err != nil {
		return &UplinkError{Status: status, Err: err}
	}
	if status == http.StatusUnauthorized || resp.Code == codeUnauthorized {
		return &UplinkError{Status: status, Code: resp.Code, Msg: resp.Msg, Err: ErrUnauthorized}
	}
	if status/100 != 2 || (resp.Code != 0 && resp.Code != codeOK) {
		return &UplinkError{Status: status, Code: resp.Code, Msg: resp.Msg}
	}
	return nil
}

// post sends body as JSON. The response body is decoded when it is JSON;
// anything else leaves resp zero.
func (s *Session) post(path, token string, body []byte) (int, response, error) {
	resp := response{}
	ctx, cancel := context.WithTimeout(context.Background(), s.Config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, resp, errors.Wrap(err, "unable to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", token)
	}

	httpResp, err := s.client.Do(req)
	if err != nil {
		return 0, resp, errors.Wrapf(err, "POST %s", path)
	}
	defer httpResp.Body.Close()

	data, err := ioutil.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return httpResp.StatusCode, resp, errors.Wrapf(err, "unable to read %s response", path)
	}
	if len(data) > 0 {
		_ = json.Unmarshal(data, &resp)
	}
	log.WithField("path", path).
		WithField("status", httpResp.StatusCode).
		WithField("size", humanize.Bytes(uint64(len(data)))).
		Debug("uplink response")
	return httpResp.StatusCode, resp, nil
}
