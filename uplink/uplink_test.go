package uplink

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jd3nn1s/aerostat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type remote struct {
	mu        sync.Mutex
	tokens    int
	forwards  []map[string]string
	auths     []string
	tokenCode int
	reject    map[string]bool
	block     chan struct{}
}

func (r *remote) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(tokenPath, func(w http.ResponseWriter, req *http.Request) {
		var body tokenRequest
		_ = json.NewDecoder(req.Body).Decode(&body)

		r.mu.Lock()
		r.tokens++
		n := r.tokens
		code := r.tokenCode
		r.mu.Unlock()

		if code == 0 {
			code = codeOK
		}
		if code != codeOK || body.Username != "admin" {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"code": 500, "msg": "bad credentials"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"code": 200, "token": fmt.Sprintf("token-%d", n)})
	})
	mux.HandleFunc(realTimePath, func(w http.ResponseWriter, req *http.Request) {
		if r.block != nil {
			<-r.block
		}
		var body map[string]string
		_ = json.NewDecoder(req.Body).Decode(&body)
		auth := req.Header.Get("Authorization")

		r.mu.Lock()
		r.auths = append(r.auths, auth)
		reject := r.reject[auth]
		if !reject {
			r.forwards = append(r.forwards, body)
		}
		r.mu.Unlock()

		if reject {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"code": 200, "msg": "ok"})
	})
	return mux
}

func (r *remote) counts() (tokens int, forwards int, calls int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tokens, len(r.forwards), len(r.auths)
}

func (r *remote) sent() ([]map[string]string, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]map[string]string(nil), r.forwards...), append([]string(nil), r.auths...)
}

func decodedFrame(t *testing.T, tod string) aerostat.TelemetryFrame {
	line := "MXX,0," + tod + ",1.2,0.3,-0.1,116.4,39.9,500,480,510,0,600,-20.5,15,11.8,4.9,7,3"
	frame, err := aerostat.NewDecoder(aerostat.RevisionB, "").Decode(line)
	require.NoError(t, err)
	return *frame
}

func createSession(t *testing.T, r *remote, fs *aerostat.FlightState) *Session {
	srv := httptest.NewServer(r.handler())
	t.Cleanup(srv.Close)

	s, err := NewSession(Config{
		BaseURL:  srv.URL,
		Username: "admin",
		Password: "admin123",
		TaskID:   "test",
		Interval: 10 * time.Millisecond,
	}, fs)
	require.NoError(t, err)
	return s
}

func TestSessionForward(t *testing.T) {
	r := &remote{}
	fs := aerostat.NewFlightState()
	fs.Append(decodedFrame(t, "010203"))
	s := createSession(t, r, fs)
	assert.Equal(t, Idle, s.State())

	s.Tick()
	s.Wait()
	assert.Equal(t, Active, s.State())
	cred, ok := s.Credential()
	assert.True(t, ok)
	assert.Equal(t, "token-1", cred.Token)

	tokens, forwards, _ := r.counts()
	assert.Equal(t, 1, tokens)
	require.Equal(t, 1, forwards)

	sent, auths := r.sent()
	body := sent[0]
	assert.Equal(t, "token-1", auths[0])
	assert.Equal(t, "test", body["taskId"])
	assert.Equal(t, "1", body["status"])
	assert.Equal(t, "39.9", body["latitude"])
	assert.Equal(t, "116.4", body["longitude"])
	assert.Equal(t, "1.2", body["groundSpeed"])
	assert.Equal(t, "500", body["fusionAltitude"])
	assert.Equal(t, "-20.5", body["pt100Temperature"])
	assert.Equal(t, "15", body["pcbTemperature"])
	assert.Equal(t, "7", body["ventingTime"])
	assert.Equal(t, "3", body["ballastDropping"])
	assert.Equal(t, "010203", body["time"])
	assert.Len(t, body, 18)

	// nothing new to send
	s.Tick()
	s.Wait()
	_, forwards, _ = r.counts()
	assert.Equal(t, 1, forwards)

	fs.Append(decodedFrame(t, "010204"))
	s.Tick()
	s.Wait()
	tokens, forwards, _ = r.counts()
	assert.Equal(t, 1, tokens, "token is reused while active")
	assert.Equal(t, 2, forwards)
	assert.Equal(t, uint64(2), s.Status().Forwarded)
}

func TestSessionUnauthorizedReacquires(t *testing.T) {
	r := &remote{reject: map[string]bool{"token-1": true}}
	fs := aerostat.NewFlightState()
	fs.Append(decodedFrame(t, "010203"))
	s := createSession(t, r, fs)

	s.Tick()
	s.Wait()
	assert.Equal(t, Acquiring, s.State())
	_, ok := s.Credential()
	assert.False(t, ok, "rejected token is discarded")

	s.Tick()
	s.Wait()
	assert.Equal(t, Active, s.State())
	cred, ok := s.Credential()
	assert.True(t, ok)
	assert.Equal(t, "token-2", cred.Token)

	tokens, forwards, calls := r.counts()
	assert.Equal(t, 2, tokens)
	assert.Equal(t, 1, forwards)
	assert.Equal(t, 2, calls)
	_, auths := r.sent()
	assert.Equal(t, []string{"token-1", "token-2"}, auths)
}

func TestSessionFailedBacksOff(t *testing.T) {
	current := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	orig := now
	now = func() time.Time { return current }
	defer func() { now = orig }()

	r := &remote{tokenCode: 500}
	s := createSession(t, r, aerostat.NewFlightState())

	s.Tick()
	assert.Equal(t, Failed, s.State())
	s.Tick()
	tokens, _, _ := r.counts()
	assert.Equal(t, 1, tokens, "no retry before the backoff delay")

	r.mu.Lock()
	r.tokenCode = 0
	r.mu.Unlock()
	current = current.Add(time.Hour)
	s.Tick()
	tokens, _, _ = r.counts()
	assert.Equal(t, 2, tokens)
	assert.Equal(t, Active, s.State())
	assert.Equal(t, uint64(1), s.Status().Failures)
}

func TestSessionUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	s, err := NewSession(Config{BaseURL: srv.URL, Timeout: 100 * time.Millisecond}, aerostat.NewFlightState())
	require.NoError(t, err)
	s.Tick()
	assert.Equal(t, Failed, s.State())
}

func TestSessionSkipsWhileInFlight(t *testing.T) {
	r := &remote{block: make(chan struct{})}
	fs := aerostat.NewFlightState()
	fs.Append(decodedFrame(t, "010203"))
	s := createSession(t, r, fs)

	s.Tick()
	fs.Append(decodedFrame(t, "010204"))
	s.Tick()
	s.Tick()
	close(r.block)
	s.Wait()

	_, forwards, _ := r.counts()
	assert.Equal(t, 1, forwards)

	// the newer frame goes out on the next tick
	s.Tick()
	s.Wait()
	_, forwards, _ = r.counts()
	assert.Equal(t, 2, forwards)
	sent, _ := r.sent()
	assert.Equal(t, "010204", sent[1]["time"])
}

func TestSessionTokenRefresh(t *testing.T) {
	current := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	orig := now
	now = func() time.Time { return current }
	defer func() { now = orig }()

	r := &remote{}
	s := createSession(t, r, aerostat.NewFlightState())
	s.Tick()
	assert.Equal(t, Active, s.State())

	current = current.Add(DefaultTokenRefresh)
	s.Tick()
	cred, ok := s.Credential()
	assert.True(t, ok)
	assert.Equal(t, "token-2", cred.Token)
	assert.Equal(t, current, cred.AcquiredAt)
}

func TestNewSessionFromReader(t *testing.T) {
	config := `
base_url = "http://172.16.8.85:8080"
username = "admin"
password = "admin123"
task_id = "flight-7"
interval = "2s"
`
	s, err := NewSessionFromReader(bytes.NewBufferString(config), aerostat.NewFlightState())
	require.NoError(t, err)
	assert.Equal(t, "flight-7", s.Config.TaskID)
	assert.Equal(t, 2*time.Second, s.Config.Interval)
	assert.Equal(t, DefaultTimeout, s.Config.Timeout)
	assert.Equal(t, DefaultStatus, s.Config.Status)

	_, err = NewSessionFromReader(bytes.NewBufferString(`base_url = "not a url"`), nil)
	assert.Error(t, err)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "Active", Active.String())
	assert.Equal(t, "Unknown", State(42).String())
	data, err := json.Marshal(Status{State: Failed})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"state":"Failed"`)
}
