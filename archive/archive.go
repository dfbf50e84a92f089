// Package archive records every decoded frame of a flight to SQLite so a
// session can be inspected or exported after the ground station has stopped.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/jd3nn1s/aerostat"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Session is one recorded run of the ground station.
type Session struct {
	ID        int64     `json:"id"`
	StartTime time.Time `json:"start_time"`
	Revision  string    `json:"revision"`
	Sentinel  string    `json:"sentinel"`
	Frames    int       `json:"frames"`
}

// Recorder appends frames to a session. It implements aerostat.Forwarder.
type Recorder struct {
	db        *sql.DB
	sessionID int64

	mu     sync.Mutex
	insert *sql.Stmt

	closeOnce sync.Once
	closeErr  error
}

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

// dsn escapes path so a '?' or '#' in a file name is not read as the
// start of the query or fragment.
func dsn(path string) string {
	escaped := (&url.URL{Path: path}).EscapedPath()
	return fmt.Sprintf("file:%s?%s", escaped, "_journal_mode=WAL&_synchronous=NORMAL")
}

func open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, errors.Wrap(err, "opening archive")
	}
	// one writer, and readers wait behind it rather than fail on a locked db
	db.SetMaxOpenConns(1)
	if _, err = db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "initializing schema")
	}
	return db, nil
}

// New opens or creates the archive at path and starts a new session for
// frames of the given revision.
func New(ctx context.Context, path string, rev *aerostat.Revision, sentinel string) (*Recorder, error) {
	if sentinel == "" {
		sentinel = aerostat.DefaultSentinel
	}
	db, err := open(path)
	if err != nil {
		return nil, err
	}

	result, err := db.ExecContext(ctx, insertSessionSQL, time.Now().UTC(), rev.Name, sentinel)
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "inserting session")
	}
	sessionID, err := result.LastInsertId()
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "getting session ID")
	}

	insert, err := db.PrepareContext(ctx, insertFrameSQL)
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "preparing statement")
	}

	log.WithField("path", path).
		WithField("session", sessionID).
		Info("archive session started")
	return &Recorder{
		db:        db,
		sessionID: sessionID,
		insert:    insert,
	}, nil
}

func (r *Recorder) SessionID() int64 {
	return r.sessionID
}

func (r *Recorder) Forward(frame *aerostat.TelemetryFrame) error {
	var lat, lon sql.NullFloat64
	if frame.HasFix() {
		lat = sql.NullFloat64{Float64: frame.Latitude, Valid: true}
		lon = sql.NullFloat64{Float64: frame.Longitude, Valid: true}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insert == nil {
		return errors.New("archive is closed")
	}
	_, err := r.insert.Exec(
		r.sessionID,
		time.Now().UTC(),
		frame.SecondsSinceMidnight,
		lat,
		lon,
		frame.Altitude,
		frame.DischargeVolume,
		frame.GasVolume,
		frame.Raw,
	)
	return errors.Wrap(err, "inserting frame")
}

func (r *Recorder) Sessions(ctx context.Context) ([]Session, error) {
	return sessions(ctx, r.db)
}

func (r *Recorder) Frames(ctx context.Context, sessionID int64) ([]aerostat.TelemetryFrame, error) {
	return frames(ctx, r.db, sessionID)
}

// Close releases the database. It is safe to call more than once.
func (r *Recorder) Close() error {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if err := r.insert.Close(); err != nil {
			r.closeErr = err
		}
		r.insert = nil
		if err := r.db.Close(); err != nil && r.closeErr == nil {
			r.closeErr = err
		}
	})
	return r.closeErr
}

// Reader reads back an archive without starting a session.
type Reader struct {
	db *sql.DB
}

func OpenReader(path string) (*Reader, error) {
	db, err := open(path)
	if err != nil {
		return nil, err
	}
	return &Reader{db: db}, nil
}

func (r *Reader) Sessions(ctx context.Context) ([]Session, error) {
	return sessions(ctx, r.db)
}

func (r *Reader) Session(ctx context.Context, id int64) (*Session, error) {
	var sess Session
	err := r.db.QueryRowContext(ctx, selectSessionSQL, id).
		Scan(&sess.ID, &sess.StartTime, &sess.Revision, &sess.Sentinel, &sess.Frames)
	if err == sql.ErrNoRows {
		return nil, errors.Errorf("session %d not found", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "scanning session")
	}
	return &sess, nil
}

func (r *Reader) Frames(ctx context.Context, sessionID int64) ([]aerostat.TelemetryFrame, error) {
	return frames(ctx, r.db, sessionID)
}

// State rebuilds the flight state of a recorded session.
func (r *Reader) State(ctx context.Context, sessionID int64) (*aerostat.FlightState, error) {
	recorded, err := r.Frames(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	fs := aerostat.NewFlightState()
	for _, frame := range recorded {
		fs.Append(frame)
	}
	return fs, nil
}

func (r *Reader) Close() error {
	return r.db.Close()
}

func sessions(ctx context.Context, db *sql.DB) (ret []Session, err error) {
	rows, err := db.QueryContext(ctx, selectSessionsSQL)
	if err != nil {
		return nil, errors.Wrap(err, "querying sessions")
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var sess Session
		if err = rows.Scan(&sess.ID, &sess.StartTime, &sess.Revision, &sess.Sentinel, &sess.Frames); err != nil {
			return nil, errors.Wrap(err, "scanning session")
		}
		ret = append(ret, sess)
	}
	return ret, rows.Err()
}

// frames decodes the raw lines of a session again, so every field the
// revision carries comes back, not only the indexed columns.
func frames(ctx context.Context, db *sql.DB, sessionID int64) (ret []aerostat.TelemetryFrame, err error) {
	var revName, sentinel string
	var start time.Time
	var count int
	err = db.QueryRowContext(ctx, selectSessionSQL, sessionID).Scan(&sessionID, &start, &revName, &sentinel, &count)
	if err == sql.ErrNoRows {
		return nil, errors.Errorf("session %d not found", sessionID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "scanning session")
	}
	rev, err := aerostat.RevisionByName(revName)
	if err != nil {
		return nil, err
	}
	decoder := aerostat.NewDecoder(rev, sentinel)

	rows, err := db.QueryContext(ctx, selectFramesSQL, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "querying frames")
	}
	defer closeWithError(rows, &err)

	ret = make([]aerostat.TelemetryFrame, 0, count)
	for rows.Next() {
		var raw string
		if err = rows.Scan(&raw); err != nil {
			return nil, errors.Wrap(err, "scanning frame")
		}
		frame, decodeErr := decoder.Decode(raw)
		if decodeErr != nil || frame == nil {
			log.WithField("session", sessionID).
				WithField("line", raw).
				Warn("skipping archived frame that no longer decodes")
			continue
		}
		ret = append(ret, *frame)
	}
	return ret, rows.Err()
}
