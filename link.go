package aerostat

import (
	"context"

	log "github.com/sirupsen/logrus"
)

// TransportOpener opens a fresh transport, e.g. by reopening a serial port.
type TransportOpener func() (Transport, error)

type transportLink struct {
	name    string
	open    TransportOpener
	t       Transport
	session *Session
}

func (l *transportLink) Name() string {
	return l.name
}

func (l *transportLink) Open() error {
	t, err := l.open()
	if err != nil {
		return err
	}
	l.t = t
	log.WithField("link", l.name).Info("transport opened")
	return nil
}

func (l *transportLink) Close() error {
	if l.t == nil {
		return nil
	}
	err := l.t.Close()
	l.t = nil
	return err
}

func (l *transportLink) Start(ctx context.Context) error {
	return l.session.Ingest(ctx, l.t)
}

// IngestWithReconnect keeps ingesting from transports produced by open,
// reopening after every read failure or end of stream until ctx is done.
// The flight state carries across reconnects.
func (s *Session) IngestWithReconnect(ctx context.Context, name string, open TransportOpener, b *Backoff) error {
	l := &transportLink{
		name:    name,
		open:    open,
		session: s,
	}
	defer l.Close()
	return Retry(ctx, l, b)
}
