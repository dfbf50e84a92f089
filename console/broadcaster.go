package console

import (
	"encoding/json"
	"io"
	"time"

	"github.com/sasha-s/go-deadlock"
	log "github.com/sirupsen/logrus"
)

const (
	broadcastQueueSize = 1024
	socketWriteTimeout = time.Second
)

// socket is the part of a *websocket.Conn the broadcaster writes to.
type socket interface {
	io.WriteCloser
	SetWriteDeadline(t time.Time) error
}

// broadcaster fans messages out to every connected websocket. Sockets that
// fail a write are dropped and closed.
type broadcaster struct {
	socketsMu deadlock.Mutex
	sockets   []socket

	messages chan []byte
	done     chan struct{}
}

func newBroadcaster() *broadcaster {
	ret := &broadcaster{
		messages: make(chan []byte, broadcastQueueSize),
		done:     make(chan struct{}),
	}
	go ret.writer()
	return ret
}

// Send queues msg. When the queue is full the message is dropped so the
// pipeline never waits on a slow browser.
func (b *broadcaster) Send(msg []byte) {
	select {
	case b.messages <- msg:
	default:
		log.Debug("console broadcast queue full, dropping message")
	}
}

func (b *broadcaster) SendJSON(i interface{}) {
	j, err := json.Marshal(i)
	if err != nil {
		log.WithField("err", err).Error("unable to marshal console message")
		return
	}
	b.Send(j)
}

func (b *broadcaster) AddSocket(sock socket) {
	b.socketsMu.Lock()
	b.sockets = append(b.sockets, sock)
	b.socketsMu.Unlock()
}

func (b *broadcaster) RemoveSocket(sock socket) {
	b.socketsMu.Lock()
	defer b.socketsMu.Unlock()
	for i, s := range b.sockets {
		if s == sock {
			b.sockets = append(b.sockets[:i], b.sockets[i+1:]...)
			return
		}
	}
}

func (b *broadcaster) Count() int {
	b.socketsMu.Lock()
	defer b.socketsMu.Unlock()
	return len(b.sockets)
}

func (b *broadcaster) Close() {
	close(b.done)
}

func (b *broadcaster) writer() {
	for {
		var msg []byte
		select {
		case msg = <-b.messages:
		case <-b.done:
			return
		}

		var dropped []socket
		b.socketsMu.Lock()
		writable := b.sockets[:0]
		for _, sock := range b.sockets {
			err := sock.SetWriteDeadline(time.Now().Add(socketWriteTimeout))
			_, err2 := sock.Write(msg)
			if err == nil && err2 == nil {
				writable = append(writable, sock)
			} else {
				dropped = append(dropped, sock)
			}
		}
		for i := len(writable); i < len(b.sockets); i++ {
			b.sockets[i] = nil
		}
		b.sockets = writable
		b.socketsMu.Unlock()

		// closing ends the read loop in handleWS
		for _, sock := range dropped {
			if err := sock.Close(); err != nil {
				log.WithField("err", err).Debug("unable to close console socket")
			}
		}
	}
}
