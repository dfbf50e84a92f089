package aerostat

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	defaultBackoffMultiplier = 2
	defaultBackoffJitter     = 0.2
)

type Retryable interface {
	Open() error
	Close() error
	Start(ctx context.Context) error
	Name() string
}

// Backoff is a capped exponential delay with jitter. The zero value never
// waits. It is not safe for concurrent use.
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	// Jitter is the fraction of each delay that may be randomly removed.
	Jitter float64

	attempt int
	random  func() float64
}

func NewBackoff(initial, max time.Duration) *Backoff {
	return &Backoff{
		Initial:    initial,
		Max:        max,
		Multiplier: defaultBackoffMultiplier,
		Jitter:     defaultBackoffJitter,
	}
}

// Next returns the delay before the next attempt and advances the attempt count.
func (b *Backoff) Next() time.Duration {
	if b == nil || b.Initial <= 0 {
		return 0
	}
	mult := b.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(b.Initial) * math.Pow(mult, float64(b.attempt))
	if b.Max > 0 && d > float64(b.Max) {
		d = float64(b.Max)
	}
	b.attempt++

	if b.Jitter > 0 {
		random := b.random
		if random == nil {
			random = rand.Float64
		}
		d -= d * b.Jitter * random()
	}
	return time.Duration(d)
}

// Attempt returns how many delays have been handed out since the last Reset.
func (b *Backoff) Attempt() int {
	if b == nil {
		return 0
	}
	return b.attempt
}

func (b *Backoff) Reset() {
	if b != nil {
		b.attempt = 0
	}
}

// to allow testing
var retrySleep = func(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// Retry keeps r running until ctx is done. A failed Open or Start closes r
// and waits for the next backoff delay before opening it again.
func Retry(ctx context.Context, r Retryable, b *Backoff) error {
	errStarting := errors.New("starting")
	err := errStarting
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err != nil {
			if err != errStarting {
				delay := b.Next()
				log.WithField("err", err).
					WithField("delay", delay).
					Errorf("%s: reconnecting due to error", r.Name())
				if err = r.Close(); err != nil {
					log.WithField("err", err).Warnf("%s: unable to close", r.Name())
				}
				retrySleep(ctx, delay)
				if ctx.Err() != nil {
					continue
				}
			}
			err = r.Open()
			if err != nil {
				continue
			}
			b.Reset()
		}
		err = r.Start(ctx)
	}
}
