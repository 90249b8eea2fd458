// Package relay runs the control loop that turns GPS sentences into sends.
//
// The loop is single threaded: one line is read, at most one fix is sent, and
// the status light is toggled once per iteration. Fixes that arrive inside the
// minimum send interval are dropped, not queued, so the collector always
// receives the latest position available when the interval opens.
package relay

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/samiam2013/gpsrelay/common/gps"
	"github.com/samiam2013/gpsrelay/common/indicator"
	"github.com/samiam2013/gpsrelay/common/payload"
	"github.com/samiam2013/gpsrelay/common/transport"
)

// LineSource yields one sentence per call, waiting a bounded time. ok is
// false when nothing arrived in that time.
type LineSource interface {
	ReadLine() (line []byte, ok bool, err error)
}

// Readiness gates transports that need the network.
type Readiness interface {
	Ready() bool
}

// Outcome is what a single Step did.
type Outcome int

const (
	Idle Outcome = iota
	ReadError
	Discarded
	Rejected
	Throttled
	NotReady
	Sent
	SendFailed
)

func (o Outcome) String() string {
	switch o {
	case Idle:
		return "idle"
	case ReadError:
		return "read-error"
	case Discarded:
		return "discarded"
	case Rejected:
		return "rejected"
	case Throttled:
		return "throttled"
	case NotReady:
		return "not-ready"
	case Sent:
		return "sent"
	case SendFailed:
		return "send-failed"
	default:
		return "unknown"
	}
}

// Stats counts outcomes since the scheduler was created.
type Stats struct {
	Lines     int
	Discarded int
	Rejected  int
	Throttled int
	NotReady  int
	Sent      int
	Failed    int
}

type Options struct {
	Source       LineSource
	Backend      transport.Backend
	Connectivity Readiness // nil means always ready
	Indicator    indicator.Indicator
	Extras       payload.Extras

	MinInterval time.Duration
	IdleWait    time.Duration // after an iteration with no line
	Pause       time.Duration // after every iteration

	Now func() time.Time
}

type Scheduler struct {
	src      LineSource
	backend  transport.Backend
	conn     Readiness
	ind      indicator.Indicator
	extras   payload.Extras
	interval time.Duration
	idleWait time.Duration
	pause    time.Duration
	now      func() time.Time

	lastSend time.Time
	stats    Stats
	log      *logrus.Entry
}

func New(opts Options) *Scheduler {
	s := &Scheduler{
		src:      opts.Source,
		backend:  opts.Backend,
		conn:     opts.Connectivity,
		ind:      opts.Indicator,
		extras:   opts.Extras,
		interval: opts.MinInterval,
		idleWait: opts.IdleWait,
		pause:    opts.Pause,
		now:      opts.Now,
		log:      logrus.WithField("component", "relay"),
	}
	if s.ind == nil {
		s.ind = indicator.Nop{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.idleWait <= 0 {
		s.idleWait = 100 * time.Millisecond
	}
	return s
}

func (s *Scheduler) Stats() Stats { return s.stats }

// Step runs one iteration of the loop.
func (s *Scheduler) Step(ctx context.Context) Outcome {
	defer s.ind.Toggle()

	line, ok, err := s.src.ReadLine()
	if err != nil {
		s.log.WithError(err).Warn("Error reading gps port")
		return ReadError
	}
	if !ok {
		return Idle
	}
	s.stats.Lines++

	if !isASCII(line) {
		s.stats.Discarded++
		return Discarded
	}

	fix, err := gps.Extract(string(line))
	if err != nil {
		s.stats.Rejected++
		if !errors.Is(err, gps.ErrSentenceType) {
			s.log.WithError(err).Debug("Sentence rejected")
		}
		return Rejected
	}
	s.log.WithFields(logrus.Fields{"lat": fix.Latitude, "lon": fix.Longitude}).Debug("GPS fix")

	now := s.now()
	if !s.lastSend.IsZero() && now.Sub(s.lastSend) < s.interval {
		s.stats.Throttled++
		return Throttled
	}

	if s.backend.RequiresNetwork() && s.conn != nil && !s.conn.Ready() {
		s.stats.NotReady++
		s.log.WithField("transport", s.backend.Name()).Debug("Network not ready, fix dropped")
		return NotReady
	}

	// a failed send still waits a full interval before the next attempt
	s.lastSend = now
	p, err := s.backend.Encode(fix, s.extras)
	if err == nil {
		err = s.backend.Send(ctx, p)
	}
	if err != nil {
		s.stats.Failed++
		s.log.WithError(err).WithField("transport", s.backend.Name()).Error("Error sending fix")
		return SendFailed
	}
	s.stats.Sent++
	s.log.WithFields(logrus.Fields{
		"transport": s.backend.Name(),
		"payload":   string(p),
	}).Info("Sent fix")
	return Sent
}

// Run steps until ctx is cancelled. Parse and send errors never stop it.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.WithFields(logrus.Fields{
		"transport":    s.backend.Name(),
		"min_interval": s.interval,
	}).Info("Starting GPS loop")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		var wait time.Duration
		switch s.Step(ctx) {
		case Idle, ReadError:
			wait = s.idleWait
		}
		wait += s.pause
		if wait <= 0 {
			continue
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

func isASCII(b []byte) bool {
	for _, c := range b {
		if c > 0x7f {
			return false
		}
	}
	return true
}
