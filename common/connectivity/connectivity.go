package connectivity

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/samiam2013/gpsrelay/common/indicator"
)

// State of the network association.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// ErrTimeout is returned by Connect when association did not complete in time.
var ErrTimeout = errors.New("connectivity: association timed out")

// Associator joins a network and reports whether the link is up.
type Associator interface {
	Associate(ctx context.Context) error
	Associated(ctx context.Context) (bool, error)
}

// Manager owns the association state. Connected is terminal: link loss after
// association is not detected.
type Manager struct {
	assoc        Associator
	ind          indicator.Indicator
	timeout      time.Duration
	pollInterval time.Duration
	state        State
	log          *logrus.Entry
}

func NewManager(assoc Associator, ind indicator.Indicator, timeout, pollInterval time.Duration) *Manager {
	if ind == nil {
		ind = indicator.Nop{}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Manager{
		assoc:        assoc,
		ind:          ind,
		timeout:      timeout,
		pollInterval: pollInterval,
		log:          logrus.WithField("component", "connectivity"),
	}
}

func (m *Manager) State() State { return m.state }

// Ready reports whether network transports may be used.
func (m *Manager) Ready() bool { return m.state == Connected }

// Connect associates, blinking the indicator while it waits. It returns
// ErrTimeout once if the link is not up within the timeout.
func (m *Manager) Connect(ctx context.Context) error {
	if m.state == Connected {
		return nil
	}
	m.state = Connecting

	if ok, _ := m.assoc.Associated(ctx); ok {
		m.log.Info("Network already associated")
		m.state = Connected
		return nil
	}

	m.log.Info("Associating with network")
	if err := m.assoc.Associate(ctx); err != nil {
		m.log.WithError(err).Warn("Association request failed, still polling")
	}

	deadline := time.NewTimer(m.timeout)
	defer deadline.Stop()
	tick := time.NewTicker(m.pollInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			m.ind.Off()
			m.state = Failed
			return ctx.Err()
		case <-deadline.C:
			m.ind.Off()
			m.state = Failed
			m.log.WithField("timeout", m.timeout).Error("Network association timed out")
			return ErrTimeout
		case <-tick.C:
			m.ind.Toggle()
			ok, err := m.assoc.Associated(ctx)
			if err != nil {
				m.log.WithError(err).Debug("Association check failed")
				continue
			}
			if ok {
				m.ind.Off()
				m.state = Connected
				m.log.Info("Network associated")
				return nil
			}
		}
	}
}

// Assumed is an Associator for hosts whose uplink is managed elsewhere, such
// as a wired interface.
type Assumed struct{}

func (Assumed) Associate(context.Context) error          { return nil }
func (Assumed) Associated(context.Context) (bool, error) { return true, nil }
