// Package transport sends encoded fixes to the collector.
//
// Every backend encodes with common/payload so the coordinate formatting is
// shared; only the wire shape and the delivery mechanism differ.
package transport

import (
	"context"

	"github.com/samiam2013/gpsrelay/common/gps"
	"github.com/samiam2013/gpsrelay/common/indicator"
	"github.com/samiam2013/gpsrelay/common/payload"
)

// Backend is one way of getting a fix to the collector.
type Backend interface {
	Name() string
	// RequiresNetwork reports whether Send needs an associated network link.
	RequiresNetwork() bool
	Encode(fix gps.Fix, extras payload.Extras) ([]byte, error)
	Send(ctx context.Context, p []byte) error
}

type pulsed struct {
	Backend
	ind indicator.Indicator
}

// WithIndicator lights ind for the duration of every Send, whatever the result.
func WithIndicator(b Backend, ind indicator.Indicator) Backend {
	if ind == nil {
		return b
	}
	return &pulsed{Backend: b, ind: ind}
}

func (p *pulsed) Send(ctx context.Context, b []byte) error {
	p.ind.On()
	defer p.ind.Off()
	return p.Backend.Send(ctx, b)
}
