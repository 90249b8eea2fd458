package indicator

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// Indicator is a single status light. Failures to drive it are logged, never
// returned: the light is only a hint for someone standing next to the device.
type Indicator interface {
	On()
	Off()
	Toggle()
}

// LED drives a GPIO pin.
type LED struct {
	pin   gpio.PinOut
	level gpio.Level
	log   *logrus.Entry
}

// Open initializes periph and claims the named pin (e.g. "GPIO17" or "P1_7"),
// leaving it low.
func Open(name string) (*LED, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host.Init() for periphio: %w", err)
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("no gpio pin named %q", name)
	}
	l := &LED{pin: p, log: logrus.WithField("pin", name)}
	if err := p.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("could not set pin %s low: %w", name, err)
	}
	return l, nil
}

func (l *LED) On()     { l.set(gpio.High) }
func (l *LED) Off()    { l.set(gpio.Low) }
func (l *LED) Toggle() { l.set(!l.level) }

func (l *LED) set(level gpio.Level) {
	if err := l.pin.Out(level); err != nil {
		l.log.WithError(err).Warn("Could not write to pin")
		return
	}
	l.level = level
}

// Nop is used when no pin is configured.
type Nop struct{}

func (Nop) On()     {}
func (Nop) Off()    {}
func (Nop) Toggle() {}
