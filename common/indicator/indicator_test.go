package indicator

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

func TestLEDFollowsCalls(t *testing.T) {
	pin := &gpiotest.Pin{N: "LED", Num: 7, L: gpio.Low}
	l := &LED{pin: pin, log: logrus.WithField("pin", "LED")}

	l.On()
	assert.Equal(t, gpio.High, pin.L)
	l.Toggle()
	assert.Equal(t, gpio.Low, pin.L)
	l.Toggle()
	assert.Equal(t, gpio.High, pin.L)
	l.Off()
	assert.Equal(t, gpio.Low, pin.L)
}

func TestNopSatisfiesIndicator(t *testing.T) {
	var ind Indicator = Nop{}
	ind.On()
	ind.Toggle()
	ind.Off()
}
