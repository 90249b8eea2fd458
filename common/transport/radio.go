package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/tarm/serial"

	"github.com/samiam2013/gpsrelay/common/gps"
	"github.com/samiam2013/gpsrelay/common/payload"
)

// Radio writes compact records to a radio modem attached as a serial device.
// There is no acknowledgement from the far end.
type Radio struct {
	w io.Writer
}

func NewRadio(w io.Writer) *Radio {
	return &Radio{w: w}
}

// OpenRadio opens the modem's UART.
func OpenRadio(device string, baud int) (*Radio, io.Closer, error) {
	port, err := serial.OpenPort(&serial.Config{Name: device, Baud: baud, Size: 8})
	if err != nil {
		return nil, nil, fmt.Errorf("open radio port %s: %w", device, err)
	}
	return NewRadio(port), port, nil
}

func (r *Radio) Name() string          { return "radio" }
func (r *Radio) RequiresNetwork() bool { return false }

func (r *Radio) Encode(fix gps.Fix, extras payload.Extras) ([]byte, error) {
	return []byte(payload.Compact(fix, extras)), nil
}

func (r *Radio) Send(_ context.Context, p []byte) error {
	if !bytes.HasSuffix(p, []byte("\n")) {
		p = append(p[:len(p):len(p)], '\n')
	}
	n, err := r.w.Write(p)
	if err != nil {
		return fmt.Errorf("radio write: %w", err)
	}
	if n != len(p) {
		return fmt.Errorf("radio write: %w", io.ErrShortWrite)
	}
	return nil
}
