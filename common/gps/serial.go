package gps

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/tarm/serial"
)

// maxPending bounds how much unterminated noise is kept between reads.
const maxPending = 4096

// LineReader assembles newline terminated sentences from a port whose reads
// return after a timeout. ReadLine never waits longer than one port read.
type LineReader struct {
	r       io.Reader
	buf     []byte
	pending []byte
}

func NewLineReader(r io.Reader) *LineReader {
	return &LineReader{r: r, buf: make([]byte, 1024)}
}

// ReadLine returns the next complete line without its line ending. ok is false
// when no complete line arrived within the port's read timeout.
func (lr *LineReader) ReadLine() (line []byte, ok bool, err error) {
	if line, ok := lr.next(); ok {
		return line, true, nil
	}

	n, err := lr.r.Read(lr.buf)
	if n > 0 {
		lr.pending = append(lr.pending, lr.buf[:n]...)
	}
	// tarm/serial reports a read timeout as EOF
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, false, err
	}

	if line, ok := lr.next(); ok {
		return line, true, nil
	}
	if len(lr.pending) > maxPending {
		// keep a sentence that may have started in the last read
		if i := bytes.LastIndexByte(lr.pending, '$'); i >= 0 && len(lr.pending)-i <= maxPending {
			lr.pending = append(lr.pending[:0], lr.pending[i:]...)
		} else {
			lr.pending = lr.pending[:0]
		}
	}
	return nil, false, nil
}

func (lr *LineReader) next() ([]byte, bool) {
	i := bytes.IndexByte(lr.pending, '\n')
	if i == -1 {
		return nil, false
	}
	line := make([]byte, i)
	copy(line, lr.pending[:i])
	lr.pending = lr.pending[i+1:]
	return bytes.TrimRight(line, "\r"), true
}

// Port is an open serial device feeding a LineReader.
type Port struct {
	*LineReader
	port *serial.Port
}

// OpenSerial opens the GPS receiver. readTimeout is the bounded wait of a
// single ReadLine call.
func OpenSerial(serialPortPath string, baudrate int, readTimeout time.Duration) (*Port, error) {
	config := &serial.Config{
		Name:        serialPortPath,
		Baud:        baudrate,
		ReadTimeout: readTimeout,
		Size:        8,
	}
	port, err := serial.OpenPort(config)
	if err != nil {
		return nil, fmt.Errorf("open gps port %s: %w", serialPortPath, err)
	}
	return &Port{LineReader: NewLineReader(port), port: port}, nil
}

func (p *Port) Close() error {
	return p.port.Close()
}
