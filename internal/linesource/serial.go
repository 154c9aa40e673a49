package linesource

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/tarm/serial"
)

// Port is an open serial device.
type Port struct {
	name    string
	port    *serial.Port
	timeout time.Duration
	closed  atomic.Bool
}

// OpenSerial opens name at baud. A positive readTimeout bounds each
// underlying read; timeouts are retried internally so callers see a plain
// blocking stream that ends only on Close or a device error.
func OpenSerial(name string, baud int, readTimeout time.Duration) (*Port, error) {
	p, err := serial.OpenPort(&serial.Config{
		Name:        name,
		Baud:        baud,
		ReadTimeout: readTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", name, err)
	}
	return &Port{name: name, port: p, timeout: readTimeout}, nil
}

// Name returns the device path.
func (p *Port) Name() string {
	return p.name
}

// Read implements io.Reader.
func (p *Port) Read(b []byte) (int, error) {
	for {
		n, err := p.port.Read(b)
		// With a read timeout an idle line reads as (0, EOF).
		if n == 0 && err == io.EOF && p.timeout > 0 && !p.closed.Load() {
			continue
		}
		return n, err
	}
}

// Close releases the device. Safe to call more than once.
func (p *Port) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	return p.port.Close()
}
