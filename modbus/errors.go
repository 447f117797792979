package modbus

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/goburrow/modbus"
)

// ErrClosed is wrapped in the ConnectionError of a connect attempt that was
// overtaken by Close.
var ErrClosed = errors.New("connection closed while connecting")

// TimeoutError is returned when a request exceeds the configured timeout.
// The connection is dropped and the next request reconnects.
type TimeoutError struct {
	Op      string
	Timeout time.Duration
}

// Error implements the Golang error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %v", e.Op, e.Timeout)
}

// ConnectionError is returned when the connection to the device was refused,
// reset or closed.
type ConnectionError struct {
	Op  string
	Err error
}

// Error implements the Golang error interface.
func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s: connection failed: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// isException reports whether err is a Modbus exception response.
func isException(err error) bool {
	var merr *modbus.ModbusError
	return errors.As(err, &merr)
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}

func isConnectionError(err error) bool {
	switch {
	case errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNABORTED),
		errors.Is(err, syscall.EPIPE):
		return true
	}
	var operr *net.OpError
	return errors.As(err, &operr)
}
