package network

import (
	"errors"
	"fmt"
	"zephyr/pkg/protocol"

	"golang.org/x/sys/unix"
)

// Non-blocking receive found nothing queued
var ErrNonePending = errors.New("no datagram pending")

// Socket failure with the operation that hit it. Matches protocol.ErrTransport.
type TransportError struct {
	Op   string
	Code int // errno when the kernel supplied one
	Err  error
}

func (e *TransportError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s: %s failed (errno %d): %v", protocol.ErrTransport, e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s failed: %v", protocol.ErrTransport, e.Op, e.Err)
}

func (e *TransportError) Unwrap() []error {
	return []error{protocol.ErrTransport, e.Err}
}

func newTransportError(op string, err error) error {
	transportErr := &TransportError{Op: op, Err: err}
	var errno unix.Errno
	if errors.As(err, &errno) {
		transportErr.Code = int(errno)
	}
	return transportErr
}
