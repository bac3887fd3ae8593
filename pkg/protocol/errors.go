package protocol

import "errors"

// Failure taxonomy shared by every component. Callers match with errors.Is.
var (
	ErrTransport       = errors.New("transport error")
	ErrMalformedNotice = errors.New("malformed notice")
	ErrAuthUnavailable = errors.New("authentication unavailable")
	ErrServerNak       = errors.New("server rejected request")
	ErrTimeout         = errors.New("timed out waiting for acknowledgement")

	// Trust infrastructure could not supply a key (wrapped by ErrAuthUnavailable)
	ErrCredentialUnavailable = errors.New("credential unavailable")
	// Acknowledgement ticket was already released to a caller
	ErrNotPending = errors.New("no pending transmission for ticket")
)
