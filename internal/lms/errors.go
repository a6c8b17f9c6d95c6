package lms

import (
	"errors"
	"fmt"
)

var (
	// ErrNotOpen is returned when a request is made on a closed client.
	ErrNotOpen = errors.New("lms: connection not open")

	// ErrUnexpectedAnswer is returned when the response line does not echo
	// the player id and command of the request.
	ErrUnexpectedAnswer = errors.New("lms: unexpected answer")

	// ErrUnknownTag is returned by Decoder.Next for names missing from the
	// tag table. The returned Field still carries the name and value.
	ErrUnknownTag = errors.New("lms: unknown tag")

	// ErrEndOfPacket is returned by Decoder.Next once the line is consumed.
	ErrEndOfPacket = errors.New("lms: end of packet")

	// ErrNotifyInactive is returned by CheckNotify before StartNotify.
	ErrNotifyInactive = errors.New("lms: notification channel not started")

	// ErrCommandTooLong is returned for command words above maxCommandLen.
	ErrCommandTooLong = errors.New("lms: command too long")

	// ErrNoSubCommand is returned when a radio app level is queried without
	// the sub-command of its parent item.
	ErrNoSubCommand = errors.New("lms: missing sub-command")
)

// TransportError wraps failures of the underlying channel so callers can tell
// them apart from protocol failures.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("lms: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
