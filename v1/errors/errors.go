// Package errors defines the error taxonomy shared by the transport and
// adapter layers.
package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout reports a socket read or write that hit its deadline.
	ErrTimeout = errors.New("timed out")
	// ErrConnectionClosed is returned when the peer closed the socket.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrUnexpectedReply marks a reply of the wrong type for the command.
	ErrUnexpectedReply = errors.New("unexpected reply")
	// ErrServer marks an error reply sent by the server.
	ErrServer = errors.New("server error")
)

// ConnectionError reports that a connection could not be opened.
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("redis: connect %s: %v", e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// OperationError reports a command that was sent but did not produce a
// usable reply. Cmd is the command verb, Msg the server message or a short
// description of what went wrong.
type OperationError struct {
	Cmd string
	Msg string
	Err error
}

func (e *OperationError) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil && !errors.Is(e.Err, ErrServer):
		return fmt.Sprintf("redis: %s: %s: %v", e.Cmd, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("redis: %s: %s", e.Cmd, e.Msg)
	default:
		return fmt.Sprintf("redis: %s: %v", e.Cmd, e.Err)
	}
}

func (e *OperationError) Unwrap() error { return e.Err }

// Timeout reports whether the operation failed on a socket deadline.
func (e *OperationError) Timeout() bool { return errors.Is(e.Err, ErrTimeout) }

// Op builds an OperationError for cmd.
func Op(cmd, msg string, err error) *OperationError {
	return &OperationError{Cmd: cmd, Msg: msg, Err: err}
}

// Unexpected builds an OperationError for a reply of the wrong type.
func Unexpected(cmd, msg string) *OperationError {
	return &OperationError{Cmd: cmd, Msg: msg, Err: ErrUnexpectedReply}
}

// IsTimeout reports whether err is an operation that timed out.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsConnection reports whether err is a ConnectionError.
func IsConnection(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}

// IsOperation reports whether err is an OperationError.
func IsOperation(err error) bool {
	var oe *OperationError
	return errors.As(err, &oe)
}
