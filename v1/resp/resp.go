// Package resp encodes commands and decodes replies in the Redis
// serialization protocol. It performs no I/O of its own beyond the
// bufio wrappers in reader.go and writer.go.
package resp

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	// MaxBulkLen matches the server's default proto-max-bulk-len (512 MiB).
	MaxBulkLen = 512 * 1024 * 1024

	// MaxLineLen bounds header and simple-string lines.
	MaxLineLen = 64 * 1024
)

var (
	// ErrProtocol reports a malformed frame.
	ErrProtocol = errors.New("resp: protocol error")
	// ErrUnsupported reports a reply type this client does not decode.
	ErrUnsupported = errors.New("resp: unsupported reply type")
)

// Kind tags a Reply.
type Kind byte

const (
	SimpleString Kind = '+'
	Error        Kind = '-'
	Integer      Kind = ':'
	BulkString   Kind = '$'
	Array        Kind = '*'
	// Null is a bulk string with length -1. It has no wire prefix of its own.
	Null Kind = 0
)

func (k Kind) String() string {
	switch k {
	case SimpleString:
		return "simple-string"
	case Error:
		return "error"
	case Integer:
		return "integer"
	case BulkString:
		return "bulk-string"
	case Array:
		return "array"
	case Null:
		return "null"
	}
	return fmt.Sprintf("kind(%q)", byte(k))
}

// Reply is one decoded server reply. Str holds the payload of simple
// strings, errors and bulk strings; Int holds integer replies.
type Reply struct {
	Kind Kind
	Str  string
	Int  int64
}

// IsNull reports whether r is the null bulk string.
func (r Reply) IsNull() bool { return r.Kind == Null }

// IsOK reports whether r is the simple string OK.
func (r Reply) IsOK() bool { return r.Kind == SimpleString && r.Str == "OK" }

// Text returns the string payload of a simple or bulk string reply.
func (r Reply) Text() (string, bool) {
	if r.Kind == SimpleString || r.Kind == BulkString {
		return r.Str, true
	}
	return "", false
}

func (r Reply) String() string {
	switch r.Kind {
	case Integer:
		return ":" + strconv.FormatInt(r.Int, 10)
	case Null:
		return "(nil)"
	}
	return string(r.Kind) + r.Str
}

// Encode frames args as an array of bulk strings.
func Encode(args ...string) []byte {
	n := 16
	for _, a := range args {
		n += len(a) + 16
	}
	return AppendCommand(make([]byte, 0, n), args...)
}

// AppendCommand appends the frame for args to dst. Lengths are byte
// lengths; no encoding conversion is applied.
func AppendCommand(dst []byte, args ...string) []byte {
	dst = append(dst, '*')
	dst = strconv.AppendInt(dst, int64(len(args)), 10)
	dst = append(dst, '\r', '\n')
	for _, a := range args {
		dst = append(dst, '$')
		dst = strconv.AppendInt(dst, int64(len(a)), 10)
		dst = append(dst, '\r', '\n')
		dst = append(dst, a...)
		dst = append(dst, '\r', '\n')
	}
	return dst
}

// DecodeHeader splits a reply line into its type and payload. A trailing
// CRLF, if present, is stripped.
func DecodeHeader(line string) (Kind, string, error) {
	line = strings.TrimSuffix(line, "\r\n")
	if line == "" {
		return 0, "", fmt.Errorf("%w: empty reply line", ErrProtocol)
	}
	switch k := Kind(line[0]); k {
	case SimpleString, Error, Integer, BulkString:
		return k, line[1:], nil
	case Array:
		return k, line[1:], fmt.Errorf("%w: %s", ErrUnsupported, k)
	}
	return 0, "", fmt.Errorf("%w: unexpected reply %q", ErrProtocol, line)
}

// ParseInteger parses an integer reply payload.
func ParseInteger(payload string) (int64, error) {
	n, err := strconv.ParseInt(payload, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid integer %q", ErrProtocol, payload)
	}
	return n, nil
}

// ParseBulkLength parses a bulk string length. -1 denotes null; anything
// below that, or above MaxBulkLen, is rejected.
func ParseBulkLength(payload string) (int, error) {
	n, err := strconv.Atoi(payload)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid bulk length %q", ErrProtocol, payload)
	}
	if n < -1 {
		return 0, fmt.Errorf("%w: invalid bulk length %d", ErrProtocol, n)
	}
	if n > MaxBulkLen {
		return 0, fmt.Errorf("%w: bulk length %d exceeds limit %d", ErrProtocol, n, MaxBulkLen)
	}
	return n, nil
}
