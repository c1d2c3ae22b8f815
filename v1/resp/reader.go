package resp

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
)

// Reader decodes RESP frames from a buffered stream.
type Reader struct {
	rd *bufio.Reader
}

// NewReader wraps rd.
func NewReader(rd io.Reader) *Reader {
	if br, ok := rd.(*bufio.Reader); ok {
		return &Reader{rd: br}
	}
	return &Reader{rd: bufio.NewReader(rd)}
}

// ReadReply reads exactly one reply frame. I/O errors are returned as-is
// so callers can inspect them for timeouts; framing problems wrap
// ErrProtocol.
func (r *Reader) ReadReply() (Reply, error) {
	line, err := r.readLine()
	if err != nil {
		return Reply{}, err
	}
	kind, payload, err := DecodeHeader(line)
	if err != nil {
		return Reply{}, err
	}
	switch kind {
	case SimpleString, Error:
		return Reply{Kind: kind, Str: payload}, nil
	case Integer:
		n, err := ParseInteger(payload)
		if err != nil {
			return Reply{}, err
		}
		return Reply{Kind: Integer, Int: n}, nil
	}

	n, err := ParseBulkLength(payload)
	if err != nil {
		return Reply{}, err
	}
	if n == -1 {
		return Reply{Kind: Null}, nil
	}
	body, err := r.readBulk(n)
	if err != nil {
		return Reply{}, err
	}
	return Reply{Kind: BulkString, Str: string(body)}, nil
}

// ReadCommand decodes an array of bulk strings, the request framing
// produced by Encode.
func (r *Reader) ReadCommand() ([]string, error) {
	line, err := r.readLine()
	if err != nil {
		return nil, err
	}
	if len(line) < 1 || line[0] != '*' {
		return nil, fmt.Errorf("%w: expected array", ErrProtocol)
	}
	count, err := ParseInteger(line[1:])
	if err != nil {
		return nil, err
	}
	if count <= 0 {
		return nil, nil
	}

	args := make([]string, 0, count)
	for i := int64(0); i < count; i++ {
		line, err := r.readLine()
		if err != nil {
			return nil, err
		}
		if len(line) < 1 || line[0] != '$' {
			return nil, fmt.Errorf("%w: expected bulk string", ErrProtocol)
		}
		n, err := ParseBulkLength(line[1:])
		if err != nil {
			return nil, err
		}
		if n == -1 {
			return nil, fmt.Errorf("%w: null argument", ErrProtocol)
		}
		body, err := r.readBulk(n)
		if err != nil {
			return nil, err
		}
		args = append(args, string(body))
	}
	return args, nil
}

// readBulk reads n body bytes plus the CRLF terminator. A zero-length body
// still carries its terminator.
func (r *Reader) readBulk(n int) ([]byte, error) {
	buf := make([]byte, n+2)
	if _, err := io.ReadFull(r.rd, buf); err != nil {
		return nil, err
	}
	if !bytes.HasSuffix(buf, []byte("\r\n")) {
		return nil, fmt.Errorf("%w: invalid bulk terminator", ErrProtocol)
	}
	return buf[:n], nil
}

func (r *Reader) readLine() (string, error) {
	var buf []byte
	for {
		frag, err := r.rd.ReadSlice('\n')
		if err == nil {
			buf = append(buf, frag...)
			break
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			buf = append(buf, frag...)
			if len(buf) > MaxLineLen {
				return "", fmt.Errorf("%w: line length exceeds limit %d", ErrProtocol, MaxLineLen)
			}
			continue
		}
		return "", err
	}
	if len(buf) > MaxLineLen {
		return "", fmt.Errorf("%w: line length exceeds limit %d", ErrProtocol, MaxLineLen)
	}
	if len(buf) < 2 || buf[len(buf)-2] != '\r' {
		return "", fmt.Errorf("%w: missing CRLF", ErrProtocol)
	}
	return string(buf[:len(buf)-2]), nil
}
