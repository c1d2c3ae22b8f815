package resp

import (
	"bufio"
	"io"
	"strconv"
)

// Writer emits reply frames. It is the server half of the protocol and is
// used by fake servers in tests.
type Writer struct {
	wr      *bufio.Writer
	scratch []byte
}

// NewWriter wraps w.
func NewWriter(w io.Writer) *Writer {
	bw, ok := w.(*bufio.Writer)
	if !ok {
		bw = bufio.NewWriter(w)
	}
	return &Writer{wr: bw, scratch: make([]byte, 0, 32)}
}

// WriteSimpleString writes a +status line.
func (w *Writer) WriteSimpleString(s string) error {
	return w.line('+', s)
}

// WriteError writes a -error line. msg should start with an error code such as ERR.
func (w *Writer) WriteError(msg string) error {
	return w.line('-', msg)
}

// WriteInt writes an :integer reply.
func (w *Writer) WriteInt(n int64) error {
	w.scratch = strconv.AppendInt(w.scratch[:0], n, 10)
	return w.line(':', string(w.scratch))
}

// WriteBulk writes s as a bulk string; the empty string is written with
// length 0, not as null.
func (w *Writer) WriteBulk(s string) error {
	w.scratch = strconv.AppendInt(w.scratch[:0], int64(len(s)), 10)
	if err := w.line('$', string(w.scratch)); err != nil {
		return err
	}
	if _, err := w.wr.WriteString(s); err != nil {
		return err
	}
	_, err := w.wr.WriteString("\r\n")
	return err
}

// WriteNull writes the null bulk string.
func (w *Writer) WriteNull() error {
	_, err := w.wr.WriteString("$-1\r\n")
	return err
}

// WriteReply writes r in its own wire form.
func (w *Writer) WriteReply(r Reply) error {
	switch r.Kind {
	case SimpleString:
		return w.WriteSimpleString(r.Str)
	case Error:
		return w.WriteError(r.Str)
	case Integer:
		return w.WriteInt(r.Int)
	case BulkString:
		return w.WriteBulk(r.Str)
	}
	return w.WriteNull()
}

// Flush sends buffered replies to the underlying writer.
func (w *Writer) Flush() error {
	return w.wr.Flush()
}

func (w *Writer) line(prefix byte, s string) error {
	if err := w.wr.WriteByte(prefix); err != nil {
		return err
	}
	if _, err := w.wr.WriteString(s); err != nil {
		return err
	}
	_, err := w.wr.WriteString("\r\n")
	return err
}
