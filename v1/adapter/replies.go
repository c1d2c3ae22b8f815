package adapter

import (
	"strings"

	rerrors "github.com/charcoal-dev/cache-redis-client/v1/errors"
	"github.com/charcoal-dev/cache-redis-client/v1/resp"
)

func integerReply(cmd string, r resp.Reply) (int64, error) {
	if r.Kind != resp.Integer {
		return 0, rerrors.Unexpected(cmd, "expected integer reply, got "+r.Kind.String())
	}
	return r.Int, nil
}

// flagReply treats an integer reply of exactly 1 as true.
func flagReply(cmd string, r resp.Reply) (bool, error) {
	n, err := integerReply(cmd, r)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func okReply(cmd string, r resp.Reply) error {
	if !r.IsOK() {
		return rerrors.Unexpected(cmd, "expected OK, got "+r.String())
	}
	return nil
}

func bulkReply(cmd string, r resp.Reply) (string, bool, error) {
	switch r.Kind {
	case resp.Null:
		return "", false, nil
	case resp.BulkString, resp.SimpleString:
		return r.Str, true, nil
	default:
		return "", false, rerrors.Unexpected(cmd, "expected bulk string, got "+r.Kind.String())
	}
}

func pongReply(r resp.Reply) error {
	if r.Kind == resp.Error || !strings.EqualFold(r.Str, "PONG") {
		return rerrors.Unexpected("PING", "expected PONG, got "+r.String())
	}
	return nil
}
