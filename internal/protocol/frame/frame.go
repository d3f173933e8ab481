// Package frame splits inbound byte streams into command messages and wraps
// outbound responses for the wire.
//
// Ownership boundary:
// - message boundaries only; payloads are never parsed beyond brace depth
// - scanned messages alias the scanner buffer and must be copied to be kept
package frame

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
)

const PrefixLen = 4

var (
	ErrMessageTooLarge = errors.New("frame: message too large")
	ErrEmptyMessage    = errors.New("frame: empty length-prefixed message")
	ErrIncomplete      = errors.New("frame: incomplete message at end of stream")
	ErrUnknownMode     = errors.New("frame: unknown framing mode")
	ErrUnexpectedByte  = errors.New("frame: unexpected byte before response")
)

// Mode selects how outbound responses are delimited.
type Mode uint8

const (
	// Raw writes responses verbatim.
	Raw Mode = iota
	// LengthPrefixed precedes every response with a 4-byte big-endian length.
	LengthPrefixed
)

func (m Mode) String() string {
	switch m {
	case Raw:
		return "raw"
	case LengthPrefixed:
		return "length_prefixed"
	default:
		return "unknown"
	}
}

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "raw":
		return Raw, nil
	case "length_prefixed", "length-prefixed", "prefixed":
		return LengthPrefixed, nil
	default:
		return Raw, fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// Limits constrains inbound message size.
type Limits struct {
	MaxMessageBytes int
}

func DefaultLimits() Limits {
	return Limits{MaxMessageBytes: 4096}
}

func (l Limits) limit() int {
	if l.MaxMessageBytes <= 0 {
		return DefaultLimits().MaxMessageBytes
	}
	return l.MaxMessageBytes
}

// NewScanner yields one inbound message per Scan. With prefixed set every
// message carries a 4-byte big-endian length; otherwise messages are split on
// top-level JSON value boundaries.
func NewScanner(r io.Reader, prefixed bool, limits Limits) *bufio.Scanner {
	limit := limits.limit()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, min(limit+PrefixLen, 4096)), limit+PrefixLen)
	if prefixed {
		sc.Split(SplitPrefixed(limit))
	} else {
		sc.Split(SplitRaw(limit))
	}
	return sc
}

// SplitRaw splits a stream of JSON objects or arrays. Whitespace between
// values is skipped. A run of bytes that cannot start a value becomes its own
// message so the decoder can answer it.
func SplitRaw(limit int) bufio.SplitFunc {
	return func(data []byte, atEOF bool) (int, []byte, error) {
		start := 0
		for start < len(data) && isSpace(data[start]) {
			start++
		}
		if start == len(data) {
			return start, nil, nil
		}
		rest := data[start:]
		if rest[0] != '{' && rest[0] != '[' {
			end := 0
			for end < len(rest) && end < limit && !isSpace(rest[end]) && rest[end] != '{' && rest[end] != '[' {
				end++
			}
			return start + end, rest[:end], nil
		}
		end, ok := scanValue(rest)
		if ok {
			if end > limit {
				return 0, nil, fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, end)
			}
			return start + end, rest[:end], nil
		}
		if len(rest) >= limit {
			return 0, nil, fmt.Errorf("%w: over %d bytes", ErrMessageTooLarge, limit)
		}
		if atEOF {
			return len(data), nil, ErrIncomplete
		}
		return start, nil, nil
	}
}

// SplitPrefixed splits length-prefixed messages.
func SplitPrefixed(limit int) bufio.SplitFunc {
	return func(data []byte, atEOF bool) (int, []byte, error) {
		if len(data) < PrefixLen {
			if atEOF && len(data) > 0 {
				return len(data), nil, ErrIncomplete
			}
			return 0, nil, nil
		}
		n := int(binary.BigEndian.Uint32(data[:PrefixLen]))
		if n == 0 {
			return 0, nil, ErrEmptyMessage
		}
		if n > limit {
			return 0, nil, fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, n)
		}
		if len(data) < PrefixLen+n {
			if atEOF {
				return len(data), nil, ErrIncomplete
			}
			return 0, nil, nil
		}
		return PrefixLen + n, data[PrefixLen : PrefixLen+n], nil
	}
}

// scanValue returns the length of the first complete object or array in b.
func scanValue(b []byte) (int, bool) {
	depth := 0
	inString, escaped := false, false
	for i, c := range b {
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return i + 1, true
			}
		}
	}
	return 0, false
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

// Buffers returns the write vector for payload. The payload is not copied.
func (m Mode) Buffers(payload []byte) net.Buffers {
	if m != LengthPrefixed {
		return net.Buffers{payload}
	}
	prefix := make([]byte, PrefixLen)
	binary.BigEndian.PutUint32(prefix, uint32(len(payload)))
	return net.Buffers{prefix, payload}
}

// Overhead is the number of framing bytes added to each outbound payload.
func (m Mode) Overhead() int {
	if m == LengthPrefixed {
		return PrefixLen
	}
	return 0
}

// ReadResponse reads one server response. In raw mode the JSON object is read
// by brace depth, and a poll reply's binary body is read using the length in
// its `{"VAL":NNNNN}` prefix.
func ReadResponse(r *bufio.Reader, m Mode, limits Limits) ([]byte, error) {
	if m == LengthPrefixed {
		return readPrefixed(r, limits.limit())
	}
	return readRaw(r, limits.limit())
}

func readPrefixed(r io.Reader, limit int) ([]byte, error) {
	var prefix [PrefixLen]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, err
	}
	n := int(binary.BigEndian.Uint32(prefix[:]))
	if n > limit {
		return nil, fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, n)
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}

func readRaw(r *bufio.Reader, limit int) ([]byte, error) {
	var c byte
	var err error
	for {
		if c, err = r.ReadByte(); err != nil {
			return nil, err
		}
		if !isSpace(c) {
			break
		}
	}
	if c != '{' {
		return nil, fmt.Errorf("%w: %q", ErrUnexpectedByte, c)
	}
	out := []byte{c}
	for {
		if len(out) > limit {
			return nil, fmt.Errorf("%w: over %d bytes", ErrMessageTooLarge, limit)
		}
		if c, err = r.ReadByte(); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
		out = append(out, c)
		if end, ok := scanValue(out); ok && end == len(out) {
			break
		}
	}
	n, ok := pollBodyLen(out)
	if !ok {
		return out, nil
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return append(out, body...), nil
}

func pollBodyLen(head []byte) (int, bool) {
	const prefix = `{"VAL":`
	if len(head) != len(prefix)+6 || !bytes.HasPrefix(head, []byte(prefix)) {
		return 0, false
	}
	n := 0
	for _, c := range head[len(prefix) : len(head)-1] {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}
