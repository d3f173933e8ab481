package frame

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"strings"
	"testing"
	"testing/iotest"
)

func scanAll(t *testing.T, sc *bufio.Scanner) []string {
	t.Helper()
	var out []string
	for sc.Scan() {
		out = append(out, sc.Text())
	}
	return out
}

func TestRawScannerSplitsValues(t *testing.T) {
	in := "{\"CMD\":\"POLL\"}\r\n  {\"CMD\":\"SET\",\"VAL\":[2,\"a}b{\\\"c\"]}[1,[2]]"
	sc := NewScanner(iotest.OneByteReader(strings.NewReader(in)), false, DefaultLimits())
	got := scanAll(t, sc)
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	want := []string{`{"CMD":"POLL"}`, `{"CMD":"SET","VAL":[2,"a}b{\"c"]}`, `[1,[2]]`}
	if len(got) != len(want) {
		t.Fatalf("expected %d messages, got %d: %q", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("message %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestRawScannerGarbageBecomesMessage(t *testing.T) {
	sc := NewScanner(strings.NewReader("hello {\"CMD\":\"POLL\"}"), false, DefaultLimits())
	got := scanAll(t, sc)
	if len(got) != 2 || got[0] != "hello" || got[1] != `{"CMD":"POLL"}` {
		t.Fatalf("unexpected messages: %q", got)
	}
}

func TestRawScannerIncompleteAtEOF(t *testing.T) {
	sc := NewScanner(strings.NewReader(`{"CMD":"POLL"} {"CMD":`), false, DefaultLimits())
	got := scanAll(t, sc)
	if len(got) != 1 {
		t.Fatalf("expected one complete message, got %q", got)
	}
	if !errors.Is(sc.Err(), ErrIncomplete) {
		t.Fatalf("expected ErrIncomplete, got %v", sc.Err())
	}
}

func TestRawScannerTooLarge(t *testing.T) {
	in := `{"CMD":"SET","VAL":[2,"` + strings.Repeat("x", 64) + `"]}`
	sc := NewScanner(strings.NewReader(in), false, Limits{MaxMessageBytes: 32})
	if got := scanAll(t, sc); len(got) != 0 {
		t.Fatalf("expected no messages, got %q", got)
	}
	if !errors.Is(sc.Err(), ErrMessageTooLarge) {
		t.Fatalf("expected ErrMessageTooLarge, got %v", sc.Err())
	}
}

func TestPrefixedScanner(t *testing.T) {
	var buf bytes.Buffer
	for _, msg := range []string{`{"CMD":"POLL"}`, `{"CMD":"GET","VAL":{"PAGE":1}}`} {
		var prefix [PrefixLen]byte
		binary.BigEndian.PutUint32(prefix[:], uint32(len(msg)))
		buf.Write(prefix[:])
		buf.WriteString(msg)
	}
	sc := NewScanner(iotest.HalfReader(&buf), true, DefaultLimits())
	got := scanAll(t, sc)
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(got) != 2 || got[1] != `{"CMD":"GET","VAL":{"PAGE":1}}` {
		t.Fatalf("unexpected messages: %q", got)
	}

	sc = NewScanner(bytes.NewReader([]byte{0, 0, 0, 0}), true, DefaultLimits())
	scanAll(t, sc)
	if !errors.Is(sc.Err(), ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", sc.Err())
	}
	sc = NewScanner(bytes.NewReader([]byte{0, 1, 0, 0}), true, Limits{MaxMessageBytes: 128})
	scanAll(t, sc)
	if !errors.Is(sc.Err(), ErrMessageTooLarge) {
		t.Fatalf("expected ErrMessageTooLarge, got %v", sc.Err())
	}
}

func TestModeBuffers(t *testing.T) {
	payload := []byte(`{"PAGE":00001}`)
	raw := Raw.Buffers(payload)
	if len(raw) != 1 || &raw[0][0] != &payload[0] {
		t.Fatalf("expected raw mode to borrow the payload")
	}
	prefixed := LengthPrefixed.Buffers(payload)
	if len(prefixed) != 2 || binary.BigEndian.Uint32(prefixed[0]) != uint32(len(payload)) {
		t.Fatalf("unexpected prefixed buffers: %v", prefixed)
	}
	if LengthPrefixed.Overhead() != PrefixLen || Raw.Overhead() != 0 {
		t.Fatalf("unexpected overhead")
	}
	if _, err := ParseMode("carrier-pigeon"); !errors.Is(err, ErrUnknownMode) {
		t.Fatalf("expected ErrUnknownMode, got %v", err)
	}
	if m, err := ParseMode("length_prefixed"); err != nil || m != LengthPrefixed {
		t.Fatalf("expected length_prefixed, got %v %v", m, err)
	}
}

func TestReadResponseRawPoll(t *testing.T) {
	body := []byte{'}', 0, 0, 0, 1, 0}
	stream := append([]byte(`{"VERSION":1,"PAGE":00000}{"VAL":00006}`), body...)
	stream = append(stream, []byte(`{"ERR":"Unknown CMD."}`)...)
	r := bufio.NewReader(bytes.NewReader(stream))

	first, err := ReadResponse(r, Raw, DefaultLimits())
	if err != nil || string(first) != `{"VERSION":1,"PAGE":00000}` {
		t.Fatalf("unexpected init: %q %v", first, err)
	}
	poll, err := ReadResponse(r, Raw, DefaultLimits())
	if err != nil {
		t.Fatalf("read poll: %v", err)
	}
	if !bytes.Equal(poll[13:], body) {
		t.Fatalf("unexpected poll body: %v", poll[13:])
	}
	last, err := ReadResponse(r, Raw, DefaultLimits())
	if err != nil || string(last) != `{"ERR":"Unknown CMD."}` {
		t.Fatalf("unexpected error reply: %q %v", last, err)
	}
}

func TestReadResponsePrefixed(t *testing.T) {
	var buf bytes.Buffer
	for _, b := range LengthPrefixed.Buffers([]byte(`{"PAGE":00003}`)) {
		buf.Write(b)
	}
	got, err := ReadResponse(bufio.NewReader(&buf), LengthPrefixed, DefaultLimits())
	if err != nil || string(got) != `{"PAGE":00003}` {
		t.Fatalf("unexpected response: %q %v", got, err)
	}
}
