package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

const (
	initHead   = `{"VERSION":1,"PAGE":`
	pageHead   = `{"PAGE":`
	pollHead   = `{"VAL":`
	pollPrefix = len(pollHead) + pageDigits + 1
)

// EncodeInit builds the greeting sent on accept.
func EncodeInit(b Budget, initial PageID) (Response, error) {
	return encodePageReply(b, initHead, initial)
}

// EncodePage builds the reply sent after a SET changed the page.
func EncodePage(b Budget, id PageID) (Response, error) {
	return encodePageReply(b, pageHead, id)
}

func encodePageReply(b Budget, head string, id PageID) (Response, error) {
	buf, err := reserveBuffer(b, len(head)+pageDigits+1)
	if err != nil {
		return Response{}, err
	}
	buf = append(buf, head...)
	buf = appendPadded(buf, uint32(id), pageDigits)
	buf = append(buf, '}')
	return Response{data: buf, owned: true}, nil
}

// PollBodySize returns the binary body length for widgets.
func PollBodySize(widgets []WidgetValue) int {
	n := 0
	for i := range widgets {
		n += widgets[i].pollRecordSize()
	}
	return n
}

// EncodePoll builds `{"VAL":NNNNN}` followed by one binary record per widget
// in index order. The buffer is reserved once at its exact size.
func EncodePoll(b Budget, widgets []WidgetValue) (Response, error) {
	body := PollBodySize(widgets)
	if body > MaxPollBody {
		return Response{}, fmt.Errorf("%w: %d bytes", ErrPollTooLarge, body)
	}
	buf, err := reserveBuffer(b, pollPrefix+body)
	if err != nil {
		return Response{}, err
	}
	buf = append(buf, pollHead...)
	buf = appendPadded(buf, uint32(body), pageDigits)
	buf = append(buf, '}')
	for i := range widgets {
		w := &widgets[i]
		switch w.Type {
		case WidgetInt:
			buf = binary.BigEndian.AppendUint32(buf, uint32(w.Int))
		case WidgetFloat:
			buf = binary.BigEndian.AppendUint32(buf, math.Float32bits(w.Float))
		default:
			buf = append(buf, w.Text...)
			buf = append(buf, 0)
		}
		buf = append(buf, enabledByte(w.Enabled))
	}
	return Response{data: buf, owned: true}, nil
}

func enabledByte(on bool) byte {
	if on {
		return 1
	}
	return 0
}

func appendPadded(dst []byte, v uint32, width int) []byte {
	var digits [10]byte
	i := len(digits)
	for v > 0 || i == len(digits) {
		i--
		digits[i] = byte('0' + v%10)
		v /= 10
	}
	for pad := width - (len(digits) - i); pad > 0; pad-- {
		dst = append(dst, '0')
	}
	return append(dst, digits[i:]...)
}

// SplitPoll separates the JSON prefix of a poll reply from its binary body and
// checks the declared length.
func SplitPoll(payload []byte) ([]byte, error) {
	if len(payload) < pollPrefix || !bytes.HasPrefix(payload, []byte(pollHead)) || payload[pollPrefix-1] != '}' {
		return nil, ErrInvalidPrefix
	}
	n := 0
	for _, c := range payload[len(pollHead) : pollPrefix-1] {
		if c < '0' || c > '9' {
			return nil, ErrInvalidPrefix
		}
		n = n*10 + int(c-'0')
	}
	body := payload[pollPrefix:]
	if len(body) < n {
		return nil, fmt.Errorf("%w: body %d of %d bytes", ErrTruncated, len(body), n)
	}
	if len(body) > n {
		return nil, fmt.Errorf("%w: body %d bytes, declared %d", ErrInvalidLength, len(body), n)
	}
	return body, nil
}

// DecodePoll reverses EncodePoll given the widget types of the page.
func DecodePoll(payload []byte, types []WidgetType) ([]WidgetValue, error) {
	body, err := SplitPoll(payload)
	if err != nil {
		return nil, err
	}
	out := make([]WidgetValue, 0, len(types))
	for _, t := range types {
		v := WidgetValue{Type: t}
		switch t {
		case WidgetInt, WidgetFloat:
			if len(body) < 5 {
				return nil, ErrTruncated
			}
			bits := binary.BigEndian.Uint32(body[:4])
			if t == WidgetInt {
				v.Int = int32(bits)
			} else {
				v.Float = math.Float32frombits(bits)
			}
			v.Enabled = body[4] != 0
			body = body[5:]
		case WidgetText:
			end := bytes.IndexByte(body, 0)
			if end < 0 || end+1 >= len(body) {
				return nil, ErrTruncated
			}
			if end > 0 {
				v.Text = append([]byte(nil), body[:end]...)
			}
			v.Enabled = body[end+1] != 0
			body = body[end+2:]
		default:
			return nil, fmt.Errorf("%w: unknown widget type %d", ErrFieldTypeMismatch, t)
		}
		out = append(out, v)
	}
	if len(body) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrInvalidLength, len(body))
	}
	return out, nil
}
