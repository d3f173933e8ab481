// Package jsontok is a strict, single-pass JSON tokenizer that writes into a
// caller-owned token slice, plus a sibling iterator over the flat result.
//
// Ownership boundary:
// - tokens reference the input by byte offsets; nothing is copied
// - the caller sizes (and grows) the token slice
// - string escapes are decoded only on request (Unquote)
package jsontok

import "errors"

var (
	ErrNoMemory    = errors.New("jsontok: not enough tokens")
	ErrInvalid     = errors.New("jsontok: invalid character")
	ErrPartial     = errors.New("jsontok: incomplete json")
	ErrNotIterable = errors.New("jsontok: token is not an object or array")
)

// Kind classifies a token.
type Kind uint8

const (
	KindUndefined Kind = iota
	KindObject
	KindArray
	KindString
	KindPrimitive
)

func (k Kind) String() string {
	switch k {
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	case KindString:
		return "string"
	case KindPrimitive:
		return "primitive"
	default:
		return "undefined"
	}
}

// Token is one JSON value (or object key) located in the input by offsets.
// For strings Start/End exclude the quotes.
type Token struct {
	Kind   Kind
	Start  int
	End    int
	Size   int
	Parent int
}

// Bytes returns the raw token text within js.
func (t Token) Bytes(js []byte) []byte {
	if t.Start < 0 || t.End < t.Start || t.End > len(js) {
		return nil
	}
	return js[t.Start:t.End]
}

// Equal reports whether the raw token text equals s.
func (t Token) Equal(js []byte, s string) bool {
	raw := t.Bytes(js)
	return len(raw) == len(s) && string(raw) == s
}
