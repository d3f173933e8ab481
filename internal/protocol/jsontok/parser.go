package jsontok

import (
	"unicode/utf16"
	"unicode/utf8"
)

type state uint8

const (
	stValue state = iota
	stValueOrClose
	stKeyOrClose
	stKey
	stColon
	stCommaOrClose
	stDone
)

type parser struct {
	pos   int
	next  int
	super int
	key   int
	state state
}

// Parse tokenizes exactly one JSON value from js into toks and returns the
// number of tokens written. ErrNoMemory means toks is too small and the parse
// must be retried from scratch with a larger slice; no partial result is kept.
func Parse(js []byte, toks []Token) (int, error) {
	p := parser{super: -1, key: -1, state: stValue}
	if err := p.run(js, toks); err != nil {
		return 0, err
	}
	return p.next, nil
}

func (p *parser) alloc(toks []Token) (int, error) {
	if p.next >= len(toks) {
		return -1, ErrNoMemory
	}
	idx := p.next
	p.next++
	toks[idx] = Token{Start: -1, End: -1, Parent: -1}
	return idx, nil
}

// attach links a new value token to its container (or key) and bumps the
// container's size.
func (p *parser) attach(toks []Token, idx int) {
	parent := p.super
	if p.key != -1 {
		parent = p.key
	}
	if parent == -1 {
		return
	}
	toks[idx].Parent = parent
	toks[parent].Size++
}

func (p *parser) afterValue() {
	p.key = -1
	if p.super == -1 {
		p.state = stDone
		return
	}
	p.state = stCommaOrClose
}

func (p *parser) expectsValue() bool {
	return p.state == stValue || p.state == stValueOrClose
}

func (p *parser) run(js []byte, toks []Token) error {
	for ; p.pos < len(js); p.pos++ {
		c := js[p.pos]
		switch c {
		case ' ', '\t', '\r', '\n':
			continue
		case '{', '[':
			if !p.expectsValue() {
				return ErrInvalid
			}
			idx, err := p.alloc(toks)
			if err != nil {
				return err
			}
			p.attach(toks, idx)
			toks[idx].Start = p.pos
			if c == '{' {
				toks[idx].Kind = KindObject
				p.state = stKeyOrClose
			} else {
				toks[idx].Kind = KindArray
				p.state = stValueOrClose
			}
			p.super = idx
			p.key = -1
		case '}', ']':
			if err := p.close(toks, c); err != nil {
				return err
			}
		case '"':
			if err := p.string(js, toks); err != nil {
				return err
			}
		case ':':
			if p.state != stColon {
				return ErrInvalid
			}
			p.state = stValue
		case ',':
			if p.state != stCommaOrClose {
				return ErrInvalid
			}
			if toks[p.super].Kind == KindObject {
				p.state = stKey
			} else {
				p.state = stValue
			}
		case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9', 't', 'f', 'n':
			if !p.expectsValue() {
				return ErrInvalid
			}
			if err := p.primitive(js, toks); err != nil {
				return err
			}
		default:
			return ErrInvalid
		}
	}
	if p.state != stDone {
		return ErrPartial
	}
	return nil
}

func (p *parser) close(toks []Token, c byte) error {
	want := KindObject
	if c == ']' {
		want = KindArray
	}
	if p.super == -1 || toks[p.super].Kind != want {
		return ErrInvalid
	}
	switch p.state {
	case stCommaOrClose:
	case stKeyOrClose:
		if want != KindObject {
			return ErrInvalid
		}
	case stValueOrClose:
		if want != KindArray {
			return ErrInvalid
		}
	default:
		return ErrInvalid
	}
	container := p.super
	toks[container].End = p.pos + 1
	parent := toks[container].Parent
	switch {
	case parent == -1:
		p.super = -1
	case toks[parent].Kind == KindString:
		p.super = toks[parent].Parent
	default:
		p.super = parent
	}
	p.afterValue()
	return nil
}

func (p *parser) string(js []byte, toks []Token) error {
	isKey := p.state == stKeyOrClose || p.state == stKey
	if !isKey && !p.expectsValue() {
		return ErrInvalid
	}
	start := p.pos
	for p.pos++; p.pos < len(js); p.pos++ {
		c := js[p.pos]
		if c == '"' {
			idx, err := p.alloc(toks)
			if err != nil {
				return err
			}
			toks[idx].Kind = KindString
			toks[idx].Start = start + 1
			toks[idx].End = p.pos
			if isKey {
				toks[idx].Parent = p.super
				toks[p.super].Size++
				p.key = idx
				p.state = stColon
				return nil
			}
			p.attach(toks, idx)
			p.afterValue()
			return nil
		}
		if c < 0x20 {
			return ErrInvalid
		}
		if c != '\\' {
			continue
		}
		p.pos++
		if p.pos >= len(js) {
			break
		}
		switch js[p.pos] {
		case '"', '/', '\\', 'b', 'f', 'r', 'n', 't':
		case 'u':
			for i := 0; i < 4; i++ {
				p.pos++
				if p.pos >= len(js) {
					return ErrPartial
				}
				if !isHex(js[p.pos]) {
					return ErrInvalid
				}
			}
		default:
			return ErrInvalid
		}
	}
	return ErrPartial
}

func (p *parser) primitive(js []byte, toks []Token) error {
	start := p.pos
	end := len(js)
	for i := start; i < len(js); i++ {
		c := js[i]
		if c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == ',' || c == ']' || c == '}' || c == ':' {
			end = i
			break
		}
		if c < 0x20 || c >= 0x7f {
			return ErrInvalid
		}
	}
	if end == len(js) && p.super != -1 {
		return ErrPartial
	}
	if !validPrimitive(js[start:end]) {
		return ErrInvalid
	}
	idx, err := p.alloc(toks)
	if err != nil {
		return err
	}
	toks[idx].Kind = KindPrimitive
	toks[idx].Start = start
	toks[idx].End = end
	p.attach(toks, idx)
	p.pos = end - 1
	p.afterValue()
	return nil
}

func validPrimitive(b []byte) bool {
	switch string(b) {
	case "true", "false", "null":
		return true
	}
	i := 0
	if i < len(b) && b[i] == '-' {
		i++
	}
	if i >= len(b) {
		return false
	}
	if b[i] == '0' {
		i++
	} else if isDigit(b[i]) {
		for i < len(b) && isDigit(b[i]) {
			i++
		}
	} else {
		return false
	}
	if i < len(b) && b[i] == '.' {
		i++
		if i >= len(b) || !isDigit(b[i]) {
			return false
		}
		for i < len(b) && isDigit(b[i]) {
			i++
		}
	}
	if i < len(b) && (b[i] == 'e' || b[i] == 'E') {
		i++
		if i < len(b) && (b[i] == '+' || b[i] == '-') {
			i++
		}
		if i >= len(b) || !isDigit(b[i]) {
			return false
		}
		for i < len(b) && isDigit(b[i]) {
			i++
		}
	}
	return i == len(b)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isHex(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func hexVal(c byte) rune {
	switch {
	case isDigit(c):
		return rune(c - '0')
	case c >= 'a' && c <= 'f':
		return rune(c-'a') + 10
	default:
		return rune(c-'A') + 10
	}
}

// Unquote decodes the escape sequences of a string token's raw text into a
// freshly allocated slice.
func Unquote(raw []byte) ([]byte, error) {
	out := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c != '\\' {
			out = append(out, c)
			continue
		}
		i++
		if i >= len(raw) {
			return nil, ErrPartial
		}
		switch raw[i] {
		case '"', '/', '\\':
			out = append(out, raw[i])
		case 'b':
			out = append(out, '\b')
		case 'f':
			out = append(out, '\f')
		case 'r':
			out = append(out, '\r')
		case 'n':
			out = append(out, '\n')
		case 't':
			out = append(out, '\t')
		case 'u':
			r, n, err := decodeU(raw[i+1:])
			if err != nil {
				return nil, err
			}
			i += n
			if utf16.IsSurrogate(r) {
				r2, n2, err := decodeSurrogateTail(raw[i+1:])
				if err != nil {
					return nil, err
				}
				r = utf16.DecodeRune(r, r2)
				i += n2
			}
			out = utf8.AppendRune(out, r)
		default:
			return nil, ErrInvalid
		}
	}
	return out, nil
}

func decodeU(b []byte) (rune, int, error) {
	if len(b) < 4 {
		return 0, 0, ErrPartial
	}
	var r rune
	for _, c := range b[:4] {
		if !isHex(c) {
			return 0, 0, ErrInvalid
		}
		r = r<<4 | hexVal(c)
	}
	return r, 4, nil
}

func decodeSurrogateTail(b []byte) (rune, int, error) {
	if len(b) < 6 || b[0] != '\\' || b[1] != 'u' {
		return 0, 0, ErrInvalid
	}
	r, _, err := decodeU(b[2:])
	if err != nil {
		return 0, 0, err
	}
	return r, 6, nil
}
