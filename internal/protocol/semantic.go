package protocol

import (
	"bytes"
	"math"
	"strconv"

	"github.com/danmuck/panelctl/internal/protocol/jsontok"
)

func (d *Decoder) decodeSet(raw []byte, toks []jsontok.Token, val int, x *Exchange) MessageKind {
	if val == -1 || toks[val].Kind != jsontok.KindArray || toks[val].Size != 2 {
		return x.reject(RejectValNotArray)
	}
	var it jsontok.Iterator
	if _, err := it.Begin(toks, val); err != nil {
		return x.reject(RejectValNotArray)
	}
	idTok, _ := it.Next()
	valueTok, _ := it.Next()

	id, ok := parseID(raw, toks[idTok])
	if !ok {
		return x.reject(RejectInvalidWidgetID)
	}
	var widgets []WidgetValue
	if d.Pages != nil {
		widgets = d.Pages.Widgets(x.CurrentPage)
	}
	if int(id) >= len(widgets) {
		return x.reject(RejectWidgetOutOfRange)
	}
	slot := &widgets[id]
	if !slot.Enabled {
		return x.reject(RejectWidgetDisabled)
	}
	if classify(toks[valueTok], raw) != slot.Type {
		return x.reject(RejectWrongType)
	}
	next, ok := parseValue(slot.Type, toks[valueTok].Bytes(raw))
	if !ok {
		return x.reject(RejectCannotParse)
	}

	x.Previous = slot.Clone()
	switch slot.Type {
	case WidgetInt:
		slot.Int = next.Int
	case WidgetFloat:
		slot.Float = next.Float
	case WidgetText:
		slot.Text = next.Text
	}
	x.WidgetID = id
	return MessageSet
}

// classify derives the incoming type from the token alone: strings are text,
// numbers with a '.' are floats, everything else is treated as an integer and
// left for parsing to refuse.
func classify(tok jsontok.Token, raw []byte) WidgetType {
	switch {
	case tok.Kind == jsontok.KindString:
		return WidgetText
	case tok.Kind == jsontok.KindPrimitive && bytes.IndexByte(tok.Bytes(raw), '.') >= 0:
		return WidgetFloat
	default:
		return WidgetInt
	}
}

func parseValue(t WidgetType, b []byte) (WidgetValue, bool) {
	switch t {
	case WidgetInt:
		v, err := strconv.ParseInt(string(b), 10, 32)
		if err != nil {
			return WidgetValue{}, false
		}
		return WidgetValue{Int: int32(v)}, true
	case WidgetFloat:
		v, err := strconv.ParseFloat(string(b), 32)
		if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
			return WidgetValue{}, false
		}
		return WidgetValue{Float: float32(v)}, true
	case WidgetText:
		text, err := jsontok.Unquote(b)
		if err != nil || bytes.IndexByte(text, 0) >= 0 {
			return WidgetValue{}, false
		}
		if len(text) == 0 {
			text = nil
		}
		return WidgetValue{Text: text}, true
	default:
		return WidgetValue{}, false
	}
}
