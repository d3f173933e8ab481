package protocol

import (
	"errors"
	"strconv"

	"github.com/danmuck/panelctl/internal/protocol/jsontok"
)

var errTokenMemory = errors.New("protocol: token memory exhausted")

// Exchange is the explicit context of one decode call. CurrentPage is input;
// every other field is output and is reset by Decode.
type Exchange struct {
	CurrentPage PageID

	// Response holds the borrowed error body when the kind is Invalid.
	Response Response
	Reject   *Reject

	RequestedPage PageID
	WidgetID      uint16
	Previous      WidgetValue
}

func (x *Exchange) reset() {
	x.Response = Response{}
	x.Reject = nil
	x.RequestedPage = NoPageID
	x.WidgetID = 0
	x.Previous = WidgetValue{}
}

func (x *Exchange) reject(r *Reject) MessageKind {
	x.Reject = r
	x.Response = Borrowed(r.Body())
	return MessageInvalid
}

// Decoder validates commands against a page view. Token buffers are charged to
// Budget for the duration of one Decode call.
type Decoder struct {
	Pages     Pages
	Budget    Budget
	MaxTokens int
}

func NewDecoder(pages Pages, budget Budget) *Decoder {
	return &Decoder{Pages: pages, Budget: budget, MaxTokens: MaxTokens}
}

// Decode classifies raw and, for SET, commits the new widget value into the
// current page. State is only mutated after every check has passed.
// MessageOutOfTokenMemory is transient: nothing was consumed or changed.
func (d *Decoder) Decode(raw []byte, x *Exchange) MessageKind {
	x.reset()
	toks, cost, err := d.tokenize(raw)
	if errors.Is(err, errTokenMemory) {
		return MessageOutOfTokenMemory
	}
	defer d.release(cost)
	if err != nil {
		return x.reject(RejectNotJSON)
	}
	return d.dispatch(raw, toks, x)
}

func (d *Decoder) tokenize(raw []byte) ([]jsontok.Token, int, error) {
	limit := d.MaxTokens
	if limit <= 0 {
		limit = MaxTokens
	}
	for size := InitialTokens; size <= limit; size *= 2 {
		cost := size * TokenCost
		if d.Budget != nil && !d.Budget.Reserve(cost) {
			return nil, 0, errTokenMemory
		}
		toks := make([]jsontok.Token, size)
		n, err := jsontok.Parse(raw, toks)
		if errors.Is(err, jsontok.ErrNoMemory) {
			d.release(cost)
			continue
		}
		if err != nil {
			return nil, cost, err
		}
		return toks[:n], cost, nil
	}
	return nil, 0, errTokenMemory
}

func (d *Decoder) release(cost int) {
	if d.Budget != nil && cost > 0 {
		d.Budget.Release(cost)
	}
}

func (d *Decoder) dispatch(raw []byte, toks []jsontok.Token, x *Exchange) MessageKind {
	if toks[0].Kind != jsontok.KindObject {
		return x.reject(RejectNotObject)
	}
	cmd, val := -1, -1
	var it jsontok.Iterator
	if _, err := it.Begin(toks, 0); err != nil {
		return x.reject(RejectNotObject)
	}
	for {
		key, ok := it.Next()
		if !ok {
			break
		}
		switch {
		case toks[key].Equal(raw, "CMD"):
			cmd = key + 1
		case toks[key].Equal(raw, "VAL"):
			val = key + 1
		default:
			return x.reject(RejectUnknownField)
		}
	}
	if cmd == -1 {
		return x.reject(RejectMissingCmd)
	}
	if toks[cmd].Kind != jsontok.KindString {
		return x.reject(RejectCmdNotString)
	}

	switch {
	case toks[cmd].Equal(raw, "POLL"):
		if val != -1 {
			return x.reject(RejectValNotExpected)
		}
		return MessagePoll
	case toks[cmd].Equal(raw, "GET"):
		return d.decodeGet(raw, toks, val, x)
	case toks[cmd].Equal(raw, "SET"):
		return d.decodeSet(raw, toks, val, x)
	default:
		return x.reject(RejectUnknownCmd)
	}
}

func (d *Decoder) decodeGet(raw []byte, toks []jsontok.Token, val int, x *Exchange) MessageKind {
	if val == -1 || toks[val].Kind != jsontok.KindObject {
		return x.reject(RejectValNotObject)
	}
	var it jsontok.Iterator
	count, err := it.Begin(toks, val)
	if err != nil {
		return x.reject(RejectValNotObject)
	}
	if count == 0 {
		return x.reject(RejectValEmpty)
	}
	key, _ := it.Next()
	if count != 1 || !toks[key].Equal(raw, "PAGE") {
		return x.reject(RejectWrongResource)
	}
	id, ok := parseID(raw, toks[key+1])
	if !ok {
		return x.reject(RejectInvalidPageID)
	}
	if d.Pages == nil || int(id) >= d.Pages.PageCount() {
		return x.reject(RejectPageOutOfRange)
	}
	x.RequestedPage = PageID(id)
	return MessageGet
}

// parseID accepts a digits-only primitive below NoPageID.
func parseID(raw []byte, tok jsontok.Token) (uint16, bool) {
	if tok.Kind != jsontok.KindPrimitive {
		return 0, false
	}
	b := tok.Bytes(raw)
	if len(b) == 0 {
		return 0, false
	}
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	v, err := strconv.ParseUint(string(b), 10, 16)
	if err != nil || v >= uint64(NoPageID) {
		return 0, false
	}
	return uint16(v), true
}
