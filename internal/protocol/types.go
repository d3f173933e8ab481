package protocol

// ProtocolVersion is reported in the init response.
const ProtocolVersion = 1

// PageID identifies a registered page. NoPageID is never assigned.
type PageID uint16

const NoPageID PageID = 0xFFFF

const (
	InitialTokens = 4
	MaxTokens     = 256
	// TokenCost is the accounted size of one token slot.
	TokenCost = 40

	pageDigits  = 5
	MaxPollBody = 99999
)

// MessageKind is the outcome class of one decoded command.
type MessageKind uint8

const (
	MessageInvalid MessageKind = iota
	MessageGet
	MessageSet
	MessagePoll
	MessageOutOfTokenMemory
)

func (k MessageKind) String() string {
	switch k {
	case MessageGet:
		return "get"
	case MessageSet:
		return "set"
	case MessagePoll:
		return "poll"
	case MessageOutOfTokenMemory:
		return "out_of_token_memory"
	default:
		return "invalid"
	}
}

// WidgetType is fixed when the widget is registered.
type WidgetType uint8

const (
	WidgetInt WidgetType = iota
	WidgetFloat
	WidgetText
)

func (t WidgetType) String() string {
	switch t {
	case WidgetInt:
		return "int"
	case WidgetFloat:
		return "float"
	case WidgetText:
		return "text"
	default:
		return "unknown"
	}
}

// ParseWidgetType accepts the names produced by WidgetType.String.
func ParseWidgetType(s string) (WidgetType, bool) {
	switch s {
	case "int", "i":
		return WidgetInt, true
	case "float", "f":
		return WidgetFloat, true
	case "text", "t":
		return WidgetText, true
	default:
		return 0, false
	}
}

// WidgetValue is one live widget slot. Only the member matching Type is
// meaningful. A nil Text means no text.
type WidgetValue struct {
	Type    WidgetType
	Int     int32
	Float   float32
	Text    []byte
	Enabled bool
}

// Response is an outbound payload. Borrowed bytes belong to someone else
// (static errors, page descriptions) and are never released; owned bytes
// were reserved from a Budget and must be released exactly once.
type Response struct {
	data  []byte
	owned bool
}

// Borrowed wraps bytes the response does not own.
func Borrowed(b []byte) Response {
	return Response{data: b}
}

func (r Response) Bytes() []byte { return r.data }
func (r Response) Len() int      { return len(r.data) }
func (r Response) Owned() bool   { return r.owned }
func (r Response) Empty() bool   { return r.data == nil }

// Release returns owned bytes to b and clears r. Borrowed responses are only
// cleared. Releasing an empty response is a no-op.
func (r *Response) Release(b Budget) {
	if r.owned && b != nil {
		b.Release(cap(r.data))
	}
	*r = Response{}
}

// Pages is the view of the page registry the decoder works against.
type Pages interface {
	PageCount() int
	// Widgets returns the live widget slice of id, or nil when id is unknown.
	Widgets(id PageID) []WidgetValue
}
