package protocol

import "errors"

var (
	ErrFieldTypeMismatch = errors.New("protocol: field type mismatch")
	ErrBudgetExhausted   = errors.New("protocol: memory budget exhausted")
	ErrPollTooLarge      = errors.New("protocol: poll payload too large")
	ErrTruncated         = errors.New("protocol: truncated data")
	ErrInvalidLength     = errors.New("protocol: invalid length")
	ErrInvalidPrefix     = errors.New("protocol: invalid response prefix")
)

// Reject is a protocol violation: a reason code for logs and metrics plus the
// static JSON error body sent to the client.
type Reject struct {
	Reason string
	body   []byte
}

func newReject(reason, body string) *Reject {
	return &Reject{Reason: reason, body: []byte(body)}
}

func (r *Reject) Error() string { return "protocol: rejected: " + r.Reason }

// Body returns the static error body. Callers must not modify it.
func (r *Reject) Body() []byte { return r.body }

var (
	RejectNotJSON          = newReject("not_json", `{"ERR":"Message is not valid JSON."}`)
	RejectNotObject        = newReject("not_object", `{"ERR":"Expected JSON object as message."}`)
	RejectUnknownField     = newReject("unknown_field", `{"ERR":"Unknown field, supported only CMD, VAL."}`)
	RejectMissingCmd       = newReject("missing_cmd", `{"ERR":"Missing CMD attribute."}`)
	RejectCmdNotString     = newReject("cmd_not_string", `{"ERR":"CMD attribute must be a string."}`)
	RejectUnknownCmd       = newReject("unknown_cmd", `{"ERR":"Unknown CMD."}`)
	RejectValNotExpected   = newReject("val_not_expected", `{"ERR":"VAL not expected with POLL command."}`)
	RejectValNotObject     = newReject("val_not_object", `{"ERR":"Expected JSON object in VAL attribute."}`)
	RejectValEmpty         = newReject("val_empty", `{"ERR":"Empty VAL attribute."}`)
	RejectWrongResource    = newReject("wrong_resource", `{"ERR":"Unsupported resource."}`)
	RejectInvalidPageID    = newReject("invalid_page_id", `{"ERR":"Invalid page ID."}`)
	RejectPageOutOfRange   = newReject("page_out_of_range", `{"ERR":"Page out of range."}`)
	RejectValNotArray      = newReject("val_not_array", `{"ERR":"Expected [widget_id, value] array in VAL attribute."}`)
	RejectInvalidWidgetID  = newReject("invalid_widget_id", `{"ERR":"Invalid widget ID."}`)
	RejectWidgetOutOfRange = newReject("widget_out_of_range", `{"ERR":"Widget out of range."}`)
	RejectWidgetDisabled   = newReject("widget_disabled", `{"ERR":"Widget not enabled."}`)
	RejectWrongType        = newReject("wrong_type", `{"ERR":"Wrong value type for widget."}`)
	RejectCannotParse      = newReject("cannot_parse", `{"ERR":"Cannot parse value."}`)
	RejectPollTooLarge     = newReject("poll_too_large", `{"ERR":"Poll payload too large."}`)
)

// Rejects lists every reject the decoder and encoder can produce.
func Rejects() []*Reject {
	return []*Reject{
		RejectNotJSON, RejectNotObject, RejectUnknownField, RejectMissingCmd,
		RejectCmdNotString, RejectUnknownCmd, RejectValNotExpected,
		RejectValNotObject, RejectValEmpty, RejectWrongResource,
		RejectInvalidPageID, RejectPageOutOfRange, RejectValNotArray,
		RejectInvalidWidgetID, RejectWidgetOutOfRange, RejectWidgetDisabled,
		RejectWrongType, RejectCannotParse, RejectPollTooLarge,
	}
}
