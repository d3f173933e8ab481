package protocol

import (
	"bytes"
	"fmt"
	"strconv"
)

func IntValue(v int32, enabled bool) WidgetValue {
	return WidgetValue{Type: WidgetInt, Int: v, Enabled: enabled}
}

func FloatValue(v float32, enabled bool) WidgetValue {
	return WidgetValue{Type: WidgetFloat, Float: v, Enabled: enabled}
}

// TextValue copies s. An empty s yields an absent text.
func TextValue(s string, enabled bool) WidgetValue {
	v := WidgetValue{Type: WidgetText, Enabled: enabled}
	if s != "" {
		v.Text = []byte(s)
	}
	return v
}

func (v *WidgetValue) SetInt(x int32) error {
	if v.Type != WidgetInt {
		return fmt.Errorf("%w: want int, have %s", ErrFieldTypeMismatch, v.Type)
	}
	v.Int = x
	return nil
}

func (v *WidgetValue) SetFloat(x float32) error {
	if v.Type != WidgetFloat {
		return fmt.Errorf("%w: want float, have %s", ErrFieldTypeMismatch, v.Type)
	}
	v.Float = x
	return nil
}

// SetText replaces the text with a copy of b. The previous slice is dropped,
// never written to, so earlier snapshots stay valid.
func (v *WidgetValue) SetText(b []byte) error {
	if v.Type != WidgetText {
		return fmt.Errorf("%w: want text, have %s", ErrFieldTypeMismatch, v.Type)
	}
	if len(b) == 0 {
		v.Text = nil
		return nil
	}
	v.Text = append([]byte(nil), b...)
	return nil
}

func (v *WidgetValue) ClearText() error {
	return v.SetText(nil)
}

// Clone returns a deep copy.
func (v WidgetValue) Clone() WidgetValue {
	if v.Text != nil {
		v.Text = append([]byte(nil), v.Text...)
	}
	return v
}

func (v WidgetValue) Equal(o WidgetValue) bool {
	if v.Type != o.Type || v.Enabled != o.Enabled {
		return false
	}
	switch v.Type {
	case WidgetInt:
		return v.Int == o.Int
	case WidgetFloat:
		return v.Float == o.Float
	default:
		return bytes.Equal(v.Text, o.Text)
	}
}

// Display renders the value the way a client would show it.
func (v WidgetValue) Display() string {
	switch v.Type {
	case WidgetInt:
		return strconv.FormatInt(int64(v.Int), 10)
	case WidgetFloat:
		return strconv.FormatFloat(float64(v.Float), 'g', -1, 32)
	default:
		return string(v.Text)
	}
}

func (v WidgetValue) String() string {
	state := "on"
	if !v.Enabled {
		state = "off"
	}
	return fmt.Sprintf("%s(%s,%s)", v.Type, v.Display(), state)
}

// pollRecordSize is the encoded size of v in a poll body.
func (v WidgetValue) pollRecordSize() int {
	switch v.Type {
	case WidgetText:
		return len(v.Text) + 2
	default:
		return 5
	}
}
