// Package demo registers the four-page board demo: LED buttons, LED
// switches, a login form and a live sensor readout.
package demo

import (
	"bytes"
	"math"
	"time"

	"github.com/danmuck/panelctl/internal/protocol"
	"github.com/danmuck/panelctl/internal/server"
	"github.com/rs/zerolog/log"
)

const (
	PageButtons protocol.PageID = iota
	PageSwitches
	PageLogin
	PageSensors
)

const (
	loginUser     = "admin"
	loginPassword = "admin"
)

var descriptions = [4]string{
	`{"size":[2,3],"widgets":[` +
		`{"type":"label", "text":"Page 0", "position":[0, 1]},` +
		`{"type":"button", "text":"next page"},` +
		`{"type":"button", "text":"Led 1"},` +
		`{"type":"button", "text":"Led 2"},` +
		`{"type":"button", "text":"Led 3"}` +
		`]}`,
	`{"size":[2,3],"widgets":[` +
		`{"type":"button", "text":"previous page"},` +
		`{"type":"label", "text":"Page 1"},` +
		`{"type":"button", "text":"next page"},` +
		`{"type":"label", "text":"Switches:"},` +
		`{"type":"switch", "text":"Led 1,Led 2,Led 3", "show_zero": false},` +
		`{"type":"switch", "text":"Off,Led 1,Led 2,Led 3", "vertical": true}` +
		`]}`,
	`{"size":[3,3],"widgets":[` +
		`{"type":"button", "text":"previous page"},` +
		`{"type":"label", "text":"Page 2"},` +
		`{"type":"button", "text":"next page"},` +
		`{"type":"entry", "text":"Login:", "hint": "user123", "position":[1, 1]},` +
		`{"type":"label", "text":"Hint: admin"},` +
		`{"type":"entry", "text":"Password:", "pass": true, "position":[2, 1]},` +
		`{"type":"label", "text":"Hint admin"}` +
		`]}`,
	`{"size":[2,3],"widgets":[` +
		`{"type":"button", "text":"previous page"},` +
		`{"type":"label", "text":"Page 3"},` +
		`{"type":"value", "value_type": "int32", "text":"Button", "special": {"off": 0, "on": 1}, "position":[1, 0]},` +
		`{"type":"value", "value_type": "float", "text":"ADC1:", "unit": "V"},` +
		`{"type":"value", "value_type": "float", "text":"ADC2:", "unit": "V"}` +
		`]}`,
}

// Inputs is the board's sensor side.
type Inputs interface {
	Button() bool
	ADC(channel int) float32
}

// SimulatedInputs produces a slow sine on both ADC channels and a button that
// is pressed for one second out of every five.
type SimulatedInputs struct {
	Start time.Time
}

func (s SimulatedInputs) Button() bool {
	return int(time.Since(s.Start).Seconds())%5 == 0
}

func (s SimulatedInputs) ADC(channel int) float32 {
	t := time.Since(s.Start).Seconds() + float64(channel)
	return float32(1.65 + 1.65*math.Sin(t/2))
}

// Panel holds the live widget values of every demo page.
type Panel struct {
	LEDs        *LEDBank
	Inputs      Inputs
	SampleEvery time.Duration

	widgets    [4][]protocol.WidgetValue
	lastSample time.Time
}

// Register adds the demo pages to s, makes the button page initial and
// installs the sensor sampler as the idle callback.
func Register(s *server.Server, leds *LEDBank, inputs Inputs) (*Panel, error) {
	if leds == nil {
		leds = NewLEDBank()
	}
	if inputs == nil {
		inputs = SimulatedInputs{Start: time.Now()}
	}
	p := &Panel{
		LEDs:        leds,
		Inputs:      inputs,
		SampleEvery: 200 * time.Millisecond,
		widgets: [4][]protocol.WidgetValue{
			{
				protocol.IntValue(0, true),
				protocol.IntValue(0, true),
				protocol.IntValue(0, true),
				protocol.IntValue(0, true),
			},
			{
				protocol.IntValue(0, true),
				protocol.IntValue(0, true),
				protocol.IntValue(0, true),
				protocol.IntValue(0, true),
			},
			{
				protocol.IntValue(0, true),
				protocol.IntValue(0, false),
				protocol.TextValue("", true),
				protocol.TextValue("", true),
			},
			{
				protocol.IntValue(0, true),
				protocol.IntValue(0, true),
				protocol.FloatValue(0, true),
				protocol.FloatValue(0, true),
			},
		},
	}
	updates := [4]server.UpdateFunc{p.updateButtons, p.updateSwitches, p.updateLogin, p.updateSensors}
	for i := range descriptions {
		id, err := s.RegisterPage([]byte(descriptions[i]), p.widgets[i], updates[i])
		if err != nil {
			return nil, err
		}
		log.Debug().Uint16("page", uint16(id)).Msg("demo.register page")
	}
	if err := s.SetInitialPage(PageButtons); err != nil {
		return nil, err
	}
	s.RegisterIdleCallback(p.idle)
	return p, nil
}

func (p *Panel) updateButtons(req *server.Request, widgetID uint16, _ protocol.WidgetValue) {
	w := req.Widgets()
	if w[widgetID].Int != 1 {
		return
	}
	switch widgetID {
	case 0:
		w[0].Int = 0
		p.LEDs.AllOff()
		p.changePage(req, PageSwitches)
	case 1:
		p.LEDs.Toggle(LEDGreen)
	case 2:
		p.LEDs.Toggle(LEDBlue)
	case 3:
		p.LEDs.Toggle(LEDRed)
	}
}

func (p *Panel) updateSwitches(req *server.Request, widgetID uint16, _ protocol.WidgetValue) {
	w := req.Widgets()
	switch {
	case widgetID == 0 && w[0].Int == 1:
		w[0].Int = 0
		w[2].Int = 0
		w[3].Int = 0
		p.changePage(req, PageButtons)
	case widgetID == 1 && w[1].Int == 1:
		w[1].Int = 0
		p.changePage(req, PageLogin)
	case widgetID == 2:
		w[3].Int = w[2].Int
	}

	p.LEDs.AllOff()
	switch w[3].Int {
	case 1:
		p.LEDs.Set(LEDGreen, true)
	case 2:
		p.LEDs.Set(LEDBlue, true)
	case 3:
		p.LEDs.Set(LEDRed, true)
	}
}

// updateLogin checks the credentials once the password is entered and always
// clears both entries afterwards.
func (p *Panel) updateLogin(req *server.Request, widgetID uint16, _ protocol.WidgetValue) {
	w := req.Widgets()
	if widgetID == 0 && w[0].Int == 1 {
		w[0].Int = 0
		p.changePage(req, PageSwitches)
	}
	if widgetID != 3 {
		return
	}
	ok := bytes.Equal(w[2].Text, []byte(loginUser)) && bytes.Equal(w[3].Text, []byte(loginPassword))
	if ok {
		p.changePage(req, PageSensors)
	} else {
		log.Warn().Str("conn", req.ConnectionID()).Msg("demo.login refused")
	}
	_ = w[2].ClearText()
	_ = w[3].ClearText()
}

func (p *Panel) updateSensors(req *server.Request, widgetID uint16, _ protocol.WidgetValue) {
	w := req.Widgets()
	if widgetID == 0 && w[0].Int == 1 {
		w[0].Int = 0
		p.changePage(req, PageLogin)
	}
}

func (p *Panel) changePage(req *server.Request, id protocol.PageID) {
	if err := req.ChangePage(id); err != nil {
		log.Error().Err(err).Uint16("page", uint16(id)).Msg("demo.change page failed")
	}
}

func (p *Panel) idle() {
	if time.Since(p.lastSample) < p.SampleEvery {
		return
	}
	p.Sample()
}

// Sample copies the current inputs into the sensor page. It must run on the
// server loop goroutine.
func (p *Panel) Sample() {
	p.lastSample = time.Now()
	w := p.widgets[PageSensors]
	var button int32
	if p.Inputs.Button() {
		button = 1
	}
	_ = w[1].SetInt(button)
	_ = w[2].SetFloat(p.Inputs.ADC(0))
	_ = w[3].SetFloat(p.Inputs.ADC(1))
}
