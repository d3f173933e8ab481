package demo

import (
	"sync"

	"github.com/rs/zerolog/log"
)

type LED uint8

const (
	LEDGreen LED = iota
	LEDBlue
	LEDRed
	ledCount
)

func (l LED) String() string {
	switch l {
	case LEDGreen:
		return "green"
	case LEDBlue:
		return "blue"
	case LEDRed:
		return "red"
	default:
		return "unknown"
	}
}

// LEDBank stands in for the board's three status LEDs. Every change is
// logged.
type LEDBank struct {
	mu sync.Mutex
	on [ledCount]bool
}

func NewLEDBank() *LEDBank {
	return &LEDBank{}
}

func (b *LEDBank) Set(l LED, on bool) {
	if l >= ledCount {
		return
	}
	b.mu.Lock()
	changed := b.on[l] != on
	b.on[l] = on
	b.mu.Unlock()
	if changed {
		log.Info().Str("led", l.String()).Bool("on", on).Msg("demo.led")
	}
}

func (b *LEDBank) Toggle(l LED) {
	if l >= ledCount {
		return
	}
	b.mu.Lock()
	on := !b.on[l]
	b.mu.Unlock()
	b.Set(l, on)
}

func (b *LEDBank) AllOff() {
	for l := LED(0); l < ledCount; l++ {
		b.Set(l, false)
	}
}

func (b *LEDBank) On(l LED) bool {
	if l >= ledCount {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.on[l]
}

// State returns green, blue and red in that order.
func (b *LEDBank) State() [3]bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.on
}
