package record

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// StillPresent is the Display.End value of a monitor that has not been
// observed disconnecting.
const StillPresent uint64 = math.MaxUint64

// Fixed on-disk widths of the text fields.
const (
	HashWidth     = 32
	NameWidth     = 32
	SubjectWidth  = 128
	DocumentWidth = 128
)

// KeyCounterSlots is the number of keystream counters (one per u8 key code).
const KeyCounterSlots = 256

// ButtonCounterSlots is the number of pointer button counters.
const ButtonCounterSlots = 34

// DefaultSubject names a session whose owning process could not be resolved.
const DefaultSubject = "Internal"

// KeyEvent is one key release.
type KeyEvent struct {
	Code      uint8
	Timestamp uint64 // µs since epoch
}

// Button identifies a pointer button or wheel direction.
type Button uint8

const (
	ButtonLeft Button = iota
	ButtonMiddle
	ButtonRight
	ButtonX1
	ButtonX2
	ButtonX3
	ButtonWheelUp
	ButtonWheelDown
)

var buttonNames = [...]string{"left", "middle", "right", "x1", "x2", "x3", "wheel_up", "wheel_down"}

func (b Button) String() string {
	if int(b) < len(buttonNames) {
		return buttonNames[b]
	}
	return "button_" + strconv.Itoa(int(b))
}

// ParseButton is the inverse of Button.String for the named buttons.
func ParseButton(s string) (Button, bool) {
	for i, name := range buttonNames {
		if name == s {
			return Button(i), true
		}
	}
	return 0, false
}

// ClickEvent is one button release (or wheel notch) in canonical
// non-negative desktop coordinates.
type ClickEvent struct {
	Button    Button
	X, Y      uint32
	Timestamp uint64
}

// RawClick is a click as captured, in virtual-desktop coordinates that may
// be negative on multi-monitor layouts.
type RawClick struct {
	Button    Button
	X, Y      int32
	Timestamp uint64
}

// Canonical shifts the click into the canonical space of set.
func (c RawClick) Canonical(set ScreenSet) ClickEvent {
	x, y := set.Canonical(c.X, c.Y)
	return ClickEvent{Button: c.Button, X: x, Y: y, Timestamp: c.Timestamp}
}

// Display is the observed lifespan of one monitor. Identity is the hash
// plus geometry, never the platform handle.
type Display struct {
	Hash   string
	Name   string
	X, Y   uint32
	Width  uint32
	Height uint32
	Start  uint64
	End    uint64
}

// Live reports whether the display has not been seen disconnecting.
func (d Display) Live() bool { return d.End == StillPresent }

// Matches reports whether s describes the same physical monitor.
func (d Display) Matches(s Screen) bool {
	return d.Hash == s.Hash && d.X == s.X && d.Y == s.Y && d.Width == s.Width && d.Height == s.Height
}

// Contains reports whether the canonical point lies within the display.
func (d Display) Contains(x, y uint32) bool {
	return x >= d.X && x-d.X < d.Width && y >= d.Y && y-d.Y < d.Height
}

// Screen is a monitor as currently reported by the platform, in canonical
// coordinates.
type Screen struct {
	Hash   string
	X, Y   uint32
	Width  uint32
	Height uint32
}

// ScreenSet is the live monitor configuration. OriginX and OriginY shift
// virtual-desktop coordinates (which may be negative) into the canonical
// space.
type ScreenSet struct {
	Screens []Screen
	OriginX int32
	OriginY int32
}

// Canonical maps a virtual-desktop point to canonical coordinates,
// clamping anything left of or above the origin to zero.
func (s ScreenSet) Canonical(x, y int32) (uint32, uint32) {
	cx := int64(x) + int64(s.OriginX)
	cy := int64(y) + int64(s.OriginY)
	if cx < 0 {
		cx = 0
	}
	if cy < 0 {
		cy = 0
	}
	if cx > math.MaxUint32 {
		cx = math.MaxUint32
	}
	if cy > math.MaxUint32 {
		cy = math.MaxUint32
	}
	return uint32(cx), uint32(cy)
}

// SessionUsage is one observed window lifetime.
type SessionUsage struct {
	Subject  string
	Document string
	Start    uint64
	End      uint64
}

// Duration returns End-Start, or zero when the window closed "before" it
// opened.
func (s SessionUsage) Duration() uint64 {
	if s.End < s.Start {
		return 0
	}
	return s.End - s.Start
}

// Fit normalizes s to NFC, drops NUL bytes and truncates it on a rune
// boundary so that it fits a NUL-terminated field of the given width.
func Fit(s string, width int) string {
	s = norm.NFC.String(s)
	if strings.IndexByte(s, 0) >= 0 {
		s = strings.ReplaceAll(s, "\x00", "")
	}
	limit := width - 1
	if limit < 0 {
		return ""
	}
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
