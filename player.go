package main

import (
	"time"
	"unicode"

	"github.com/holoplot/go-evdev"
	"github.com/pkg/errors"
)

// synthetic input sink. the production implementation writes to a uinput
// device; tests substitute a recording fake.
type inputBackend interface {
	Press(key string, mods []string) error
	Click(button string) error
}

// named keys understood by the keymap grammar, mapped to evdev codes
var keyCodes = map[string]evdev.EvCode{
	"a": evdev.KEY_A, "b": evdev.KEY_B, "c": evdev.KEY_C, "d": evdev.KEY_D,
	"e": evdev.KEY_E, "f": evdev.KEY_F, "g": evdev.KEY_G, "h": evdev.KEY_H,
	"i": evdev.KEY_I, "j": evdev.KEY_J, "k": evdev.KEY_K, "l": evdev.KEY_L,
	"m": evdev.KEY_M, "n": evdev.KEY_N, "o": evdev.KEY_O, "p": evdev.KEY_P,
	"q": evdev.KEY_Q, "r": evdev.KEY_R, "s": evdev.KEY_S, "t": evdev.KEY_T,
	"u": evdev.KEY_U, "v": evdev.KEY_V, "w": evdev.KEY_W, "x": evdev.KEY_X,
	"y": evdev.KEY_Y, "z": evdev.KEY_Z,

	"0": evdev.KEY_0, "1": evdev.KEY_1, "2": evdev.KEY_2, "3": evdev.KEY_3,
	"4": evdev.KEY_4, "5": evdev.KEY_5, "6": evdev.KEY_6, "7": evdev.KEY_7,
	"8": evdev.KEY_8, "9": evdev.KEY_9,

	"f1": evdev.KEY_F1, "f2": evdev.KEY_F2, "f3": evdev.KEY_F3,
	"f4": evdev.KEY_F4, "f5": evdev.KEY_F5, "f6": evdev.KEY_F6,
	"f7": evdev.KEY_F7, "f8": evdev.KEY_F8, "f9": evdev.KEY_F9,
	"f10": evdev.KEY_F10, "f11": evdev.KEY_F11, "f12": evdev.KEY_F12,

	"enter":     evdev.KEY_ENTER,
	"space":     evdev.KEY_SPACE,
	"tab":       evdev.KEY_TAB,
	"esc":       evdev.KEY_ESC,
	"backspace": evdev.KEY_BACKSPACE,
	"delete":    evdev.KEY_DELETE,
	"insert":    evdev.KEY_INSERT,
	"home":      evdev.KEY_HOME,
	"end":       evdev.KEY_END,
	"pageup":    evdev.KEY_PAGEUP,
	"pagedown":  evdev.KEY_PAGEDOWN,
	"up":        evdev.KEY_UP,
	"down":      evdev.KEY_DOWN,
	"left":      evdev.KEY_LEFT,
	"right":     evdev.KEY_RIGHT,

	" ": evdev.KEY_SPACE,
	",": evdev.KEY_COMMA, ".": evdev.KEY_DOT, "/": evdev.KEY_SLASH,
	";": evdev.KEY_SEMICOLON, "-": evdev.KEY_MINUS, "=": evdev.KEY_EQUAL,
	"'": evdev.KEY_APOSTROPHE, "\\": evdev.KEY_BACKSLASH,
	"`": evdev.KEY_GRAVE, "[": evdev.KEY_LEFTBRACE, "]": evdev.KEY_RIGHTBRACE,
}

var modCodes = map[string]evdev.EvCode{
	"ctrl":  evdev.KEY_LEFTCTRL,
	"shift": evdev.KEY_LEFTSHIFT,
	"alt":   evdev.KEY_LEFTALT,
	"meta":  evdev.KEY_LEFTMETA,
}

var buttonCodes = map[string]evdev.EvCode{
	"left":   evdev.BTN_LEFT,
	"right":  evdev.BTN_RIGHT,
	"middle": evdev.BTN_MIDDLE,
}

// resolve a key name to an evdev code. a single uppercase letter resolves
// to the lowercase code with an implied shift.
func lookupKey(name string) (code evdev.EvCode, shifted bool, ok bool) {
	if c, found := keyCodes[name]; found {
		return c, false, true
	}
	runes := []rune(name)
	if len(runes) == 1 && unicode.IsUpper(runes[0]) {
		if c, found := keyCodes[string(unicode.ToLower(runes[0]))]; found {
			return c, true, true
		}
	}
	return 0, false, false
}

// report whether the keymap grammar can name this key
func keyKnown(name string) bool {
	_, _, ok := lookupKey(name)
	return ok
}

// report whether the keymap grammar can name this modifier
func modKnown(name string) bool {
	_, ok := modCodes[name]
	return ok
}

// play evaluated actions through the backend synchronously and in order. a
// failure partway through is returned without rolling back already-sent
// events.
func playActions(b inputBackend, actions []keyAction) error {
	for i, a := range actions {
		switch {
		case a.Pause > 0:
			time.Sleep(a.Pause)
		case a.Text != "":
			for _, r := range a.Text {
				if err := b.Press(string(r), nil); err != nil {
					return errors.Wrapf(err, "action %d", i)
				}
			}
		default:
			if err := b.Press(a.Key, a.Mods); err != nil {
				return errors.Wrapf(err, "action %d", i)
			}
		}
	}
	return nil
}

// writes key and button events to a virtual uinput device
type evdevBackend struct {
	dev *evdev.InputDevice
}

// create the uinput device, exposing every key and button the keymap
// grammar can name
func newEvdevBackend() (*evdevBackend, error) {
	caps := make([]evdev.EvCode, 0, len(keyCodes)+len(modCodes)+len(buttonCodes))
	seen := make(map[evdev.EvCode]bool)
	for _, m := range []map[string]evdev.EvCode{keyCodes, modCodes, buttonCodes} {
		for _, c := range m {
			if !seen[c] {
				seen[c] = true
				caps = append(caps, c)
			}
		}
	}
	dev, err := evdev.CreateDevice(appName,
		evdev.InputID{BusType: 0x03, Vendor: 0x4d4b, Product: 0x0001, Version: 1},
		map[evdev.EvType][]evdev.EvCode{evdev.EV_KEY: caps})
	if err != nil {
		return nil, errors.Wrap(err, "create uinput device")
	}
	return &evdevBackend{dev: dev}, nil
}

func (b *evdevBackend) Close() error {
	return b.dev.Close()
}

// write one key event followed by a SYN_REPORT
func (b *evdevBackend) writeKey(code evdev.EvCode, value int32) error {
	if err := b.dev.WriteOne(&evdev.InputEvent{
		Type: evdev.EV_KEY, Code: code, Value: value,
	}); err != nil {
		return err
	}
	return b.dev.WriteOne(&evdev.InputEvent{
		Type: evdev.EV_SYN, Code: evdev.SYN_REPORT, Value: 0,
	})
}

// press and release a key, holding any modifiers across the press
func (b *evdevBackend) Press(key string, mods []string) error {
	code, shifted, ok := lookupKey(key)
	if !ok {
		return errors.Errorf("unknown key %q", key)
	}
	var held []evdev.EvCode
	if shifted {
		held = append(held, modCodes["shift"])
	}
	for _, m := range mods {
		mc, ok := modCodes[m]
		if !ok {
			return errors.Errorf("unknown modifier %q", m)
		}
		held = append(held, mc)
	}
	for _, mc := range held {
		if err := b.writeKey(mc, 1); err != nil {
			return err
		}
	}
	if err := b.writeKey(code, 1); err != nil {
		return err
	}
	if err := b.writeKey(code, 0); err != nil {
		return err
	}
	for i := len(held) - 1; i >= 0; i-- {
		if err := b.writeKey(held[i], 0); err != nil {
			return err
		}
	}
	return nil
}

// click a mouse button
func (b *evdevBackend) Click(button string) error {
	code, ok := buttonCodes[button]
	if !ok {
		return errors.Errorf("unknown mouse button %q", button)
	}
	if err := b.writeKey(code, 1); err != nil {
		return err
	}
	return b.writeKey(code, 0)
}
