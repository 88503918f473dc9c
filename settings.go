package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

const (
	configFileName    = ".midikeydrc"
	defaultDebounceMs = 200
	maxMidiByte       = 127
)

// the parsed mapping table. read-only after load; shared by every event.
type settings struct {
	DevicePortName string `json:"device_port_name"`
	MidiMapping    []rule `json:"midi_mapping"`
}

// an entry in the mapping table. a rule with no keymap, mouse, or command is
// valid but performs no observable action when it matches.
type rule struct {
	MidiID   byte         `json:"midi_id"`
	Note     byte         `json:"note"`
	Keymap   *string      `json:"keymap"`
	Velocity *byte        `json:"velocity"`
	Command  *string      `json:"command"`
	Mouse    *string      `json:"mouse"`
	Options  *ruleOptions `json:"options"`
}

type ruleOptions struct {
	Velocity *velocityOptions `json:"velocity"`
}

type velocityOptions struct {
	Debounce *uint64        `json:"debounce"` // milliseconds
	Scale    *velocityScale `json:"scale"`
}

type velocityScale struct {
	Min byte `json:"min"`
	Max byte `json:"max"`
}

// return the default config file path, ~/.midikeydrc
func defaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "resolve home directory")
	}
	return filepath.Join(home, configFileName), nil
}

// load settings from a config file
func loadSettings(path string) (*settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config file")
	}
	return parseSettings(data)
}

// parse and validate settings from JSON
func parseSettings(data []byte) (*settings, error) {
	s := &settings{}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// reject rules with velocity constraints outside the MIDI byte range.
// out-of-range values are a configuration error, not a runtime condition.
// scale bounds are exempt: scaled output is an environment value, not a
// MIDI byte, and may use the full 0-255 range.
func (s *settings) validate() error {
	for i, r := range s.MidiMapping {
		if r.Velocity != nil && *r.Velocity > maxMidiByte {
			return fmt.Errorf("rule %d: velocity %d out of range [0, %d]",
				i, *r.Velocity, maxMidiByte)
		}
	}
	return nil
}

// return the rule's velocity scale, or nil if none is configured
func (r *rule) scale() *velocityScale {
	if r.Options == nil || r.Options.Velocity == nil {
		return nil
	}
	return r.Options.Velocity.Scale
}

// return the debounce window for the rule's command, defaulting to 200ms
func (r *rule) debounceWindow() time.Duration {
	if r.Options != nil && r.Options.Velocity != nil && r.Options.Velocity.Debounce != nil {
		return time.Duration(*r.Options.Velocity.Debounce) * time.Millisecond
	}
	return defaultDebounceMs * time.Millisecond
}
