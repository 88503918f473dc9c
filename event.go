package main

import (
	"math"

	"github.com/pkg/errors"
)

// a decoded incoming MIDI message. Velocity is nil when the raw message had
// no third byte.
type incomingEvent struct {
	MidiID   byte
	Note     byte
	Velocity *byte
}

// decode raw message bytes into an event. status and data1 are mandatory.
func decodeEvent(raw []byte) (incomingEvent, error) {
	if len(raw) < 2 {
		return incomingEvent{}, errors.Errorf("message too short: %d bytes", len(raw))
	}
	ev := incomingEvent{MidiID: raw[0], Note: raw[1]}
	if len(raw) > 2 {
		v := raw[2]
		ev.Velocity = &v
	}
	return ev, nil
}

// report whether the event satisfies the rule. pure predicate: an event
// lacking a velocity byte never fails a velocity constraint.
func (r *rule) matches(ev incomingEvent) bool {
	return ev.MidiID == r.MidiID && ev.Note == r.Note && r.matchesVelocity(ev.Velocity)
}

// check the event velocity against the rule's velocity constraint, if any
func (r *rule) matchesVelocity(velocity *byte) bool {
	if r.Velocity == nil || velocity == nil {
		return true
	}
	return *velocity == *r.Velocity
}

// compute the velocity to export for the rule. no scale configured returns
// the raw velocity unchanged; a scale without a raw velocity returns nil.
func (r *rule) computedVelocity(raw *byte) *byte {
	scale := r.scale()
	if scale == nil {
		return raw
	}
	if raw == nil {
		return nil
	}
	v := scaleValue(*raw, scale.Min, scale.Max)
	return &v
}

// linearly map input from [0, 127] into [min, max], rounding half away from
// zero. max < min yields a descending scale.
func scaleValue(input, min, max byte) byte {
	factor := (float64(max) - float64(min)) / 127.0
	return byte(math.Round(float64(min) + float64(input)*factor))
}
