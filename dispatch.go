package main

import (
	"fmt"
	"os"
	"os/exec"
	"time"

	"go.uber.org/zap"
)

// the environment variable exported to spawned commands when a computed
// velocity is available
const velocityEnvVar = "MIDI_VELOCITY"

// launches a shell command with extra environment variables
type spawnFunc func(command string, env []string) error

// run a command through sh -c, fire and forget: the child is released
// rather than waited on, and its output is not captured. debouncing is the
// only backpressure on spawned processes.
func spawnCommand(command string, env []string) error {
	cmd := exec.Command("sh", "-c", command)
	cmd.Env = append(os.Environ(), env...)
	if err := cmd.Start(); err != nil {
		return err
	}
	return cmd.Process.Release()
}

// routes incoming MIDI messages through the mapping table. the single entry
// point invoked by the MIDI driver's callback.
type dispatcher struct {
	settings *settings
	debounce *debounceState
	backend  inputBackend
	spawn    spawnFunc
	log      *zap.SugaredLogger
	now      func() time.Time
}

func newDispatcher(s *settings, backend inputBackend, spawn spawnFunc,
	log *zap.SugaredLogger) *dispatcher {
	return &dispatcher{
		settings: s,
		debounce: newDebounceState(),
		backend:  backend,
		spawn:    spawn,
		log:      log,
		now:      time.Now,
	}
}

// process one incoming MIDI message. every matching rule fires, in table
// order; per-rule failures are logged and never stop later rules or later
// events.
func (d *dispatcher) onEvent(raw []byte) {
	ev, err := decodeEvent(raw)
	if err != nil {
		d.log.Errorw("skipping malformed message", "bytes", raw, "error", err)
		return
	}
	for i := range d.settings.MidiMapping {
		r := &d.settings.MidiMapping[i]
		if !r.matches(ev) {
			continue
		}
		d.log.Debugw("rule matched", "midi_id", ev.MidiID, "note", ev.Note)
		if r.Keymap != nil {
			d.playKeymap(*r.Keymap)
		}
		if r.Mouse != nil {
			if err := d.backend.Click(*r.Mouse); err != nil {
				d.log.Errorw("mouse click failed", "button", *r.Mouse, "error", err)
			}
		}
		if r.Command != nil && *r.Command != "" {
			d.runCommand(r, ev.Velocity)
		}
	}
}

// evaluate and play a rule's keymap. evaluation and playback errors are
// reported but not fatal to remaining rules.
func (d *dispatcher) playKeymap(desc string) {
	actions, err := evalKeymap(desc)
	if err != nil {
		d.log.Errorw("keymap evaluation failed", "keymap", desc, "error", err)
		return
	}
	if err := playActions(d.backend, actions); err != nil {
		d.log.Errorw("keymap playback failed", "keymap", desc, "error", err)
	}
}

// debounce and spawn a rule's command, exporting the computed velocity
func (d *dispatcher) runCommand(r *rule, velocity *byte) {
	command := *r.Command
	if !d.debounce.shouldDispatch(command, r.debounceWindow(), d.now()) {
		// routine suppression, not a failure
		d.log.Debugw("debounced command", "command", command)
		return
	}
	var env []string
	if v := r.computedVelocity(velocity); v != nil {
		env = append(env, fmt.Sprintf("%s=%d", velocityEnvVar, *v))
	}
	d.log.Debugw("running command", "command", command, "env", env)
	if err := d.spawn(command, env); err != nil {
		d.log.Errorw("command failed to start", "command", command, "error", err)
	}
}
