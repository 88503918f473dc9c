package main

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// records spawned commands instead of starting processes
type fakeSpawner struct {
	commands []string
	envs     [][]string
	err      error
}

func (f *fakeSpawner) spawn(command string, env []string) error {
	if f.err != nil {
		return f.err
	}
	f.commands = append(f.commands, command)
	f.envs = append(f.envs, env)
	return nil
}

// dispatcher with fakes and a controllable clock
func newTestDispatcher(s *settings) (*dispatcher, *fakeBackend, *fakeSpawner, *time.Time) {
	backend := &fakeBackend{}
	spawner := &fakeSpawner{}
	d := newDispatcher(s, backend, spawner.spawn, zap.NewNop().Sugar())
	now := time.Unix(0, 0)
	d.now = func() time.Time { return now }
	return d, backend, spawner, &now
}

func TestDispatchCommandDebounced(t *testing.T) {
	s := &settings{MidiMapping: []rule{{
		MidiID: 144, Note: 60, Command: strPtr("echo hi"),
		Options: &ruleOptions{Velocity: &velocityOptions{Debounce: u64Ptr(200)}},
	}}}
	d, _, spawner, now := newTestDispatcher(s)

	d.onEvent([]byte{144, 60, 100})
	*now = now.Add(50 * time.Millisecond)
	d.onEvent([]byte{144, 60, 100})
	assert.Equal(t, []string{"echo hi"}, spawner.commands)

	*now = now.Add(200 * time.Millisecond)
	d.onEvent([]byte{144, 60, 100})
	assert.Equal(t, []string{"echo hi", "echo hi"}, spawner.commands)
}

func TestDispatchVelocityConstraint(t *testing.T) {
	s := &settings{MidiMapping: []rule{{
		MidiID: 144, Note: 60, Velocity: bytePtr(100), Command: strPtr("echo hi"),
	}}}
	d, _, spawner, _ := newTestDispatcher(s)

	// velocity mismatch: no dispatch
	d.onEvent([]byte{144, 60, 99})
	assert.Empty(t, spawner.commands)

	// absent velocity never contradicts the constraint
	d.onEvent([]byte{144, 60})
	assert.Equal(t, []string{"echo hi"}, spawner.commands)
}

func TestDispatchVelocityEnv(t *testing.T) {
	s := &settings{MidiMapping: []rule{{
		MidiID: 144, Note: 60, Command: strPtr("echo $MIDI_VELOCITY"),
		Options: &ruleOptions{Velocity: &velocityOptions{
			Scale: &velocityScale{Min: 0, Max: 200},
		}},
	}}}
	d, _, spawner, _ := newTestDispatcher(s)

	d.onEvent([]byte{144, 60, 127})
	require.Len(t, spawner.envs, 1)
	assert.Equal(t, []string{"MIDI_VELOCITY=200"}, spawner.envs[0])
}

func TestDispatchNoVelocityNoEnv(t *testing.T) {
	s := &settings{MidiMapping: []rule{{
		MidiID: 144, Note: 60, Command: strPtr("echo hi"),
		Options: &ruleOptions{Velocity: &velocityOptions{
			Scale: &velocityScale{Min: 0, Max: 200},
		}},
	}}}
	d, _, spawner, _ := newTestDispatcher(s)

	// a scale with no raw velocity yields no exported velocity
	d.onEvent([]byte{144, 60})
	require.Len(t, spawner.envs, 1)
	assert.Empty(t, spawner.envs[0])
}

func TestDispatchEveryMatchingRuleFires(t *testing.T) {
	s := &settings{MidiMapping: []rule{
		{MidiID: 144, Note: 60, Command: strPtr("echo one")},
		{MidiID: 144, Note: 61, Command: strPtr("echo other")},
		{MidiID: 144, Note: 60, Command: strPtr("echo two")},
	}}
	d, _, spawner, _ := newTestDispatcher(s)

	d.onEvent([]byte{144, 60, 100})
	assert.Equal(t, []string{"echo one", "echo two"}, spawner.commands)
}

func TestDispatchSharedCommandSharesTimer(t *testing.T) {
	s := &settings{MidiMapping: []rule{
		{MidiID: 144, Note: 60, Command: strPtr("echo hi")},
		{MidiID: 144, Note: 60, Command: strPtr("echo hi")},
	}}
	d, _, spawner, _ := newTestDispatcher(s)

	// both rules match one event, but the command text keys one timer
	d.onEvent([]byte{144, 60, 100})
	assert.Equal(t, []string{"echo hi"}, spawner.commands)
}

func TestDispatchEmptyCommandIgnored(t *testing.T) {
	s := &settings{MidiMapping: []rule{{
		MidiID: 144, Note: 60, Command: strPtr(""),
	}}}
	d, _, spawner, _ := newTestDispatcher(s)

	d.onEvent([]byte{144, 60, 100})
	assert.Empty(t, spawner.commands)
	assert.Empty(t, d.debounce.last)
}

func TestDispatchKeymapErrorDoesNotBlockLaterRules(t *testing.T) {
	s := &settings{MidiMapping: []rule{
		{MidiID: 144, Note: 60, Keymap: strPtr("bogus+token")},
		{MidiID: 144, Note: 60, Command: strPtr("echo hi")},
	}}
	d, backend, spawner, _ := newTestDispatcher(s)

	d.onEvent([]byte{144, 60, 100})
	assert.Empty(t, backend.presses)
	assert.Equal(t, []string{"echo hi"}, spawner.commands)
}

func TestDispatchSpawnErrorDoesNotBlockLaterRules(t *testing.T) {
	s := &settings{MidiMapping: []rule{
		{MidiID: 144, Note: 60, Command: strPtr("echo one")},
		{MidiID: 144, Note: 60, Keymap: strPtr("enter")},
	}}
	d, backend, spawner, _ := newTestDispatcher(s)
	spawner.err = errors.New("fork failed")

	d.onEvent([]byte{144, 60, 100})
	assert.Equal(t, []string{"enter"}, backend.presses)
}

func TestDispatchKeymapAndCommandOnOneRule(t *testing.T) {
	s := &settings{MidiMapping: []rule{{
		MidiID: 144, Note: 60, Keymap: strPtr("ctrl+s"), Command: strPtr("echo saved"),
	}}}
	d, backend, spawner, _ := newTestDispatcher(s)

	d.onEvent([]byte{144, 60, 100})
	assert.Equal(t, []string{"ctrl+s"}, backend.presses)
	assert.Equal(t, []string{"echo saved"}, spawner.commands)
}

func TestDispatchMouseClick(t *testing.T) {
	s := &settings{MidiMapping: []rule{{
		MidiID: 144, Note: 62, Mouse: strPtr("left"),
	}}}
	d, backend, spawner, _ := newTestDispatcher(s)

	d.onEvent([]byte{144, 62, 100})
	assert.Equal(t, []string{"left"}, backend.clicks)
	assert.Empty(t, spawner.commands)
	assert.Empty(t, d.debounce.last)
}

func TestDispatchMalformedMessage(t *testing.T) {
	s := &settings{MidiMapping: []rule{{
		MidiID: 144, Note: 60, Command: strPtr("echo hi"),
	}}}
	d, _, spawner, _ := newTestDispatcher(s)

	d.onEvent([]byte{144})
	d.onEvent(nil)
	assert.Empty(t, spawner.commands)

	// the daemon keeps processing later events
	d.onEvent([]byte{144, 60, 100})
	assert.Equal(t, []string{"echo hi"}, spawner.commands)
}

func TestDispatchNoActionRule(t *testing.T) {
	// a rule with no keymap, mouse, or command matches but does nothing
	s := &settings{MidiMapping: []rule{{MidiID: 144, Note: 60}}}
	d, backend, spawner, _ := newTestDispatcher(s)

	d.onEvent([]byte{144, 60, 100})
	assert.Empty(t, backend.presses)
	assert.Empty(t, backend.clicks)
	assert.Empty(t, spawner.commands)
}
