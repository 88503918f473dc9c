package main

import (
	"sync"
	"time"
)

// tracks the last accepted dispatch time per command string. the key is the
// literal command text, not rule identity: two rules sharing a command
// string share one timer.
type debounceState struct {
	mu   sync.Mutex
	last map[string]time.Time
}

// initialize empty debounce state
func newDebounceState() *debounceState {
	return &debounceState{last: make(map[string]time.Time)}
}

// report whether a command may dispatch at time now, given a fixed window
// timed from the previous accepted dispatch. records now iff it returns
// true. rtmididrv invokes listeners from a driver-owned thread, so the
// read-check-write sequence holds the lock.
func (d *debounceState) shouldDispatch(command string, window time.Duration, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if prev, ok := d.last[command]; ok && now.Sub(prev) < window {
		return false
	}
	d.last[command] = now
	return true
}
