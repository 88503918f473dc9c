package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// a single synthetic input step produced by evalKeymap. exactly one of the
// three forms is set: a pause, a text string to type, or a key press with
// optional held modifiers.
type keyAction struct {
	Key   string
	Mods  []string
	Text  string
	Pause time.Duration
}

// a keymap description that failed to parse, with the offending token and
// its byte offset in the description
type evalError struct {
	Token string
	Pos   int
	Msg   string
}

func (e *evalError) Error() string {
	return fmt.Sprintf("keymap: %s at offset %d: %q", e.Msg, e.Pos, e.Token)
}

// translate a keymap description into a sequence of input actions. the
// grammar is whitespace-separated tokens:
//
//	name          press and release a key ("enter", "f5", "a")
//	ctrl+name     hold modifiers (ctrl, shift, alt, meta) across one press
//	"some text"   type each character of the quoted string in order
//	@250          pause for 250 milliseconds
//
// parsing is deterministic and fails closed: a malformed token yields an
// error naming the token and its offset, and no actions. the evaluator
// knows nothing about MIDI; it is a pure string to action translator.
func evalKeymap(desc string) ([]keyAction, error) {
	var actions []keyAction
	i := 0
	for i < len(desc) {
		if unicode.IsSpace(rune(desc[i])) {
			i++
			continue
		}
		start := i
		if desc[i] == '"' {
			end := strings.IndexByte(desc[i+1:], '"')
			if end < 0 {
				return nil, &evalError{Token: desc[start:], Pos: start, Msg: "unterminated quote"}
			}
			text := desc[i+1 : i+1+end]
			i += end + 2
			act, err := parseTextToken(text, start)
			if err != nil {
				return nil, err
			}
			actions = append(actions, act)
			continue
		}
		end := i
		for end < len(desc) && !unicode.IsSpace(rune(desc[end])) {
			end++
		}
		act, err := parseToken(desc[i:end], start)
		if err != nil {
			return nil, err
		}
		actions = append(actions, act)
		i = end
	}
	return actions, nil
}

// parse a quoted text token into a typing action
func parseTextToken(text string, pos int) (keyAction, error) {
	if text == "" {
		return keyAction{}, &evalError{Token: `""`, Pos: pos, Msg: "empty quoted text"}
	}
	for _, r := range text {
		if !keyKnown(string(r)) {
			return keyAction{}, &evalError{Token: string(r), Pos: pos,
				Msg: "untypeable character in quoted text"}
		}
	}
	return keyAction{Text: text}, nil
}

// parse an unquoted token: a pause, a bare key, or a modifier chord
func parseToken(tok string, pos int) (keyAction, error) {
	if strings.HasPrefix(tok, "@") {
		ms, err := strconv.ParseUint(tok[1:], 10, 32)
		if err != nil || ms == 0 {
			return keyAction{}, &evalError{Token: tok, Pos: pos, Msg: "bad pause duration"}
		}
		return keyAction{Pause: time.Duration(ms) * time.Millisecond}, nil
	}
	parts := strings.Split(tok, "+")
	key := parts[len(parts)-1]
	mods := parts[:len(parts)-1]
	if key == "" {
		return keyAction{}, &evalError{Token: tok, Pos: pos, Msg: "missing key in chord"}
	}
	for _, m := range mods {
		if !modKnown(m) {
			return keyAction{}, &evalError{Token: tok, Pos: pos,
				Msg: fmt.Sprintf("unknown modifier %q", m)}
		}
	}
	if !keyKnown(key) {
		return keyAction{}, &evalError{Token: tok, Pos: pos,
			Msg: fmt.Sprintf("unknown key %q", key)}
	}
	return keyAction{Key: key, Mods: mods}, nil
}
