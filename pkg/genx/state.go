package genx

import (
	"errors"
	"fmt"
	"io"
)

// ErrDone ends a stream that finished normally.
var ErrDone = errors.New("genx: done")

// Status is how a response ended.
type Status int

const (
	StatusOK Status = iota
	StatusDone
	StatusTruncated
	StatusBlocked
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusDone:
		return "done"
	case StatusTruncated:
		return "truncated"
	case StatusBlocked:
		return "blocked"
	case StatusError:
		return "error"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// State is the terminal error of a Stream.
type State struct {
	status Status
	usage  Usage
	err    error
}

func newState(status Status, usage Usage, reason string, cause error) *State {
	s := &State{status: status, usage: usage}
	switch status {
	case StatusDone:
		s.err = ErrDone
	case StatusTruncated:
		s.err = errors.New("genx: response truncated")
	case StatusBlocked:
		s.err = fmt.Errorf("genx: response blocked: %s", reason)
	default:
		s.err = fmt.Errorf("genx: generate: %w", cause)
	}
	return s
}

func (s *State) Status() Status { return s.status }
func (s *State) Usage() Usage   { return s.usage }
func (s *State) Error() string  { return s.err.Error() }
func (s *State) Unwrap() error  { return s.err }

// Complete reports whether err ends a response whose content can be kept:
// a clean finish, a truncation or io.EOF.
func Complete(err error) bool {
	if errors.Is(err, ErrDone) || errors.Is(err, io.EOF) {
		return true
	}
	var st *State
	return errors.As(err, &st) && st.status == StatusTruncated
}
