package passcode

import (
	"errors"
	"fmt"
	"strings"
)

// Flow is what a Session is for.
type Flow int

const (
	FlowEnable Flow = iota
	FlowChange
	FlowTurnOff
	FlowUnlock
)

func (f Flow) String() string {
	switch f {
	case FlowEnable:
		return "enable"
	case FlowChange:
		return "change"
	case FlowTurnOff:
		return "turn off"
	case FlowUnlock:
		return "unlock"
	}
	return fmt.Sprintf("Flow(%d)", int(f))
}

// Step is the input a Session expects next.
type Step int

const (
	StepCurrent Step = iota
	StepNew
	StepConfirm
	StepDone
)

func (s Step) String() string {
	switch s {
	case StepCurrent:
		return "current"
	case StepNew:
		return "new"
	case StepConfirm:
		return "confirm"
	case StepDone:
		return "done"
	}
	return fmt.Sprintf("Step(%d)", int(s))
}

// Session walks one flow to completion. It is not safe for concurrent use.
type Session struct {
	lock      *Lock
	flow      Flow
	step      Step
	newSimple bool
	candidate string
}

// Begin starts flow. Enabling requires that no passcode is set; the other
// flows require one.
func (l *Lock) Begin(flow Flow) (*Session, error) {
	exists := l.PasscodeExists()
	switch {
	case flow == FlowEnable && exists:
		return nil, ErrPasscodeExists
	case flow != FlowEnable && !exists:
		return nil, ErrNoPasscode
	}

	s := &Session{lock: l, flow: flow, step: StepCurrent, newSimple: l.simple}
	if flow == FlowEnable {
		s.step = StepNew
	}
	return s, nil
}

// SetSimple switches between simple and complex passcodes. With no passcode
// set the mode changes immediately and the returned Session is nil. Otherwise
// the returned change Session collects a new passcode in the requested mode,
// and the mode is saved with it.
func (l *Lock) SetSimple(simple bool) (*Session, error) {
	if !l.PasscodeExists() {
		l.simple = simple
		return nil, nil
	}
	s, err := l.Begin(FlowChange)
	if err != nil {
		return nil, err
	}
	s.newSimple = simple
	return s, nil
}

// Flow returns the flow being walked.
func (s *Session) Flow() Flow { return s.flow }

// Step returns the input expected next.
func (s *Session) Step() Step { return s.step }

// Done reports whether the flow has finished.
func (s *Session) Done() bool { return s.step == StepDone }

// Simple reports whether the expected input is a simple passcode.
func (s *Session) Simple() bool {
	if s.step == StepCurrent {
		return s.lock.simple
	}
	return s.newSimple
}

// Valid reports whether input has the right shape for the current step.
func (s *Session) Valid(input string) bool {
	if !s.Simple() {
		return input != ""
	}
	if len(input) != s.lock.digits {
		return false
	}
	return strings.Trim(input, "0123456789") == ""
}

// Submit feeds input to the current step and returns the step that follows.
// Errors leave the session usable unless it is Done.
func (s *Session) Submit(input string) (Step, error) {
	if s.Done() {
		return s.step, ErrFlowDone
	}
	if !s.Valid(input) {
		return s.step, ErrInvalidFormat
	}

	switch s.step {
	case StepCurrent:
		if err := s.lock.Check(input); err != nil {
			if errors.Is(err, ErrTooManyAttempts) {
				s.finish()
			}
			return s.step, err
		}
		switch s.flow {
		case FlowUnlock:
			s.lock.enteredSuccessfully()
			s.finish()
		case FlowTurnOff:
			s.lock.DeletePasscode()
			s.lock.enteredSuccessfully()
			s.finish()
		default:
			s.step = StepNew
		}

	case StepNew:
		if s.flow == FlowChange && input == s.lock.Passcode() {
			return s.step, ErrSamePasscode
		}
		s.candidate = input
		s.step = StepConfirm

	case StepConfirm:
		if input != s.candidate {
			s.candidate = ""
			s.step = StepNew
			return s.step, ErrMismatch
		}
		s.lock.simple = s.newSimple
		s.lock.SavePasscode(s.candidate)
		s.candidate = ""
		s.finish()
	}
	return s.step, nil
}

// Cancel abandons the flow.
func (s *Session) Cancel() {
	if !s.Done() {
		s.finish()
	}
}

func (s *Session) finish() {
	s.step = StepDone
	s.lock.willClose()
}
