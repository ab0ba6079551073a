package models

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrInvalidInput      = errors.New("invalid input")
	ErrDeviceUnavailable = errors.New("device unavailable")
	ErrAlreadyRunning    = errors.New("already running")
	ErrUnknownTest       = errors.New("unknown test")
)

// Refinements keep their base kind reachable through errors.Is.
var (
	ErrInvalidPhase      = fmt.Errorf("%w: phase not in catalog", ErrInvalidInput)
	ErrInvalidHold       = fmt.Errorf("%w: hold duration must not be negative", ErrInvalidInput)
	ErrInvalidSeverity   = fmt.Errorf("%w: unknown severity", ErrInvalidInput)
	ErrInvalidStatus     = fmt.Errorf("%w: unknown status", ErrInvalidInput)
	ErrInvalidScope      = fmt.Errorf("%w: unknown scope", ErrInvalidInput)
	ErrEmptyMessage      = fmt.Errorf("%w: message body is empty", ErrInvalidInput)
	ErrMessageTooLong    = fmt.Errorf("%w: message body too long", ErrInvalidInput)
	ErrInvalidChannelSet = fmt.Errorf("%w: invalid channel set", ErrInvalidInput)
	ErrInvalidPriority   = fmt.Errorf("%w: unknown priority", ErrInvalidInput)
	ErrInvalidDuration   = fmt.Errorf("%w: duration out of range", ErrInvalidInput)
	ErrNotRunning        = fmt.Errorf("%w: no run in flight", ErrInvalidTransition)
)
