package pipeline

import (
	"errors"
	"fmt"

	"github.com/sourceplane/cfdcase/internal/casewriter"
	"github.com/sourceplane/cfdcase/internal/model"
	"github.com/sourceplane/cfdcase/internal/runner"
	"github.com/sourceplane/cfdcase/internal/validate"
)

// ErrRunNotFound is returned for an unknown run id
var ErrRunNotFound = errors.New("run not found")

// ErrShutdown is returned by RequestRun once the controller is shutting down
var ErrShutdown = errors.New("controller is shut down")

// ProcessFailure is a stage whose process exited unsuccessfully or printed a
// fatal error marker
type ProcessFailure struct {
	Stage  model.Stage
	Exit   runner.ExitStatus
	Marker string
}

func (e *ProcessFailure) Error() string {
	if e.Marker != "" {
		return fmt.Sprintf("%s stage failed (%s): %s", e.Stage, e.Exit, e.Marker)
	}
	return fmt.Sprintf("%s stage failed: %s", e.Stage, e.Exit)
}

// ErrorKind classifies the error payload of a failed job
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindWrite      ErrorKind = "write"
	KindLaunch     ErrorKind = "launch"
	KindProcess    ErrorKind = "process"
	KindInternal   ErrorKind = "internal"
)

// ErrorPayload is the structured error delivered with a terminal job state
type ErrorPayload struct {
	Kind       ErrorKind            `json:"kind"`
	Message    string               `json:"message"`
	Violations []validate.Violation `json:"violations,omitempty"`
	OutputTail []string             `json:"outputTail,omitempty"`
}

func newPayload(err error, tail []string) *ErrorPayload {
	p := &ErrorPayload{Kind: KindInternal, Message: err.Error(), OutputTail: tail}

	var verr *validate.ValidationError
	var werr *casewriter.WriteError
	var lerr *runner.LaunchError
	var perr *ProcessFailure
	switch {
	case errors.As(err, &verr):
		p.Kind = KindValidation
		p.Violations = verr.Violations
	case errors.As(err, &werr):
		p.Kind = KindWrite
	case errors.As(err, &lerr):
		p.Kind = KindLaunch
	case errors.As(err, &perr):
		p.Kind = KindProcess
	}
	return p
}
