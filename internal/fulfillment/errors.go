package fulfillment

import (
	"errors"
	"fmt"
)

// Sentinel rejection classes. Carrier types below wrap these so callers
// can classify with errors.Is and still read the detail.
var (
	ErrInvalidStage         = errors.New("action is not allowed from the current stage")
	ErrMissingParameter     = errors.New("a required action parameter is missing")
	ErrConflictingParameter = errors.New("action parameters are mutually exclusive")
)

// InvalidStageError rejects an action that is illegal from the order's
// current stage or hold/ready flags. Stage is included so the caller can
// resynchronize its view.
type InvalidStageError struct {
	Action string
	Stage  Stage
	Detail string
}

func (e *InvalidStageError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s is not allowed at stage %s: %s", e.Action, e.Stage, e.Detail)
	}
	return fmt.Sprintf("%s is not allowed at stage %s", e.Action, e.Stage)
}

func (e *InvalidStageError) Unwrap() error {
	return ErrInvalidStage
}

// MissingParameterError rejects an action missing a required parameter
type MissingParameterError struct {
	Action string
	Param  string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("%s requires %s", e.Action, e.Param)
}

func (e *MissingParameterError) Unwrap() error {
	return ErrMissingParameter
}

// ConflictingParameterError rejects mutually exclusive action parameters
type ConflictingParameterError struct {
	Action string
	Params string
}

func (e *ConflictingParameterError) Error() string {
	return fmt.Sprintf("%s accepts only one of %s", e.Action, e.Params)
}

func (e *ConflictingParameterError) Unwrap() error {
	return ErrConflictingParameter
}
