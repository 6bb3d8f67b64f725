package router

import (
	"errors"
	"fmt"
	"strings"
)

// ErrCode classifies recoverable routing errors.
type ErrCode string

const (
	ErrCodeEmptySelection  ErrCode = "empty_selection"
	ErrCodeTooFewVariables ErrCode = "too_few_variables"
	ErrCodeUnknownColumn   ErrCode = "unknown_column"
	ErrCodeDuplicate       ErrCode = "duplicate_variable"
	ErrCodeUnsupportedKind ErrCode = "unsupported_kind"
	ErrCodeNoRecipe        ErrCode = "no_recipe"
	ErrCodeAmbiguousName   ErrCode = "ambiguous_name"
	ErrCodeModel           ErrCode = "model_failed"
	ErrCodeNoRows          ErrCode = "no_rows"
)

// User-facing messages.
const (
	MsgSelectOne   = "select at least one variable"
	MsgSelectTwo   = "select at least two variables"
	MsgNoRecipe    = "selection does not match a supported recipe"
	MsgAmbiguous   = "ambiguous variable name"
	MsgModelFailed = "statistical model failed"
	MsgNoRows      = "no rows match the current filters"
	MsgNoValues    = "the selected variables have no values in the filtered rows"
)

// SelectionError reports a selection that cannot be routed. The session continues; the
// user is expected to change the selection.
type SelectionError struct {
	Code  ErrCode
	Msg   string
	Shape Shape
	Err   error
}

func (e *SelectionError) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *SelectionError) Unwrap() error { return e.Err }

// CollisionError reports selected columns whose model identifiers coincide.
type CollisionError struct {
	Identifier string
	Names      []string
}

func (e *CollisionError) Error() string {
	if e.Identifier == "" {
		return fmt.Sprintf("%s: %q has no identifier characters", MsgAmbiguous, e.Names[0])
	}
	quoted := make([]string, len(e.Names))
	for i, n := range e.Names {
		quoted[i] = fmt.Sprintf("%q", n)
	}
	return fmt.Sprintf("%s: %s all normalize to %q", MsgAmbiguous, strings.Join(quoted, ", "), e.Identifier)
}

// ModelError wraps a failure of the statistics collaborator. Nothing is rendered.
type ModelError struct {
	Recipe  RecipeID
	Formula string
	Err     error
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("%s (%s): %v", MsgModelFailed, e.Formula, e.Err)
}

func (e *ModelError) Unwrap() error { return e.Err }

// Code returns the code of a recoverable routing error, or "" for anything else.
func Code(err error) ErrCode {
	var se *SelectionError
	var ce *CollisionError
	var me *ModelError
	switch {
	case errors.As(err, &se):
		return se.Code
	case errors.As(err, &ce):
		return ErrCodeAmbiguousName
	case errors.As(err, &me):
		return ErrCodeModel
	}
	return ""
}

// IsRecoverable reports whether err is a message for the user rather than a failure of
// the session. Chart rendering errors are not recoverable.
func IsRecoverable(err error) bool { return Code(err) != "" }

func selectionErr(code ErrCode, msg string) *SelectionError {
	return &SelectionError{Code: code, Msg: msg}
}
