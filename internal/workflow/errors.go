package workflow

import "fmt"

// NoSuchActionError indicates an action name not registered for the
// request's type.
type NoSuchActionError struct {
	Action string
}

func (e NoSuchActionError) Error() string {
	return fmt.Sprintf("no such action %s", e.Action)
}

// CannotExecuteActionError indicates can-execute was false at the moment of
// execute. Transitions are not idempotent: a retry after success fails with
// this error instead of silently no-opping.
type CannotExecuteActionError struct {
	Action string
	Status string
}

func (e CannotExecuteActionError) Error() string {
	if e.Status == "" {
		return fmt.Sprintf("cannot execute action %s on unset status", e.Action)
	}
	return fmt.Sprintf("cannot execute action %s from status %s", e.Action, e.Status)
}

// ValidationError indicates an invalid reference kind, status value or
// payload field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}
