package workflow

import (
	"requestline/internal/domain"
	"requestline/internal/registry"
)

// Dispatcher resolves (request type, action name) to a bound action. Types
// come from the process-wide type registry populated at startup.
type Dispatcher struct {
	Types  *registry.Registry
	Events EventAppender
}

// TypeOf returns the request's type descriptor.
func (d Dispatcher) TypeOf(r *domain.Request) (*RequestType, error) {
	t, err := d.Types.Lookup(r.TypeID, false, nil)
	if err != nil {
		return nil, err
	}
	return t.(*RequestType), nil
}

// For instantiates the named action bound to r. Unknown action names fail
// with NoSuchActionError.
func (d Dispatcher) For(r *domain.Request, actionName string) (*BoundAction, error) {
	t, err := d.TypeOf(r)
	if err != nil {
		return nil, err
	}
	a, ok := t.Actions[actionName]
	if !ok {
		return nil, NoSuchActionError{Action: actionName}
	}
	return &BoundAction{
		Name:    actionName,
		Action:  a,
		Type:    t,
		Request: r,
		Events:  d.Events,
	}, nil
}
