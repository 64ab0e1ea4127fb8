package identity

import "fmt"

// Need is a capability token. An identity presenting a need is treated as
// equivalent to the entity that grants it for permission purposes.
type Need struct {
	Kind  string
	Value string
}

func (n Need) String() string {
	return fmt.Sprintf("%s:%s", n.Kind, n.Value)
}

// UserNeed is granted by being a specific user.
func UserNeed(id string) Need { return Need{Kind: "user", Value: id} }

// GroupNeed is granted by membership in a specific group.
func GroupNeed(id string) Need { return Need{Kind: "group", Value: id} }

// Identity is either a human user or the system automation identity.
// The system identity bypasses need checks and is the only identity
// allowed to run automated transitions such as expire.
type Identity struct {
	UserID string
	System bool
	Needs  []Need
}

// User returns a human identity presenting the given needs.
func User(id string, needs ...Need) Identity {
	return Identity{UserID: id, Needs: append([]Need{UserNeed(id)}, needs...)}
}

// SystemIdentity returns the automation identity.
func SystemIdentity() Identity {
	return Identity{UserID: "system", System: true}
}

// ActorID returns the id recorded in the event log for this identity.
func (i Identity) ActorID() string {
	if i.System {
		return "system"
	}
	return i.UserID
}

// HasAny reports whether the identity presents at least one of the needs.
// The system identity matches everything.
func (i Identity) HasAny(needs []Need) bool {
	if i.System {
		return true
	}
	for _, want := range needs {
		for _, have := range i.Needs {
			if have == want {
				return true
			}
		}
	}
	return false
}
