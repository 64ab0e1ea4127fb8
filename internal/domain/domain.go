package domain

// Ref is a reference dict: exactly one kind tag mapped to an entity id,
// e.g. {"user": "42"}. Zero or more than one key is invalid.
type Ref map[string]string

// Valid reports whether the ref holds exactly one kind/id pair.
func (r Ref) Valid() bool {
	if len(r) != 1 {
		return false
	}
	for k, v := range r {
		if k == "" || v == "" {
			return false
		}
	}
	return true
}

// Kind returns the single kind tag, or "" when the ref is absent or invalid.
func (r Ref) Kind() string {
	if len(r) != 1 {
		return ""
	}
	for k := range r {
		return k
	}
	return ""
}

// ID returns the referenced entity id, or "" when absent or invalid.
func (r Ref) ID() string {
	if len(r) != 1 {
		return ""
	}
	for _, v := range r {
		return v
	}
	return ""
}

type Request struct {
	ID        string  `json:"id"`
	Number    string  `json:"number"`
	TypeID    string  `json:"type"`
	Status    string  `json:"status"`
	Title     string  `json:"title"`
	CreatedBy Ref     `json:"created_by,omitempty"`
	Receiver  Ref     `json:"receiver,omitempty"`
	Topic     Ref     `json:"topic,omitempty"`
	ExpiresAt *string `json:"expires_at,omitempty" format:"date-time"`
	Revision  int64   `json:"revision"`
	CreatedAt string  `json:"created_at" format:"date-time"`
	UpdatedAt string  `json:"updated_at" format:"date-time"`
}

type Event struct {
	ID        int64  `json:"id"`
	TS        string `json:"ts" format:"date-time"`
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
	ActorID   string `json:"actor_id"`
	Payload   string `json:"payload_json"`
}

type User struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Group struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Record struct {
	ID        string `json:"id"`
	Title     string `json:"title,omitempty"`
	OwnerID   string `json:"owner_id"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
