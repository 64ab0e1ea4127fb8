package server

import (
	"encoding/json"
	"sort"

	"requestline/internal/domain"
	"requestline/internal/engine"
	"requestline/internal/workflow"
)

// Request payloads

type CreateRequestRequest struct {
	Type      string            `json:"type,omitempty"`
	Title     string            `json:"title"`
	CreatedBy map[string]string `json:"created_by,omitempty"`
	Receiver  map[string]string `json:"receiver,omitempty"`
	Topic     map[string]string `json:"topic,omitempty"`
	ExpiresAt *string           `json:"expires_at,omitempty" format:"date-time"`
	Payload   map[string]any    `json:"payload,omitempty"`
	Submit    bool              `json:"submit,omitempty"`
}

type ActionRequest struct {
	Payload map[string]any `json:"payload,omitempty"`
}

type CommentRequest struct {
	Content string `json:"content"`
}

type CreateUserRequest struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

type CreateGroupRequest struct {
	ID      string   `json:"id"`
	Name    string   `json:"name,omitempty"`
	Members []string `json:"members,omitempty"`
}

type CreateRecordRequest struct {
	ID      string `json:"id"`
	Title   string `json:"title,omitempty"`
	OwnerID string `json:"owner_id"`
}

type CreateAPIKeyRequest struct {
	ActorID string `json:"actor_id"`
	Name    string `json:"name,omitempty"`
}

// Response payloads

type RequestResponse struct {
	ID        string            `json:"id"`
	Number    string            `json:"number"`
	Type      string            `json:"type"`
	TypeName  string            `json:"type_name,omitempty"`
	Status    string            `json:"status"`
	Title     string            `json:"title,omitempty"`
	CreatedBy map[string]string `json:"created_by,omitempty"`
	Receiver  map[string]string `json:"receiver,omitempty"`
	Topic     map[string]string `json:"topic,omitempty"`
	ExpiresAt *string           `json:"expires_at,omitempty" format:"date-time"`
	IsOpen    bool              `json:"is_open"`
	IsClosed  bool              `json:"is_closed"`
	IsExpired bool              `json:"is_expired"`
	Revision  int64             `json:"revision"`
	CreatedAt string            `json:"created_at" format:"date-time"`
	UpdatedAt string            `json:"updated_at" format:"date-time"`
}

type EventResponse struct {
	ID        int64          `json:"id"`
	TS        string         `json:"ts" format:"date-time"`
	Type      string         `json:"type"`
	RequestID string         `json:"request_id"`
	ActorID   string         `json:"actor_id"`
	Payload   map[string]any `json:"payload,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type ActionResponse struct {
	Name      string   `json:"name"`
	From      []string `json:"from,omitempty"`
	FromUnset bool     `json:"from_unset,omitempty"`
	To        string   `json:"to"`
}

type TypeResponse struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Statuses map[string]string `json:"statuses"`
	Actions  []ActionResponse  `json:"actions"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
	// Key is only present on creation; the server stores a hash.
	Key string `json:"key,omitempty"`
}

func requestResponse(v engine.RequestView) RequestResponse {
	return RequestResponse{
		ID:        v.ID,
		Number:    v.Number,
		Type:      v.TypeID,
		TypeName:  v.TypeName,
		Status:    v.Status,
		Title:     v.Title,
		CreatedBy: v.CreatedBy,
		Receiver:  v.Receiver,
		Topic:     v.Topic,
		ExpiresAt: v.ExpiresAt,
		IsOpen:    v.IsOpen,
		IsClosed:  v.IsClosed,
		IsExpired: v.IsExpired,
		Revision:  v.Revision,
		CreatedAt: v.CreatedAt,
		UpdatedAt: v.UpdatedAt,
	}
}

func mapRequests(items []engine.RequestView) []RequestResponse {
	out := make([]RequestResponse, 0, len(items))
	for _, v := range items {
		out = append(out, requestResponse(v))
	}
	return out
}

func eventResponse(evt domain.Event) EventResponse {
	out := EventResponse{
		ID:        evt.ID,
		TS:        evt.TS,
		Type:      evt.Type,
		RequestID: evt.RequestID,
		ActorID:   evt.ActorID,
	}
	if evt.Payload != "" {
		var payload map[string]any
		if err := json.Unmarshal([]byte(evt.Payload), &payload); err == nil {
			out.Payload = payload
		}
	}
	return out
}

func mapEvents(items []domain.Event) []EventResponse {
	out := make([]EventResponse, 0, len(items))
	for _, evt := range items {
		out = append(out, eventResponse(evt))
	}
	return out
}

func typeResponse(t *workflow.RequestType) TypeResponse {
	statuses := make(map[string]string, len(t.Statuses))
	for _, s := range t.Statuses {
		statuses[s.Name] = string(s.Kind)
	}
	actions := make([]ActionResponse, 0, len(t.Actions))
	for name, a := range t.Actions {
		actions = append(actions, ActionResponse{
			Name:      name,
			From:      a.From,
			FromUnset: a.FromUnset,
			To:        a.To,
		})
	}
	sort.Slice(actions, func(i, j int) bool { return actions[i].Name < actions[j].Name })
	return TypeResponse{ID: t.ID, Name: t.Name, Statuses: statuses, Actions: actions}
}

func refFrom(m map[string]string) domain.Ref {
	if len(m) == 0 {
		return nil
	}
	return domain.Ref(m)
}
