package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"requestline/internal/app"
	"requestline/internal/config"
	"requestline/internal/db"
	"requestline/internal/migrate"
	"requestline/internal/server"
)

const testJWTSecret = "test-secret"

type testServer struct {
	t       *testing.T
	baseURL string
	client  *http.Client
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWith(t, config.Default("requestline"))
}

func newTestServerWith(t *testing.T, cfg *config.Config) *testServer {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e, err := app.BuildEngine(conn, cfg)
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	e.Logger = log.New(io.Discard, "", 0)

	handler, err := server.New(server.Config{
		Engine: e,
		Auth: server.AuthConfig{
			JWTSecret:              testJWTSecret,
			AllowLegacyActorHeader: true,
			Logger:                 log.New(io.Discard, "", 0),
		},
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	t.Cleanup(func() { srv.Shutdown(context.Background()) })

	return &testServer{
		t:       t,
		baseURL: "http://" + ln.Addr().String(),
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

// doJSON issues a request and decodes the JSON response into out (when
// non-nil), returning the HTTP status.
func (s *testServer) doJSON(method, path string, headers map[string]string, body any, out any) int {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			s.t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, s.baseURL+path, &buf)
	if err != nil {
		s.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		s.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		s.t.Fatalf("read body: %v", err)
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			s.t.Fatalf("decode %s %s (%d): %v: %s", method, path, resp.StatusCode, err, data)
		}
	}
	return resp.StatusCode
}

func actor(id string) map[string]string {
	return map[string]string{"X-Actor-Id": id}
}

type errorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

type requestBody struct {
	ID        string            `json:"id"`
	Number    string            `json:"number"`
	Type      string            `json:"type"`
	Status    string            `json:"status"`
	Title     string            `json:"title"`
	CreatedBy map[string]string `json:"created_by"`
	Receiver  map[string]string `json:"receiver"`
	IsOpen    bool              `json:"is_open"`
	IsClosed  bool              `json:"is_closed"`
	Revision  int64             `json:"revision"`
}

type eventBody struct {
	ID      int64          `json:"id"`
	Type    string         `json:"type"`
	ActorID string         `json:"actor_id"`
	Payload map[string]any `json:"payload"`
}

func (s *testServer) seedUsers(ids ...string) {
	s.t.Helper()
	for _, id := range ids {
		status := s.doJSON(http.MethodPost, "/v0/users", actor("system"), map[string]string{"id": id}, nil)
		if status != http.StatusCreated {
			s.t.Fatalf("seed user %s: status %d", id, status)
		}
	}
}

func (s *testServer) createSubmitted(creator, receiver, title string) requestBody {
	s.t.Helper()
	var r requestBody
	status := s.doJSON(http.MethodPost, "/v0/requests", actor(creator), map[string]any{
		"title":    title,
		"receiver": map[string]string{"user": receiver},
		"submit":   true,
	}, &r)
	if status != http.StatusCreated {
		s.t.Fatalf("create request: status %d", status)
	}
	return r
}

func TestHealthNeedsNoAuth(t *testing.T) {
	s := newTestServer(t)
	var body map[string]string
	if status := s.doJSON(http.MethodGet, "/v0/health", nil, nil, &body); status != http.StatusOK {
		t.Fatalf("health: %d", status)
	}
	if body["status"] != "ok" {
		t.Fatalf("health body: %v", body)
	}
}

func TestUnauthenticated(t *testing.T) {
	s := newTestServer(t)
	var envelope errorEnvelope
	status := s.doJSON(http.MethodGet, "/v0/requests", nil, nil, &envelope)
	if status != http.StatusUnauthorized {
		t.Fatalf("status: %d", status)
	}
	if envelope.Error.Code != "unauthorized" {
		t.Fatalf("code: %s", envelope.Error.Code)
	}
}

func TestRequestLifecycle(t *testing.T) {
	s := newTestServer(t)
	s.seedUsers("alice", "bob")

	created := s.createSubmitted("alice", "bob", "Access please")
	if created.Status != "submitted" || !created.IsOpen || created.Number != "1" {
		t.Fatalf("created: %+v", created)
	}
	if created.CreatedBy["user"] != "alice" {
		t.Fatalf("created_by: %v", created.CreatedBy)
	}

	var accepted requestBody
	status := s.doJSON(http.MethodPost, "/v0/requests/"+created.ID+"/actions/accept", actor("bob"), map[string]any{}, &accepted)
	if status != http.StatusOK || accepted.Status != "accepted" || !accepted.IsClosed {
		t.Fatalf("accept: %d %+v", status, accepted)
	}

	// Replaying the action conflicts with the status window.
	var envelope errorEnvelope
	status = s.doJSON(http.MethodPost, "/v0/requests/"+created.ID+"/actions/accept", actor("bob"), map[string]any{}, &envelope)
	if status != http.StatusConflict || envelope.Error.Code != "cannot_execute_action" {
		t.Fatalf("replay: %d %+v", status, envelope)
	}
	if envelope.Error.Details["action"] != "accept" || envelope.Error.Details["status"] != "accepted" {
		t.Fatalf("details: %v", envelope.Error.Details)
	}

	var fetched requestBody
	if status := s.doJSON(http.MethodGet, "/v0/requests/"+created.ID, actor("alice"), nil, &fetched); status != http.StatusOK {
		t.Fatalf("get: %d", status)
	}
	if fetched.Status != "accepted" || fetched.Revision != 2 {
		t.Fatalf("fetched: %+v", fetched)
	}

	var timeline []eventBody
	if status := s.doJSON(http.MethodGet, "/v0/requests/"+created.ID+"/timeline", actor("alice"), nil, &timeline); status != http.StatusOK {
		t.Fatalf("timeline: %d", status)
	}
	want := []string{"request.create", "request.status", "request.submit", "request.status", "request.accept", "request.status"}
	if len(timeline) != len(want) {
		t.Fatalf("timeline length: %d", len(timeline))
	}
	for i, evt := range timeline {
		if evt.Type != want[i] {
			t.Fatalf("timeline[%d]: want %s got %s", i, want[i], evt.Type)
		}
	}
}

func TestActionErrors(t *testing.T) {
	s := newTestServer(t)
	s.seedUsers("alice", "bob", "mallory")
	created := s.createSubmitted("alice", "bob", "Gated")

	var envelope errorEnvelope
	status := s.doJSON(http.MethodPost, "/v0/requests/"+created.ID+"/actions/escalate", actor("bob"), map[string]any{}, &envelope)
	if status != http.StatusNotFound || envelope.Error.Code != "no_such_action" {
		t.Fatalf("unknown action: %d %+v", status, envelope)
	}

	envelope = errorEnvelope{}
	status = s.doJSON(http.MethodPost, "/v0/requests/"+created.ID+"/actions/accept", actor("mallory"), map[string]any{}, &envelope)
	if status != http.StatusForbidden || envelope.Error.Code != "forbidden" {
		t.Fatalf("foreign accept: %d %+v", status, envelope)
	}

	envelope = errorEnvelope{}
	status = s.doJSON(http.MethodGet, "/v0/requests/no-such-id", actor("alice"), nil, &envelope)
	if status != http.StatusNotFound || envelope.Error.Code != "not_found" {
		t.Fatalf("missing request: %d %+v", status, envelope)
	}

	// A receiver of the wrong kind is a validation failure, not a 500.
	envelope = errorEnvelope{}
	status = s.doJSON(http.MethodPost, "/v0/requests", actor("alice"), map[string]any{
		"title":    "bad",
		"receiver": map[string]string{"record": "doc-1"},
	}, &envelope)
	if status != http.StatusBadRequest || envelope.Error.Code != "validation_failed" {
		t.Fatalf("bad receiver: %d %+v", status, envelope)
	}
}

func TestComments(t *testing.T) {
	s := newTestServer(t)
	s.seedUsers("alice", "bob")
	created := s.createSubmitted("alice", "bob", "talk")

	var evt eventBody
	status := s.doJSON(http.MethodPost, "/v0/requests/"+created.ID+"/comments", actor("bob"), map[string]string{"content": "on it"}, &evt)
	if status != http.StatusOK || evt.Type != "request.comment" || evt.ActorID != "bob" {
		t.Fatalf("comment: %d %+v", status, evt)
	}

	var envelope errorEnvelope
	status = s.doJSON(http.MethodPost, "/v0/requests/"+created.ID+"/comments", actor("bob"), map[string]string{"content": "  "}, &envelope)
	if status != http.StatusBadRequest || envelope.Error.Code != "validation_failed" {
		t.Fatalf("blank comment: %d %+v", status, envelope)
	}
}

func TestSweepRequiresSystem(t *testing.T) {
	s := newTestServer(t)
	s.seedUsers("alice", "bob")

	var envelope errorEnvelope
	status := s.doJSON(http.MethodPost, "/v0/sweep/expire", actor("alice"), nil, &envelope)
	if status != http.StatusForbidden || envelope.Error.Code != "forbidden" {
		t.Fatalf("human sweep: %d %+v", status, envelope)
	}

	var result struct {
		Candidates int `json:"candidates"`
		Expired    int `json:"expired"`
	}
	if status := s.doJSON(http.MethodPost, "/v0/sweep/expire", actor("system"), nil, &result); status != http.StatusOK {
		t.Fatalf("system sweep: %d", status)
	}
	if result.Candidates != 0 {
		t.Fatalf("sweep result: %+v", result)
	}
}

func signToken(t *testing.T, secret, subject string) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestJWTAuth(t *testing.T) {
	s := newTestServer(t)
	s.seedUsers("bob")

	headers := map[string]string{"Authorization": "Bearer " + signToken(t, testJWTSecret, "bob")}
	var items []requestBody
	if status := s.doJSON(http.MethodGet, "/v0/requests", headers, nil, &items); status != http.StatusOK {
		t.Fatalf("jwt list: %d", status)
	}

	bad := map[string]string{"Authorization": "Bearer " + signToken(t, "wrong-secret", "bob")}
	var envelope errorEnvelope
	status := s.doJSON(http.MethodGet, "/v0/requests", bad, nil, &envelope)
	if status != http.StatusUnauthorized || envelope.Error.Code != "invalid_credentials" {
		t.Fatalf("forged token: %d %+v", status, envelope)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	s := newTestServer(t)
	s.seedUsers("alice", "bob")

	var key struct {
		ID  string `json:"id"`
		Key string `json:"key"`
	}
	status := s.doJSON(http.MethodPost, "/v0/apikeys", actor("system"), map[string]string{
		"actor_id": "alice",
		"name":     "ci",
	}, &key)
	if status != http.StatusCreated || key.Key == "" {
		t.Fatalf("create key: %d %+v", status, key)
	}

	// The raw key authenticates as its actor.
	var created requestBody
	status = s.doJSON(http.MethodPost, "/v0/requests", map[string]string{"X-Api-Key": key.Key}, map[string]any{
		"title":    "via api key",
		"receiver": map[string]string{"user": "bob"},
		"submit":   true,
	}, &created)
	if status != http.StatusCreated || created.CreatedBy["user"] != "alice" {
		t.Fatalf("api key create: %d %+v", status, created)
	}

	var envelope errorEnvelope
	status = s.doJSON(http.MethodGet, "/v0/requests", map[string]string{"X-Api-Key": "bogus"}, nil, &envelope)
	if status != http.StatusUnauthorized || envelope.Error.Code != "invalid_credentials" {
		t.Fatalf("bogus key: %d %+v", status, envelope)
	}

	if status := s.doJSON(http.MethodDelete, "/v0/apikeys/"+key.ID, actor("system"), nil, nil); status != http.StatusNoContent {
		t.Fatalf("delete key: %d", status)
	}
	status = s.doJSON(http.MethodGet, "/v0/requests", map[string]string{"X-Api-Key": key.Key}, nil, nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("deleted key still works: %d", status)
	}
}

func TestListFilters(t *testing.T) {
	s := newTestServer(t)
	s.seedUsers("alice", "bob")
	s.createSubmitted("alice", "bob", "Grant doc access")
	s.createSubmitted("alice", "bob", "Something else")

	var items []requestBody
	if status := s.doJSON(http.MethodGet, "/v0/requests?status=submitted", actor("alice"), nil, &items); status != http.StatusOK {
		t.Fatalf("list: %d", status)
	}
	if len(items) != 2 {
		t.Fatalf("submitted: %d", len(items))
	}
	if status := s.doJSON(http.MethodGet, "/v0/requests?q=doc", actor("alice"), nil, &items); status != http.StatusOK {
		t.Fatalf("query: %d", status)
	}
	if len(items) != 1 || items[0].Title != "Grant doc access" {
		t.Fatalf("query result: %+v", items)
	}
}

func TestRequestTypes(t *testing.T) {
	s := newTestServer(t)
	var types []struct {
		ID       string            `json:"id"`
		Name     string            `json:"name"`
		Statuses map[string]string `json:"statuses"`
	}
	if status := s.doJSON(http.MethodGet, "/v0/request-types", actor("alice"), nil, &types); status != http.StatusOK {
		t.Fatalf("types: %d", status)
	}
	if len(types) != 2 || types[0].ID != "generic-request" {
		t.Fatalf("types: %+v", types)
	}
	if types[0].Statuses["submitted"] != "open" {
		t.Fatalf("status kinds: %v", types[0].Statuses)
	}
}

func TestOpenAPIAndDocs(t *testing.T) {
	s := newTestServer(t)

	resp, err := s.client.Get(s.baseURL + "/v0/openapi.json")
	if err != nil {
		t.Fatalf("openapi: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("openapi status: %d", resp.StatusCode)
	}
	var oas struct {
		Paths map[string]any `json:"paths"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&oas); err != nil {
		t.Fatalf("decode openapi: %v", err)
	}
	for _, p := range []string{"/v0/requests", "/v0/requests/{id}/actions/{action}", "/v0/sweep/expire"} {
		if _, ok := oas.Paths[p]; !ok {
			t.Fatalf("openapi missing path %s", p)
		}
	}

	docs, err := s.client.Get(s.baseURL + "/docs")
	if err != nil {
		t.Fatalf("docs: %v", err)
	}
	defer docs.Body.Close()
	if docs.StatusCode != http.StatusOK {
		t.Fatalf("docs status: %d", docs.StatusCode)
	}
	html, _ := io.ReadAll(docs.Body)
	if !bytes.Contains(html, []byte("swagger-ui")) {
		t.Fatal("docs page does not embed swagger-ui")
	}
}

func TestWebhookDeliversCommentEvents(t *testing.T) {
	delivered := make(chan string, 32)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		delivered <- r.Header.Get("X-Requestline-Event")
	}))
	defer hook.Close()

	cfg := config.Default("requestline")
	cfg.Webhooks = []config.WebhookConfig{{URL: hook.URL}}
	s := newTestServerWith(t, cfg)
	s.seedUsers("alice", "bob")
	created := s.createSubmitted("alice", "bob", "notify me")

	status := s.doJSON(http.MethodPost, "/v0/requests/"+created.ID+"/comments", actor("alice"), map[string]string{"content": "ping"}, nil)
	if status != http.StatusOK {
		t.Fatalf("comment: %d", status)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case evt := <-delivered:
			if evt == "request.comment" {
				return
			}
		case <-deadline:
			t.Fatal("comment event never delivered to the webhook")
		}
	}
}

func TestGroupEndpoints(t *testing.T) {
	s := newTestServer(t)
	s.seedUsers("alice", "carol")

	status := s.doJSON(http.MethodPost, "/v0/groups", actor("system"), map[string]any{
		"id":      "curators",
		"members": []string{"carol"},
	}, nil)
	if status != http.StatusCreated {
		t.Fatalf("create group: %d", status)
	}

	// Group receivers gate actions on membership.
	var created requestBody
	status = s.doJSON(http.MethodPost, "/v0/requests", actor("alice"), map[string]any{
		"title":    "for curators",
		"receiver": map[string]string{"group": "curators"},
		"submit":   true,
	}, &created)
	if status != http.StatusCreated {
		t.Fatalf("create: %d", status)
	}
	var accepted requestBody
	status = s.doJSON(http.MethodPost, fmt.Sprintf("/v0/requests/%s/actions/accept", created.ID), actor("carol"), map[string]any{}, &accepted)
	if status != http.StatusOK || accepted.Status != "accepted" {
		t.Fatalf("member accept: %d %+v", status, accepted)
	}

	var envelope errorEnvelope
	status = s.doJSON(http.MethodPut, "/v0/groups/no-such/members/carol", actor("system"), nil, &envelope)
	if status != http.StatusNotFound || envelope.Error.Code != "not_found" {
		t.Fatalf("missing group: %d %+v", status, envelope)
	}
}
