package handler

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wrapcommand/escalation-service/internal/eventlog/memory"
	"github.com/wrapcommand/escalation-service/internal/middleware"
	"github.com/wrapcommand/escalation-service/internal/model"
	"github.com/wrapcommand/escalation-service/internal/service"
	"github.com/wrapcommand/escalation-service/pkg/logger"
)

const (
	testSecret = "test-secret"
	convA      = "0192f0c1-7a43-7c3e-9a57-0d6c1b8e2f10"
	convB      = "0192f0c1-7a43-7c3e-9a57-0d6c1b8e2f11"
)

type testEnv struct {
	server *httptest.Server
	events *service.EventService
	store  *memory.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	log := logger.NewNop()
	store := memory.New()
	eventSvc := service.NewEventService(store, log)
	escalationSvc := service.NewEscalationService(store, nil, log)

	stream := NewStreamHandler(eventSvc, escalationSvc, 10*time.Millisecond, log)
	router := NewRouter(RouterConfig{
		Health:                 NewHealthHandler(store, nil, log),
		Events:                 NewEventHandler(eventSvc, log),
		Escalations:            NewEscalationHandler(escalationSvc, log),
		Stream:                 stream,
		JWTSecret:              testSecret,
		RateLimitRequests:      1000,
		RateLimitWindow:        time.Minute,
		WriteRateLimitRequests: 1000,
		Logger:                 log,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testEnv{server: srv, events: eventSvc, store: store}
}

func token(t *testing.T, tenantID string, scopes ...string) string {
	t.Helper()
	claims := middleware.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "agent-7",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		TenantID: tenantID,
		Scopes:   scopes,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	return signed
}

func (e *testEnv) do(t *testing.T, method, path, bearer string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func (e *testEnv) seed(t *testing.T, tenantID, conversationID string, types ...model.EventType) {
	t.Helper()
	for _, typ := range types {
		req := &model.AppendEventRequest{Type: typ, Actor: model.ActorAgent}
		if _, err := e.events.Append(context.Background(), tenantID, conversationID, req); err != nil {
			t.Fatalf("seed %s: %v", typ, err)
		}
	}
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/health", "/ready"} {
		resp := env.do(t, http.MethodGet, path, "", nil)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s status = %d, want 200", path, resp.StatusCode)
		}
	}

	resp := env.do(t, http.MethodGet, "/metrics", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /metrics status = %d, want 200", resp.StatusCode)
	}
}

type pingerFunc func(context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestReady_Degraded(t *testing.T) {
	down := pingerFunc(func(context.Context) error { return errors.New("down") })
	up := pingerFunc(func(context.Context) error { return nil })

	tests := []struct {
		name       string
		store      Pinger
		cache      Pinger
		wantStatus int
		wantCache  string
	}{
		{"store down", down, nil, http.StatusServiceUnavailable, ""},
		{"cache down", up, down, http.StatusOK, "unavailable"},
		{"all up", up, up, http.StatusOK, "ok"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.store, tt.cache, logger.NewNop())
			rec := httptest.NewRecorder()
			h.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var body map[string]string
			json.NewDecoder(rec.Body).Decode(&body)
			if body["cache"] != tt.wantCache {
				t.Errorf("cache = %q, want %q", body["cache"], tt.wantCache)
			}
		})
	}
}

func TestAppendEvent(t *testing.T) {
	env := newTestEnv(t)
	writer := token(t, "shop-1", middleware.ScopeEventsWrite)
	reader := token(t, "shop-1")

	tests := []struct {
		name       string
		bearer     string
		path       string
		body       any
		wantStatus int
	}{
		{
			name:       "created",
			bearer:     writer,
			path:       "/api/v1/conversations/" + convA + "/events",
			body:       map[string]any{"event_type": "escalation_sent", "subtype": "design", "actor": "ai"},
			wantStatus: http.StatusCreated,
		},
		{
			name:       "no token",
			path:       "/api/v1/conversations/" + convA + "/events",
			body:       map[string]any{"event_type": "email_sent", "actor": "agent"},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "missing scope",
			bearer:     reader,
			path:       "/api/v1/conversations/" + convA + "/events",
			body:       map[string]any{"event_type": "email_sent", "actor": "agent"},
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "bad conversation id",
			bearer:     writer,
			path:       "/api/v1/conversations/not-a-uuid/events",
			body:       map[string]any{"event_type": "email_sent", "actor": "agent"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "malformed json",
			bearer:     writer,
			path:       "/api/v1/conversations/" + convA + "/events",
			body:       "{not json",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "invalid event type",
			bearer:     writer,
			path:       "/api/v1/conversations/" + convA + "/events",
			body:       map[string]any{"event_type": "Email Sent", "actor": "agent"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing actor",
			bearer:     writer,
			path:       "/api/v1/conversations/" + convA + "/events",
			body:       map[string]any{"event_type": "email_sent"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "body too large",
			bearer:     writer,
			path:       "/api/v1/conversations/" + convA + "/events",
			body:       map[string]any{"event_type": "email_sent", "actor": "agent", "payload": map[string]any{"x": strings.Repeat("a", 200<<10)}},
			wantStatus: http.StatusRequestEntityTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, http.MethodPost, tt.path, tt.bearer, tt.body)
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusCreated {
				event := decode[model.ConversationEvent](t, resp)
				if event.ID == "" || event.Sequence != 1 || event.Subtype != "design" {
					t.Errorf("event = %+v", event)
				}
			}
		})
	}
}

func TestListEvents(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "shop-1", convA,
		model.EventTypeEscalationSent,
		model.EventTypeEmailSent,
		model.EventTypeQuoteDrafted,
	)
	bearer := token(t, "shop-1")

	resp := env.do(t, http.MethodGet, "/api/v1/conversations/"+convA+"/events?after_sequence=1&limit=1", bearer, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	page := decode[model.ListEventsResponse](t, resp)
	if len(page.Events) != 1 || page.Events[0].Type != model.EventTypeEmailSent {
		t.Fatalf("events = %+v, want one email_sent", page.Events)
	}
	if !page.HasMore || page.LastSequence != 2 {
		t.Errorf("has_more = %v, last_sequence = %d; want true, 2", page.HasMore, page.LastSequence)
	}

	for _, q := range []string{"after_sequence=-1", "limit=0", "limit=abc"} {
		resp := env.do(t, http.MethodGet, "/api/v1/conversations/"+convA+"/events?"+q, bearer, nil)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("?%s status = %d, want 400", q, resp.StatusCode)
		}
	}

	// Another tenant sees nothing.
	resp = env.do(t, http.MethodGet, "/api/v1/conversations/"+convA+"/events", token(t, "shop-2"), nil)
	page = decode[model.ListEventsResponse](t, resp)
	if len(page.Events) != 0 {
		t.Errorf("other tenant saw %d events", len(page.Events))
	}
}

func TestEscalationStatus(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "shop-1", convA,
		model.EventTypeEscalationSent,
		model.EventTypeEmailSent,
		model.EventTypeAssetUploaded,
	)
	bearer := token(t, "shop-1")

	resp := env.do(t, http.MethodGet, "/api/v1/conversations/"+convA+"/escalation", bearer, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	got := decode[model.EscalationStatusResponse](t, resp)

	if got.Result.Status != model.EscalationStatusBlocked {
		t.Errorf("status = %s, want blocked", got.Result.Status)
	}
	if want := "Blocked: Quote not attached or dismissed, File not reviewed"; got.Result.Summary != want {
		t.Errorf("summary = %q, want %q", got.Result.Summary, want)
	}
	if got.Label != "Blocked" || got.Color != "warning" || got.LastSequence != 3 {
		t.Errorf("presentation = %s/%s@%d", got.Label, got.Color, got.LastSequence)
	}

	// Unknown conversations are open, not 404.
	resp = env.do(t, http.MethodGet, "/api/v1/conversations/"+convB+"/escalation", bearer, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unknown conversation status = %d, want 200", resp.StatusCode)
	}
	got = decode[model.EscalationStatusResponse](t, resp)
	if got.Result.Status != model.EscalationStatusOpen || got.Result.Missing == nil {
		t.Errorf("unknown conversation = %+v, want open with empty missing", got.Result)
	}
}

func TestEscalationStatus_MissingSerializesAsArray(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodGet, "/api/v1/conversations/"+convA+"/escalation", token(t, "shop-1"), nil)

	var raw map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	var result map[string]json.RawMessage
	if err := json.Unmarshal(raw["result"], &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if string(result["missing"]) != "[]" {
		t.Errorf("missing = %s, want []", result["missing"])
	}
}

func TestBatchEscalations(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "shop-1", convA, model.EventTypeEscalationSent, model.EventTypeMarkedComplete)
	bearer := token(t, "shop-1")

	resp := env.do(t, http.MethodGet, "/api/v1/escalations?conversation_id="+convB+","+convA, bearer, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	got := decode[model.ListEscalationStatusesResponse](t, resp)
	if len(got.Statuses) != 2 {
		t.Fatalf("len(statuses) = %d, want 2", len(got.Statuses))
	}
	if got.Statuses[0].ConversationID != convB || got.Statuses[0].Result.Status != model.EscalationStatusOpen {
		t.Errorf("statuses[0] = %+v", got.Statuses[0])
	}
	if got.Statuses[1].ConversationID != convA || got.Statuses[1].Result.Status != model.EscalationStatusComplete {
		t.Errorf("statuses[1] = %+v", got.Statuses[1])
	}

	tooMany := make([]string, service.MaxBatchConversations+1)
	for i := range tooMany {
		tooMany[i] = convA
	}

	for name, query := range map[string]string{
		"empty":    "",
		"bad id":   "?conversation_id=nope",
		"too many": "?conversation_id=" + strings.Join(tooMany, ","),
	} {
		resp := env.do(t, http.MethodGet, "/api/v1/escalations"+query, bearer, nil)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", name, resp.StatusCode)
		}
	}
}

type sseFrame struct {
	event string
	id    string
	data  string
}

func readFrames(t *testing.T, scanner *bufio.Scanner, frames chan<- sseFrame) {
	t.Helper()
	var cur sseFrame
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			frames <- cur
			cur = sseFrame{}
		case strings.HasPrefix(line, "event: "):
			cur.event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "id: "):
			cur.id = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "data: "):
			cur.data = strings.TrimPrefix(line, "data: ")
		}
	}
	close(frames)
}

func nextFrame(t *testing.T, frames <-chan sseFrame, want string) sseFrame {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case f, ok := <-frames:
			if !ok {
				t.Fatalf("stream closed waiting for %q", want)
			}
			if f.event == "heartbeat" {
				continue
			}
			if f.event != want {
				t.Fatalf("frame = %q, want %q", f.event, want)
			}
			return f
		case <-timeout:
			t.Fatalf("timed out waiting for %q", want)
		}
	}
}

func TestStream(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "shop-1", convA, model.EventTypeEscalationSent, model.EventTypeEmailSent)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, env.server.URL+"/api/v1/conversations/"+convA+"/escalation/stream?after_sequence=1", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, "shop-1"))

	resp, err := env.server.Client().Do(req)
	if err != nil {
		t.Fatalf("GET stream error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	frames := make(chan sseFrame, 16)
	go readFrames(t, bufio.NewScanner(resp.Body), frames)

	nextFrame(t, frames, "connected")

	// Only events after the cursor are replayed.
	f := nextFrame(t, frames, "event")
	if f.id != "2" {
		t.Errorf("replayed id = %q, want 2", f.id)
	}

	f = nextFrame(t, frames, "status")
	var status model.EscalationStatusResponse
	json.Unmarshal([]byte(f.data), &status)
	if status.Result.Status != model.EscalationStatusBlocked || status.LastSequence != 2 {
		t.Errorf("initial status = %s@%d, want blocked@2", status.Result.Status, status.LastSequence)
	}

	env.seed(t, "shop-1", convA, model.EventTypeMarkedComplete)

	f = nextFrame(t, frames, "event")
	if f.id != "3" {
		t.Errorf("live event id = %q, want 3", f.id)
	}
	f = nextFrame(t, frames, "status")
	json.Unmarshal([]byte(f.data), &status)
	if status.Result.Status != model.EscalationStatusComplete || status.LastSequence != 3 {
		t.Errorf("updated status = %s@%d, want complete@3", status.Result.Status, status.LastSequence)
	}
}

func TestStream_RejectsBadInput(t *testing.T) {
	env := newTestEnv(t)
	bearer := token(t, "shop-1")

	resp := env.do(t, http.MethodGet, "/api/v1/conversations/nope/escalation/stream", bearer, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want 400", resp.StatusCode)
	}

	resp = env.do(t, http.MethodGet, "/api/v1/conversations/"+convA+"/escalation/stream?after_sequence=x", bearer, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad cursor status = %d, want 400", resp.StatusCode)
	}
}
