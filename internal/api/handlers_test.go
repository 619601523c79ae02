package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/gin-gonic/gin"

	"admindash/internal/bridge"
	"admindash/internal/config"
	"admindash/internal/models"
	"admindash/internal/ratelimit"
	"admindash/internal/service/ai"
	"admindash/internal/service/notify"
	"admindash/internal/service/users"
	"admindash/internal/storage"
)

type testServer struct {
	router   *gin.Engine
	users    *users.Service
	model    *mockCompleter
	mailer   *mockMailer
	notifier *mockNotifier
}

func TestUsersCRUDFlow(t *testing.T) {
	srv := newTestServer(t, Deps{})

	createResp := doJSONRequest(t, srv.router, http.MethodPost, "/api/users", map[string]string{
		"name":  "Ada",
		"email": "ada@example.com",
		"phone": "+15550100",
	}, nil)
	assertStatus(t, createResp, http.StatusCreated)
	var created struct {
		Success bool        `json:"success"`
		Message string      `json:"message"`
		User    models.User `json:"user"`
	}
	decodeJSON(t, createResp.Body.Bytes(), &created)
	if !created.Success || created.User.ID == 0 {
		t.Fatalf("unexpected create response: %s", createResp.Body.String())
	}
	if created.Message != "User created successfully" {
		t.Fatalf("unexpected message %q", created.Message)
	}

	dupResp := doJSONRequest(t, srv.router, http.MethodPost, "/api/users", map[string]string{
		"name":  "Ada Again",
		"email": "ada@example.com",
	}, nil)
	assertStatus(t, dupResp, http.StatusConflict)

	updateResp := doJSONRequest(t, srv.router, http.MethodPut, "/api/users", map[string]any{
		"id":    created.User.ID,
		"phone": "+15550199",
	}, nil)
	assertStatus(t, updateResp, http.StatusOK)
	var updated struct {
		User models.User `json:"user"`
	}
	decodeJSON(t, updateResp.Body.Bytes(), &updated)
	if updated.User.Phone != "+15550199" || updated.User.Name != "Ada" {
		t.Fatalf("partial update changed the wrong fields: %+v", updated.User)
	}

	deleteResp := doJSONRequest(t, srv.router, http.MethodDelete, "/api/users", map[string]any{
		"id": fmt.Sprint(created.User.ID),
	}, nil)
	assertStatus(t, deleteResp, http.StatusOK)

	listResp := doJSONRequest(t, srv.router, http.MethodGet, "/api/users", nil, nil)
	assertStatus(t, listResp, http.StatusOK)
	var listed struct {
		Success bool          `json:"success"`
		Users   []models.User `json:"users"`
	}
	decodeJSON(t, listResp.Body.Bytes(), &listed)
	if len(listed.Users) != 1 {
		t.Fatalf("expected soft-deleted user to stay listed, got %d", len(listed.Users))
	}
	if listed.Users[0].DeletedAt == nil {
		t.Fatalf("expected deletedAt to be set")
	}
	if listed.Users[0].Phone != "+15550199" {
		t.Fatalf("soft delete changed phone: %q", listed.Users[0].Phone)
	}
}

func TestUsersValidation(t *testing.T) {
	srv := newTestServer(t, Deps{})

	resp := doJSONRequest(t, srv.router, http.MethodPost, "/api/users", map[string]string{"name": "Ada"}, nil)
	assertStatus(t, resp, http.StatusBadRequest)
	assertError(t, resp, "Email is required")

	resp = doJSONRequest(t, srv.router, http.MethodPut, "/api/users", map[string]string{"name": "x"}, nil)
	assertStatus(t, resp, http.StatusBadRequest)
	assertError(t, resp, "User ID is required")

	resp = doJSONRequest(t, srv.router, http.MethodDelete, "/api/users", map[string]any{}, nil)
	assertStatus(t, resp, http.StatusBadRequest)
	assertError(t, resp, "User ID is required")

	resp = doJSONRequest(t, srv.router, http.MethodPut, "/api/users", map[string]any{"id": 404, "name": "x"}, nil)
	assertStatus(t, resp, http.StatusNotFound)

	resp = doJSONRequest(t, srv.router, http.MethodDelete, "/api/users", map[string]any{"id": 404}, nil)
	assertStatus(t, resp, http.StatusNotFound)

	resp = doJSONRequest(t, srv.router, http.MethodGet, "/api/users?sort=password", nil, nil)
	assertStatus(t, resp, http.StatusBadRequest)
}

func TestUserChangesNotifyAdmin(t *testing.T) {
	srv := newTestServer(t, Deps{Notifier: &mockNotifier{err: errors.New("ses throttled")}})

	resp := doJSONRequest(t, srv.router, http.MethodPost, "/api/users", map[string]string{
		"name":  "Ada",
		"email": "ada@example.com",
	}, nil)
	// notifier failure must not change the response
	assertStatus(t, resp, http.StatusCreated)
	if len(srv.notifier.kinds) != 1 || srv.notifier.kinds[0] != notify.ChangeCreated {
		t.Fatalf("expected one created notice, got %v", srv.notifier.kinds)
	}
}

func TestAnalyticsSingleDay(t *testing.T) {
	srv := newTestServer(t, Deps{Location: time.UTC})

	inDay := time.Date(2024, 1, 15, 23, 59, 59, 0, time.UTC)
	before := time.Date(2024, 1, 14, 12, 0, 0, 0, time.UTC)
	if _, err := srv.users.Import(context.Background(), []users.SeedUser{
		{Name: "a", Email: "a@x", CreatedAt: &inDay, UpdatedAt: &inDay},
		{Name: "b", Email: "b@x", CreatedAt: &before, UpdatedAt: &inDay, DeletedAt: &inDay},
		{Name: "c", Email: "c@x", CreatedAt: &before, UpdatedAt: &before},
	}); err != nil {
		t.Fatalf("seed users: %v", err)
	}

	resp := doJSONRequest(t, srv.router, http.MethodPost, "/api/analytics", map[string]any{
		"date": map[string]string{"from": "2024-01-15", "to": "2024-01-15"},
	}, nil)
	assertStatus(t, resp, http.StatusOK)
	var counts users.Counts
	decodeJSON(t, resp.Body.Bytes(), &counts)
	if counts != (users.Counts{Created: 1, Modified: 2, Deleted: 1}) {
		t.Fatalf("unexpected counts %+v", counts)
	}

	resp = doJSONRequest(t, srv.router, http.MethodPost, "/api/analytics", map[string]any{
		"date": map[string]string{"from": "2024-01-15"},
	}, nil)
	assertStatus(t, resp, http.StatusBadRequest)

	resp = doJSONRequest(t, srv.router, http.MethodPost, "/api/analytics", map[string]any{
		"date": map[string]string{"from": "2024-01-16", "to": "2024-01-15"},
	}, nil)
	assertStatus(t, resp, http.StatusBadRequest)
}

func TestChatExecutesAction(t *testing.T) {
	srv := newTestServer(t, Deps{})
	srv.model.reply = "I'll add Bob now.\n```json\n" +
		`{"action":"createUser","parameters":{"name":"Bob","email":"bob@example.com","phone":"555"}}` +
		"\n```"

	resp := doJSONRequest(t, srv.router, http.MethodPost, "/api/ai", map[string]any{
		"sample":           "Add Bob",
		"userData":         []any{},
		"pastUserMessages": []string{"hello"},
	}, nil)
	assertStatus(t, resp, http.StatusOK)
	var body struct {
		Completion schema.Message `json:"completion"`
		Parsed     struct {
			Text         string          `json:"text"`
			Action       json.RawMessage `json:"action"`
			ActionResult *bridge.Result  `json:"actionResult"`
		} `json:"parsed"`
	}
	decodeJSON(t, resp.Body.Bytes(), &body)
	if body.Completion.Content != srv.model.reply {
		t.Fatalf("completion should be returned raw")
	}
	if body.Parsed.Text != "I'll add Bob now." {
		t.Fatalf("unexpected text %q", body.Parsed.Text)
	}
	if body.Parsed.ActionResult == nil || !body.Parsed.ActionResult.Success {
		t.Fatalf("expected successful action, got %s", resp.Body.String())
	}
	if srv.model.last.Sample != "Add Bob" || len(srv.model.last.PastUserMessages) != 1 {
		t.Fatalf("request not forwarded: %+v", srv.model.last)
	}

	list, err := srv.users.List(context.Background(), users.ListOptions{})
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if len(list) != 1 || list[0].Email != "bob@example.com" {
		t.Fatalf("expected bob to be created, got %+v", list)
	}
}

func TestChatWithoutAction(t *testing.T) {
	srv := newTestServer(t, Deps{})
	srv.model.reply = "  There are 2 users.  "

	resp := doJSONRequest(t, srv.router, http.MethodPost, "/api/ai", map[string]any{"sample": "How many?"}, nil)
	assertStatus(t, resp, http.StatusOK)
	var body struct {
		Parsed map[string]json.RawMessage `json:"parsed"`
	}
	decodeJSON(t, resp.Body.Bytes(), &body)
	if string(body.Parsed["text"]) != `"There are 2 users."` {
		t.Fatalf("unexpected text %s", body.Parsed["text"])
	}
	if _, ok := body.Parsed["actionResult"]; ok {
		t.Fatalf("actionResult should be absent")
	}
}

func TestChatErrors(t *testing.T) {
	srv := newTestServer(t, Deps{})

	resp := doJSONRequest(t, srv.router, http.MethodPost, "/api/ai", map[string]any{"sample": ""}, nil)
	assertStatus(t, resp, http.StatusBadRequest)
	assertError(t, resp, "Sample text is required")

	srv.model.err = errors.New("upstream 502")
	resp = doJSONRequest(t, srv.router, http.MethodPost, "/api/ai", map[string]any{"sample": "hi"}, nil)
	assertStatus(t, resp, http.StatusInternalServerError)
	assertError(t, resp, "Failed to process request")
}

func TestChatRateLimited(t *testing.T) {
	srv := newTestServer(t, Deps{AILimiter: ratelimit.NewLocalLimiter(1, time.Minute)})
	srv.model.reply = "ok"

	resp := doJSONRequest(t, srv.router, http.MethodPost, "/api/ai", map[string]any{"sample": "hi"}, nil)
	assertStatus(t, resp, http.StatusOK)
	resp = doJSONRequest(t, srv.router, http.MethodPost, "/api/ai", map[string]any{"sample": "hi"}, nil)
	assertStatus(t, resp, http.StatusTooManyRequests)
}

func TestSendEmail(t *testing.T) {
	srv := newTestServer(t, Deps{})

	resp := doJSONRequest(t, srv.router, http.MethodPost, "/api/email", map[string]string{
		"to":      "bob@example.com",
		"subject": "Hello",
		"body":    "Welcome aboard",
	}, nil)
	assertStatus(t, resp, http.StatusOK)
	if srv.mailer.to != "bob@example.com" || srv.mailer.subject != "Hello" {
		t.Fatalf("mail not forwarded: %+v", srv.mailer)
	}

	srv.mailer.err = errors.New("MessageRejected")
	resp = doJSONRequest(t, srv.router, http.MethodPost, "/api/email", map[string]string{"to": "bob@example.com"}, nil)
	assertStatus(t, resp, http.StatusInternalServerError)
	assertError(t, resp, "MessageRejected")
}

func TestRequestIDHeader(t *testing.T) {
	srv := newTestServer(t, Deps{})

	resp := doJSONRequest(t, srv.router, http.MethodGet, "/healthz", nil, map[string]string{requestIDHeader: "abc-123"})
	assertStatus(t, resp, http.StatusOK)
	if got := resp.Header().Get(requestIDHeader); got != "abc-123" {
		t.Fatalf("expected request id to be echoed, got %q", got)
	}

	resp = doJSONRequest(t, srv.router, http.MethodGet, "/healthz", nil, nil)
	if resp.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected generated request id")
	}
}

// newTestServer wires real users storage on in-memory sqlite with mocked
// completion and email collaborators. Fields set in deps override defaults.
func newTestServer(t *testing.T, deps Deps) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{Databases: map[string]config.DatabaseConfig{"sqlite3": {DSN: ":memory:"}}}
	db, err := storage.Open("sqlite3", cfg, nil)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = storage.Close(db) })
	if err := storage.Migrate(db); err != nil {
		t.Fatalf("migrate db: %v", err)
	}

	srv := &testServer{
		users:    users.NewService(db),
		model:    &mockCompleter{},
		mailer:   &mockMailer{},
		notifier: &mockNotifier{},
	}
	if n, ok := deps.Notifier.(*mockNotifier); ok {
		srv.notifier = n
	}
	deps.Users = srv.users
	deps.Assistant = srv.model
	deps.Mailer = srv.mailer
	deps.Notifier = srv.notifier
	deps.Bridge = bridge.New(bridge.NewDispatcher(srv.users, srv.mailer))

	router := gin.New()
	router.Use(RequestID())
	NewHandler(deps).RegisterRoutes(router)
	srv.router = router
	return srv
}

func doJSONRequest(t *testing.T, router *gin.Engine, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, data []byte, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("decode json: %v", err)
	}
}

func assertStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("unexpected status %d, body: %s", rec.Code, rec.Body.String())
	}
}

func assertError(t *testing.T, rec *httptest.ResponseRecorder, want string) {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	decodeJSON(t, rec.Body.Bytes(), &body)
	if body.Error != want {
		t.Fatalf("expected error %q, got %q", want, body.Error)
	}
}

type mockCompleter struct {
	reply string
	err   error
	last  ai.Request
}

func (m *mockCompleter) Complete(_ context.Context, req ai.Request) (*schema.Message, error) {
	m.last = req
	if m.err != nil {
		return nil, m.err
	}
	return schema.AssistantMessage(m.reply, nil), nil
}

type mockMailer struct {
	to      string
	subject string
	body    string
	err     error
}

func (m *mockMailer) Send(_ context.Context, to, subject, body string) (*notify.SendResult, error) {
	m.to, m.subject, m.body = to, subject, body
	if m.err != nil {
		return nil, m.err
	}
	return &notify.SendResult{MessageID: "mock-id"}, nil
}

type mockNotifier struct {
	kinds []notify.ChangeKind
	err   error
}

func (m *mockNotifier) NotifyUserChange(_ context.Context, _ *models.User, kind notify.ChangeKind) error {
	m.kinds = append(m.kinds, kind)
	return m.err
}
