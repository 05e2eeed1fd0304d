package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"taskdesk/internal/config"
	"taskdesk/internal/db"
	"taskdesk/internal/domain"
	"taskdesk/internal/engine"
	"taskdesk/internal/migrate"
	"taskdesk/internal/storage"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store, err := storage.Open(workspace)
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	e := engine.New(conn, config.Default(), store)
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v1",
		Auth:     AuthConfig{JWTSecret: "test-secret", TokenTTL: time.Hour},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func registerUser(t *testing.T, srv *testServer, name, email string) domain.User {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/auth/register", map[string]any{
		"name":     name,
		"email":    email,
		"password": "s3cret-password",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("register %s: %d %s", email, res.StatusCode, string(data))
	}
	var u domain.User
	if err := json.Unmarshal(data, &u); err != nil {
		t.Fatalf("unmarshal user: %v", err)
	}
	return u
}

func loginUser(t *testing.T, srv *testServer, email string) string {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/auth/login", map[string]any{
		"email":    email,
		"password": "s3cret-password",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("login %s: %d %s", email, res.StatusCode, string(data))
	}
	var out TokenResponse
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal token: %v", err)
	}
	if out.Token == "" {
		t.Fatal("expected a token")
	}
	return out.Token
}

type errEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decodeError(t *testing.T, data []byte) errEnvelope {
	t.Helper()
	var env errEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal error envelope %q: %v", string(data), err)
	}
	return env
}

func TestHealthUnauthenticated(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health: %d %s", res.StatusCode, string(data))
	}
	var body map[string]string
	_ = json.Unmarshal(data, &body)
	if body["status"] != "ok" {
		t.Fatalf("expected ok, got %s", string(data))
	}
}

func TestFirstUserBootstrapsAdmin(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	first := registerUser(t, srv, "Root", "root@example.com")
	if first.Role != "admin" || !first.Approved {
		t.Fatalf("expected approved admin, got role=%s approved=%v", first.Role, first.Approved)
	}
	token := loginUser(t, srv, "root@example.com")

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/me", nil, bearer(token))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me: %d %s", res.StatusCode, string(data))
	}
	var me domain.User
	_ = json.Unmarshal(data, &me)
	if me.ID != first.ID {
		t.Fatalf("expected %s, got %s", first.ID, me.ID)
	}

	second := registerUser(t, srv, "Member", "member@example.com")
	if second.Role != "user" || second.Approved {
		t.Fatalf("expected unapproved user, got role=%s approved=%v", second.Role, second.Approved)
	}
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/auth/login", map[string]any{
		"email":    "member@example.com",
		"password": "s3cret-password",
	}, nil)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 before approval, got %d %s", res.StatusCode, string(data))
	}
	if env := decodeError(t, data); env.Error.Code != "not_approved" {
		t.Fatalf("expected not_approved, got %s", env.Error.Code)
	}
}

func TestMissingTokenRejected(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/tasks", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d %s", res.StatusCode, string(data))
	}
	if env := decodeError(t, data); env.Error.Code != "unauthorized" {
		t.Fatalf("expected unauthorized, got %s", env.Error.Code)
	}
}

func TestAdminRoutesGuarded(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	registerUser(t, srv, "Root", "root@example.com")
	adminToken := loginUser(t, srv, "root@example.com")
	member := registerUser(t, srv, "Member", "member@example.com")

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/admin/users/"+member.ID+"/approve", nil, bearer(adminToken))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("approve: %d %s", res.StatusCode, string(data))
	}
	memberToken := loginUser(t, srv, "member@example.com")

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/admin/users", nil, bearer(memberToken))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d %s", res.StatusCode, string(data))
	}
	if env := decodeError(t, data); env.Error.Code != "forbidden" {
		t.Fatalf("expected forbidden, got %s", env.Error.Code)
	}

	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/admin/users", nil, bearer(adminToken))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("admin list users: %d", res.StatusCode)
	}
}

func TestAssignmentFlow(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	registerUser(t, srv, "Root", "root@example.com")
	adminToken := loginUser(t, srv, "root@example.com")
	member := registerUser(t, srv, "Member", "member@example.com")
	doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/admin/users/"+member.ID+"/approve", nil, bearer(adminToken))
	memberToken := loginUser(t, srv, "member@example.com")

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/tasks", map[string]any{
		"title":    "Quarterly audit",
		"priority": "high",
	}, bearer(adminToken))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create task: %d %s", res.StatusCode, string(data))
	}
	var task domain.Task
	_ = json.Unmarshal(data, &task)

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/assignments", map[string]any{
		"task_id":  task.ID,
		"user_ids": []string{member.ID},
		"deadline": "2026-12-31T00:00:00Z",
	}, bearer(adminToken))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create assignments: %d %s", res.StatusCode, string(data))
	}
	var created []AssignmentView
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal assignments: %v", err)
	}
	if len(created) != 1 || created[0].Status != "pending" {
		t.Fatalf("expected one pending assignment, got %s", string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/assignments?user_id="+member.ID, nil, bearer(memberToken))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list assignments: %d %s", res.StatusCode, string(data))
	}
	var page struct {
		Items []AssignmentView `json:"items"`
	}
	_ = json.Unmarshal(data, &page)
	if len(page.Items) != 1 {
		t.Fatalf("expected one assignment, got %s", string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/assignments/"+created[0].ID+"/status", map[string]any{
		"status": "accepted",
	}, bearer(memberToken))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("accept assignment: %d %s", res.StatusCode, string(data))
	}
	var accepted AssignmentView
	_ = json.Unmarshal(data, &accepted)
	if accepted.Status != "accepted" {
		t.Fatalf("expected accepted, got %s", accepted.Status)
	}

	// A jump past in_progress reports the rejected transition.
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/assignments/"+created[0].ID+"/status", map[string]any{
		"status": "completed",
	}, bearer(memberToken))
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d %s", res.StatusCode, string(data))
	}
	env := decodeError(t, data)
	if env.Error.Code != "invalid_transition" {
		t.Fatalf("expected invalid_transition, got %s", env.Error.Code)
	}
	if env.Error.Details["from"] != "accepted" || env.Error.Details["to"] != "completed" {
		t.Fatalf("unexpected details: %v", env.Error.Details)
	}
}

func TestAPIKeyAuthenticates(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	admin := registerUser(t, srv, "Root", "root@example.com")
	token := loginUser(t, srv, "root@example.com")

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/me/api-keys", map[string]any{
		"name": "ci",
	}, bearer(token))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create api key: %d %s", res.StatusCode, string(data))
	}
	var key APIKeyResponse
	if err := json.Unmarshal(data, &key); err != nil {
		t.Fatalf("unmarshal key: %v", err)
	}
	if !strings.HasPrefix(key.Key, "tdk_") {
		t.Fatalf("unexpected key format: %s", key.Key)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{"X-Api-Key": key.Key})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me via api key: %d %s", res.StatusCode, string(data))
	}
	var me domain.User
	_ = json.Unmarshal(data, &me)
	if me.ID != admin.ID {
		t.Fatalf("expected %s, got %s", admin.ID, me.ID)
	}
}

func TestUnknownTaskIs404(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	registerUser(t, srv, "Root", "root@example.com")
	token := loginUser(t, srv, "root@example.com")

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/tasks/nope", nil, bearer(token))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %s", res.StatusCode, string(data))
	}
	if env := decodeError(t, data); env.Error.Code != "not_found" {
		t.Fatalf("expected not_found, got %s", env.Error.Code)
	}
}

func TestWebhookDispatcherStopsOnCancel(t *testing.T) {
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store, err := storage.Open(workspace)
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	e := engine.New(conn, config.Default(), store)

	d := &webhookDispatcher{
		engine:   e,
		webhooks: []config.WebhookConfig{{URL: "http://127.0.0.1:1/hook"}},
		client:   &http.Client{Timeout: time.Second},
		cursors:  map[int]int64{},
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("dispatcher must stop with the server context")
	}
}
