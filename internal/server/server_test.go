package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"pulseboard/internal/config"
	"pulseboard/internal/db"
	"pulseboard/internal/domain"
	"pulseboard/internal/engine"
	"pulseboard/internal/migrate"
	"pulseboard/internal/store"
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
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, store.New(), config.Default("pulseboard"))
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := eng.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	handler, err := New(Config{Engine: eng, BasePath: "/v1"})
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

func TestTaskLifecycleOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks", map[string]any{
		"title":    "Ship feature",
		"priority": "high",
		"due_date": "2024-02-01",
		"subtasks": []map[string]any{{"title": "write code", "estimated_hours": 3}},
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create task status %d: %s", res.StatusCode, string(data))
	}
	var created domain.Task
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}
	if created.Points != 25 || created.Status != domain.StatusTodo {
		t.Fatalf("unexpected task: %+v", created)
	}

	// completing with an open subtask is a precondition failure
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks/"+created.ID+"/complete", map[string]any{}, nil)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost,
		srv.URL+"/v1/tasks/"+created.ID+"/subtasks/"+created.Subtasks[0].ID+"/toggle", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("toggle status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks/"+created.ID+"/complete", map[string]any{}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("complete status %d: %s", res.StatusCode, string(data))
	}
	var done domain.Task
	if err := json.Unmarshal(data, &done); err != nil {
		t.Fatalf("unmarshal done: %v", err)
	}
	if done.Status != domain.StatusCompleted {
		t.Fatalf("expected completed, got %s", done.Status)
	}
}

func TestErrorEnvelopeCodes(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/tasks/ghost", nil, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope.Error.Code != "not_found" {
		t.Fatalf("code = %s, want not_found", envelope.Error.Code)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks", map[string]any{
		"due_date": "2024-02-01",
	}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank title, got %d: %s", res.StatusCode, string(data))
	}
}

func TestTeamMembershipConflictOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	_, teamData := doJSON(t, client, http.MethodPost, srv.URL+"/v1/teams", map[string]any{"name": "one"}, nil)
	var one domain.Team
	_ = json.Unmarshal(teamData, &one)
	_, teamData = doJSON(t, client, http.MethodPost, srv.URL+"/v1/teams", map[string]any{"name": "two"}, nil)
	var two domain.Team
	_ = json.Unmarshal(teamData, &two)

	_, memberData := doJSON(t, client, http.MethodPost, srv.URL+"/v1/members", map[string]any{"name": "alice"}, nil)
	var alice domain.Member
	_ = json.Unmarshal(memberData, &alice)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/teams/"+one.ID+"/members", map[string]any{"member_id": alice.ID}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("first add: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/teams/"+two.ID+"/members", map[string]any{"member_id": alice.ID}, nil)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected conflict, got %d %s", res.StatusCode, string(data))
	}
}

func TestLeaderboardAndScheduleViews(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	_, mData := doJSON(t, client, http.MethodPost, srv.URL+"/v1/members", map[string]any{"name": "alice"}, nil)
	var alice domain.Member
	_ = json.Unmarshal(mData, &alice)
	_, mData = doJSON(t, client, http.MethodPost, srv.URL+"/v1/members", map[string]any{"name": "bob"}, nil)
	var bob domain.Member
	_ = json.Unmarshal(mData, &bob)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/members/"+bob.ID+"/points", map[string]any{"points": 40}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("award: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/leaderboard", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("leaderboard: %d %s", res.StatusCode, string(data))
	}
	var ranked []domain.Member
	if err := json.Unmarshal(data, &ranked); err != nil {
		t.Fatalf("unmarshal leaderboard: %v", err)
	}
	if len(ranked) != 2 || ranked[0].ID != bob.ID {
		t.Fatalf("leaderboard order wrong: %+v", ranked)
	}

	doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks", map[string]any{"title": "early", "due_date": "2024-01-05"}, nil)
	doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks", map[string]any{"title": "late", "due_date": "2024-03-05"}, nil)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/schedule", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("schedule: %d %s", res.StatusCode, string(data))
	}
	var groups []struct {
		Label string        `json:"label"`
		Tasks []domain.Task `json:"tasks"`
	}
	if err := json.Unmarshal(data, &groups); err != nil {
		t.Fatalf("unmarshal schedule: %v", err)
	}
	if len(groups) != 2 || groups[0].Label != "2024-01-05" {
		t.Fatalf("schedule order wrong: %+v", groups)
	}
}

func TestEventsEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks", map[string]any{
		"title": "evented", "due_date": "2024-02-01",
	}, map[string]string{"X-Actor-Id": "carol"})

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/events?type=task.created", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events: %d %s", res.StatusCode, string(data))
	}
	var events []domain.Event
	if err := json.Unmarshal(data, &events); err != nil {
		t.Fatalf("unmarshal events: %v", err)
	}
	if len(events) != 1 || events[0].ActorID != "carol" {
		t.Fatalf("expected one task.created by carol, got %+v", events)
	}
}
