package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"grantflow/internal/config"
	"grantflow/internal/db"
	"grantflow/internal/domain"
	"grantflow/internal/migrate"
	"grantflow/internal/workflow"
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
	cfg := config.Default("dep-1")
	eng := workflow.New(conn, cfg)
	ctx := context.Background()
	for id, role := range map[string]domain.Role{
		"admin": domain.RoleAdmin,
		"alice": domain.RoleProposer,
		"rina":  domain.RoleReviewer,
		"budi":  domain.RoleReviewer,
	} {
		err := eng.Repo.InsertUser(ctx, nil, domain.User{
			ID: id, Name: id, Email: id + "@example.org",
			Role: role, Active: true, CreatedAt: "2024-01-01T00:00:00Z",
		})
		if err != nil {
			t.Fatalf("seed user %s: %v", id, err)
		}
	}
	handler, err := New(Config{
		Engine:   eng,
		BasePath: "/v1",
		Auth: AuthConfig{
			JWTSecret:              "test-secret",
			AllowLegacyActorHeader: true,
			AllowDevLogin:          true,
		},
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

type errEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func asActor(id string) map[string]string {
	return map[string]string{"X-Actor-Id": id}
}

func TestProposalLifecycleOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	createRes, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/proposals", map[string]any{
		"period_id":         "2024-1",
		"title":             "Coral reef restoration",
		"abstract":          "Restoring reefs with microfragmentation.",
		"file_ref":          "files/proposal-v1.pdf",
		"requested_funding": 10_000_000,
	}, asActor("alice"))
	if createRes.StatusCode != http.StatusCreated {
		t.Fatalf("create proposal status %d: %s", createRes.StatusCode, string(data))
	}
	var created domain.Proposal
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal proposal: %v", err)
	}
	pid := created.ID

	submitRes, submitBody := doJSON(t, client, http.MethodPost, srv.URL+"/v1/proposals/"+pid+"/submit", nil, asActor("alice"))
	if submitRes.StatusCode != http.StatusOK {
		t.Fatalf("submit status %d: %s", submitRes.StatusCode, string(submitBody))
	}

	// a second submit must surface the transition table verdict
	againRes, againBody := doJSON(t, client, http.MethodPost, srv.URL+"/v1/proposals/"+pid+"/submit", nil, asActor("alice"))
	if againRes.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", againRes.StatusCode, string(againBody))
	}
	var envelope errEnvelope
	if err := json.Unmarshal(againBody, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope.Error.Code != "illegal_transition" {
		t.Fatalf("expected illegal_transition, got %q", envelope.Error.Code)
	}
	if envelope.Error.Details["from"] != "submitted" || envelope.Error.Details["to"] != "submitted" {
		t.Fatalf("unexpected details %v", envelope.Error.Details)
	}

	// screening is an admin call
	forbiddenRes, forbiddenBody := doJSON(t, client, http.MethodPost, srv.URL+"/v1/proposals/"+pid+"/screening", map[string]any{
		"check_writing":    true,
		"check_components": true,
		"verdict":          "pass",
	}, asActor("alice"))
	if forbiddenRes.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", forbiddenRes.StatusCode, string(forbiddenBody))
	}
	screenRes, screenBody := doJSON(t, client, http.MethodPost, srv.URL+"/v1/proposals/"+pid+"/screening", map[string]any{
		"check_writing":    true,
		"check_components": true,
		"verdict":          "pass",
	}, asActor("admin"))
	if screenRes.StatusCode != http.StatusOK {
		t.Fatalf("screen status %d: %s", screenRes.StatusCode, string(screenBody))
	}

	assignRes, assignBody := doJSON(t, client, http.MethodPost, srv.URL+"/v1/proposals/"+pid+"/reviewers", map[string]any{
		"reviewer_ids": []string{"rina", "budi"},
	}, asActor("admin"))
	if assignRes.StatusCode != http.StatusCreated {
		t.Fatalf("assign status %d: %s", assignRes.StatusCode, string(assignBody))
	}

	for reviewer, score := range map[string]int{"rina": 80, "budi": 90} {
		listRes, listBody := doJSON(t, client, http.MethodGet, srv.URL+"/v1/assignments", nil, asActor(reviewer))
		if listRes.StatusCode != http.StatusOK {
			t.Fatalf("assignments for %s: %d %s", reviewer, listRes.StatusCode, string(listBody))
		}
		var assignments []domain.ReviewAssignment
		if err := json.Unmarshal(listBody, &assignments); err != nil {
			t.Fatalf("unmarshal assignments: %v", err)
		}
		if len(assignments) != 1 {
			t.Fatalf("expected one assignment for %s, got %d", reviewer, len(assignments))
		}
		reviewRes, reviewBody := doJSON(t, client, http.MethodPost, srv.URL+"/v1/assignments/"+assignments[0].ID+"/review", map[string]any{
			"score":          score,
			"recommendation": "accept",
		}, asActor(reviewer))
		if reviewRes.StatusCode != http.StatusCreated {
			t.Fatalf("review by %s: %d %s", reviewer, reviewRes.StatusCode, string(reviewBody))
		}
	}

	approveRes, approveBody := doJSON(t, client, http.MethodPost, srv.URL+"/v1/proposals/"+pid+"/approve", map[string]any{
		"approved_funding": 10_000_000,
	}, asActor("admin"))
	if approveRes.StatusCode != http.StatusOK {
		t.Fatalf("approve status %d: %s", approveRes.StatusCode, string(approveBody))
	}
	var approved domain.Proposal
	if err := json.Unmarshal(approveBody, &approved); err != nil {
		t.Fatalf("unmarshal approved: %v", err)
	}
	if approved.Status != domain.StatusAccepted || approved.AverageScore == nil || *approved.AverageScore != 85 {
		t.Fatalf("unexpected decision %s %v", approved.Status, approved.AverageScore)
	}

	// the creator sees the scheduled termins
	dsRes, dsBody := doJSON(t, client, http.MethodGet, srv.URL+"/v1/proposals/"+pid+"/disbursements", nil, asActor("alice"))
	if dsRes.StatusCode != http.StatusOK {
		t.Fatalf("disbursements status %d: %s", dsRes.StatusCode, string(dsBody))
	}
	var ds []domain.Disbursement
	if err := json.Unmarshal(dsBody, &ds); err != nil {
		t.Fatalf("unmarshal disbursements: %v", err)
	}
	if len(ds) != 3 || ds[0].Nominal != 5_000_000 {
		t.Fatalf("unexpected termin schedule %+v", ds)
	}
}

func TestVisibilityOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	_, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/proposals", map[string]any{
		"period_id":         "2024-1",
		"title":             "Private draft",
		"requested_funding": 1_000_000,
	}, asActor("alice"))
	var created domain.Proposal
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal proposal: %v", err)
	}

	// an unassigned reviewer must not be able to probe the id
	getRes, getBody := doJSON(t, client, http.MethodGet, srv.URL+"/v1/proposals/"+created.ID, nil, asActor("rina"))
	if getRes.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", getRes.StatusCode, string(getBody))
	}
	var envelope errEnvelope
	if err := json.Unmarshal(getBody, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope.Error.Code != "not_found" {
		t.Fatalf("expected not_found, got %q", envelope.Error.Code)
	}

	// the audit trail is admin only
	evRes, evBody := doJSON(t, client, http.MethodGet, srv.URL+"/v1/events", nil, asActor("alice"))
	if evRes.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for events, got %d: %s", evRes.StatusCode, string(evBody))
	}
	evRes, evBody = doJSON(t, client, http.MethodGet, srv.URL+"/v1/events", nil, asActor("admin"))
	if evRes.StatusCode != http.StatusOK {
		t.Fatalf("admin events: %d %s", evRes.StatusCode, string(evBody))
	}
}

func TestAuthModes(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	// health stays open
	healthRes, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v1/health", nil, nil)
	if healthRes.StatusCode != http.StatusOK {
		t.Fatalf("health status %d", healthRes.StatusCode)
	}

	// everything else requires credentials
	noneRes, noneBody := doJSON(t, client, http.MethodGet, srv.URL+"/v1/proposals", nil, nil)
	if noneRes.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", noneRes.StatusCode, string(noneBody))
	}
	var envelope errEnvelope
	if err := json.Unmarshal(noneBody, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope.Error.Code != "unauthorized" {
		t.Fatalf("expected unauthorized, got %q", envelope.Error.Code)
	}

	badRes, badBody := doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{
		"Authorization": "Bearer not-a-token",
	})
	if badRes.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d: %s", badRes.StatusCode, string(badBody))
	}

	loginRes, loginBody := doJSON(t, client, http.MethodPost, srv.URL+"/v1/auth/dev/login", map[string]any{
		"user_id": "admin",
	}, nil)
	if loginRes.StatusCode != http.StatusOK {
		t.Fatalf("dev login status %d: %s", loginRes.StatusCode, string(loginBody))
	}
	var login DevLoginResponse
	if err := json.Unmarshal(loginBody, &login); err != nil {
		t.Fatalf("unmarshal login: %v", err)
	}
	if login.Token == "" {
		t.Fatalf("expected a token")
	}

	meRes, meBody := doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{
		"Authorization": "Bearer " + login.Token,
	})
	if meRes.StatusCode != http.StatusOK {
		t.Fatalf("me status %d: %s", meRes.StatusCode, string(meBody))
	}
	var me WhoAmIResponse
	if err := json.Unmarshal(meBody, &me); err != nil {
		t.Fatalf("unmarshal me: %v", err)
	}
	if me.User.ID != "admin" || me.Source != "jwt" {
		t.Fatalf("unexpected principal %+v", me)
	}

	legacyRes, legacyBody := doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, asActor("alice"))
	if legacyRes.StatusCode != http.StatusOK {
		t.Fatalf("legacy me status %d: %s", legacyRes.StatusCode, string(legacyBody))
	}
	var legacy WhoAmIResponse
	if err := json.Unmarshal(legacyBody, &legacy); err != nil {
		t.Fatalf("unmarshal legacy me: %v", err)
	}
	if legacy.User.ID != "alice" || legacy.Source != "legacy_header" {
		t.Fatalf("unexpected legacy principal %+v", legacy)
	}
}
