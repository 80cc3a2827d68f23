package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kalambet/bizrag/internal/config"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"conversation 7 not found","type":"not_found_error"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

var ctx = context.Background()

func TestCreateConversation(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /api/conversation": `{"id":3,"uuid":"5f0c...","title":"Q3 review"}`,
	})

	conv, err := createConversation(ctx, ts.client(), "Q3 review")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conv.ID != 3 || conv.Title != "Q3 review" {
		t.Errorf("conv = %+v", conv)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	r := ts.requests[0]
	if r.Method != "POST" || r.Path != "/api/conversation" {
		t.Errorf("request = %s %s", r.Method, r.Path)
	}
	var body map[string]string
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["title"] != "Q3 review" {
		t.Errorf("body.title = %q", body["title"])
	}
}

func TestCreateConversation_NoTitleSendsNoBody(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /api/conversation": `{"id":1,"uuid":"u","title":"Conversation 2024-03-05 14:07"}`,
	})

	if _, err := createConversation(ctx, ts.client(), ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ts.requests[0].Body != "" {
		t.Errorf("body = %q, want empty", ts.requests[0].Body)
	}
}

func TestListConversations(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /api/conversations": `{"conversations":[{"id":2,"uuid":"b","title":"second","start_time":"2024-03-05T14:08:00Z"},{"id":1,"uuid":"a","title":"first","start_time":"2024-03-05T14:07:00Z"}]}`,
	})

	convs, err := listConversations(ctx, ts.client())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(convs) != 2 || convs[0].Title != "second" {
		t.Errorf("convs = %+v", convs)
	}
}

func TestGetConversation(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /api/conversation/4": `{"conversation":[{"role":"user","content":"hi","html":"<p>hi</p>","timestamp":"2024-03-05T14:07:01Z"}],"conversationId":4}`,
	})

	msgs, err := getConversation(ctx, ts.client(), 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Role != "user" || msgs[0].HTML != "<p>hi</p>" {
		t.Errorf("msgs = %+v", msgs)
	}
}

func TestGetConversation_NotFound(t *testing.T) {
	ts := newTestServer(t, map[string]string{})

	_, err := getConversation(ctx, ts.client(), 7)
	if err == nil {
		t.Fatal("expected error for missing conversation")
	}
	if !strings.Contains(err.Error(), "404") || !strings.Contains(err.Error(), "conversation 7 not found") {
		t.Errorf("error = %q, want status and server message", err.Error())
	}
}

func TestStatusCommand_Stopped(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	ts.server.Close()

	_, err := ts.client().get(ctx, "/health")
	if err == nil {
		t.Fatal("expected error for stopped server")
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error = %q, want it to mention 'not reachable'", err.Error())
	}
}

func TestAPIClientAuth(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /api/conversations": `{"conversations":[]}`,
	})

	client := ts.client()
	client.token = "my-secret-token"
	if _, err := listConversations(ctx, client); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ts.requests[0].Auth != "Bearer my-secret-token" {
		t.Errorf("auth = %q, want 'Bearer my-secret-token'", ts.requests[0].Auth)
	}

	client.token = ""
	if _, err := listConversations(ctx, client); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ts.requests[1].Auth != "" {
		t.Errorf("auth = %q, want no header without a token", ts.requests[1].Auth)
	}
}

func TestDecodeJSON_ErrorResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(401)
		w.Write([]byte(`{"error":{"message":"invalid or missing bearer token","type":"authentication_error"}}`))
	}))
	defer ts.Close()

	client := &apiClient{baseURL: ts.URL, token: "bad-token", httpClient: ts.Client()}
	resp, err := client.get(ctx, "/api/conversations")
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}

	var result any
	err = decodeJSON(resp, &result)
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
	if !strings.Contains(err.Error(), "401") || !strings.Contains(err.Error(), "bearer token") {
		t.Errorf("error = %q", err.Error())
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	if result := colorize(colorGreen, "test message"); result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	if result := colorize(colorGreen, "test message"); !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestPrintMessage(t *testing.T) {
	old, oldColor := stdout, noColor
	defer func() { stdout, noColor = old, oldColor }()

	var buf bytes.Buffer
	stdout, noColor = &buf, true
	printMessage("assistant", "2024-03-05T14:07:01Z", "The budget is $1,000,000.")

	want := "assistant 2024-03-05T14:07:01Z\nThe budget is $1,000,000.\n\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}

func TestParseConversationID(t *testing.T) {
	if id, err := parseConversationID("12"); err != nil || id != 12 {
		t.Errorf("parseConversationID(12) = %d, %v", id, err)
	}
	for _, bad := range []string{"", "0", "-1", "abc"} {
		if _, err := parseConversationID(bad); err == nil {
			t.Errorf("parseConversationID(%q) should fail", bad)
		}
	}
}

func TestPIDFileRoundTrip(t *testing.T) {
	path := pidFilePath(filepath.Join(t.TempDir(), "index"))
	if err := writePIDFile(path); err != nil {
		t.Fatalf("writePIDFile: %v", err)
	}
	pid, err := readPIDFile(path)
	if err != nil {
		t.Fatalf("readPIDFile: %v", err)
	}
	if pid <= 0 {
		t.Errorf("pid = %d", pid)
	}
	removePIDFile(path)
	if _, err := readPIDFile(path); err == nil {
		t.Error("expected error after removal")
	}
}

func TestConversationsShowRequiresID(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"conversations", "show"})
	if err := rootCmd.Execute(); err == nil {
		t.Fatal("expected error for missing id")
	}
}

func TestConfigShowAll(t *testing.T) {
	cfg := config.Config{}
	cfg.Server.Port = 4000
	cfg.LLM.Model = "llama3.2:1b"

	found := false
	for _, k := range config.ShowAll(cfg) {
		if k.Key == "server.port" && k.Value == "4000" {
			found = true
		}
		if k.Key == "server.api_token" {
			t.Error("secret key must not be shown")
		}
	}
	if !found {
		t.Error("expected to find server.port=4000 in ShowAll output")
	}
}

func TestNewAppUsesGivenConfig(t *testing.T) {
	var cfg config.Config
	cfg.Data.Dir = filepath.Join(t.TempDir(), "missing-data")

	_, err := newApp(context.Background(), cfg, appOptions{})
	if err == nil {
		t.Fatal("expected error for missing data dir")
	}
	if !strings.Contains(err.Error(), cfg.Data.Dir) {
		t.Errorf("error = %v, want it to name %s", err, cfg.Data.Dir)
	}
}
