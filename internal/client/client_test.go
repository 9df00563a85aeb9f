package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/inercia/inferstream/internal/protocol"
	"github.com/inercia/inferstream/internal/session"
	"github.com/inercia/inferstream/internal/transport"
	"github.com/inercia/inferstream/internal/wstest"
)

func fastRetry() RetryConfig {
	return RetryConfig{InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond, MaxElapsed: time.Second}
}

func TestPost_RetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.Header.Get("X-DashScope-WorkSpace"); got != "ws-1" {
			t.Errorf("workspace header = %q", got)
		}
		if n < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"code":"Throttling","message":"slow down","request_id":"r1"}`))
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := New(Config{APIKey: "sk-test", Workspace: "ws-1", APIBase: srv.URL, Retry: fastRetry()})
	var out struct {
		OK bool `json:"ok"`
	}
	if err := c.Post(context.Background(), "/x", map[string]string{"a": "b"}, &out); err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	if !out.OK {
		t.Error("response not decoded")
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("server called %d times, want 3", got)
	}
}

func TestPost_OtherErrorsArePermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":"InvalidParameter","message":"bad model","request_id":"req-9"}`))
	}))
	defer srv.Close()

	c := New(Config{APIKey: "k", APIBase: srv.URL, Retry: fastRetry()})
	err := c.Post(context.Background(), "/x", struct{}{}, nil)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Post() error = %v, want *APIError", err)
	}
	if apiErr.StatusCode != 400 || apiErr.Code != "InvalidParameter" || apiErr.Message != "bad model" || apiErr.RequestID != "req-9" {
		t.Errorf("APIError = %+v", apiErr)
	}
	if IsRateLimited(err) {
		t.Error("IsRateLimited() = true for a 400")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("server called %d times, want 1", got)
	}
}

func TestPost_RateLimitGivesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"message":"throttled"}`))
	}))
	defer srv.Close()

	c := New(Config{APIKey: "k", APIBase: srv.URL, Retry: RetryConfig{
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		MaxElapsed:      30 * time.Millisecond,
	}})
	err := c.Post(context.Background(), "/x", struct{}{}, nil)
	if !IsRateLimited(err) {
		t.Errorf("Post() error = %v, want rate limit error", err)
	}
}

func TestPost_UndecodableErrorBody(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`<html>busy</html>`))
	}))
	defer srv.Close()

	c := New(Config{APIKey: "k", APIBase: srv.URL, Retry: fastRetry()})
	err := c.Post(context.Background(), "/x", struct{}{}, nil)

	var re *ResponseError
	if !errors.As(err, &re) {
		t.Fatalf("Post() error = %v, want *ResponseError", err)
	}
	if string(re.Body) != `<html>busy</html>` || re.StatusCode != 429 {
		t.Errorf("ResponseError = %+v", re)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("server called %d times, want 1", got)
	}
}

// lastRequest holds the most recent request body seen by vocabServer.
type lastRequest struct {
	mu  sync.Mutex
	req map[string]any
}

func (l *lastRequest) get() map[string]any {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.req
}

func (l *lastRequest) input() map[string]any {
	return l.get()["input"].(map[string]any)
}

// vocabServer answers customization calls and records the last request.
func vocabServer(t *testing.T, last *lastRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != CustomizationPath {
			t.Errorf("path = %s, want %s", r.URL.Path, CustomizationPath)
		}
		body, _ := io.ReadAll(r.Body)
		var req map[string]any
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("bad request body %s", body)
		}
		last.mu.Lock()
		last.req = req
		last.mu.Unlock()

		input := req["input"].(map[string]any)
		switch input["action"] {
		case "create_vocabulary":
			w.Write([]byte(`{"output":{"vocabulary_id":"vocab-demo-1"},"usage":{"count":1},"request_id":"r"}`))
		case "query_vocabulary":
			w.Write([]byte(`{"output":{"gmt_create":"2024-01-01","gmt_modified":"2024-01-02","status":"OK","target_model":"paraformer-realtime-v2","vocabulary":[{"text":"hello","weight":4}]},"usage":{"count":1},"request_id":"r"}`))
		case "list_vocabulary":
			w.Write([]byte(`{"output":{"vocabulary_list":[{"vocabulary_id":"a","status":"OK","gmt_create":"c","gmt_modified":"m"},{"vocabulary_id":"b","status":"OK","gmt_create":"c","gmt_modified":"m"}]},"usage":{"count":1},"request_id":"r"}`))
		default:
			w.Write([]byte(`{"output":{},"usage":{"count":1},"request_id":"r"}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestVocabularies(t *testing.T) {
	last := &lastRequest{}
	srv := vocabServer(t, last)
	v := New(Config{APIKey: "k", APIBase: srv.URL}).Vocabularies()
	ctx := context.Background()

	id, err := v.Create(ctx, "paraformer-realtime-v2", "demo", []VocabularyEntry{{Text: "hello", Weight: 4}})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if id != "vocab-demo-1" {
		t.Errorf("Create() = %q, want vocab-demo-1", id)
	}
	if model := last.get()["model"]; model != VocabularyModel {
		t.Errorf("model = %v, want %s", model, VocabularyModel)
	}
	input := last.input()
	if input["target_model"] != "paraformer-realtime-v2" || input["prefix"] != "demo" {
		t.Errorf("create input = %v", input)
	}

	details, err := v.Query(ctx, id)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if details.TargetModel != "paraformer-realtime-v2" || len(details.Entries) != 1 || details.Entries[0].Weight != 4 {
		t.Errorf("Query() = %+v", details)
	}

	list, err := v.List(ctx, "demo", 0, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 2 || list[0].ID != "a" {
		t.Errorf("List() = %+v", list)
	}
	input = last.input()
	if input["page_index"] != float64(0) || input["page_size"] != float64(10) {
		t.Errorf("list paging = %v/%v, want 0/10", input["page_index"], input["page_size"])
	}

	if err := v.Update(ctx, id, []VocabularyEntry{{Text: "world", Weight: 2, Lang: "en"}}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if input := last.input(); input["action"] != "update_vocabulary" || input["vocabulary_id"] != id {
		t.Errorf("update input = %v", input)
	}

	if err := v.Delete(ctx, id); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if input := last.input(); input["action"] != "delete_vocabulary" {
		t.Errorf("delete input = %v", input)
	}
}

func TestStream(t *testing.T) {
	srv := wstest.NewServer(t, func(p *wstest.Peer) {
		run, ok := p.MustReadCommand(protocol.ActionRunTask)
		if !ok {
			return
		}
		p.SendEvent(wstest.Started(run.TaskID))
		p.SendEvent(wstest.Finished(run.TaskID, nil))
		p.ReadUntilClose()
	})

	c := New(Config{APIKey: "sk-test", DataInspection: "enable", WebsocketURL: srv.URL()})
	var kinds []protocol.EventKind
	err := c.Stream(context.Background(), session.Callbacks{
		Open: func(ctx context.Context, w session.Writer) {
			w.Send(protocol.NewTTSRunTask("t1", "cosyvoice-v2", protocol.SynthesisParams{Voice: "v"}))
		},
		Event: func(ctx context.Context, w session.Writer, ev protocol.Event) {
			kinds = append(kinds, ev.Kind())
			if ev.Kind().Terminal() {
				w.Close()
			}
		},
	})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	if len(kinds) != 2 || kinds[1] != protocol.EventTaskFinished {
		t.Errorf("events = %v", kinds)
	}
	h := srv.Headers()[0]
	if h.Get(transport.HeaderDataInspection) != "enable" || h.Get(transport.HeaderAuthorization) != "Bearer sk-test" {
		t.Errorf("upgrade headers = %v", h)
	}
}

func TestConnect_Rejected(t *testing.T) {
	srv := wstest.NewRejectingServer(t, http.StatusForbidden, `{"code":"AccessDenied"}`)
	c := New(Config{APIKey: "k", WebsocketURL: srv.URL()})

	_, err := c.Connect(context.Background())
	var de *transport.DialError
	if !errors.As(err, &de) {
		t.Fatalf("Connect() error = %v, want *transport.DialError", err)
	}
	if de.StatusCode != http.StatusForbidden {
		t.Errorf("StatusCode = %d, want 403", de.StatusCode)
	}
}

func TestNew_Defaults(t *testing.T) {
	c := New(Config{APIKey: "k"})
	if c.Config().APIBase != DefaultAPIBase {
		t.Errorf("APIBase = %q", c.Config().APIBase)
	}
	if c.Config().WebsocketURL != transport.DefaultEndpoint {
		t.Errorf("WebsocketURL = %q", c.Config().WebsocketURL)
	}
}
