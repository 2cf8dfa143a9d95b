package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"hookchat/internal/config"
	"hookchat/internal/conversation"
	"hookchat/internal/domain"
	"hookchat/internal/transport"
	"hookchat/internal/upload"
)

type memKV struct {
	data map[string]string
}

func (m *memKV) Get(ctx context.Context, key string) (string, bool, error) {
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memKV) Set(ctx context.Context, key, value string) error {
	m.data[key] = value
	return nil
}

func (m *memKV) Delete(ctx context.Context, key string) error {
	delete(m.data, key)
	return nil
}

// newTestWeb wires a Web channel against a stub webhook backend and returns
// both handlers.
func newTestWeb(t *testing.T, backend http.HandlerFunc) (*Web, http.Handler) {
	t.Helper()

	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	logger := slog.Default()
	kv := &memKV{data: make(map[string]string)}
	webhooks := config.NewWebhookStore(kv, logger)
	if err := webhooks.Save(context.Background(), config.Webhooks{
		IngestionURL: srv.URL + "/ingest",
		ChatURL:      srv.URL + "/chat",
	}); err != nil {
		t.Fatal(err)
	}

	queue, err := upload.NewQueue(upload.QueueConfig{StageDir: t.TempDir(), Logger: logger})
	if err != nil {
		t.Fatal(err)
	}

	web := NewWeb(WebOptions{
		Logger:     logger,
		Client:     transport.NewClient(transport.ClientConfig{Timeout: 5 * time.Second}),
		Webhooks:   webhooks,
		Log:        conversation.NewLog(),
		Queue:      queue,
		ClearDelay: time.Hour, // keep resolved items visible for assertions
	})
	return web, web.router()
}

func multipartBody(t *testing.T, fields map[string]string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	for name, content := range files {
		part, err := w.CreateFormFile("files", name)
		if err != nil {
			t.Fatal(err)
		}
		io.Copy(part, strings.NewReader(content))
	}
	w.Close()
	return &buf, w.FormDataContentType()
}

func TestWeb_ChatSend(t *testing.T) {
	web, handler := newTestWeb(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"output":"reply text"}`))
	})

	body, ct := multipartBody(t, map[string]string{"message": "hello"}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/chat/send", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var resp struct {
		Message apiMessage `json:"message"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Message.Content != "reply text" || resp.Message.Role != domain.RoleAssistant {
		t.Fatalf("message = %+v", resp.Message)
	}
	if resp.Message.Timestamp == 0 {
		t.Fatal("timestamp must be epoch millis, not zero")
	}

	msgs := web.log.Messages()
	if len(msgs) != 2 || msgs[0].Role != domain.RoleUser || msgs[1].Content != "reply text" {
		t.Fatalf("transcript = %+v", msgs)
	}
}

func TestWeb_ChatSendErrorKeepsUserTurn(t *testing.T) {
	web, handler := newTestWeb(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"errorMessage":"Workflow was started"}`))
	})

	body, ct := multipartBody(t, map[string]string{"message": "hello"}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/chat/send", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	msgs := web.log.Messages()
	if len(msgs) != 2 {
		t.Fatalf("transcript = %+v", msgs)
	}
	if msgs[0].Content != "hello" || msgs[0].IsError {
		t.Fatal("user turn must survive the failure")
	}
	if !msgs[1].IsError {
		t.Fatal("failed turn must be flagged as error")
	}
	if !strings.Contains(msgs[1].Content, "Hint:") {
		t.Fatalf("error content %q must carry the remediation hint", msgs[1].Content)
	}
}

func TestWeb_ChatSendBusyReturnsConflict(t *testing.T) {
	web, handler := newTestWeb(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"output":"ok"}`))
	})
	web.turnBusy.Store(true)

	body, ct := multipartBody(t, map[string]string{"message": "hello"}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/chat/send", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	if web.log.Len() != 0 {
		t.Fatal("rejected turn must not touch the transcript")
	}
}

func TestWeb_ChatSendEmptyRejected(t *testing.T) {
	_, handler := newTestWeb(t, func(w http.ResponseWriter, r *http.Request) {})

	body, ct := multipartBody(t, map[string]string{"message": "   "}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/chat/send", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestWeb_UploadLifecycle(t *testing.T) {
	web, handler := newTestWeb(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// Stage two files.
	body, ct := multipartBody(t, nil, map[string]string{"a.txt": "aaa", "b.txt": "bbb"})
	req := httptest.NewRequest(http.MethodPost, "/api/uploads", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("stage: status = %d, body %s", rec.Code, rec.Body)
	}

	items := web.queue.Items()
	if len(items) != 2 {
		t.Fatalf("queue = %+v", items)
	}

	// Remove the first one.
	req = httptest.NewRequest(http.MethodDelete, "/api/uploads/"+items[0].ID, nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("remove: status = %d", rec.Code)
	}

	// Submit the batch.
	body, ct = multipartBody(t, map[string]string{"context": "about these"}, nil)
	req = httptest.NewRequest(http.MethodPost, "/api/ingest", body)
	req.Header.Set("Content-Type", ct)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("ingest: status = %d, body %s", rec.Code, rec.Body)
	}

	for _, it := range web.queue.Items() {
		if it.Status != domain.UploadSuccess {
			t.Fatalf("item %s status = %v, want success", it.Name, it.Status)
		}
	}
}

func TestWeb_IngestFailureMarksBatchError(t *testing.T) {
	web, handler := newTestWeb(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"errorMessage":"ingest node broken"}`))
	})

	if _, err := web.queue.Add("a.txt", "text/plain", strings.NewReader("aaa")); err != nil {
		t.Fatal(err)
	}

	body, ct := multipartBody(t, map[string]string{"context": ""}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/ingest", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	items := web.queue.Items()
	if len(items) != 1 || items[0].Status != domain.UploadError {
		t.Fatalf("items = %+v, want error status preserved for retry context", items)
	}
}

func TestWeb_RemoveUnknownUpload(t *testing.T) {
	_, handler := newTestWeb(t, func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest(http.MethodDelete, "/api/uploads/nope", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestWeb_WebhookSettings(t *testing.T) {
	_, handler := newTestWeb(t, func(w http.ResponseWriter, r *http.Request) {})

	update := `{"ingestionUrl":"https://new.example/in","chatUrl":"https://new.example/chat"}`
	req := httptest.NewRequest(http.MethodPut, "/api/webhooks", strings.NewReader(update))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("put: status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/webhooks", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var hooks config.Webhooks
	if err := json.Unmarshal(rec.Body.Bytes(), &hooks); err != nil {
		t.Fatal(err)
	}
	if hooks.IngestionURL != "https://new.example/in" || hooks.ChatURL != "https://new.example/chat" {
		t.Fatalf("hooks = %+v", hooks)
	}
}

func TestWeb_History(t *testing.T) {
	web, handler := newTestWeb(t, func(w http.ResponseWriter, r *http.Request) {})
	web.log.AppendUser("q", nil)
	web.log.AppendAssistant("a")

	req := httptest.NewRequest(http.MethodGet, "/api/history", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var resp struct {
		Messages []apiMessage `json:"messages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Messages) != 2 || resp.Messages[0].Content != "q" {
		t.Fatalf("messages = %+v", resp.Messages)
	}
	if resp.Messages[0].Timestamp == 0 {
		t.Fatal("timestamps must be epoch millis")
	}
}

func TestWeb_Status(t *testing.T) {
	_, handler := newTestWeb(t, func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestSplitMessage(t *testing.T) {
	if got := splitMessage("short", 100); len(got) != 1 || got[0] != "short" {
		t.Fatalf("got %v", got)
	}

	long := strings.Repeat("line one\n", 40)
	chunks := splitMessage(long, 100)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	var rebuilt strings.Builder
	for _, c := range chunks {
		if len(c) > 100 {
			t.Fatalf("chunk exceeds limit: %d bytes", len(c))
		}
		rebuilt.WriteString(c)
	}
	if rebuilt.String() != long {
		t.Fatal("chunks must reassemble to the original text")
	}
}
