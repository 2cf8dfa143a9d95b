package channel

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"hookchat/internal/config"
	"hookchat/internal/conversation"
	"hookchat/internal/domain"
	"hookchat/internal/metrics"
	"hookchat/internal/transport"
	"hookchat/internal/upload"
)

const (
	maxFormMemory  = 32 << 20 // buffered in memory before spilling to disk
	requestTimeout = 150 * time.Second
)

//go:embed web_templates/*.html
var templateFS embed.FS

//go:embed web_assets/*
var assetsFS embed.FS

// Web serves the browser UI: transcript with chat, the upload queue, and
// the webhook settings page. All webhook traffic goes through the
// transport client; this layer only drives the state machines.
type Web struct {
	host    string
	port    int
	logger  *slog.Logger
	server  *http.Server
	tmpl    *htmltemplate.Template
	version string

	client   *transport.Client
	webhooks *config.WebhookStore
	log      *conversation.Log
	store    *conversation.Store // optional transcript persistence
	queue    *upload.Queue

	maxFileBytes int64
	clearDelay   time.Duration

	// turnBusy guards the one-outstanding-turn rule: a second chat send
	// while one is in flight is rejected, mirroring the disabled send
	// affordance in the UI.
	turnBusy atomic.Bool
}

type WebOptions struct {
	Host         string
	Port         int
	Logger       *slog.Logger
	Version      string
	Client       *transport.Client
	Webhooks     *config.WebhookStore
	Log          *conversation.Log
	Store        *conversation.Store // may be nil
	Queue        *upload.Queue
	MaxFileBytes int64
	ClearDelay   time.Duration
}

func NewWeb(opts WebOptions) *Web {
	if opts.Host == "" {
		opts.Host = "127.0.0.1"
	}
	if opts.Port == 0 {
		opts.Port = 8080
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	if opts.MaxFileBytes <= 0 {
		opts.MaxFileBytes = upload.DefaultMaxFileBytes
	}
	if opts.ClearDelay <= 0 {
		opts.ClearDelay = 2 * time.Second
	}

	tmpl := htmltemplate.Must(htmltemplate.ParseFS(templateFS, "web_templates/*.html"))

	return &Web{
		host:         opts.Host,
		port:         opts.Port,
		logger:       opts.Logger,
		tmpl:         tmpl,
		version:      opts.Version,
		client:       opts.Client,
		webhooks:     opts.Webhooks,
		log:          opts.Log,
		store:        opts.Store,
		queue:        opts.Queue,
		maxFileBytes: opts.MaxFileBytes,
		clearDelay:   opts.ClearDelay,
	}
}

func (w *Web) Name() string { return "web" }

func (w *Web) router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	r.Get("/", w.handleIndex)

	assetsHandler := http.FileServer(http.FS(assetsFS))
	r.Get("/assets/*", func(rw http.ResponseWriter, req *http.Request) {
		req.URL.Path = "/web_assets/" + chi.URLParam(req, "*")
		rw.Header().Set("Cache-Control", "public, max-age=86400")
		assetsHandler.ServeHTTP(rw, req)
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/history", w.handleHistory)
		r.Post("/chat/send", w.handleChatSend)
		r.Get("/uploads", w.handleUploadList)
		r.Post("/uploads", w.handleUploadAdd)
		r.Delete("/uploads/{id}", w.handleUploadRemove)
		r.Get("/uploads/{id}/preview", w.handleUploadPreview)
		r.Post("/ingest", w.handleIngest)
		r.Get("/webhooks", w.handleGetWebhooks)
		r.Put("/webhooks", w.handlePutWebhooks)
	})

	r.Get("/status", w.handleStatus)
	r.Get("/metrics", metrics.Collector.Handler())

	return r
}

// Start starts the web server and blocks until ctx is cancelled or the
// server fails.
func (w *Web) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", w.host, w.port)
	w.server = &http.Server{
		Addr:              addr,
		Handler:           w.router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       requestTimeout,
		IdleTimeout:       60 * time.Second,
	}

	w.logger.Info("web UI started", "addr", "http://"+addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		w.server.Shutdown(shutdownCtx)
	}()

	if err := w.server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (w *Web) Stop() error {
	if w.server != nil {
		return w.server.Close()
	}
	return nil
}

func (w *Web) handleIndex(rw http.ResponseWriter, r *http.Request) {
	if err := w.tmpl.ExecuteTemplate(rw, "index.html", map[string]any{
		"Title":         "Knowledge Base",
		"Version":       w.version,
		"AcceptedTypes": strings.Join(upload.AcceptedMimeTypes, ","),
		"MaxFileMB":     w.maxFileBytes / (1024 * 1024),
	}); err != nil {
		w.logger.Error("template error", "template", "index", "err", err)
	}
}

// apiMessage is the transcript wire shape; timestamps are epoch millis.
type apiMessage struct {
	ID          string                  `json:"id"`
	Role        domain.Role             `json:"role"`
	Content     string                  `json:"content"`
	Timestamp   int64                   `json:"timestamp"`
	IsError     bool                    `json:"isError,omitempty"`
	Attachments []domain.AttachmentMeta `json:"attachments,omitempty"`
}

func toAPIMessage(m domain.Message) apiMessage {
	return apiMessage{
		ID:          m.ID,
		Role:        m.Role,
		Content:     m.Content,
		Timestamp:   m.Timestamp.UnixMilli(),
		IsError:     m.IsError,
		Attachments: m.Attachments,
	}
}

func (w *Web) handleHistory(rw http.ResponseWriter, r *http.Request) {
	msgs := w.log.Messages()
	out := make([]apiMessage, len(msgs))
	for i, m := range msgs {
		out[i] = toAPIMessage(m)
	}
	writeJSON(rw, http.StatusOK, map[string]any{"messages": out})
}

func (w *Web) handleChatSend(rw http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		writeJSON(rw, http.StatusBadRequest, map[string]string{"error": "invalid form: " + err.Error()})
		return
	}
	message := strings.TrimSpace(r.FormValue("message"))

	var headers []*multipart.FileHeader
	if r.MultipartForm != nil {
		headers = r.MultipartForm.File["files"]
	}
	if message == "" && len(headers) == 0 {
		writeJSON(rw, http.StatusBadRequest, map[string]string{"error": "empty message"})
		return
	}

	// One outstanding turn at a time; the UI disables the send button, this
	// backs it up for direct API callers.
	if !w.turnBusy.CompareAndSwap(false, true) {
		writeJSON(rw, http.StatusConflict, map[string]string{"error": "a chat turn is already in progress"})
		return
	}
	defer w.turnBusy.Store(false)

	files := make([]transport.File, 0, len(headers))
	attachments := make([]domain.AttachmentMeta, 0, len(headers))
	for _, h := range headers {
		f, err := h.Open()
		if err != nil {
			writeJSON(rw, http.StatusBadRequest, map[string]string{"error": "read attachment: " + err.Error()})
			return
		}
		defer f.Close()
		mimeType := h.Header.Get("Content-Type")
		files = append(files, transport.File{
			Name:     h.Filename,
			MimeType: mimeType,
			Size:     h.Size,
			Reader:   f,
		})
		attachments = append(attachments, domain.AttachmentMeta{
			Name:      h.Filename,
			MimeType:  mimeType,
			SizeBytes: h.Size,
		})
	}

	w.persist(r.Context(), w.log.AppendUser(message, attachments))
	metrics.ChatTurnsTotal.Inc()

	hooks := w.webhooks.Load(r.Context())
	reply, err := w.client.SubmitChatTurn(r.Context(), hooks.ChatURL, message, files)

	var msg domain.Message
	if err != nil {
		msg = w.log.AppendError(errorContent(err))
	} else {
		msg = w.log.AppendAssistant(reply)
	}
	w.persist(r.Context(), msg)

	writeJSON(rw, http.StatusOK, map[string]any{"message": toAPIMessage(msg)})
}

// errorContent renders a transport failure as transcript text, with the
// remediation hint when one applies.
func errorContent(err error) string {
	te, ok := transport.AsError(err)
	if !ok {
		return err.Error()
	}
	if te.Hint != "" {
		return te.Message + "\n\nHint: " + te.Hint
	}
	return te.Message
}

func (w *Web) persist(ctx context.Context, msg domain.Message) {
	if w.store == nil {
		return
	}
	if err := w.store.Append(ctx, msg); err != nil {
		w.logger.Warn("cannot persist message", "id", msg.ID, "err", err)
	}
}

func (w *Web) handleUploadList(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, map[string]any{"items": w.queue.Items()})
}

func (w *Web) handleUploadAdd(rw http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		writeJSON(rw, http.StatusBadRequest, map[string]string{"error": "invalid form: " + err.Error()})
		return
	}
	var headers []*multipart.FileHeader
	if r.MultipartForm != nil {
		headers = r.MultipartForm.File["files"]
	}
	if len(headers) == 0 {
		writeJSON(rw, http.StatusBadRequest, map[string]string{"error": "no files provided"})
		return
	}

	added := make([]domain.UploadItem, 0, len(headers))
	for _, h := range headers {
		f, err := h.Open()
		if err != nil {
			writeJSON(rw, http.StatusBadRequest, map[string]string{"error": "read file: " + err.Error()})
			return
		}
		item, err := w.queue.Add(h.Filename, h.Header.Get("Content-Type"), f)
		f.Close()
		if errors.Is(err, upload.ErrTooLarge) {
			writeJSON(rw, http.StatusRequestEntityTooLarge, map[string]string{
				"error": fmt.Sprintf("%s exceeds the %d MB limit", h.Filename, w.maxFileBytes/(1024*1024)),
			})
			return
		}
		if err != nil {
			writeJSON(rw, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		added = append(added, item)
	}
	writeJSON(rw, http.StatusOK, map[string]any{"items": added})
}

func (w *Web) handleUploadRemove(rw http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := w.queue.Remove(id)
	switch {
	case errors.Is(err, upload.ErrNotFound):
		writeJSON(rw, http.StatusNotFound, map[string]string{"error": "unknown upload"})
	case errors.Is(err, upload.ErrNotPending):
		writeJSON(rw, http.StatusConflict, map[string]string{"error": "upload is no longer pending"})
	case err != nil:
		writeJSON(rw, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	default:
		writeJSON(rw, http.StatusOK, map[string]string{"status": "removed"})
	}
}

func (w *Web) handleUploadPreview(rw http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	f, item, err := w.queue.Open(id)
	if err != nil {
		http.NotFound(rw, r)
		return
	}
	defer f.Close()
	if !item.HasPreview {
		http.NotFound(rw, r)
		return
	}
	rw.Header().Set("Content-Type", item.MimeType)
	io.Copy(rw, f)
}

func (w *Web) handleIngest(rw http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxFormMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		writeJSON(rw, http.StatusBadRequest, map[string]string{"error": "invalid form: " + err.Error()})
		return
	}
	contextText := strings.TrimSpace(r.FormValue("context"))

	batch := w.queue.BeginSubmit()
	if len(batch) == 0 && contextText == "" {
		writeJSON(rw, http.StatusBadRequest, map[string]string{"error": "nothing to submit"})
		return
	}

	files := make([]transport.File, 0, len(batch))
	var readers []io.Closer
	for _, item := range batch {
		f, meta, err := w.queue.Open(item.ID)
		if err != nil {
			w.logger.Error("staged file vanished", "id", item.ID, "err", err)
			continue
		}
		readers = append(readers, f)
		files = append(files, transport.File{
			Name:     meta.Name,
			MimeType: meta.MimeType,
			Size:     meta.SizeBytes,
			Reader:   f,
		})
	}
	defer func() {
		for _, c := range readers {
			c.Close()
		}
	}()

	metrics.IngestionsTotal.Inc()
	hooks := w.webhooks.Load(r.Context())
	err := w.client.SubmitIngestion(r.Context(), hooks.IngestionURL, contextText, files)
	if err != nil {
		w.queue.Complete(false)
		status := http.StatusBadGateway
		if transport.IsConfigError(err) {
			status = http.StatusPreconditionFailed
		}
		writeJSON(rw, status, map[string]any{
			"status": "error",
			"error":  errorContent(err),
			"items":  w.queue.Items(),
		})
		return
	}

	w.queue.Complete(true)
	items := w.queue.Items()

	// Leave the confirmation visible briefly, then clear the queue.
	time.AfterFunc(w.clearDelay, w.queue.Clear)

	writeJSON(rw, http.StatusOK, map[string]any{"status": "ok", "items": items})
}

func (w *Web) handleGetWebhooks(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, w.webhooks.Load(r.Context()))
}

func (w *Web) handlePutWebhooks(rw http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeJSON(rw, http.StatusBadRequest, map[string]string{"error": "read body: " + err.Error()})
		return
	}
	defer r.Body.Close()

	var hooks config.Webhooks
	if err := json.Unmarshal(body, &hooks); err != nil {
		writeJSON(rw, http.StatusBadRequest, map[string]string{"error": "invalid config: " + err.Error()})
		return
	}
	if err := w.webhooks.Save(r.Context(), hooks); err != nil {
		writeJSON(rw, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(rw, http.StatusOK, w.webhooks.Load(r.Context()))
}

func (w *Web) handleStatus(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": w.version,
		"time":    time.Now().Format(time.RFC3339),
	})
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json; charset=utf-8")
	rw.WriteHeader(status)
	json.NewEncoder(rw).Encode(v)
}
