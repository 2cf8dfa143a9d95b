package transport

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"hookchat/internal/metrics"
)

// maxResponseBytes caps how much of a webhook response is read. Replies are
// short human-readable strings; anything past this is noise.
const maxResponseBytes = 1 << 20

// ClientConfig configures the webhook transport client.
type ClientConfig struct {
	Timeout   time.Duration
	HintRules []HintRule       // built-in rules are used when nil
	Logger    *slog.Logger
	Now       func() time.Time // overridable for tests
}

// Client submits ingestion batches and chat turns to automation webhooks.
// Each submit operation issues exactly one POST with no retries; failures
// are always surfaced to the caller as a typed *Error.
type Client struct {
	httpClient *http.Client
	hints      []HintRule
	logger     *slog.Logger
	now        func() time.Time
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	hints := cfg.HintRules
	if hints == nil {
		hints = defaultHintRules()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Client{
		httpClient: newHTTPClient(cfg.Timeout),
		hints:      hints,
		logger:     cfg.Logger,
		now:        now,
	}
}

// SubmitIngestion sends context text plus the staged files to the ingestion
// webhook. Success is opaque; only failure carries information.
func (c *Client) SubmitIngestion(ctx context.Context, url, text string, files []File) error {
	_, err := c.submit(ctx, url, text, sessionID("ingest", c.now()), files)
	return err
}

// SubmitChatTurn sends one user turn, with any attached files, to the chat
// webhook and returns the assistant's reply text.
func (c *Client) SubmitChatTurn(ctx context.Context, url, text string, files []File) (string, error) {
	return c.submit(ctx, url, text, sessionID("chat", c.now()), files)
}

func (c *Client) submit(ctx context.Context, url, text, session string, files []File) (string, error) {
	if strings.TrimSpace(url) == "" {
		return "", &Error{Kind: KindConfig, Message: "webhook URL is not configured"}
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := writeMultipart(w, text, session, files); err != nil {
		return "", &Error{Kind: KindNetwork, Message: "build request body: " + err.Error(), Err: err}
	}
	if err := w.Close(); err != nil {
		return "", &Error{Kind: KindNetwork, Message: "finalize request body: " + err.Error(), Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return "", &Error{Kind: KindConfig, Message: "invalid webhook URL: " + err.Error(), Err: err}
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.WebhookLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.TransportFailures.Inc()
		return "", &Error{Kind: KindNetwork, Message: "webhook request failed: " + err.Error(), Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		metrics.TransportFailures.Inc()
		return "", &Error{Kind: KindNetwork, Message: "read webhook response: " + err.Error(), Err: err}
	}

	reply, terr := parseResponse(resp.StatusCode, http.StatusText(resp.StatusCode), respBody)
	if terr != nil {
		applyHints(terr, c.hints)
		metrics.TransportFailures.Inc()
		c.logger.Warn("webhook returned error",
			"status", resp.StatusCode,
			"session", session,
			"message", terr.Message,
		)
		return "", terr
	}

	c.logger.Info("webhook call complete",
		"session", session,
		"files", len(files),
		"reply_len", len(reply),
	)
	return reply, nil
}
