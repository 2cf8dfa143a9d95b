package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"hookchat/internal/domain"
)

// Webhooks holds the two automation endpoint URLs. An empty field means
// "not configured" and is never used as a literal target.
type Webhooks struct {
	IngestionURL string `json:"ingestionUrl"`
	ChatURL      string `json:"chatUrl"`
}

// webhooksKey is the versioned settings key for the persisted webhook
// configuration. Bump the version when the defaults change so stale cached
// configs refresh.
const webhooksKey = "webhooks.v2"

// DefaultWebhooks points at the operator's own automation endpoints; real
// deployments are expected to override both in the settings page.
func DefaultWebhooks() Webhooks {
	return Webhooks{
		IngestionURL: "https://automation.hookchat.dev/webhook/kb-ingest",
		ChatURL:      "https://automation.hookchat.dev/webhook/kb-chat",
	}
}

// WebhookStore persists Webhooks as one JSON blob under a single versioned
// key in a key-value store. Load never fails: absent or malformed stored
// data falls back to the defaults.
type WebhookStore struct {
	kv     domain.KV
	logger *slog.Logger
}

func NewWebhookStore(kv domain.KV, logger *slog.Logger) *WebhookStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookStore{kv: kv, logger: logger}
}

func (s *WebhookStore) Load(ctx context.Context) Webhooks {
	raw, ok, err := s.kv.Get(ctx, webhooksKey)
	if err != nil {
		s.logger.Warn("cannot read webhook config, using defaults", "err", err)
		return DefaultWebhooks()
	}
	if !ok {
		return DefaultWebhooks()
	}

	var hooks Webhooks
	if err := json.Unmarshal([]byte(raw), &hooks); err != nil {
		s.logger.Warn("stored webhook config is malformed, using defaults", "err", err)
		return DefaultWebhooks()
	}
	hooks.IngestionURL = strings.TrimSpace(hooks.IngestionURL)
	hooks.ChatURL = strings.TrimSpace(hooks.ChatURL)
	return hooks
}

func (s *WebhookStore) Save(ctx context.Context, hooks Webhooks) error {
	hooks.IngestionURL = strings.TrimSpace(hooks.IngestionURL)
	hooks.ChatURL = strings.TrimSpace(hooks.ChatURL)

	data, err := json.Marshal(hooks)
	if err != nil {
		return fmt.Errorf("marshal webhook config: %w", err)
	}
	if err := s.kv.Set(ctx, webhooksKey, string(data)); err != nil {
		return fmt.Errorf("save webhook config: %w", err)
	}
	s.logger.Info("webhook config saved")
	return nil
}
