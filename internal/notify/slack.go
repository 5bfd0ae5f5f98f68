package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/sandboxd/internal/telemetry"
)

// Slack posts messages to a Slack incoming webhook.
type Slack struct {
	hookURL  string
	channel  string
	username string
	icon     string
	client   *http.Client
}

// SlackConfig holds webhook settings. Channel, Username and IconEmoji are
// optional; the webhook's defaults apply when they are empty.
type SlackConfig struct {
	HookURL   string
	Channel   string
	Username  string
	IconEmoji string
	Timeout   time.Duration
}

// NewSlack creates a Slack webhook notifier.
func NewSlack(cfg SlackConfig) (*Slack, error) {
	if cfg.HookURL == "" {
		return nil, fmt.Errorf("slack hook URL is required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Slack{
		hookURL:  cfg.HookURL,
		channel:  cfg.Channel,
		username: cfg.Username,
		icon:     cfg.IconEmoji,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

type slackPayload struct {
	Text      string `json:"text"`
	Channel   string `json:"channel,omitempty"`
	Username  string `json:"username,omitempty"`
	IconEmoji string `json:"icon_emoji,omitempty"`
}

// Notify posts the message to the webhook. Failures are logged and counted,
// never surfaced.
func (s *Slack) Notify(ctx context.Context, text string) {
	payload, err := json.Marshal(slackPayload{
		Text:      text,
		Channel:   s.channel,
		Username:  s.username,
		IconEmoji: s.icon,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode slack payload")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.hookURL, bytes.NewReader(payload))
	if err != nil {
		log.Error().Err(err).Msg("Failed to build slack request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		telemetry.GetMetrics().NotifyFailuresTotal.Add(ctx, 1)
		log.Warn().Err(err).Msg("Slack notification failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		telemetry.GetMetrics().NotifyFailuresTotal.Add(ctx, 1)
		log.Warn().Int("status", resp.StatusCode).Msg("Slack webhook rejected notification")
		return
	}

	telemetry.GetMetrics().NotificationsSentTotal.Add(ctx, 1)
	log.Debug().Msg("Slack notification sent")
}
