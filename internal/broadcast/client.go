// Package broadcast delivers fan-group notifications through a webhook and
// renders the configurable message templates.
package broadcast

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/aimd54/fanfund-tracker/internal/config"
	"github.com/aimd54/fanfund-tracker/pkg/logger"
)

// Broadcaster is the delivery capability services depend on; the webhook
// client implements it and tests swap in a recorder.
type Broadcaster interface {
	SendText(text string) error
}

// Client handles webhook notifications to the fan group chat bridge.
type Client struct {
	webhookURL string
	channel    string
	enabled    bool
	sendDelay  time.Duration
	log        *logger.Logger
}

// NewClient creates a new broadcast client.
func NewClient(cfg *config.BroadcastConfig, log *logger.Logger) *Client {
	return &Client{
		webhookURL: cfg.WebhookURL,
		channel:    cfg.Channel,
		enabled:    cfg.Enabled,
		sendDelay:  cfg.GetSendDelay(),
		log:        log,
	}
}

// Message represents a webhook message payload.
type Message struct {
	Channel  string `json:"channel,omitempty"`
	Username string `json:"username,omitempty"`
	Text     string `json:"text,omitempty"`
	IconURL  string `json:"icon_url,omitempty"`
}

// SendMessage sends a message through the webhook.
func (c *Client) SendMessage(msg *Message) error {
	if !c.enabled {
		c.log.Debug().Msg("Broadcast is disabled, skipping message")
		return nil
	}

	if msg.Channel == "" {
		msg.Channel = c.channel
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "POST", c.webhookURL, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send broadcast message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("broadcast webhook returned status %d", resp.StatusCode)
	}

	c.log.Debug().
		Str("channel", msg.Channel).
		Msg("Sent broadcast message")

	return nil
}

// SendText sends a plain text message.
func (c *Client) SendText(text string) error {
	return c.SendMessage(&Message{Text: text})
}

// SendBatch sends messages in order with the configured pause between them,
// so the chat bridge does not rate-limit a burst of contribution reports.
func (c *Client) SendBatch(messages []string) error {
	for i, text := range messages {
		if i > 0 {
			time.Sleep(c.sendDelay)
		}
		if err := c.SendText(text); err != nil {
			return fmt.Errorf("failed to send message %d of %d: %w", i+1, len(messages), err)
		}
	}
	return nil
}
