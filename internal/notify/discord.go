package notify

import (
	"context"
	"fmt"
	"net/http"
)

// DiscordSender pushes arbitrage alerts to a channel via an incoming
// webhook. Discord answers 204 No Content on success.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSender builds a sender for the given webhook URL.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: sendTimeout},
	}
}

// Name returns "discord".
func (d *DiscordSender) Name() string { return "discord" }

// Send delivers one message with the title bolded.
func (d *DiscordSender) Send(ctx context.Context, title, message string) error {
	return postJSON(ctx, d.client, "discord", d.webhookURL, map[string]string{
		"content": fmt.Sprintf("**%s**\n%s", title, message),
	})
}
