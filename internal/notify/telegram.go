package notify

import (
	"context"
	"fmt"
	"net/http"
)

// TelegramSender pushes arbitrage alerts to a chat via the Bot API.
type TelegramSender struct {
	token  string
	chatID string
	client *http.Client
}

// NewTelegramSender builds a sender for the given bot token and chat ID.
func NewTelegramSender(token, chatID string) *TelegramSender {
	return &TelegramSender{
		token:  token,
		chatID: chatID,
		client: &http.Client{Timeout: sendTimeout},
	}
}

// Name returns "telegram".
func (t *TelegramSender) Name() string { return "telegram" }

// Send delivers one message through the sendMessage endpoint, with the
// title bolded via Markdown.
func (t *TelegramSender) Send(ctx context.Context, title, message string) error {
	endpoint := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.token)

	return postJSON(ctx, t.client, "telegram", endpoint, map[string]string{
		"chat_id":    t.chatID,
		"text":       fmt.Sprintf("*%s*\n%s", title, message),
		"parse_mode": "Markdown",
	})
}
