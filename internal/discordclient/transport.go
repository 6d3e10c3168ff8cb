package discordclient

import (
	"context"
	"strings"

	"github.com/andrewgari/starbunk-js-sub002/delivery"
	"github.com/andrewgari/starbunk-js-sub002/replybot"
)

// WebhookTransport sends impersonated replies through per-channel webhooks
// and plain replies as the bot account.
type WebhookTransport struct {
	client   *Client
	webhooks map[string]string
}

func NewWebhookTransport(client *Client, webhooks map[string]string) *WebhookTransport {
	clean := make(map[string]string, len(webhooks))
	for channelID, hook := range webhooks {
		channelID = strings.TrimSpace(channelID)
		hook = strings.TrimSpace(hook)
		if channelID != "" && hook != "" {
			clean[channelID] = hook
		}
	}
	return &WebhookTransport{client: client, webhooks: clean}
}

func (t *WebhookTransport) SendAsIdentity(ctx context.Context, channelID string, id replybot.Identity, text string) error {
	hook, ok := t.webhooks[strings.TrimSpace(channelID)]
	if !ok {
		return delivery.ErrImpersonationUnavailable
	}
	return t.client.ExecuteWebhook(ctx, hook, id.DisplayName, id.AvatarURL, text)
}

func (t *WebhookTransport) Send(ctx context.Context, channelID, text string) error {
	return t.client.CreateMessage(ctx, channelID, text)
}
