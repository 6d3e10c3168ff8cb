package replybot

import (
	"strings"
	"time"
)

type Author struct {
	ID          string `json:"id"`
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Bot         bool   `json:"bot,omitempty"`
}

// Message is one inbound chat event. GuildID is the audience and is empty
// for direct messages.
type Message struct {
	ID          string    `json:"id"`
	Content     string    `json:"content"`
	Author      Author    `json:"author"`
	WebhookID   string    `json:"webhook_id,omitempty"`
	ChannelID   string    `json:"channel_id"`
	ChannelName string    `json:"channel_name,omitempty"`
	GuildID     string    `json:"guild_id,omitempty"`
	SentAt      time.Time `json:"sent_at,omitempty"`
}

func (m Message) SenderID() string {
	return strings.TrimSpace(m.Author.ID)
}

func (m Message) FromWebhook() bool {
	return strings.TrimSpace(m.WebhookID) != ""
}

// SenderPolicy decides which senders are never answered. It is applied once
// by the processor and again by the default plugin filter.
type SenderPolicy struct {
	SelfID          string
	ExcludedIDs     []string
	ExcludedNames   []string
	ExcludeWebhooks bool
}

func (p SenderPolicy) IsSelf(msg Message) bool {
	self := strings.TrimSpace(p.SelfID)
	return self != "" && msg.SenderID() == self
}

func (p SenderPolicy) Excluded(msg Message) bool {
	if p.IsSelf(msg) {
		return true
	}
	id := msg.SenderID()
	for _, ex := range p.ExcludedIDs {
		if strings.TrimSpace(ex) != "" && strings.TrimSpace(ex) == id {
			return true
		}
	}
	if !msg.Author.Bot && !msg.FromWebhook() {
		return false
	}
	for _, name := range p.ExcludedNames {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if strings.EqualFold(name, strings.TrimSpace(msg.Author.Username)) ||
			strings.EqualFold(name, strings.TrimSpace(msg.Author.DisplayName)) {
			return true
		}
	}
	return p.ExcludeWebhooks && msg.FromWebhook()
}
