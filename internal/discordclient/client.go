package discordclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultBaseURL = "https://discord.com/api/v10"

type Client struct {
	http     *http.Client
	baseURL  string
	botToken string
}

func New(httpClient *http.Client, baseURL, botToken string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	baseURL = strings.TrimSpace(strings.TrimRight(baseURL, "/"))
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		http:     httpClient,
		baseURL:  baseURL,
		botToken: strings.TrimSpace(botToken),
	}
}

// ExecuteWebhook posts content through a channel webhook under the given
// username and avatar.
func (c *Client) ExecuteWebhook(ctx context.Context, webhookURL, username, avatarURL, content string) error {
	if c == nil || c.http == nil {
		return fmt.Errorf("discord client is not initialized")
	}
	webhookURL = strings.TrimSpace(webhookURL)
	content = strings.TrimSpace(content)
	if webhookURL == "" {
		return fmt.Errorf("webhook url is required")
	}
	if _, err := url.ParseRequestURI(webhookURL); err != nil {
		return fmt.Errorf("invalid webhook url: %w", err)
	}
	if content == "" {
		return fmt.Errorf("content is required")
	}
	type requestBody struct {
		Content   string `json:"content"`
		Username  string `json:"username,omitempty"`
		AvatarURL string `json:"avatar_url,omitempty"`
	}
	return c.post(ctx, webhookURL, "", requestBody{
		Content:   content,
		Username:  strings.TrimSpace(username),
		AvatarURL: strings.TrimSpace(avatarURL),
	}, "webhook execute")
}

// CreateMessage posts content as the bot account.
func (c *Client) CreateMessage(ctx context.Context, channelID, content string) error {
	if c == nil || c.http == nil {
		return fmt.Errorf("discord client is not initialized")
	}
	token := strings.TrimSpace(c.botToken)
	if token == "" {
		return fmt.Errorf("discord bot token is required")
	}
	channelID = strings.TrimSpace(channelID)
	content = strings.TrimSpace(content)
	if channelID == "" {
		return fmt.Errorf("channel_id is required")
	}
	if content == "" {
		return fmt.Errorf("content is required")
	}
	type requestBody struct {
		Content string `json:"content"`
	}
	endpoint := c.baseURL + "/channels/" + url.PathEscape(channelID) + "/messages"
	return c.post(ctx, endpoint, "Bot "+token, requestBody{Content: content}, "create message")
}

func (c *Client) post(ctx context.Context, endpoint, auth string, payload any, op string) error {
	bodyRaw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal discord payload: %w", err)
	}
	const maxAttempts = 3
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyRaw))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}

		resp, err := c.http.Do(req)
		status := 0
		headers := http.Header{}
		if err != nil {
			lastErr = err
		} else {
			status = resp.StatusCode
			headers = resp.Header
			respRaw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
			_ = resp.Body.Close()
			if status >= 200 && status < 300 {
				return nil
			}
			lastErr = fmt.Errorf("discord %s http %d: %s", op, status, errorMessage(respRaw))
		}

		if attempt >= maxAttempts {
			break
		}
		if status == 0 {
			status = http.StatusBadGateway
		}
		wait, retryable := retryDelay(status, headers, attempt)
		if !retryable {
			break
		}
		if err := sleepWithContext(ctx, wait); err != nil {
			return err
		}
	}
	return lastErr
}

func errorMessage(raw []byte) string {
	var out struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &out); err == nil && strings.TrimSpace(out.Message) != "" {
		return strings.TrimSpace(out.Message)
	}
	msg := strings.TrimSpace(string(raw))
	if msg == "" {
		return "unknown_error"
	}
	return msg
}

func retryDelay(status int, headers http.Header, attempt int) (time.Duration, bool) {
	switch {
	case status == http.StatusTooManyRequests:
		retryAfter := strings.TrimSpace(headers.Get("Retry-After"))
		if retryAfter == "" {
			return 1 * time.Second, true
		}
		secs, err := strconv.ParseFloat(retryAfter, 64)
		if err != nil || secs <= 0 {
			return 1 * time.Second, true
		}
		return time.Duration(secs * float64(time.Second)), true
	case status >= 500 && status <= 599:
		switch attempt {
		case 1:
			return 300 * time.Millisecond, true
		case 2:
			return 1 * time.Second, true
		default:
			return 2 * time.Second, true
		}
	default:
		return 0, false
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
