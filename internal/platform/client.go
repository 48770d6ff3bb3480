package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"taskrelay/internal/config"
	"taskrelay/internal/logging"
)

// tokenSource abstracts the token manager so tests can substitute one.
type tokenSource interface {
	GetToken(ctx context.Context) (string, error)
	Invalidate()
}

// Client talks to the messaging platform's REST API. All methods attach a
// bearer token and retry exactly once on a 401 after invalidating the
// cached token.
type Client struct {
	baseURL    string
	pageSize   int
	tokens     tokenSource
	httpClient *http.Client

	botPrincipalName string
	botDisplayName   string
	identity         identityCache
}

// NewClient builds a platform client from configuration. tokenEndpoint is
// the resolved OAuth2 token URL (config.TokenEndpoint()).
func NewClient(cfg config.PlatformConfig, tokenEndpoint string) *Client {
	return &Client{
		baseURL:          cfg.BaseURL,
		pageSize:         cfg.PageSize,
		tokens:           NewTokenManager(tokenEndpoint, cfg.ClientID, cfg.ClientSecret, defaultScope(cfg.BaseURL)),
		httpClient:       &http.Client{Timeout: 30 * time.Second},
		botPrincipalName: cfg.BotPrincipalName,
		botDisplayName:   cfg.BotDisplayName,
	}
}

// defaultScope derives the app-only resource scope from the API base URL.
func defaultScope(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return baseURL + "/.default"
	}
	return u.Scheme + "://" + u.Host + "/.default"
}

// channelMessage is the platform's wire shape for a channel message.
type channelMessage struct {
	ID              string    `json:"id"`
	CreatedDateTime time.Time `json:"createdDateTime"`
	From            struct {
		User struct {
			ID          string `json:"id"`
			DisplayName string `json:"displayName"`
		} `json:"user"`
	} `json:"from"`
	Body struct {
		ContentType string `json:"contentType"`
		Content     string `json:"content"`
	} `json:"body"`
}

// FetchChannelMessages lists the most recent messages in a channel, newest
// first per the platform's default ordering. Messages without an id are
// dropped; they cannot participate in deduplication.
func (c *Client) FetchChannelMessages(ctx context.Context, channelID string) ([]Message, error) {
	endpoint := fmt.Sprintf("%s/channels/%s/messages?$top=%d", c.baseURL, url.PathEscape(channelID), c.pageSize)

	var listResp struct {
		Value []channelMessage `json:"value"`
	}
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &listResp); err != nil {
		return nil, fmt.Errorf("failed to fetch channel messages: %w", err)
	}

	messages := make([]Message, 0, len(listResp.Value))
	for _, m := range listResp.Value {
		if m.ID == "" {
			logging.ListenerWarn("Dropping channel message without id in channel %s", channelID)
			continue
		}
		messages = append(messages, Message{
			ExternalID:        m.ID,
			CreatedAt:         m.CreatedDateTime,
			SenderID:          m.From.User.ID,
			SenderDisplayName: m.From.User.DisplayName,
			BodyHTML:          m.Body.Content,
		})
	}

	logging.ListenerDebug("Fetched %d messages from channel %s", len(messages), channelID)
	return messages, nil
}

// PostChannelMessage posts an HTML-bodied reply into a channel.
func (c *Client) PostChannelMessage(ctx context.Context, channelID, html string) (*PostedMessage, error) {
	endpoint := fmt.Sprintf("%s/channels/%s/messages", c.baseURL, url.PathEscape(channelID))

	payload := map[string]interface{}{
		"body": map[string]string{
			"contentType": "html",
			"content":     html,
		},
	}

	var posted PostedMessage
	if err := c.doJSON(ctx, http.MethodPost, endpoint, payload, &posted); err != nil {
		return nil, fmt.Errorf("failed to post channel message: %w", err)
	}

	logging.Dispatcher("Posted message %s to channel %s", posted.ID, channelID)
	return &posted, nil
}

// GetUserByObjectID fetches a directory profile. The endpoint accepts an
// object id or a principal name interchangeably.
func (c *Client) GetUserByObjectID(ctx context.Context, id string) (*UserProfile, error) {
	endpoint := fmt.Sprintf("%s/users/%s", c.baseURL, url.PathEscape(id))

	var profile UserProfile
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &profile); err != nil {
		return nil, fmt.Errorf("failed to fetch user %s: %w", id, err)
	}
	return &profile, nil
}

// doJSON performs an authenticated request, decoding the JSON response into
// out when non-nil. A 401 invalidates the cached token and retries once.
func (c *Client) doJSON(ctx context.Context, method, endpoint string, payload, out interface{}) error {
	for attempt := 0; attempt < 2; attempt++ {
		token, err := c.tokens.GetToken(ctx)
		if err != nil {
			return fmt.Errorf("failed to acquire token: %w", err)
		}

		var body io.Reader
		if payload != nil {
			data, err := json.Marshal(payload)
			if err != nil {
				return fmt.Errorf("failed to marshal request: %w", err)
			}
			body = bytes.NewReader(data)
		}

		req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}

		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			logging.AuthWarn("Platform returned 401, refreshing token and retrying: %s %s", method, endpoint)
			c.tokens.Invalidate()
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return fmt.Errorf("platform returned %d: %s", resp.StatusCode, string(respBody))
		}

		if out != nil && len(respBody) > 0 {
			if err := json.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}
		}
		return nil
	}
	return fmt.Errorf("unreachable")
}
