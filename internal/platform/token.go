package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"taskrelay/internal/logging"
)

// Refresh this long before the reported expiry so in-flight requests never
// carry a token that dies mid-call.
const tokenExpiryMargin = 5 * time.Minute

// TokenManager acquires and caches an app-only access token via the OAuth2
// client-credentials grant. Safe for concurrent use.
type TokenManager struct {
	endpoint     string
	clientID     string
	clientSecret string
	scope        string
	httpClient   *http.Client

	mu          sync.Mutex
	accessToken string
	expiry      time.Time
}

// NewTokenManager creates a token manager for the given token endpoint and
// client credentials. No token is fetched until the first GetToken call.
func NewTokenManager(endpoint, clientID, clientSecret, scope string) *TokenManager {
	return &TokenManager{
		endpoint:     endpoint,
		clientID:     clientID,
		clientSecret: clientSecret,
		scope:        scope,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

// GetToken returns a valid access token, refreshing when the cached one is
// missing or within the expiry margin.
func (tm *TokenManager) GetToken(ctx context.Context) (string, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.accessToken != "" && time.Now().Before(tm.expiry.Add(-tokenExpiryMargin)) {
		return tm.accessToken, nil
	}
	return tm.refreshLocked(ctx)
}

// Invalidate drops the cached token so the next GetToken call fetches a
// fresh one. Used after an authorization rejection from the platform.
func (tm *TokenManager) Invalidate() {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.accessToken = ""
	tm.expiry = time.Time{}
	logging.AuthDebug("Cached platform token invalidated")
}

func (tm *TokenManager) refreshLocked(ctx context.Context) (string, error) {
	logging.Auth("Requesting platform access token from %s", tm.endpoint)

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {tm.clientID},
		"client_secret": {tm.clientSecret},
		"scope":         {tm.scope},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tm.endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := tm.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", fmt.Errorf("failed to parse token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("token endpoint returned empty access token")
	}

	tm.accessToken = tokenResp.AccessToken
	tm.expiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	logging.AuthDebug("Platform token acquired, expires in %ds", tokenResp.ExpiresIn)
	return tm.accessToken, nil
}
