package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProviderSelection(t *testing.T) {
	c, err := New(Config{Provider: "openai", APIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &OpenAIClient{}, c)

	c, err = New(Config{Provider: "anthropic", APIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &AnthropicClient{}, c)

	_, err = New(Config{Provider: "carrier-pigeon"})
	assert.Error(t, err)
}

func TestOpenAIComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotEmpty(t, req.Messages)
		assert.Equal(t, "user", req.Messages[len(req.Messages)-1].Role)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Try clearing the cache.  "}}]}`))
	}))
	defer srv.Close()

	client := NewOpenAIClient(Config{APIKey: "test-key", BaseURL: srv.URL, Model: "gpt-4o-mini"})
	out, err := client.Complete(context.Background(), "Login is broken")
	require.NoError(t, err)
	assert.Equal(t, "Try clearing the cache.", out)
}

func TestOpenAICompleteNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"boom"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewOpenAIClient(Config{APIKey: "test-key", BaseURL: srv.URL})
	_, err := client.Complete(context.Background(), "hello")
	assert.Error(t, err)
}

func TestOpenAICompleteMissingKey(t *testing.T) {
	client := NewOpenAIClient(Config{})
	_, err := client.Complete(context.Background(), "hello")
	assert.Error(t, err)
}

func TestAnthropicCompleteWithSystem(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))

		var req anthropicRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "You analyze support requests.", req.System)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"Create a task."}]}`))
	}))
	defer srv.Close()

	client := NewAnthropicClient(Config{APIKey: "test-key", BaseURL: srv.URL, Timeout: 5 * time.Second})
	out, err := client.CompleteWithSystem(context.Background(), "You analyze support requests.", "Login is broken")
	require.NoError(t, err)
	assert.Equal(t, "Create a task.", out)
}
