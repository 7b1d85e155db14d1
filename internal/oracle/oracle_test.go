package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAICompleteSendsSinglePrompt(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "{\"action\":\"none\"}"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 4, "total_tokens": 14}
		}`))
	}))
	defer srv.Close()

	o, err := NewOpenAI(Config{BaseURL: srv.URL + "/v1/", APIKey: "test-key", Model: "test-model"})
	require.NoError(t, err)

	out, err := o.Complete(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, `{"action":"none"}`, out)

	assert.Equal(t, "test-model", got.Model)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.Equal(t, "hello", got.Messages[0].Content)
}

func TestOpenAICompleteNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "x", "choices": []}`))
	}))
	defer srv.Close()

	o, err := NewOpenAI(Config{BaseURL: srv.URL, Model: "m"})
	require.NoError(t, err)

	_, err = o.Complete(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestOpenAICompleteHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"message": "slow down", "type": "rate_limit"}}`))
	}))
	defer srv.Close()

	o, err := NewOpenAI(Config{BaseURL: srv.URL, Model: "m"})
	require.NoError(t, err)

	_, err = o.Complete(context.Background(), "hello")
	assert.Error(t, err)
}

func TestNewOpenAIRequiresModel(t *testing.T) {
	_, err := NewOpenAI(Config{})
	assert.Error(t, err)
}

func TestFunc(t *testing.T) {
	f := Func(func(_ context.Context, prompt string) (string, error) {
		return "echo:" + prompt, nil
	})
	out, err := f.Complete(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "echo:x", out)
}
