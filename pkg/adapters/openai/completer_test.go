package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	sdk "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riverbedai/riverbed/pkg/domain"
)

func newTestCompleter(t *testing.T, reply string, capture *sdk.ChatCompletionRequest) *Completer {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if capture != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(capture))
		}
		resp := sdk.ChatCompletionResponse{
			Choices: []sdk.ChatCompletionChoice{
				{Message: sdk.ChatCompletionMessage{Content: reply}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	t.Cleanup(server.Close)

	cfg := sdk.DefaultConfig("test-key")
	cfg.BaseURL = server.URL
	return NewFromClient(sdk.NewClientWithConfig(cfg))
}

func TestCompleteDecodesObject(t *testing.T) {
	var captured sdk.ChatCompletionRequest
	c := newTestCompleter(t, `{"verdict": "approve", "score": 0.8}`, &captured)

	out, err := c.Complete(context.Background(), "judge this", nil)
	require.NoError(t, err)
	assert.Equal(t, "approve", out["verdict"])
	assert.Equal(t, 0.8, out["score"])

	require.Len(t, captured.Messages, 2)
	assert.Equal(t, sdk.ChatMessageRoleSystem, captured.Messages[0].Role)
	assert.Equal(t, "judge this", captured.Messages[1].Content)
}

func TestCompleteAppendsContract(t *testing.T) {
	var captured sdk.ChatCompletionRequest
	c := newTestCompleter(t, `{"verdict": "deny"}`, &captured)

	schema := &domain.OutputSchema{
		Type:     "object",
		Required: []string{"verdict"},
	}
	_, err := c.Complete(context.Background(), "judge this", schema)
	require.NoError(t, err)

	user := captured.Messages[1].Content
	assert.Contains(t, user, "judge this")
	assert.Contains(t, user, `"verdict"`)
}

func TestCompleteStripsFences(t *testing.T) {
	c := newTestCompleter(t, "```json\n{\"ok\": true}\n```", nil)

	out, err := c.Complete(context.Background(), "go", nil)
	require.NoError(t, err)
	assert.Equal(t, true, out["ok"])
}

func TestCompleteRejectsNonObject(t *testing.T) {
	c := newTestCompleter(t, "sure, happy to help!", nil)

	_, err := c.Complete(context.Background(), "go", nil)
	assert.ErrorContains(t, err, "not a JSON object")
}

func TestCompleterOptions(t *testing.T) {
	c := New("key", WithModel("gpt-4o"), WithTemperature(0.2), WithSystemPrompt("be terse"))
	assert.Equal(t, "gpt-4o", c.model)
	assert.Equal(t, float32(0.2), c.temperature)
	assert.Equal(t, "be terse", c.system)
}
