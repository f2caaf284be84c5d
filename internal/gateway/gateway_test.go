package gateway

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"bedrockproxy/internal/bedrock"
	"bedrockproxy/internal/configstore"
	"bedrockproxy/internal/core"
)

type staticConfig struct {
	cfg *configstore.ModelConfig
}

func (s staticConfig) Get(_ context.Context) *configstore.ModelConfig {
	if s.cfg == nil {
		return configstore.Defaults()
	}
	return s.cfg
}

func TestChatCompletionEndToEnd(t *testing.T) {
	inv := &fakeInvoker{responses: map[string]*bedrock.Response{
		"anthropic.claude-3-haiku-20240307-v1:0": {
			ID:         "msg_e2e",
			Model:      "anthropic.claude-3-haiku-20240307-v1:0",
			Content:    []bedrock.ContentBlock{bedrock.TextBlock("Hello back")},
			StopReason: "end_turn",
			Usage:      bedrock.Usage{InputTokens: 2, OutputTokens: 3},
		},
	}}
	g := New(inv, staticConfig{})

	resp, err := g.ChatCompletion(context.Background(), &core.ChatRequest{
		Model:    "gpt-3.5-turbo",
		Messages: []core.Message{userText("Hello")},
	})
	require.NoError(t, err)

	// gpt-3.5-turbo maps to the haiku Bedrock ID at confidence 1.0 and
	// is invoked exactly once.
	require.Equal(t, []string{"anthropic.claude-3-haiku-20240307-v1:0"}, inv.calls)
	require.Equal(t, "Hello back", resp.Choices[0].Message.Content)
	require.Equal(t, "gpt-3.5-turbo", resp.Model)
	require.Equal(t, 5, resp.Usage.TotalTokens)
}

func TestChatCompletionEchoesRequestedModelWithNativeName(t *testing.T) {
	// Provider bodies carry the native model name, which never equals
	// the invoked model ID. The response still echoes what the client
	// asked for when no substitution happened.
	inv := &fakeInvoker{responses: map[string]*bedrock.Response{
		"anthropic.claude-3-haiku-20240307-v1:0": {
			ID:         "msg_native",
			Model:      "claude-3-haiku-20240307",
			Content:    []bedrock.ContentBlock{bedrock.TextBlock("hi")},
			StopReason: "end_turn",
		},
	}}
	g := New(inv, staticConfig{})

	resp, err := g.ChatCompletion(context.Background(), &core.ChatRequest{
		Model:    "gpt-3.5-turbo",
		Messages: []core.Message{userText("Hello")},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"anthropic.claude-3-haiku-20240307-v1:0"}, inv.calls)
	require.Equal(t, "gpt-3.5-turbo", resp.Model)
}

func TestChatCompletionRejectsDisabledProvider(t *testing.T) {
	inv := &fakeInvoker{}
	cfg := &configstore.ModelConfig{
		ModelMappings:   map[string]string{"gpt-4": "anthropic.claude-3-sonnet-20240229-v1:0"},
		DefaultProvider: core.ProviderBedrock,
		ProviderEnabled: map[core.Provider]bool{core.ProviderBedrock: false},
	}
	g := New(inv, staticConfig{cfg: cfg})

	_, err := g.ChatCompletion(context.Background(), &core.ChatRequest{
		Model:    "gpt-4",
		Messages: []core.Message{userText("hi")},
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "disabled")
	require.Empty(t, inv.calls)
}

func TestChatCompletionValidationShortCircuits(t *testing.T) {
	inv := &fakeInvoker{}
	g := New(inv, staticConfig{})

	_, err := g.ChatCompletion(context.Background(), &core.ChatRequest{
		Model:    "gpt-3.5-turbo",
		Messages: nil,
	})
	require.Error(t, err)
	require.Empty(t, inv.calls, "validation failures must never reach the invoker")
}

func TestChatCompletionVisionRejectedBeforeInvoke(t *testing.T) {
	inv := &fakeInvoker{}
	g := New(inv, staticConfig{})

	_, err := g.ChatCompletion(context.Background(), &core.ChatRequest{
		Model: "gpt-3.5-turbo",
		Messages: []core.Message{{
			Role: "user",
			Content: core.MessageContent{Parts: []core.ContentPart{
				{Type: core.PartTypeText, Text: "describe"},
				imagePart(),
			}},
		}},
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "does not support vision")
	require.Empty(t, inv.calls)
}

func TestChatCompletionFallbackModelSurfaces(t *testing.T) {
	model := "anthropic.claude-3-5-sonnet-20240620-v1:0"
	fallback := "anthropic.claude-3-sonnet-20240229-v1:0"

	inv := &fakeInvoker{errors: map[string]error{model: throughputError()}}
	cfg := &configstore.ModelConfig{
		ModelMappings:   map[string]string{"gpt-4o": model},
		DefaultProvider: core.ProviderBedrock,
	}
	g := New(inv, staticConfig{cfg: cfg})

	resp, err := g.ChatCompletion(context.Background(), &core.ChatRequest{
		Model:    "gpt-4o",
		Messages: []core.Message{userText("hi")},
	})
	require.NoError(t, err)
	require.Equal(t, fallback, resp.Model, "response must reflect the fallback model, not the rejected one")
}

func TestChatCompletionTextRoundTrip(t *testing.T) {
	// Text-only content survives the pipeline byte for byte.
	inv := &capturingInvoker{}
	g := New(inv, staticConfig{})

	text := "exact text ✓ with unicode\nand a newline"
	_, err := g.ChatCompletion(context.Background(), &core.ChatRequest{
		Model:    "gpt-3.5-turbo",
		Messages: []core.Message{userText(text)},
	})
	require.NoError(t, err)

	require.Len(t, inv.lastRequest.Messages, 1)
	require.Equal(t, text, inv.lastRequest.Messages[0].Content[0].Text)
}

func TestChatCompletionParameterPassthrough(t *testing.T) {
	inv := &capturingInvoker{}
	g := New(inv, staticConfig{})

	temp := 0.5
	topP := 0.9
	topK := 40
	maxTokens := 100
	_, err := g.ChatCompletion(context.Background(), &core.ChatRequest{
		Model:       "gpt-3.5-turbo",
		Messages:    []core.Message{userText("hi")},
		Temperature: &temp,
		TopP:        &topP,
		TopK:        &topK,
		MaxTokens:   &maxTokens,
		Stop:        core.StopList{"STOP"},
	})
	require.NoError(t, err)

	req := inv.lastRequest
	require.Equal(t, bedrock.AnthropicVersion, req.AnthropicVersion)
	require.Equal(t, 100, req.MaxTokens)
	require.Equal(t, 0.5, *req.Temperature)
	require.Equal(t, 0.9, *req.TopP)
	require.Equal(t, 40, *req.TopK)
	require.Equal(t, []string{"STOP"}, req.StopSequences)
}

func TestChatCompletionDefaultMaxTokens(t *testing.T) {
	inv := &capturingInvoker{}
	g := New(inv, staticConfig{})

	_, err := g.ChatCompletion(context.Background(), &core.ChatRequest{
		Model:    "gpt-3.5-turbo",
		Messages: []core.Message{userText("hi")},
	})
	require.NoError(t, err)
	require.Equal(t, bedrock.DefaultMaxTokens, inv.lastRequest.MaxTokens)
}

func TestStreamChatCompletionEndToEnd(t *testing.T) {
	inv := &fakeInvoker{streams: map[string]string{
		"anthropic.claude-3-haiku-20240307-v1:0": nativeStream("He", "llo"),
	}}
	g := New(inv, staticConfig{})

	body, err := g.StreamChatCompletion(context.Background(), &core.ChatRequest{
		Model:    "gpt-3.5-turbo",
		Messages: []core.Message{userText("hi")},
		Stream:   true,
	})
	require.NoError(t, err)
	defer body.Close()

	out, err := io.ReadAll(body)
	require.NoError(t, err)
	frames := parseFrames(t, string(out))
	require.Len(t, frames, 4, "two deltas, one terminal, one sentinel")
	require.Equal(t, "[DONE]", frames[3])
}

// capturingInvoker records the last provider request and answers
// generically.
type capturingInvoker struct {
	fakeInvoker
	lastRequest *bedrock.Request
}

func (c *capturingInvoker) Invoke(ctx context.Context, modelID string, req *bedrock.Request) (*bedrock.Response, error) {
	c.lastRequest = req
	return c.fakeInvoker.Invoke(ctx, modelID, req)
}
