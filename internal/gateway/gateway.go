// Package gateway implements the chat-completion translation pipeline:
// validation, content transcoding, model resolution, invocation with
// the degradation retry, and response transcoding.
package gateway

import (
	"context"
	"io"
	"log/slog"

	"bedrockproxy/internal/bedrock"
	"bedrockproxy/internal/configstore"
	"bedrockproxy/internal/core"
	"bedrockproxy/internal/resolve"
	"bedrockproxy/internal/transcode"
)

// ConfigSource supplies the current routing configuration.
type ConfigSource interface {
	Get(ctx context.Context) *configstore.ModelConfig
}

// Gateway is the core service behind the HTTP layer.
type Gateway struct {
	orchestrator *Orchestrator
	config       ConfigSource
}

// New creates a gateway over the given invoker and configuration source.
func New(invoker Invoker, config ConfigSource) *Gateway {
	return &Gateway{
		orchestrator: NewOrchestrator(invoker),
		config:       config,
	}
}

// prepare runs the shared request pipeline up to the provider payload.
func (g *Gateway) prepare(ctx context.Context, req *core.ChatRequest) (resolve.Resolution, *bedrock.Request, *core.GatewayError) {
	if err := ValidateRequest(req); err != nil {
		return resolve.Resolution{}, nil, err
	}

	cfg := g.config.Get(ctx)
	res := resolve.Resolve(req.Model, cfg)
	slog.Debug("model resolved",
		"model", res.OriginalModelName,
		"resolved", res.ResolvedModelID,
		"provider", res.Provider,
		"confidence", res.Confidence,
	)

	// A provider explicitly switched off in the routing config is
	// rejected here; unknown providers fail later at orchestration.
	if enabled, ok := cfg.ProviderEnabled[res.Provider]; ok && !enabled {
		return resolve.Resolution{}, nil, core.NewInvalidRequestError(
			"provider "+string(res.Provider)+" is disabled", nil)
	}

	system, messages := transcode.ToProviderMessages(req.Messages)

	providerReq := &bedrock.Request{
		AnthropicVersion: bedrock.AnthropicVersion,
		MaxTokens:        bedrock.DefaultMaxTokens,
		System:           system,
		Messages:         messages,
		Temperature:      req.Temperature,
		TopP:             req.TopP,
		TopK:             req.TopK,
		StopSequences:    req.Stop,
	}
	if req.MaxTokens != nil {
		providerReq.MaxTokens = *req.MaxTokens
	}

	return res, providerReq, nil
}

// ChatCompletion handles a non-streaming request end to end.
func (g *Gateway) ChatCompletion(ctx context.Context, req *core.ChatRequest) (*core.ChatResponse, error) {
	res, providerReq, gerr := g.prepare(ctx, req)
	if gerr != nil {
		return nil, gerr
	}

	resp, invoked, err := g.orchestrator.Invoke(ctx, res, providerReq)
	if err != nil {
		return nil, err
	}

	out := FromProviderResponse(resp, req.Model)
	// Under the degradation retry the invoked model differs from the
	// resolution; surface the one that actually answered. The provider
	// body's own model field is its native name and is never echoed.
	if invoked != res.ResolvedModelID {
		out.Model = invoked
	}
	return out, nil
}

// StreamChatCompletion handles a streaming request, returning the chunk
// stream framed for line-delimited delivery (caller must close).
func (g *Gateway) StreamChatCompletion(ctx context.Context, req *core.ChatRequest) (io.ReadCloser, error) {
	res, providerReq, gerr := g.prepare(ctx, req)
	if gerr != nil {
		return nil, gerr
	}

	body, err := g.orchestrator.InvokeStream(ctx, res, providerReq)
	if err != nil {
		return nil, err
	}

	return NewStreamConverter(body, req.Model), nil
}
