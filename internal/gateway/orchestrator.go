package gateway

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"bedrockproxy/internal/bedrock"
	"bedrockproxy/internal/core"
	"bedrockproxy/internal/observability"
	"bedrockproxy/internal/resolve"
)

// Invoker is the external model-invocation capability.
type Invoker interface {
	Invoke(ctx context.Context, modelID string, req *bedrock.Request) (*bedrock.Response, error)
	InvokeStream(ctx context.Context, modelID string, req *bedrock.Request) (io.ReadCloser, error)
}

// throughputMismatchFragment identifies the provider rejection that
// means the model needs a provisioned or inference-profile tier this
// deployment does not have.
const throughputMismatchFragment = "on-demand throughput isn't supported"

// degradationTable maps each model to its one-step-down alternative,
// terminating at the universally available baseline.
var degradationTable = map[string]string{
	"anthropic.claude-3-opus-20240229-v1:0":      "anthropic.claude-3-sonnet-20240229-v1:0",
	"anthropic.claude-3-5-sonnet-20241022-v2:0":  "anthropic.claude-3-5-sonnet-20240620-v1:0",
	"anthropic.claude-3-5-sonnet-20240620-v1:0":  "anthropic.claude-3-sonnet-20240229-v1:0",
	"anthropic.claude-3-sonnet-20240229-v1:0":    "anthropic.claude-3-haiku-20240307-v1:0",
	"anthropic.claude-3-5-haiku-20241022-v1:0":   "anthropic.claude-3-haiku-20240307-v1:0",
	"anthropic.claude-v2:1":                      "anthropic.claude-v2",
	"anthropic.claude-v2":                        "anthropic.claude-instant-v1",
	"anthropic.claude-instant-v1":                resolve.EmergencyModelID,
}

// FallbackModelFor returns the one-step-down alternative for a model.
// Models without a configured step fall back to the baseline; the
// baseline has nowhere further to go.
func FallbackModelFor(modelID string) (string, bool) {
	if alt, ok := degradationTable[modelID]; ok && alt != modelID {
		return alt, true
	}
	if modelID != resolve.EmergencyModelID {
		return resolve.EmergencyModelID, true
	}
	return "", false
}

// isThroughputMismatch reports whether the error is the provider's
// on-demand throughput rejection.
func isThroughputMismatch(err error) bool {
	var ge *core.GatewayError
	if !errors.As(err, &ge) {
		return false
	}
	return ge.Kind == core.ErrorKindInvalidRequest &&
		strings.Contains(strings.ToLower(ge.Message), throughputMismatchFragment)
}

// Orchestrator drives model invocations, applying the one-shot
// model-substitution retry on throughput-tier rejections.
type Orchestrator struct {
	invoker Invoker
}

// NewOrchestrator creates an orchestrator over the given invoker.
func NewOrchestrator(invoker Invoker) *Orchestrator {
	return &Orchestrator{invoker: invoker}
}

// checkProvider rejects resolutions to providers that are not invokable
// in the current scope.
func checkProvider(res resolve.Resolution) *core.GatewayError {
	if res.Provider == core.ProviderBedrock {
		return nil
	}
	return core.NewInvalidRequestError(
		"provider "+string(res.Provider)+" is not yet supported for model "+res.OriginalModelName, nil)
}

// Invoke runs a non-streaming invocation. On a throughput-tier
// rejection it substitutes the degraded model and tries exactly once
// more; any further failure is terminal. The second return value is the
// model ID actually invoked, so callers can surface a substitution.
func (o *Orchestrator) Invoke(ctx context.Context, res resolve.Resolution, req *bedrock.Request) (*bedrock.Response, string, error) {
	if err := checkProvider(res); err != nil {
		return nil, "", err
	}

	resp, err := o.invoker.Invoke(ctx, res.ResolvedModelID, req)
	if err == nil {
		observability.Invocations.WithLabelValues(res.ResolvedModelID, "success").Inc()
		return resp, res.ResolvedModelID, nil
	}

	if !isThroughputMismatch(err) {
		observability.Invocations.WithLabelValues(res.ResolvedModelID, "error").Inc()
		return nil, "", err
	}

	alt, ok := FallbackModelFor(res.ResolvedModelID)
	if !ok {
		observability.Invocations.WithLabelValues(res.ResolvedModelID, "error").Inc()
		return nil, "", err
	}

	observability.ThroughputRetries.Inc()
	slog.Warn("retrying with degraded model after throughput rejection",
		"model", res.ResolvedModelID,
		"fallback", alt,
	)

	resp, retryErr := o.invoker.Invoke(ctx, alt, req)
	if retryErr != nil {
		observability.Invocations.WithLabelValues(alt, "error").Inc()
		return nil, "", retryErr
	}
	observability.Invocations.WithLabelValues(alt, "fallback_success").Inc()
	return resp, alt, nil
}

// InvokeStream runs a streaming invocation with the same retry policy.
// The retry applies only while opening the stream; once the provider
// has started answering, failures terminate the stream instead.
func (o *Orchestrator) InvokeStream(ctx context.Context, res resolve.Resolution, req *bedrock.Request) (io.ReadCloser, error) {
	if err := checkProvider(res); err != nil {
		return nil, err
	}

	body, err := o.invoker.InvokeStream(ctx, res.ResolvedModelID, req)
	if err == nil {
		observability.Invocations.WithLabelValues(res.ResolvedModelID, "success").Inc()
		return body, nil
	}

	if !isThroughputMismatch(err) {
		observability.Invocations.WithLabelValues(res.ResolvedModelID, "error").Inc()
		return nil, err
	}

	alt, ok := FallbackModelFor(res.ResolvedModelID)
	if !ok {
		observability.Invocations.WithLabelValues(res.ResolvedModelID, "error").Inc()
		return nil, err
	}

	observability.ThroughputRetries.Inc()
	slog.Warn("retrying stream with degraded model after throughput rejection",
		"model", res.ResolvedModelID,
		"fallback", alt,
	)

	body, retryErr := o.invoker.InvokeStream(ctx, alt, req)
	if retryErr != nil {
		observability.Invocations.WithLabelValues(alt, "error").Inc()
		return nil, retryErr
	}
	observability.Invocations.WithLabelValues(alt, "fallback_success").Inc()
	return body, nil
}
