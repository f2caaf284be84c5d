package gateway

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"bedrockproxy/internal/bedrock"
	"bedrockproxy/internal/core"
	"bedrockproxy/internal/resolve"
)

// fakeInvoker scripts per-model outcomes and records invocations.
type fakeInvoker struct {
	calls     []string
	responses map[string]*bedrock.Response
	errors    map[string]error
	streams   map[string]string
}

func (f *fakeInvoker) Invoke(_ context.Context, modelID string, _ *bedrock.Request) (*bedrock.Response, error) {
	f.calls = append(f.calls, modelID)
	if err, ok := f.errors[modelID]; ok {
		return nil, err
	}
	if resp, ok := f.responses[modelID]; ok {
		cp := *resp
		return &cp, nil
	}
	return &bedrock.Response{
		ID:         "msg_ok",
		Model:      modelID,
		Content:    []bedrock.ContentBlock{bedrock.TextBlock("ok")},
		StopReason: "end_turn",
	}, nil
}

func (f *fakeInvoker) InvokeStream(_ context.Context, modelID string, _ *bedrock.Request) (io.ReadCloser, error) {
	f.calls = append(f.calls, modelID)
	if err, ok := f.errors[modelID]; ok {
		return nil, err
	}
	s, ok := f.streams[modelID]
	if !ok {
		s = `data: {"type":"message_stop"}` + "\n\n"
	}
	return io.NopCloser(strings.NewReader(s)), nil
}

func throughputError() *core.GatewayError {
	return core.TranslateProviderError("ValidationException",
		"Invocation of model ID X with on-demand throughput isn't supported. Retry your request with the ID or ARN of an inference profile.")
}

func bedrockResolution(modelID string) resolve.Resolution {
	return resolve.Resolution{
		Provider:          core.ProviderBedrock,
		ResolvedModelID:   modelID,
		OriginalModelName: "alias",
		Confidence:        1.0,
	}
}

func TestOrchestratorSuccessNoRetry(t *testing.T) {
	inv := &fakeInvoker{}
	o := NewOrchestrator(inv)

	resp, invoked, err := o.Invoke(context.Background(), bedrockResolution("anthropic.claude-3-haiku-20240307-v1:0"), &bedrock.Request{})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if len(inv.calls) != 1 {
		t.Errorf("calls = %v, want exactly one", inv.calls)
	}
	if invoked != "anthropic.claude-3-haiku-20240307-v1:0" {
		t.Errorf("invoked = %q", invoked)
	}
	if resp == nil {
		t.Fatal("nil response")
	}
}

func TestOrchestratorThroughputRetry(t *testing.T) {
	model := "anthropic.claude-3-5-sonnet-20240620-v1:0"
	fallback := "anthropic.claude-3-sonnet-20240229-v1:0"

	inv := &fakeInvoker{errors: map[string]error{model: throughputError()}}
	o := NewOrchestrator(inv)

	resp, invoked, err := o.Invoke(context.Background(), bedrockResolution(model), &bedrock.Request{})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if len(inv.calls) != 2 || inv.calls[1] != fallback {
		t.Errorf("calls = %v, want retry on %q", inv.calls, fallback)
	}
	// The reported invocation reflects the model that actually answered.
	if invoked != fallback {
		t.Errorf("invoked = %q, want %q", invoked, fallback)
	}
	if resp == nil {
		t.Fatal("nil response")
	}
}

func TestOrchestratorRetryIsOneShot(t *testing.T) {
	model := "anthropic.claude-3-sonnet-20240229-v1:0"
	fallback := "anthropic.claude-3-haiku-20240307-v1:0"

	inv := &fakeInvoker{errors: map[string]error{
		model:    throughputError(),
		fallback: throughputError(),
	}}
	o := NewOrchestrator(inv)

	_, _, err := o.Invoke(context.Background(), bedrockResolution(model), &bedrock.Request{})
	if err == nil {
		t.Fatal("expected terminal failure")
	}
	if len(inv.calls) != 2 {
		t.Errorf("calls = %v, want exactly two", inv.calls)
	}
}

func TestOrchestratorNoRetryOnOtherErrors(t *testing.T) {
	model := "anthropic.claude-3-haiku-20240307-v1:0"
	inv := &fakeInvoker{errors: map[string]error{
		model: core.TranslateProviderError("ThrottlingException", "slow down"),
	}}
	o := NewOrchestrator(inv)

	_, _, err := o.Invoke(context.Background(), bedrockResolution(model), &bedrock.Request{})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(inv.calls) != 1 {
		t.Errorf("calls = %v, want no retry", inv.calls)
	}
}

func TestOrchestratorRejectsUnsupportedProviders(t *testing.T) {
	inv := &fakeInvoker{}
	o := NewOrchestrator(inv)

	for _, p := range []core.Provider{core.ProviderOpenAI, core.ProviderGemini} {
		res := resolve.Resolution{Provider: p, ResolvedModelID: "x", OriginalModelName: "x"}
		_, _, err := o.Invoke(context.Background(), res, &bedrock.Request{})
		if err == nil {
			t.Fatalf("provider %s: expected rejection", p)
		}
		var ge *core.GatewayError
		if !errors.As(err, &ge) || ge.Kind != core.ErrorKindInvalidRequest {
			t.Errorf("provider %s: error = %v", p, err)
		}
		if !strings.Contains(ge.Message, "not yet supported") {
			t.Errorf("provider %s: message = %q", p, ge.Message)
		}
	}
	if len(inv.calls) != 0 {
		t.Errorf("calls = %v, want none", inv.calls)
	}
}

func TestOrchestratorStreamRetryAtOpen(t *testing.T) {
	model := "anthropic.claude-3-opus-20240229-v1:0"
	fallback := "anthropic.claude-3-sonnet-20240229-v1:0"

	inv := &fakeInvoker{errors: map[string]error{model: throughputError()}}
	o := NewOrchestrator(inv)

	body, err := o.InvokeStream(context.Background(), bedrockResolution(model), &bedrock.Request{})
	if err != nil {
		t.Fatalf("InvokeStream: %v", err)
	}
	defer body.Close()

	if len(inv.calls) != 2 || inv.calls[1] != fallback {
		t.Errorf("calls = %v, want retry on %q", inv.calls, fallback)
	}
}

func TestFallbackModelFor(t *testing.T) {
	tests := []struct {
		model  string
		want   string
		wantOK bool
	}{
		{"anthropic.claude-3-opus-20240229-v1:0", "anthropic.claude-3-sonnet-20240229-v1:0", true},
		{"anthropic.claude-3-sonnet-20240229-v1:0", "anthropic.claude-3-haiku-20240307-v1:0", true},
		{"some.unknown-model", resolve.EmergencyModelID, true},
		{resolve.EmergencyModelID, "", false},
	}

	for _, tt := range tests {
		got, ok := FallbackModelFor(tt.model)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("FallbackModelFor(%q) = (%q, %v), want (%q, %v)", tt.model, got, ok, tt.want, tt.wantOK)
		}
	}
}
