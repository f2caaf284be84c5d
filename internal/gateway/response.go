package gateway

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"bedrockproxy/internal/bedrock"
	"bedrockproxy/internal/core"
)

// Finish reasons on the protocol-neutral side.
const (
	FinishStop          = "stop"
	FinishLength        = "length"
	FinishContentFilter = "content_filter"
)

// MapStopReason maps a provider stop reason onto the neutral finish
// reason set. The mapping is total: unrecognized reasons map to stop.
func MapStopReason(stopReason string) string {
	switch stopReason {
	case "end_turn", "stop_sequence":
		return FinishStop
	case "max_tokens":
		return FinishLength
	case "content_filtered", "content_filter":
		return FinishContentFilter
	default:
		return FinishStop
	}
}

// newResponseID builds a response identifier when the provider omitted
// one: time-based prefix plus a random suffix, for log correlation.
func newResponseID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("chatcmpl-%d%s", time.Now().Unix(), suffix)
}

// FromProviderResponse converts the native response to the neutral
// shape. All text blocks are concatenated; non-text blocks are dropped.
// The model echoed back is the name the client asked for.
func FromProviderResponse(resp *bedrock.Response, requestedModel string) *core.ChatResponse {
	var content strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	id := resp.ID
	if id == "" {
		id = newResponseID()
	}

	return &core.ChatResponse{
		ID:      id,
		Object:  "chat.completion",
		Model:   requestedModel,
		Created: time.Now().Unix(),
		Choices: []core.Choice{
			{
				Index: 0,
				Message: core.ChoiceMessage{
					Role:    "assistant",
					Content: content.String(),
				},
				FinishReason: MapStopReason(resp.StopReason),
			},
		},
		Usage: core.Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}
}
