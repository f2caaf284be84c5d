package gateway

import (
	"fmt"
	"strings"

	"bedrockproxy/internal/core"
)

// Validation limits on inbound requests.
const (
	MaxMessages   = 100
	MaxImageParts = 20
)

var validRoles = map[string]bool{
	"system":    true,
	"user":      true,
	"assistant": true,
}

// visionCapable lists model-name substrings of vision-capable models.
var visionCapable = []string{
	"claude-3",
	"claude-opus",
	"claude-sonnet",
	"claude-haiku",
	"gpt-4o",
	"gpt-4-turbo",
	"gpt-4-vision",
	"gemini",
}

// ValidateRequest checks shape and range constraints on the inbound
// request. Rules apply in order, first failure wins. Pure function of
// its input.
func ValidateRequest(req *core.ChatRequest) *core.GatewayError {
	if strings.TrimSpace(req.Model) == "" {
		return core.NewValidationError("model", "model is required")
	}

	if len(req.Messages) == 0 {
		return core.NewValidationError("messages", "messages must be a non-empty array")
	}
	if len(req.Messages) > MaxMessages {
		return core.NewValidationError("messages", fmt.Sprintf("too many messages: %d (maximum %d)", len(req.Messages), MaxMessages))
	}

	for i, msg := range req.Messages {
		if !validRoles[msg.Role] {
			return core.NewValidationError(
				fmt.Sprintf("messages[%d].role", i),
				fmt.Sprintf("invalid role %q: must be system, user or assistant", msg.Role),
			)
		}
		if msg.Content.IsEmpty() {
			return core.NewValidationError(
				fmt.Sprintf("messages[%d].content", i),
				"content must not be empty",
			)
		}
		if err := validateParts(i, msg.Content); err != nil {
			return err
		}
	}

	if err := validateParameters(req); err != nil {
		return err
	}

	totalImages := 0
	for _, msg := range req.Messages {
		totalImages += msg.Content.ImageCount()
	}
	if totalImages > 0 && !IsVisionCapable(req.Model) {
		return core.NewValidationError("model", fmt.Sprintf("model %q does not support vision", req.Model))
	}
	if totalImages > MaxImageParts {
		return core.NewValidationError("messages", fmt.Sprintf("too many image parts: %d (maximum %d)", totalImages, MaxImageParts))
	}

	return nil
}

func validateParts(msgIndex int, content core.MessageContent) *core.GatewayError {
	for j, part := range content.Parts {
		field := fmt.Sprintf("messages[%d].content[%d]", msgIndex, j)
		switch part.Type {
		case core.PartTypeText:
			if part.Text == "" {
				return core.NewValidationError(field+".text", "text part must have non-empty text")
			}
		case core.PartTypeImage:
			if part.ImageURL == nil || part.ImageURL.URL == "" {
				return core.NewValidationError(field+".image_url", "image part must have a non-empty url")
			}
		default:
			return core.NewValidationError(field+".type", fmt.Sprintf("invalid content part type %q", part.Type))
		}
	}
	return nil
}

func validateParameters(req *core.ChatRequest) *core.GatewayError {
	if req.Temperature != nil && (*req.Temperature < 0 || *req.Temperature > 2) {
		return core.NewValidationError("temperature", "temperature must be between 0 and 2")
	}
	if req.TopP != nil && (*req.TopP < 0 || *req.TopP > 1) {
		return core.NewValidationError("top_p", "top_p must be between 0 and 1")
	}
	if req.TopK != nil && (*req.TopK < 1 || *req.TopK > 500) {
		return core.NewValidationError("top_k", "top_k must be between 1 and 500")
	}
	if req.MaxTokens != nil && (*req.MaxTokens < 1 || *req.MaxTokens > 8192) {
		return core.NewValidationError("max_tokens", "max_tokens must be between 1 and 8192")
	}
	return nil
}

// IsVisionCapable reports whether the model name matches the static
// vision capability list by substring.
func IsVisionCapable(model string) bool {
	m := strings.ToLower(model)
	for _, s := range visionCapable {
		if strings.Contains(m, s) {
			return true
		}
	}
	return false
}
