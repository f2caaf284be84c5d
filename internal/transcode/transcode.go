// Package transcode converts protocol-neutral chat messages into the
// Bedrock-native content-block shape, including inline image decoding.
package transcode

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"bedrockproxy/internal/bedrock"
	"bedrockproxy/internal/core"
	"bedrockproxy/internal/observability"
)

// Decoded image size bounds, applied after base64 decoding.
const (
	MinImageBytes = 100
	MaxImageBytes = 20 << 20
)

var supportedMediaTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// ToProviderMessages converts neutral messages to the native shape.
//
// System-role messages are extracted into the returned system slot; the
// first one found wins. Remaining messages map user to user and everything
// else to assistant. Image parts that fail decoding or validation are
// dropped with a warning rather than failing the request.
func ToProviderMessages(messages []core.Message) (string, []bedrock.Message) {
	system := ""
	out := make([]bedrock.Message, 0, len(messages))

	for _, msg := range messages {
		if msg.Role == "system" {
			if system == "" {
				system = msg.Content.PlainText()
			}
			continue
		}

		role := "assistant"
		if msg.Role == "user" {
			role = "user"
		}

		blocks := toContentBlocks(msg.Content)
		if len(blocks) == 0 {
			continue
		}
		out = append(out, bedrock.Message{Role: role, Content: blocks})
	}

	return system, out
}

func toContentBlocks(content core.MessageContent) []bedrock.ContentBlock {
	if !content.IsParts() {
		if content.Text == "" {
			return nil
		}
		return []bedrock.ContentBlock{bedrock.TextBlock(content.Text)}
	}

	blocks := make([]bedrock.ContentBlock, 0, len(content.Parts))
	for _, part := range content.Parts {
		switch part.Type {
		case core.PartTypeText:
			blocks = append(blocks, bedrock.TextBlock(part.Text))
		case core.PartTypeImage:
			if part.ImageURL == nil {
				continue
			}
			block, err := decodeImagePart(part.ImageURL.URL)
			if err != nil {
				// Best-effort policy: the request proceeds without
				// this part.
				observability.DroppedImages.Inc()
				slog.Warn("dropping invalid image part", "error", err)
				continue
			}
			blocks = append(blocks, block)
		}
	}
	return blocks
}

// decodeImagePart turns an image reference into a native image block.
// Reference formats, in priority order: RFC 2397 data URL, legacy
// {base64} bracket form, bare base64.
func decodeImagePart(ref string) (bedrock.ContentBlock, error) {
	mediaType, b64, err := splitImageRef(ref)
	if err != nil {
		return bedrock.ContentBlock{}, err
	}

	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		// Tolerate unpadded input from lax clients.
		raw, err = base64.RawStdEncoding.DecodeString(b64)
		if err != nil {
			return bedrock.ContentBlock{}, fmt.Errorf("invalid base64 image data: %w", err)
		}
	}

	if len(raw) < MinImageBytes {
		return bedrock.ContentBlock{}, fmt.Errorf("image too small: %d bytes (minimum %d)", len(raw), MinImageBytes)
	}
	if len(raw) > MaxImageBytes {
		return bedrock.ContentBlock{}, fmt.Errorf("image too large: %d bytes (maximum %d)", len(raw), MaxImageBytes)
	}
	if !supportedMediaTypes[mediaType] {
		return bedrock.ContentBlock{}, fmt.Errorf("unsupported image media type %q", mediaType)
	}

	return bedrock.ImageBlock(mediaType, b64), nil
}

func splitImageRef(ref string) (mediaType, b64 string, err error) {
	switch {
	case strings.HasPrefix(ref, "data:"):
		rest := strings.TrimPrefix(ref, "data:")
		header, data, ok := strings.Cut(rest, ",")
		if !ok {
			return "", "", fmt.Errorf("malformed data URL")
		}
		mt, enc, ok := strings.Cut(header, ";")
		if !ok || enc != "base64" {
			return "", "", fmt.Errorf("data URL must be base64-encoded")
		}
		return mt, data, nil

	case strings.HasPrefix(ref, "{") && strings.HasSuffix(ref, "}"):
		data := ref[1 : len(ref)-1]
		return SniffMediaType(data), data, nil

	default:
		return SniffMediaType(ref), ref, nil
	}
}
