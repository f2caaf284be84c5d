package core

import (
	"encoding/json"
	"fmt"
)

// Content part types accepted on inbound messages.
const (
	PartTypeText  = "text"
	PartTypeImage = "image_url"
)

// MessageContent holds message content that arrives either as a plain JSON
// string or as an ordered array of typed content parts.
type MessageContent struct {
	Text  string
	Parts []ContentPart
}

// ContentPart is one atomic unit of message content: text or an inline image.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL wraps an image reference. The URL may be an RFC 2397 data URL,
// a legacy {base64} bracket form, or a bare base64 string.
type ImageURL struct {
	URL string `json:"url"`
}

// IsParts reports whether the content arrived as a part array.
func (c MessageContent) IsParts() bool {
	return c.Parts != nil
}

// IsEmpty reports whether the content carries neither text nor parts.
func (c MessageContent) IsEmpty() bool {
	return c.Text == "" && len(c.Parts) == 0
}

// PlainText flattens the content to text, joining text parts in order.
// Image parts contribute nothing.
func (c MessageContent) PlainText() string {
	if c.Parts == nil {
		return c.Text
	}
	var out string
	for _, p := range c.Parts {
		if p.Type == PartTypeText {
			out += p.Text
		}
	}
	return out
}

// HasImage reports whether any part is an image part.
func (c MessageContent) HasImage() bool {
	for _, p := range c.Parts {
		if p.Type == PartTypeImage {
			return true
		}
	}
	return false
}

// ImageCount returns the number of image parts.
func (c MessageContent) ImageCount() int {
	n := 0
	for _, p := range c.Parts {
		if p.Type == PartTypeImage {
			n++
		}
	}
	return n
}

// UnmarshalJSON accepts both content encodings used by OpenAI-compatible
// clients: a bare string or an array of typed parts.
func (c *MessageContent) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		c.Text = text
		c.Parts = nil
		return nil
	}

	var parts []ContentPart
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("content must be a string or an array of content parts")
	}
	c.Text = ""
	c.Parts = parts
	return nil
}

// MarshalJSON emits the original encoding: string when the content was a
// plain string, part array otherwise.
func (c MessageContent) MarshalJSON() ([]byte, error) {
	if c.Parts != nil {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

// StopList holds stop sequences that arrive either as a single string or
// as an array of strings.
type StopList []string

// UnmarshalJSON accepts both encodings of the OpenAI "stop" field.
func (s *StopList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*s = StopList{single}
		return nil
	}

	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("stop must be a string or an array of strings")
	}
	*s = StopList(many)
	return nil
}
