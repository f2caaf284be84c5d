package transcode

import "strings"

// Base64 prefixes of the magic bytes for each supported image format.
// Matching is over the undecoded base64 text, so the table stays a pure
// function of string prefixes.
var base64MagicPrefixes = []struct {
	prefix    string
	mediaType string
}{
	{"/9j/", "image/jpeg"},
	{"iVBORw0KGgo", "image/png"},
	{"R0lGOD", "image/gif"},
	{"UklGR", "image/webp"},
}

// SniffMediaType guesses the media type of base64 image data from its
// magic-byte prefix. Unrecognized data defaults to JPEG.
func SniffMediaType(b64 string) string {
	for _, m := range base64MagicPrefixes {
		if strings.HasPrefix(b64, m.prefix) {
			return m.mediaType
		}
	}
	return "image/jpeg"
}
