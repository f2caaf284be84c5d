package server

import (
	"crypto/subtle"
	"strings"

	"github.com/labstack/echo/v4"

	"bedrockproxy/internal/core"
)

// apiKeyPrefix is the long-term credential format Bedrock issues.
const apiKeyPrefix = "bedrock-api-key-"

// minTokenLength is the shortest opaque token accepted when no master
// key is configured.
const minTokenLength = 16

// AuthMiddleware validates the bearer credential on every request
// outside skipPaths. With a master key configured the token must match
// it exactly; otherwise only the credential format is checked, since
// the provider performs the real verification downstream.
func AuthMiddleware(masterKey string, skipPaths []string) echo.MiddlewareFunc {
	skip := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = true
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skip[c.Request().URL.Path] {
				return next(c)
			}

			token, err := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if err != nil {
				return handleError(c, err)
			}

			if masterKey != "" {
				if subtle.ConstantTimeCompare([]byte(token), []byte(masterKey)) != 1 {
					return handleError(c, core.NewAuthenticationError("invalid API key"))
				}
				return next(c)
			}

			if !validTokenFormat(token) {
				return handleError(c, core.NewAuthenticationError("malformed API key"))
			}
			return next(c)
		}
	}
}

// bearerToken extracts the token from an Authorization header.
func bearerToken(header string) (string, *core.GatewayError) {
	if header == "" {
		return "", core.NewAuthenticationError("missing authorization header")
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", core.NewAuthenticationError("invalid authorization header format, expected 'Bearer <token>'")
	}
	token := strings.TrimPrefix(header, prefix)
	if token == "" {
		return "", core.NewAuthenticationError("empty bearer token")
	}
	return token, nil
}

// validTokenFormat accepts provider-issued keys by prefix, or any
// opaque token of plausible length.
func validTokenFormat(token string) bool {
	if strings.HasPrefix(token, apiKeyPrefix) {
		return len(token) > len(apiKeyPrefix)
	}
	return len(token) >= minTokenLength
}
