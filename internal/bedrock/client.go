package bedrock

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"bedrockproxy/internal/core"
	"bedrockproxy/internal/httpclient"
)

// Client invokes Bedrock runtime models over HTTP using a bearer API key.
// Streaming invocations use a separate client without an overall request
// timeout.
type Client struct {
	httpClient   *http.Client
	streamClient *http.Client
	apiKey       string
	baseURL      string
}

// New creates a Bedrock client for the given region.
func New(region, apiKey string) *Client {
	return &Client{
		apiKey:       apiKey,
		baseURL:      fmt.Sprintf("https://bedrock-runtime.%s.amazonaws.com", region),
		httpClient:   httpclient.NewDefaultHTTPClient(),
		streamClient: httpclient.NewStreamingHTTPClient(),
	}
}

// NewWithHTTPClient creates a Bedrock client with a custom HTTP client.
func NewWithHTTPClient(region, apiKey string, client *http.Client) *Client {
	c := New(region, apiKey)
	c.httpClient = client
	c.streamClient = client
	return c
}

// SetBaseURL allows configuring a custom endpoint (used in tests and for
// VPC endpoints).
func (c *Client) SetBaseURL(u string) {
	c.baseURL = strings.TrimRight(u, "/")
}

// Invoke sends a non-streaming invocation for the given model ID.
func (c *Client) Invoke(ctx context.Context, modelID string, req *Request) (*Response, error) {
	respBody, _, err := c.post(ctx, c.invokeURL(modelID, false), req)
	if err != nil {
		return nil, err
	}

	var out Response
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, core.NewAPIError("failed to decode provider response: "+err.Error(), err)
	}
	if out.Model == "" {
		out.Model = modelID
	}
	return &out, nil
}

// InvokeStream sends a streaming invocation and returns the raw event
// stream (caller must close).
func (c *Client) InvokeStream(ctx context.Context, modelID string, req *Request) (io.ReadCloser, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, core.NewInvalidRequestError("failed to marshal provider request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.invokeURL(modelID, true), bytes.NewReader(body))
	if err != nil {
		return nil, core.NewInvalidRequestError("failed to create provider request", err)
	}
	c.setHeaders(httpReq)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(httpReq)
	if err != nil {
		return nil, translateTransportError(ctx, err)
	}

	if resp.StatusCode != http.StatusOK {
		respBody, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			respBody = nil
		}
		_ = resp.Body.Close() //nolint:errcheck
		return nil, translateErrorResponse(resp, respBody)
	}

	return resp.Body, nil
}

func (c *Client) invokeURL(modelID string, stream bool) string {
	suffix := "invoke"
	if stream {
		suffix = "invoke-with-response-stream"
	}
	return fmt.Sprintf("%s/model/%s/%s", c.baseURL, url.PathEscape(modelID), suffix)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
}

func (c *Client) post(ctx context.Context, u string, req *Request) ([]byte, int, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, 0, core.NewInvalidRequestError("failed to marshal provider request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, 0, core.NewInvalidRequestError("failed to create provider request", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, 0, translateTransportError(ctx, err)
	}
	defer func() {
		_ = resp.Body.Close() //nolint:errcheck
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, core.NewAPIError("failed to read provider response: "+err.Error(), err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, translateErrorResponse(resp, respBody)
	}
	return respBody, resp.StatusCode, nil
}

// translateTransportError maps network-level failures. A caller-budget
// timeout is reported as a distinct api_error and is never retried.
func translateTransportError(ctx context.Context, err error) *core.GatewayError {
	if ctx.Err() != nil {
		return core.NewAPIError("provider invocation timed out: "+err.Error(), err)
	}
	return core.NewAPIError("provider unreachable: "+err.Error(), err)
}

// translateErrorResponse maps a non-200 Bedrock response through the
// normalized error taxonomy. The exception identifier comes from the
// X-Amzn-ErrorType header or the __type body field.
func translateErrorResponse(resp *http.Response, body []byte) *core.GatewayError {
	exception := resp.Header.Get("X-Amzn-Errortype")
	if i := strings.IndexByte(exception, ':'); i >= 0 {
		exception = exception[:i]
	}

	message := ""
	if gjson.ValidBytes(body) {
		if exception == "" {
			if t := gjson.GetBytes(body, "__type").String(); t != "" {
				// "__type" may carry a namespace prefix: "ns#Exception"
				if i := strings.IndexByte(t, '#'); i >= 0 {
					t = t[i+1:]
				}
				exception = t
			}
		}
		if m := gjson.GetBytes(body, "message").String(); m != "" {
			message = m
		} else if m := gjson.GetBytes(body, "Message").String(); m != "" {
			message = m
		}
	}
	if message == "" {
		message = strings.TrimSpace(string(body))
	}

	return core.TranslateProviderError(exception, message)
}
