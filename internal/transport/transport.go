// Package transport is the shared HTTP plumbing under the provider
// adapters: request encoding, status classification, rate-limit header
// parsing.
package transport

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/tidwall/gjson"

	"github.com/loomworks/loom/pkg/llm"
)

// NewHTTPClient creates the HTTP client used by the adapters. The overall
// request timeout is enforced per attempt by the recovery manager's
// context, so no client-level timeout is set here.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout: 10 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout: 10 * time.Second,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// PostJSON sends body as JSON to url and returns the raw response bytes.
// Non-2xx statuses become a ProviderAPIError carrying the status code and,
// for 429, rate-limit metadata from the response headers. Transport
// failures become a NetworkError.
func PostJSON(ctx context.Context, client *http.Client, provider, url string, headers map[string]string, body any) ([]byte, error) {
	payload, err := sonic.Marshal(body)
	if err != nil {
		return nil, &llm.ValidationError{Field: "request body", Reason: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, &llm.NetworkError{Provider: provider, Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &llm.NetworkError{Provider: provider, Cause: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &llm.NetworkError{Provider: provider, Cause: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errorFromResponse(provider, resp, raw)
	}
	return raw, nil
}

// errorFromResponse digs the vendor error message out of a non-2xx body.
// Both the OpenAI shape {"error":{"message","code"}} and the Anthropic
// shape {"type":"error","error":{"type","message"}} resolve through the
// same paths.
func errorFromResponse(provider string, resp *http.Response, raw []byte) error {
	message := gjson.GetBytes(raw, "error.message").String()
	if message == "" {
		message = gjson.GetBytes(raw, "message").String()
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}
	if code := gjson.GetBytes(raw, "error.type").String(); code != "" {
		message = code + ": " + message
	}

	apiErr := &llm.ProviderAPIError{
		Provider:   provider,
		StatusCode: resp.StatusCode,
		Message:    message,
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		apiErr.RateLimit = rateLimitFromHeaders(resp.Header)
	}
	return apiErr
}

// rateLimitFromHeaders parses Retry-After plus the x-ratelimit-* headers
// the OpenAI-compatible vendors emit.
func rateLimitFromHeaders(h http.Header) *llm.RateLimitInfo {
	info := &llm.RateLimitInfo{}

	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
			info.RetryAfter = time.Duration(secs * float64(time.Second))
		} else if t, err := http.ParseTime(v); err == nil {
			if until := time.Until(t); until > 0 {
				info.RetryAfter = until
			}
		}
	}
	if v := h.Get("x-ratelimit-remaining-requests"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			info.RequestsRemaining = n
		}
	}
	if v := h.Get("x-ratelimit-remaining-tokens"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			info.TokensRemaining = n
		}
	}
	return info
}
