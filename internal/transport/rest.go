package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"reserveflow/logger"
)

// RestClient issues rate-limited JSON calls against the exchange REST API.
// A non-200 response is a hard error for that call; retry policy belongs
// to the caller.
type RestClient struct {
	http    *http.Client
	limiter *Limiter
	log     *logger.Log
}

func NewRestClient(httpClient *http.Client, limiter *Limiter) *RestClient {
	return &RestClient{
		http:    httpClient,
		limiter: limiter,
		log:     logger.GetLogger(),
	}
}

// GetJSON acquires a rate-limit permit for limitID, performs a GET against
// url and decodes the response body into out.
func (c *RestClient) GetJSON(ctx context.Context, limitID, url string, out interface{}) error {
	if err := c.limiter.Acquire(ctx, limitID); err != nil {
		return fmt.Errorf("rate limit acquire for %s: %w", limitID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("GET %s: status %d: %s", url, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response from %s: %w", url, err)
	}
	return nil
}

// PostJSON acquires a rate-limit permit for limitID and performs a POST
// with the provided pre-serialised body and headers. Used for signed
// private calls where the body byte layout matters.
func (c *RestClient) PostJSON(ctx context.Context, limitID, url string, body []byte, headers map[string]string, out interface{}) error {
	if err := c.limiter.Acquire(ctx, limitID); err != nil {
		return fmt.Errorf("rate limit acquire for %s: %w", limitID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("POST %s: status %d: %s", url, resp.StatusCode, string(respBody))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response from %s: %w", url, err)
	}
	return nil
}
