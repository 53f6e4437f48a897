// Copyright 2025 ExpertRouter
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package humanloop

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/taskmesh/expertrouter/shared/types"
)

// Transport is the wire-level contract with the external, session-based
// human interaction service (spec §4.5). Adapter drives it; HTTPTransport
// is the production implementation.
type Transport interface {
	CreateSession(ctx context.Context, session types.InteractionSession, idempotencyToken string) error
	PollSession(ctx context.Context, sessionID string) (types.InteractionSession, error)
	CancelSession(ctx context.Context, sessionID string) error
}

// Retry/timeout defaults mirror connectors/http's HTTPConnector, which
// the external interaction service is reached through.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 100 * time.Millisecond
	MaxRetryDelay      = 5 * time.Second
	DefaultMaxBodySize = 1 << 20 // 1MB, session payloads are small
)

// HTTPTransport talks to the external interaction service over HTTP,
// retrying transient failures with capped exponential backoff, the same
// policy connectors/http.HTTPConnector applies to its own requests.
type HTTPTransport struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	retryDelay time.Duration
	maxDelay   time.Duration
	logger     *log.Logger
}

// NewHTTPTransport constructs an HTTPTransport against baseURL (e.g.
// "https://interaction.internal").
func NewHTTPTransport(baseURL string) *HTTPTransport {
	return &HTTPTransport{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
		maxDelay:   MaxRetryDelay,
		logger:     log.New(os.Stdout, "[HUMANLOOP_HTTP] ", log.LstdFlags),
	}
}

func (t *HTTPTransport) CreateSession(ctx context.Context, session types.InteractionSession, idempotencyToken string) error {
	body, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("humanloop: marshal session: %w", err)
	}
	return t.doWithRetry(ctx, http.MethodPost, "/sessions", body, idempotencyToken, nil)
}

func (t *HTTPTransport) PollSession(ctx context.Context, sessionID string) (types.InteractionSession, error) {
	var out types.InteractionSession
	err := t.doWithRetry(ctx, http.MethodGet, "/sessions/"+sessionID, nil, "", &out)
	return out, err
}

func (t *HTTPTransport) CancelSession(ctx context.Context, sessionID string) error {
	return t.doWithRetry(ctx, http.MethodDelete, "/sessions/"+sessionID, nil, "", nil)
}

// doWithRetry performs one HTTP round trip, retrying up to maxRetries
// times on transport-level failure or a 5xx response with exponential
// backoff (delay doubling each attempt, capped at maxDelay), matching
// spec §4.5's "max 3 attempts" retry policy for session creation.
func (t *HTTPTransport) doWithRetry(ctx context.Context, method, path string, body []byte, idempotencyToken string, out interface{}) error {
	delay := t.retryDelay
	var lastErr error

	for attempt := 0; attempt <= t.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if delay > t.maxDelay {
				delay = t.maxDelay
			}
		}

		var reqBody io.Reader
		if body != nil {
			reqBody = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, reqBody)
		if err != nil {
			return fmt.Errorf("humanloop: build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if idempotencyToken != "" {
			req.Header.Set("Idempotency-Key", idempotencyToken)
		}

		resp, err := t.httpClient.Do(req)
		if err != nil {
			lastErr = err
			t.logger.Printf("attempt %d/%d failed: %v", attempt+1, t.maxRetries+1, err)
			continue
		}

		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, DefaultMaxBodySize))
		resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("humanloop: server error %d: %s", resp.StatusCode, respBody)
			continue
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("humanloop: request rejected %d: %s", resp.StatusCode, respBody)
		}

		if out != nil && len(respBody) > 0 {
			if err := json.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("humanloop: decode response: %w", err)
			}
		}
		return nil
	}
	return fmt.Errorf("humanloop: exhausted retries: %w", lastErr)
}
