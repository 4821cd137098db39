// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package ledgersync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ExecResponse is the outcome of replaying one queued operation against the
// authoritative backend. A populated ErrorCode signals a conflict-class
// rejection (duplicate, version mismatch, deleted target); transport and
// server failures surface as errors from the executor instead.
type ExecResponse struct {
	ErrorCode string          `json:"error_code,omitempty"` // DUPLICATE_OPERATION, VERSION_MISMATCH, RESOURCE_NOT_FOUND
	ServerID  string          `json:"server_id,omitempty"`  // Authoritative record id assigned by the server
	Data      json.RawMessage `json:"data,omitempty"`       // Response payload / current server state
}

// Executor performs the actual network replay of a queued operation.
// Implementations should return a tagged NetworkError or ServerError so the
// orchestrator can classify failures without message sniffing.
type Executor interface {
	Execute(ctx context.Context, op *OfflineOperation) (*ExecResponse, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, op *OfflineOperation) (*ExecResponse, error)

func (f ExecutorFunc) Execute(ctx context.Context, op *OfflineOperation) (*ExecResponse, error) {
	return f(ctx, op)
}

// HTTPExecutor replays operations over HTTP against a base URL. Every call
// runs under a hard timeout; expiry is reported as a NetworkError so a hung
// backend cannot block a batch indefinitely.
type HTTPExecutor struct {
	BaseURL string
	Client  *http.Client
	Timeout time.Duration
}

// NewHTTPExecutor creates an HTTP replay executor with a default 30s
// per-operation timeout.
func NewHTTPExecutor(baseURL string) *HTTPExecutor {
	return &HTTPExecutor{
		BaseURL: baseURL,
		Client:  &http.Client{},
		Timeout: 30 * time.Second,
	}
}

// Execute replays the captured (endpoint, method, body, headers) tuple.
// Conflict-class rejections (HTTP 409/404 with a recognized error code) are
// returned as a response, not an error, so the orchestrator can persist the
// conflict instead of burning a retry.
func (e *HTTPExecutor) Execute(ctx context.Context, op *OfflineOperation) (*ExecResponse, error) {
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, op.Method, e.BaseURL+op.Endpoint, bytes.NewReader(op.RequestBody))
	if err != nil {
		return nil, &ServerError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Idempotency-Key", op.OperationID)
	for k, v := range op.RequestHeaders {
		req.Header.Set(k, v)
	}

	httpResp, err := e.Client.Do(req)
	if err != nil {
		// Transport-level failures (DNS, refused connection, deadline) are
		// all network-class and eligible for automatic retry.
		return nil, &NetworkError{Err: err}
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}

	if httpResp.StatusCode >= 200 && httpResp.StatusCode < 300 {
		return decodeExecResponse(body), nil
	}

	// Conflict-class rejections carry one of the recognized conflict codes
	// in the body. Any other rejection code is an ordinary server failure:
	// it must stay in the queue and retry, never record as synced.
	if resp := decodeExecResponse(body); isConflictCode(resp.ErrorCode) {
		return resp, nil
	}
	return nil, &ServerError{Err: fmt.Errorf("replay returned HTTP %d: %s", httpResp.StatusCode, truncate(string(body), 200))}
}

// decodeExecResponse tolerates non-JSON bodies by wrapping them as raw data.
func decodeExecResponse(body []byte) *ExecResponse {
	var resp ExecResponse
	if len(body) == 0 {
		return &resp
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		resp.Data, _ = json.Marshal(string(body))
	} else if resp.Data == nil {
		resp.Data = body
	}
	return &resp
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
