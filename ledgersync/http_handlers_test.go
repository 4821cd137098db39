// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package ledgersync

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type handlerHarness struct {
	srv   *httptest.Server
	token string
}

// newHandlerHarness wires the handlers the way examples/ledger_server does:
// JWT-authenticated mux with the executor injected at construction.
func newHandlerHarness(t *testing.T, exec Executor) *handlerHarness {
	t.Helper()

	store := NewMemStore()
	svc, err := NewSyncService(store, &ServiceConfig{AppName: "handler-test"}, slog.Default())
	require.NoError(t, err)

	jwtAuth := NewJWTAuth("handler-test-secret")
	handlers := NewHTTPSyncHandlers(svc, exec, jwtAuth, slog.Default())

	mux := http.NewServeMux()
	mux.HandleFunc("POST /sync/operations", handlers.HandleEnqueue)
	mux.HandleFunc("GET /sync/operations/{id}", handlers.HandleGetOperation)
	mux.HandleFunc("POST /sync/operations/{id}/replay", handlers.HandleReplayOperation)
	mux.HandleFunc("POST /sync/operations/{id}/reset", handlers.HandleResetOperation)
	mux.HandleFunc("GET /sync/operations/{id}/history", handlers.HandleHistory)
	mux.HandleFunc("POST /sync/run", handlers.HandleSyncNow)
	mux.HandleFunc("POST /sync/conflicts/resolve", handlers.HandleResolveConflict)
	mux.HandleFunc("POST /sync/retry", handlers.HandleRetryFailed)
	mux.HandleFunc("GET /sync/status", handlers.HandleStatus)
	mux.HandleFunc("POST /sync/cleanup", handlers.HandleCleanup)
	mux.HandleFunc("GET /sync/config", handlers.HandleGetConfig)
	mux.HandleFunc("PUT /sync/config", handlers.HandleUpdateConfig)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	token, err := jwtAuth.GenerateToken("user-1", "biz-1", "device-1", time.Hour)
	require.NoError(t, err)

	return &handlerHarness{srv: srv, token: token}
}

func (h *handlerHarness) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, h.srv.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+h.token)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func enqueueBody() *EnqueueRequest {
	return &EnqueueRequest{
		OperationType: OpTypeSale,
		OperationID:   "client-op-1",
		Endpoint:      "/api/v1/sales",
		Method:        "POST",
		RequestBody:   json.RawMessage(`{"amount": 900}`),
	}
}

func TestHandlersRejectMissingToken(t *testing.T) {
	h := newHandlerHarness(t, succeedExec("srv-1"))

	req, err := http.NewRequest(http.MethodGet, h.srv.URL+"/sync/status", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandlersRejectForgedToken(t *testing.T) {
	h := newHandlerHarness(t, succeedExec("srv-1"))
	other := NewJWTAuth("some-other-secret")
	forged, err := other.GenerateToken("user-1", "biz-1", "device-1", time.Hour)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, h.srv.URL+"/sync/status", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+forged)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandleEnqueueCreatesOperation(t *testing.T) {
	h := newHandlerHarness(t, succeedExec("srv-1"))

	resp := h.do(t, http.MethodPost, "/sync/operations", enqueueBody())
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	op := decodeBody[OperationResponse](t, resp)
	require.NotEmpty(t, op.ID)
	require.Equal(t, StatusPending, op.Status)
	require.Equal(t, "biz-1", op.BusinessID) // from JWT, not body
	require.Equal(t, OpTypeSale, op.OperationType)
}

func TestHandleEnqueueRejectsInvalidOperation(t *testing.T) {
	h := newHandlerHarness(t, succeedExec("srv-1"))

	bad := enqueueBody()
	bad.Method = "DELETE"
	resp := h.do(t, http.MethodPost, "/sync/operations", bad)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSyncNowReplaysQueueEndToEnd(t *testing.T) {
	h := newHandlerHarness(t, succeedExec("srv-1"))

	for i, opID := range []string{"a", "b", "c"} {
		body := enqueueBody()
		body.OperationID = "client-op-" + opID
		resp := h.do(t, http.MethodPost, "/sync/operations", body)
		resp.Body.Close()
		require.Equal(t, http.StatusCreated, resp.StatusCode, "enqueue %d", i)
	}

	resp := h.do(t, http.MethodPost, "/sync/run", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := decodeBody[BatchSyncResult](t, resp)
	require.Equal(t, 3, result.Success)
	require.Equal(t, 3, result.Total)
	require.Zero(t, result.Failed)

	statusResp := h.do(t, http.MethodGet, "/sync/status", nil)
	require.Equal(t, http.StatusOK, statusResp.StatusCode)
	counts := decodeBody[StatusCounts](t, statusResp)
	require.Equal(t, 3, counts.Synced)
	require.Zero(t, counts.Pending)
}

func TestConflictResolutionEndToEnd(t *testing.T) {
	h := newHandlerHarness(t, conflictExec(CodeVersionMismatch))

	created := decodeBody[OperationResponse](t, h.do(t, http.MethodPost, "/sync/operations", enqueueBody()))

	runResp := h.do(t, http.MethodPost, "/sync/run", nil)
	result := decodeBody[BatchSyncResult](t, runResp)
	require.Equal(t, 1, result.Conflict)

	getResp := h.do(t, http.MethodGet, "/sync/operations/"+created.ID, nil)
	op := decodeBody[OperationResponse](t, getResp)
	require.Equal(t, StatusConflict, op.Status)
	require.Equal(t, ConflictVersionMismatch, op.ConflictType)

	resolveResp := h.do(t, http.MethodPost, "/sync/conflicts/resolve", &ResolveRequest{
		OperationID: created.ID,
		Strategy:    StrategyServerWins,
	})
	require.Equal(t, http.StatusOK, resolveResp.StatusCode)
	resolved := decodeBody[OperationResponse](t, resolveResp)
	require.Equal(t, StatusSynced, resolved.Status)
	require.NotNil(t, resolved.ResolvedAt)
}

func TestReplaySingleOperation(t *testing.T) {
	h := newHandlerHarness(t, succeedExec("srv-9"))

	created := decodeBody[OperationResponse](t, h.do(t, http.MethodPost, "/sync/operations", enqueueBody()))

	resp := h.do(t, http.MethodPost, "/sync/operations/"+created.ID+"/replay", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	op := decodeBody[OperationResponse](t, resp)
	require.Equal(t, StatusSynced, op.Status)
	require.Equal(t, "srv-9", op.ServerID)
}

func TestGetOperationUnknownIDReturns404(t *testing.T) {
	h := newHandlerHarness(t, succeedExec("srv-1"))

	resp := h.do(t, http.MethodGet, "/sync/operations/nope", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHistoryEndpointReturnsAttempts(t *testing.T) {
	h := newHandlerHarness(t, succeedExec("srv-1"))

	created := decodeBody[OperationResponse](t, h.do(t, http.MethodPost, "/sync/operations", enqueueBody()))
	h.do(t, http.MethodPost, "/sync/run", nil).Body.Close()

	resp := h.do(t, http.MethodGet, "/sync/operations/"+created.ID+"/history?limit=5", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	recs := decodeBody[[]*HistoryResponse](t, resp)
	require.Len(t, recs, 1)
	require.Equal(t, HistorySuccess, recs[0].Status)
	require.Equal(t, SyncTypeManual, recs[0].SyncType)
}

func TestConfigRoundTripOverHTTP(t *testing.T) {
	h := newHandlerHarness(t, succeedExec("srv-1"))

	getResp := h.do(t, http.MethodGet, "/sync/config", nil)
	require.Equal(t, http.StatusOK, getResp.StatusCode)
	cfg := decodeBody[OfflineConfig](t, getResp)
	require.True(t, cfg.OfflineModeEnabled)

	disabled := false
	queueSize := 50
	putResp := h.do(t, http.MethodPut, "/sync/config", &ConfigPatch{
		AllowSalesOffline: &disabled,
		MaxQueueSize:      &queueSize,
	})
	require.Equal(t, http.StatusOK, putResp.StatusCode)
	updated := decodeBody[OfflineConfig](t, putResp)
	require.False(t, updated.AllowSalesOffline)
	require.Equal(t, 50, updated.MaxQueueSize)
	require.True(t, updated.OfflineModeEnabled) // untouched fields keep stored values

	resp := h.do(t, http.MethodPost, "/sync/operations", enqueueBody())
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode) // sales now blocked offline
}

func TestCleanupEndpointReportsDeleted(t *testing.T) {
	h := newHandlerHarness(t, succeedExec("srv-1"))

	h.do(t, http.MethodPost, "/sync/operations", enqueueBody()).Body.Close()
	h.do(t, http.MethodPost, "/sync/run", nil).Body.Close()

	// Retention window still covers the row.
	resp := h.do(t, http.MethodPost, "/sync/cleanup?retention_days=7", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decodeBody[map[string]int64](t, resp)
	require.Zero(t, out["deleted"])
}
