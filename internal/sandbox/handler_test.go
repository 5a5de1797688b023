package sandbox

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/seqlabs/vmsandbox/pkg/blockctx"
)

func postSimulate(t *testing.T, handler http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/simulate", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHandler_Simulate(t *testing.T) {
	t.Parallel()
	storage := &mockStorage{}
	expectSealedBlock(storage, blockctx.Latest(), 100, 1700000100)
	vm := vmFunc(func(_ context.Context, call Call, _ blockctx.Context) (Result, error) {
		return Result{ReturnData: call.Input}, nil
	})
	service, _ := newTestService(t, storage, vm)
	handler := NewHandler(service, zap.NewNop().Sugar())

	rec := postSimulate(t, handler, `{"to":"0x0000000000000000000000000000000000000001","input":"0xcafe","block":"latest"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		ReturnData string `json:"returnData"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "0xcafe", resp.ReturnData)
}

func TestHandler_BadRequests(t *testing.T) {
	t.Parallel()
	storage := &mockStorage{}
	vm := vmFunc(func(context.Context, Call, blockctx.Context) (Result, error) { return Result{}, nil })
	service, _ := newTestService(t, storage, vm)
	handler := NewHandler(service, zap.NewNop().Sugar())

	cases := []struct {
		name string
		body string
	}{
		{"malformed json", `{`},
		{"bad block reference", `{"to":"0x0000000000000000000000000000000000000001","input":"0x","block":"newest"}`},
		{"bad address", `{"to":"nope","input":"0x","block":"latest"}`},
		{"bad input data", `{"to":"0x0000000000000000000000000000000000000001","input":"cafe","block":"latest"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postSimulate(t, handler, tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}

	// Service is never reached on a bad request.
	storage.AssertNotCalled(t, "LatestRecoveryMarker", mock.Anything)
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	t.Parallel()
	storage := &mockStorage{}
	vm := vmFunc(func(context.Context, Call, blockctx.Context) (Result, error) { return Result{}, nil })
	service, _ := newTestService(t, storage, vm)
	handler := NewHandler(service, zap.NewNop().Sugar())

	req := httptest.NewRequest(http.MethodGet, "/simulate", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandler_MissingBlock(t *testing.T) {
	t.Parallel()
	storage := &mockStorage{}
	storage.On("LatestRecoveryMarker", mock.Anything).Return(nil, nil)
	storage.On("ResolveBlockNumber", mock.Anything, blockctx.ByNumber(1000)).
		Return(uint64(0), false, nil)
	vm := vmFunc(func(context.Context, Call, blockctx.Context) (Result, error) { return Result{}, nil })
	service, _ := newTestService(t, storage, vm)
	handler := NewHandler(service, zap.NewNop().Sugar())

	rec := postSimulate(t, handler, `{"to":"0x0000000000000000000000000000000000000001","input":"0x","block":"1000"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_PrunedBlock(t *testing.T) {
	t.Parallel()
	storage := &mockStorage{}
	storage.On("LatestRecoveryMarker", mock.Anything).
		Return(&blockctx.RecoveryMarker{BlockNumber: 9, BatchNumber: 2}, nil)
	vm := vmFunc(func(context.Context, Call, blockctx.Context) (Result, error) { return Result{}, nil })
	service, _ := newTestService(t, storage, vm)
	handler := NewHandler(service, zap.NewNop().Sugar())

	rec := postSimulate(t, handler, `{"to":"0x0000000000000000000000000000000000000001","input":"0x","block":"5"}`)
	require.Equal(t, http.StatusGone, rec.Code)

	var resp struct {
		FirstRetainedBlock *uint64 `json:"firstRetainedBlock"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.FirstRetainedBlock)
	assert.Equal(t, uint64(10), *resp.FirstRetainedBlock)
}

func TestHandler_ShuttingDown(t *testing.T) {
	t.Parallel()
	storage := &mockStorage{}
	vm := vmFunc(func(context.Context, Call, blockctx.Context) (Result, error) { return Result{}, nil })
	service, barrier := newTestService(t, storage, vm)
	handler := NewHandler(service, zap.NewNop().Sugar())

	barrier.Close()
	rec := postSimulate(t, handler, `{"to":"0x0000000000000000000000000000000000000001","input":"0x","block":"latest"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandler_InternalErrorHidesDetails(t *testing.T) {
	t.Parallel()
	storage := &mockStorage{}
	storage.On("LatestRecoveryMarker", mock.Anything).Return(nil, assertableErr{})
	vm := vmFunc(func(context.Context, Call, blockctx.Context) (Result, error) { return Result{}, nil })
	service, _ := newTestService(t, storage, vm)
	handler := NewHandler(service, zap.NewNop().Sugar())

	rec := postSimulate(t, handler, `{"to":"0x0000000000000000000000000000000000000001","input":"0x","block":"latest"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret")
}

// assertableErr carries a detail string that must never reach a client.
type assertableErr struct{}

func (assertableErr) Error() string { return "secret dsn leaked" }
