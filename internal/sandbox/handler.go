package sandbox

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ava-labs/libevm/common"
	"github.com/ava-labs/libevm/common/hexutil"
	"go.uber.org/zap"

	"github.com/seqlabs/vmsandbox/pkg/blockctx"
)

type callRequest struct {
	To    string `json:"to"`
	Input string `json:"input"`
	Block string `json:"block"`
}

type callResponse struct {
	ReturnData string `json:"returnData"`
}

type errorResponse struct {
	Error              string  `json:"error"`
	FirstRetainedBlock *uint64 `json:"firstRetainedBlock,omitempty"`
}

// NewHandler exposes the call service over HTTP. POST /simulate accepts a JSON
// body with the target address, hex-encoded calldata and a block reference,
// and maps the service's error taxonomy onto status codes: 503 while shutting
// down, 410 for pruned blocks, 404 for missing ones.
func NewHandler(service *Service, sugar *zap.SugaredLogger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/simulate", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req callRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body", nil)
			return
		}

		ref, err := blockctx.ParseReference(req.Block)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), nil)
			return
		}
		if !common.IsHexAddress(req.To) {
			writeError(w, http.StatusBadRequest, "invalid to address", nil)
			return
		}
		input, err := hexutil.Decode(req.Input)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid input data", nil)
			return
		}

		call := Call{To: common.HexToAddress(req.To), Input: input}
		res, err := service.Execute(r.Context(), call, ref)
		if err != nil {
			status, pruned := classify(err)
			if status == http.StatusInternalServerError {
				sugar.Errorw("simulate request failed", "block", req.Block, "error", err)
				writeError(w, status, "internal error", nil)
				return
			}
			writeError(w, status, err.Error(), pruned)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(callResponse{ //nolint:errcheck // response write errors are the client's problem
			ReturnData: hexutil.Encode(res.ReturnData),
		})
	})
	return mux
}

// classify maps a service error to an HTTP status, returning the first
// retained block for pruned references.
func classify(err error) (int, *uint64) {
	var pruned *blockctx.PrunedError
	switch {
	case errors.Is(err, ErrShuttingDown):
		return http.StatusServiceUnavailable, nil
	case errors.As(err, &pruned):
		return http.StatusGone, &pruned.FirstRetainedBlock
	case errors.Is(err, blockctx.ErrMissing):
		return http.StatusNotFound, nil
	default:
		return http.StatusInternalServerError, nil
	}
}

func writeError(w http.ResponseWriter, status int, msg string, firstRetained *uint64) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{ //nolint:errcheck // response write errors are the client's problem
		Error:              msg,
		FirstRetainedBlock: firstRetained,
	})
}
