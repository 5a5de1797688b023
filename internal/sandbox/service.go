// Package sandbox ties admission control and block context resolution
// together into the call path every externally triggered VM invocation takes:
// acquire a permit, resolve the requested block, run the call on the permit's
// execution pool, release the permit.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ava-labs/libevm/common"
	"go.uber.org/zap"

	"github.com/seqlabs/vmsandbox/pkg/blockctx"
	"github.com/seqlabs/vmsandbox/pkg/metrics"
	"github.com/seqlabs/vmsandbox/pkg/vmgate"
)

var (
	ErrInvalidLogger  = errors.New("invalid logger: must not be nil")
	ErrInvalidLimiter = errors.New("invalid limiter: must not be nil")
	ErrInvalidStorage = errors.New("invalid storage: must not be nil")
	ErrInvalidVM      = errors.New("invalid vm: must not be nil")

	// ErrShuttingDown is returned when the service no longer admits calls.
	ErrShuttingDown = errors.New("service is shutting down")
)

// Call is a simulated transaction execution request.
type Call struct {
	To    common.Address
	Input []byte
}

// Result is the outcome of a simulated execution.
type Result struct {
	ReturnData []byte
}

// VM executes a simulated transaction against a resolved block context. The
// execution engine lives outside this module; implementations are expected to
// block the calling goroutine for the duration of the call.
type VM interface {
	Execute(ctx context.Context, call Call, blockCtx blockctx.Context) (Result, error)
}

// Service gates VM calls served by the read-API layer.
type Service struct {
	sugar   *zap.SugaredLogger
	limiter *vmgate.Limiter
	storage blockctx.Storage
	vm      VM
	metrics *metrics.Metrics
}

// NewService creates the call service. metrics may be nil.
func NewService(sugar *zap.SugaredLogger, limiter *vmgate.Limiter, storage blockctx.Storage, vm VM, m *metrics.Metrics) (*Service, error) {
	if sugar == nil {
		return nil, ErrInvalidLogger
	}
	if limiter == nil {
		return nil, ErrInvalidLimiter
	}
	if storage == nil {
		return nil, ErrInvalidStorage
	}
	if vm == nil {
		return nil, ErrInvalidVM
	}
	return &Service{sugar: sugar, limiter: limiter, storage: storage, vm: vm, metrics: m}, nil
}

// Execute runs one gated VM call against the block identified by ref.
//
// Expected, recoverable outcomes surface as typed errors the caller maps to
// client responses: ErrShuttingDown while draining, *blockctx.PrunedError for
// references below the retention boundary, blockctx.ErrMissing for blocks not
// present yet. Anything else is an internal failure.
func (s *Service) Execute(ctx context.Context, call Call, ref blockctx.Reference) (Result, error) {
	permit, err := s.limiter.Acquire(ctx)
	if err != nil {
		if errors.Is(err, vmgate.ErrClosed) {
			return Result{}, ErrShuttingDown
		}
		return Result{}, err
	}
	defer permit.Release()

	blockCtx, err := s.resolve(ctx, ref)
	if err != nil {
		return Result{}, err
	}

	start := time.Now()
	s.metrics.IncVMCallsInFlight()
	defer func() {
		s.metrics.DecVMCallsInFlight()
		s.metrics.ObserveVMCallDuration(time.Since(start).Seconds())
	}()

	var res Result
	err = permit.Pool().Do(ctx, func() error {
		var execErr error
		res, execErr = s.vm.Execute(ctx, call, blockCtx)
		return execErr
	})
	if err != nil {
		return Result{}, fmt.Errorf("vm execution at block %s failed: %w", ref, err)
	}
	return res, nil
}

// resolve loads the block context for ref, recording the outcome. Retention
// info is derived fresh per request so concurrent pruning is observed.
func (s *Service) resolve(ctx context.Context, ref blockctx.Reference) (blockctx.Context, error) {
	retention, err := blockctx.LoadRetentionInfo(ctx, s.storage)
	if err != nil {
		s.metrics.RecordResolution(metrics.ResolutionError)
		return blockctx.Context{}, err
	}

	blockCtx, err := blockctx.Resolve(ctx, s.storage, ref, retention)
	switch {
	case err == nil:
		s.metrics.RecordResolution(metrics.ResolutionResolved)
		return blockCtx, nil
	case errors.Is(err, blockctx.ErrMissing):
		s.metrics.RecordResolution(metrics.ResolutionMissing)
		return blockctx.Context{}, err
	default:
		var pruned *blockctx.PrunedError
		if errors.As(err, &pruned) {
			s.metrics.RecordResolution(metrics.ResolutionPruned)
			return blockctx.Context{}, err
		}
		s.metrics.RecordResolution(metrics.ResolutionError)
		s.sugar.Errorw("failed resolving block context", "reference", ref.String(), "error", err)
		return blockctx.Context{}, err
	}
}
