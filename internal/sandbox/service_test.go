package sandbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ava-labs/libevm/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/seqlabs/vmsandbox/pkg/blockctx"
	"github.com/seqlabs/vmsandbox/pkg/vmexec"
	"github.com/seqlabs/vmsandbox/pkg/vmgate"
)

type mockStorage struct {
	mock.Mock
}

func (m *mockStorage) ResolveBlockNumber(ctx context.Context, ref blockctx.Reference) (uint64, bool, error) {
	args := m.Called(ctx, ref)
	return args.Get(0).(uint64), args.Bool(1), args.Error(2)
}

func (m *mockStorage) PendingBlockNumber(ctx context.Context) (uint64, bool, error) {
	args := m.Called(ctx)
	return args.Get(0).(uint64), args.Bool(1), args.Error(2)
}

func (m *mockStorage) BatchOfBlock(ctx context.Context, blockNumber uint64) (uint64, bool, error) {
	args := m.Called(ctx, blockNumber)
	return args.Get(0).(uint64), args.Bool(1), args.Error(2)
}

func (m *mockStorage) ExpectedBatchSealTimestamp(ctx context.Context, batchNumber uint64) (uint64, bool, error) {
	args := m.Called(ctx, batchNumber)
	return args.Get(0).(uint64), args.Bool(1), args.Error(2)
}

func (m *mockStorage) LatestRecoveryMarker(ctx context.Context) (*blockctx.RecoveryMarker, error) {
	args := m.Called(ctx)
	if v := args.Get(0); v != nil {
		return v.(*blockctx.RecoveryMarker), args.Error(1)
	}
	return nil, args.Error(1)
}

// vmFunc adapts a function to the VM interface.
type vmFunc func(ctx context.Context, call Call, blockCtx blockctx.Context) (Result, error)

func (f vmFunc) Execute(ctx context.Context, call Call, blockCtx blockctx.Context) (Result, error) {
	return f(ctx, call, blockCtx)
}

func newTestService(t *testing.T, storage blockctx.Storage, vm VM) (*Service, *vmgate.Barrier) {
	t.Helper()
	sugar := zap.NewNop().Sugar()

	pool, err := vmexec.NewPool(2, sugar)
	require.NoError(t, err)
	t.Cleanup(pool.Stop)

	limiter, barrier, err := vmgate.New(1, pool, sugar, nil)
	require.NoError(t, err)

	service, err := NewService(sugar, limiter, storage, vm, nil)
	require.NoError(t, err)
	return service, barrier
}

// expectSealedBlock primes storage so that ref resolves to the given block in
// batch 7 sealing at ts, with no pruning.
func expectSealedBlock(storage *mockStorage, ref blockctx.Reference, number, ts uint64) {
	storage.On("LatestRecoveryMarker", mock.Anything).Return(nil, nil)
	storage.On("ResolveBlockNumber", mock.Anything, ref).Return(number, true, nil)
	storage.On("BatchOfBlock", mock.Anything, number).Return(uint64(7), true, nil)
	storage.On("ExpectedBatchSealTimestamp", mock.Anything, uint64(7)).Return(ts, true, nil)
}

func TestNewService_Validation(t *testing.T) {
	t.Parallel()
	sugar := zap.NewNop().Sugar()
	pool, err := vmexec.NewPool(1, sugar)
	require.NoError(t, err)
	t.Cleanup(pool.Stop)
	limiter, _, err := vmgate.New(1, pool, sugar, nil)
	require.NoError(t, err)
	storage := &mockStorage{}
	vm := vmFunc(func(context.Context, Call, blockctx.Context) (Result, error) { return Result{}, nil })

	_, err = NewService(nil, limiter, storage, vm, nil)
	assert.ErrorIs(t, err, ErrInvalidLogger)
	_, err = NewService(sugar, nil, storage, vm, nil)
	assert.ErrorIs(t, err, ErrInvalidLimiter)
	_, err = NewService(sugar, limiter, nil, vm, nil)
	assert.ErrorIs(t, err, ErrInvalidStorage)
	_, err = NewService(sugar, limiter, storage, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidVM)
}

func TestExecute_HappyPath(t *testing.T) {
	t.Parallel()
	storage := &mockStorage{}
	expectSealedBlock(storage, blockctx.ByNumber(42), 42, 1700000100)

	var gotCtx blockctx.Context
	vm := vmFunc(func(_ context.Context, call Call, blockCtx blockctx.Context) (Result, error) {
		gotCtx = blockCtx
		return Result{ReturnData: call.Input}, nil
	})
	service, _ := newTestService(t, storage, vm)

	call := Call{To: common.HexToAddress("0x1"), Input: []byte{0xca, 0xfe}}
	res, err := service.Execute(context.Background(), call, blockctx.ByNumber(42))
	require.NoError(t, err)
	assert.Equal(t, []byte{0xca, 0xfe}, res.ReturnData)
	assert.Equal(t, uint64(42), gotCtx.BlockNumber())
	ts, ok := gotCtx.BatchTimestamp()
	assert.True(t, ok)
	assert.Equal(t, uint64(1700000100), ts)
	storage.AssertExpectations(t)
}

func TestExecute_ShuttingDown(t *testing.T) {
	t.Parallel()
	storage := &mockStorage{}
	vm := vmFunc(func(context.Context, Call, blockctx.Context) (Result, error) { return Result{}, nil })
	service, barrier := newTestService(t, storage, vm)

	barrier.Close()
	_, err := service.Execute(context.Background(), Call{}, blockctx.Latest())
	assert.ErrorIs(t, err, ErrShuttingDown)
	// Storage must never be touched for a rejected call.
	storage.AssertNotCalled(t, "LatestRecoveryMarker", mock.Anything)
}

func TestExecute_PrunedBlock(t *testing.T) {
	t.Parallel()
	storage := &mockStorage{}
	storage.On("LatestRecoveryMarker", mock.Anything).
		Return(&blockctx.RecoveryMarker{BlockNumber: 9, BatchNumber: 2}, nil)
	vm := vmFunc(func(context.Context, Call, blockctx.Context) (Result, error) {
		t.Error("vm must not run for a pruned block")
		return Result{}, nil
	})
	service, _ := newTestService(t, storage, vm)

	_, err := service.Execute(context.Background(), Call{}, blockctx.ByNumber(5))
	var pruned *blockctx.PrunedError
	require.ErrorAs(t, err, &pruned)
	assert.Equal(t, uint64(10), pruned.FirstRetainedBlock)
}

func TestExecute_MissingBlock(t *testing.T) {
	t.Parallel()
	storage := &mockStorage{}
	storage.On("LatestRecoveryMarker", mock.Anything).Return(nil, nil)
	storage.On("ResolveBlockNumber", mock.Anything, blockctx.ByNumber(1000)).
		Return(uint64(0), false, nil)
	vm := vmFunc(func(context.Context, Call, blockctx.Context) (Result, error) {
		t.Error("vm must not run for a missing block")
		return Result{}, nil
	})
	service, _ := newTestService(t, storage, vm)

	_, err := service.Execute(context.Background(), Call{}, blockctx.ByNumber(1000))
	assert.ErrorIs(t, err, blockctx.ErrMissing)
}

func TestExecute_VMErrorWrapped(t *testing.T) {
	t.Parallel()
	storage := &mockStorage{}
	expectSealedBlock(storage, blockctx.Latest(), 100, 1700000100)
	vmErr := errors.New("out of gas")
	vm := vmFunc(func(context.Context, Call, blockctx.Context) (Result, error) {
		return Result{}, vmErr
	})
	service, _ := newTestService(t, storage, vm)

	_, err := service.Execute(context.Background(), Call{}, blockctx.Latest())
	require.ErrorIs(t, err, vmErr)
}

func TestExecute_PermitReleasedOnResolutionFailure(t *testing.T) {
	t.Parallel()
	storage := &mockStorage{}
	storage.On("LatestRecoveryMarker", mock.Anything).Return(nil, errors.New("timeout")).Once()
	expectSealedBlock(storage, blockctx.Latest(), 100, 1700000100)
	vm := vmFunc(func(_ context.Context, call Call, _ blockctx.Context) (Result, error) {
		return Result{ReturnData: call.Input}, nil
	})
	service, _ := newTestService(t, storage, vm)

	_, err := service.Execute(context.Background(), Call{}, blockctx.Latest())
	require.Error(t, err)

	// The limiter has capacity 1; a leaked permit would deadlock this call.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = service.Execute(ctx, Call{}, blockctx.Latest())
	require.NoError(t, err)
}
