package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianxyz/fillbot/internal/domain"
)

type fakeAllowanceManager struct {
	allowance    domain.Amount
	allowanceErr error
	approveErr   error

	approveCalls int
	approvedWith domain.Amount
	onApprove    func(value domain.Amount)
}

func (f *fakeAllowanceManager) Allowance(_ context.Context, _, _ common.Address) (domain.Amount, error) {
	if f.allowanceErr != nil {
		return domain.Amount{}, f.allowanceErr
	}
	return f.allowance, nil
}

func (f *fakeAllowanceManager) Approve(_ context.Context, _ common.Address, value domain.Amount) error {
	f.approveCalls++
	f.approvedWith = value
	if f.approveErr != nil {
		return f.approveErr
	}
	if f.onApprove != nil {
		f.onApprove(value)
	}
	return nil
}

var (
	owner   = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	spender = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
)

func TestEnsureAllowance_SufficientIsIdempotent(t *testing.T) {
	mgr := &fakeAllowanceManager{allowance: domain.NewAmount(100)}
	gate := NewAllowanceGate(mgr)

	for i := 0; i < 2; i++ {
		current, err := gate.EnsureAllowance(context.Background(), owner, spender, domain.NewAmount(50))
		require.NoError(t, err)
		assert.Equal(t, "100", current.String())
	}
	assert.Zero(t, mgr.approveCalls, "no state-changing action when already sufficient")
}

func TestEnsureAllowance_ExactAmountIsSufficient(t *testing.T) {
	mgr := &fakeAllowanceManager{allowance: domain.NewAmount(50)}
	gate := NewAllowanceGate(mgr)

	_, err := gate.EnsureAllowance(context.Background(), owner, spender, domain.NewAmount(50))
	require.NoError(t, err)
	assert.Zero(t, mgr.approveCalls)
}

func TestEnsureAllowance_IncreasesWithOneUnitBuffer(t *testing.T) {
	mgr := &fakeAllowanceManager{allowance: domain.NewAmount(10)}
	mgr.onApprove = func(value domain.Amount) { mgr.allowance = value }
	gate := NewAllowanceGate(mgr)

	current, err := gate.EnsureAllowance(context.Background(), owner, spender, domain.NewAmount(50))
	require.NoError(t, err)

	assert.Equal(t, 1, mgr.approveCalls, "increase requested at most once")
	assert.Equal(t, "51", mgr.approvedWith.String(), "required + 1 rounding buffer")
	assert.Equal(t, "51", current.String(), "re-read after acknowledgement")
}

func TestEnsureAllowance_ApproveFailure(t *testing.T) {
	mgr := &fakeAllowanceManager{allowance: domain.NewAmount(0), approveErr: errors.New("rpc: nonce too low")}
	gate := NewAllowanceGate(mgr)

	_, err := gate.EnsureAllowance(context.Background(), owner, spender, domain.NewAmount(50))
	assert.ErrorIs(t, err, domain.ErrAllowanceRequestFailed)
	assert.Equal(t, 1, mgr.approveCalls, "a failed increase is surfaced, never retried")
}

func TestEnsureAllowance_StillShortAfterIncrease(t *testing.T) {
	// The approve succeeds but the re-read comes back short.
	mgr := &fakeAllowanceManager{allowance: domain.NewAmount(10)}
	gate := NewAllowanceGate(mgr)

	_, err := gate.EnsureAllowance(context.Background(), owner, spender, domain.NewAmount(50))
	assert.ErrorIs(t, err, domain.ErrAllowanceRequestFailed)
}

func TestEnsureAllowance_ReadFailure(t *testing.T) {
	mgr := &fakeAllowanceManager{allowanceErr: errors.New("rpc: connection refused")}
	gate := NewAllowanceGate(mgr)

	_, err := gate.EnsureAllowance(context.Background(), owner, spender, domain.NewAmount(50))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrAllowanceRequestFailed, "a read failure is not an increase failure")
}

func TestEnsureAllowance_BufferOverflow(t *testing.T) {
	mgr := &fakeAllowanceManager{allowance: domain.NewAmount(0)}
	gate := NewAllowanceGate(mgr)

	max, err := domain.AmountFromDecimal("115792089237316195423570985008687907853269984665640564039457584007913129639935")
	require.NoError(t, err)

	_, err = gate.EnsureAllowance(context.Background(), owner, spender, max)
	assert.ErrorIs(t, err, domain.ErrOverflow, "required+1 must not wrap")
	assert.Zero(t, mgr.approveCalls)
}
