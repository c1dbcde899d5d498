package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianxyz/fillbot/internal/domain"
)

type fakeRunner struct {
	mu    sync.Mutex
	reqs  []domain.FillRequest
	err   error
	delay time.Duration
}

func (f *fakeRunner) ExecuteFill(ctx context.Context, req domain.FillRequest) (domain.Fill, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	if f.err != nil {
		return domain.Fill{Status: domain.FillStatusRejected}, f.err
	}
	return domain.Fill{ID: "fill-1", OfferID: req.OfferID, Status: domain.FillStatusConfirmed}, nil
}

func (f *fakeRunner) requests() []domain.FillRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.FillRequest(nil), f.reqs...)
}

type fakeLocks struct {
	mu   sync.Mutex
	held map[string]bool
	busy bool
}

func (f *fakeLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.busy {
		return nil, fmt.Errorf("locks test: %w", domain.ErrLockHeld)
	}
	if f.held == nil {
		f.held = make(map[string]bool)
	}
	f.held[key] = true
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.held, key)
	}, nil
}

func newTestExecutor(ch chan domain.FillSignal, runner FillRunner, locks domain.LockManager) *Executor {
	return NewExecutor(ch, runner, locks,
		common.HexToAddress("0x1111111111111111111111111111111111111111"),
		slog.New(slog.DiscardHandler))
}

func signal(id, offerID string) domain.FillSignal {
	return domain.FillSignal{
		ID:                   id,
		OfferID:              offerID,
		Source:               "full",
		RequestedTakerAmount: domain.NewAmount(50),
		CreatedAt:            time.Now().UTC(),
	}
}

func runUntilCancel(t *testing.T, e *Executor, wait time.Duration) {
	t.Helper()
	done := make(chan error, 1)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { done <- e.Run(ctx) }()
	time.Sleep(wait)
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("executor did not stop")
	}
}

func TestExecutor_ExecutesSignal(t *testing.T) {
	ch := make(chan domain.FillSignal, 4)
	runner := &fakeRunner{}
	e := newTestExecutor(ch, runner, &fakeLocks{})

	ch <- signal("sig-1", "0xaaa")
	runUntilCancel(t, e, 100*time.Millisecond)

	reqs := runner.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "0xaaa", reqs[0].OfferID)
	assert.Equal(t, "50", reqs[0].RequestedTakerAmount.String())
	assert.Equal(t, "full", reqs[0].Strategy)
}

func TestExecutor_DedupsSignalAndOffer(t *testing.T) {
	ch := make(chan domain.FillSignal, 4)
	runner := &fakeRunner{}
	e := newTestExecutor(ch, runner, &fakeLocks{})

	// Same signal twice, plus a distinct signal against the same offer:
	// only the first reaches the runner inside one dedup window.
	ch <- signal("sig-1", "0xaaa")
	ch <- signal("sig-1", "0xaaa")
	ch <- signal("sig-2", "0xaaa")
	runUntilCancel(t, e, 150*time.Millisecond)

	assert.Len(t, runner.requests(), 1)
}

func TestExecutor_SkipsExpiredSignal(t *testing.T) {
	ch := make(chan domain.FillSignal, 1)
	runner := &fakeRunner{}
	e := newTestExecutor(ch, runner, &fakeLocks{})

	sig := signal("sig-1", "0xaaa")
	sig.ExpiresAt = time.Now().Add(-time.Second)
	ch <- sig
	runUntilCancel(t, e, 100*time.Millisecond)

	assert.Empty(t, runner.requests())
}

func TestExecutor_SkipsWhenOfferLocked(t *testing.T) {
	ch := make(chan domain.FillSignal, 1)
	runner := &fakeRunner{}
	e := newTestExecutor(ch, runner, &fakeLocks{busy: true})

	ch <- signal("sig-1", "0xaaa")
	runUntilCancel(t, e, 100*time.Millisecond)

	assert.Empty(t, runner.requests())
}

func TestExecutor_NoRetryOnFailure(t *testing.T) {
	ch := make(chan domain.FillSignal, 1)
	runner := &fakeRunner{err: fmt.Errorf("executor test: %w", domain.ErrSettlementRejected)}
	e := newTestExecutor(ch, runner, &fakeLocks{})

	ch <- signal("sig-1", "0xaaa")
	runUntilCancel(t, e, 150*time.Millisecond)

	assert.Len(t, runner.requests(), 1, "exactly one attempt, no retry")
}

func TestExecutor_DrainsOnShutdown(t *testing.T) {
	ch := make(chan domain.FillSignal, 4)
	runner := &fakeRunner{}
	e := newTestExecutor(ch, runner, &fakeLocks{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // already cancelled: Run must drain what is buffered

	ch <- signal("sig-1", "0xaaa")
	ch <- signal("sig-2", "0xbbb")

	err := e.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, runner.requests(), 2)
}
