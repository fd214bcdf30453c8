package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/NasaVasa/stockwatch/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingDeliverer struct {
	mu        sync.Mutex
	delivered []domain.TriggeredAlert
	failFor   map[int64]error
	panicFor  map[int64]bool
}

func (d *recordingDeliverer) Deliver(_ context.Context, userID int64, alert domain.TriggeredAlert) error {
	if d.panicFor[userID] {
		panic("chat client exploded")
	}
	if err := d.failFor[userID]; err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.delivered = append(d.delivered, alert)
	return nil
}

func (d *recordingDeliverer) users() []int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]int64, 0, len(d.delivered))
	for _, a := range d.delivered {
		out = append(out, a.Rule.UserID)
	}
	return out
}

type cycleFixture struct {
	repo      *memoryRepo
	store     *AlertStore
	provider  *scriptedProvider
	deliverer *recordingDeliverer
	runner    *CycleRunner
}

func newCycleFixture() *cycleFixture {
	repo := &memoryRepo{}
	store := newTestStore(repo)
	provider := newScriptedProvider("primary")
	resolver, _ := newTestResolver(provider)
	deliverer := &recordingDeliverer{failFor: map[int64]error{}, panicFor: map[int64]bool{}}
	runner := NewCycleRunner(store, resolver, NewEvaluator(store, zap.NewNop()), deliverer, 2, zap.NewNop(), nil)
	return &cycleFixture{repo: repo, store: store, provider: provider, deliverer: deliverer, runner: runner}
}

func TestCycleRunner_EmptyStoreIsNoop(t *testing.T) {
	f := newCycleFixture()

	report := f.runner.RunCycle(context.Background())
	assert.NoError(t, report.Err)
	assert.Zero(t, report.Symbols)
	assert.Zero(t, f.provider.totalCalls())
	assert.Zero(t, f.repo.saveCount())
}

func TestCycleRunner_DeliversOncePerCrossing(t *testing.T) {
	f := newCycleFixture()
	ctx := context.Background()

	_, err := f.store.Add(ctx, 1, "AAPL", dec("150"), "above")
	require.NoError(t, err)
	_, err = f.store.Add(ctx, 2, "AAPL", dec("200"), "above")
	require.NoError(t, err)
	f.provider.on("AAPL", ok("155", "USD"))

	report := f.runner.RunCycle(ctx)
	require.NoError(t, report.Err)
	assert.Equal(t, 1, report.Symbols)
	assert.Equal(t, 1, report.Resolved)
	assert.Equal(t, 1, report.Triggered)
	assert.Equal(t, 1, report.Delivered)
	assert.Equal(t, []int64{1}, f.deliverer.users())

	report = f.runner.RunCycle(ctx)
	require.NoError(t, report.Err)
	assert.Zero(t, report.Triggered)
	assert.Len(t, f.deliverer.users(), 1)
}

func TestCycleRunner_DeliveryFailuresAreIndependent(t *testing.T) {
	f := newCycleFixture()
	ctx := context.Background()

	for user := int64(1); user <= 3; user++ {
		_, err := f.store.Add(ctx, user, "TSLA", dec("100"), "below")
		require.NoError(t, err)
	}
	f.provider.on("TSLA", ok("95", "USD"))
	f.deliverer.failFor[1] = errors.New("chat not found")
	f.deliverer.panicFor[2] = true

	report := f.runner.RunCycle(ctx)
	assert.NoError(t, report.Err)
	assert.Equal(t, 3, report.Triggered)
	assert.Equal(t, 1, report.Delivered)
	assert.Equal(t, 2, report.Failed)
	assert.Equal(t, []int64{3}, f.deliverer.users())

	// a failed delivery does not re-fire
	for _, rule := range f.repo.saved().Rules {
		assert.True(t, rule.Notified)
	}
}

func TestCycleRunner_FailedQuoteSkipsRules(t *testing.T) {
	f := newCycleFixture()
	ctx := context.Background()

	_, err := f.store.Add(ctx, 1, "AAPL", dec("150"), "above")
	require.NoError(t, err)
	_, err = f.store.Add(ctx, 1, "MSFT", dec("400"), "above")
	require.NoError(t, err)
	f.provider.on("MSFT", ok("410", "USD"))

	report := f.runner.RunCycle(ctx)
	assert.NoError(t, report.Err)
	assert.Equal(t, 2, report.Symbols)
	assert.Equal(t, 1, report.Resolved)
	assert.Equal(t, 1, report.Triggered)
}

func TestCycleRunner_PersistErrorStillDelivers(t *testing.T) {
	f := newCycleFixture()
	ctx := context.Background()

	_, err := f.store.Add(ctx, 1, "AAPL", dec("150"), "above")
	require.NoError(t, err)
	f.provider.on("AAPL", ok("151", "USD"))
	f.repo.failSaves(errors.New("disk full"))

	report := f.runner.RunCycle(ctx)
	assert.ErrorIs(t, report.Err, domain.ErrPersistence)
	assert.Equal(t, 1, report.Delivered)
}

type panickingProvider struct{}

func (panickingProvider) Name() string { return "broken" }

func (panickingProvider) Fetch(context.Context, string) (domain.ProviderPrice, error) {
	panic("nil map")
}

func TestCycleRunner_RecoversFromPanic(t *testing.T) {
	repo := &memoryRepo{}
	store := newTestStore(repo)
	resolver, _ := newTestResolver(panickingProvider{})
	runner := NewCycleRunner(store, resolver, NewEvaluator(store, zap.NewNop()), &recordingDeliverer{}, 1, zap.NewNop(), nil)

	_, err := store.Add(context.Background(), 1, "AAPL", dec("150"), "above")
	require.NoError(t, err)

	var report CycleReport
	assert.NotPanics(t, func() { report = runner.RunCycle(context.Background()) })
	assert.Error(t, report.Err)

	// the runner is usable again after a panic
	report = runner.RunCycle(context.Background())
	assert.False(t, report.Skipped)
}

func TestCycleRunner_SkipsOverlappingRun(t *testing.T) {
	f := newCycleFixture()

	f.runner.running.Lock()
	report := f.runner.RunCycle(context.Background())
	f.runner.running.Unlock()

	assert.True(t, report.Skipped)
}
