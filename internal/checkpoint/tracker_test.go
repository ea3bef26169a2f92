package checkpoint_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tally/internal/checkpoint"
	"tally/internal/kvstore"
	mock_kvstore "tally/internal/kvstore/mocks"
	"tally/internal/logging"
)

var throttle = checkpoint.Throttle{PercentStep: 0.1, MinInterval: time.Second, MilestonePercent: 5}

func TestAutoSaveThrottleSkipsRepeatWithinInterval(t *testing.T) {
	store, c := newStore(t)
	ctx := context.Background()
	id := identity("c.dat", 3)
	tr := store.Track(id, 0, nil, throttle)

	saved, err := tr.AutoSave(ctx, 10, 10_000_000, usdBalances("10", 1))
	require.NoError(t, err)
	assert.True(t, saved, "first autosave should persist")

	c.Advance(500 * time.Millisecond)
	saved, err = tr.AutoSave(ctx, 10, 10_000_000, usdBalances("10", 1))
	require.NoError(t, err)
	assert.False(t, saved, "identical autosave within 500ms should be a no-op")

	saved, err = tr.AutoSave(ctx, 10.5, 10_500_000, usdBalances("10", 1))
	require.NoError(t, err)
	assert.False(t, saved, "progress alone cannot bypass the minimum interval")

	c.Advance(600 * time.Millisecond)
	saved, err = tr.AutoSave(ctx, 10.5, 10_500_000, usdBalances("10", 1))
	require.NoError(t, err)
	assert.True(t, saved)

	c.Advance(2 * time.Second)
	saved, err = tr.AutoSave(ctx, 10.55, 10_550_000, usdBalances("10", 1))
	require.NoError(t, err)
	assert.False(t, saved, "delta below step should not persist")

	two := append(usdBalances("10", 1), usdBalances("3", 1)...)
	two[1].Currency = "EUR"
	saved, err = tr.AutoSave(ctx, 10.55, 10_550_000, two)
	require.NoError(t, err)
	assert.True(t, saved, "cardinality change should persist")

	cp := mustValid(t, mustLoad(t, store, id))
	assert.Equal(t, int64(10_550_000), cp.BytesProcessed)
	assert.Len(t, cp.Balances, 2)
}

func TestForceSaveBypassesThrottle(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	id := identity("d.dat", 4)
	tr := store.Track(id, 0, nil, throttle)

	saved, err := tr.AutoSave(ctx, 30, 30_000_000, usdBalances("1", 1))
	require.NoError(t, err)
	require.True(t, saved)

	saved, err = tr.AutoSave(ctx, 30.05, 30_050_000, usdBalances("1", 1))
	require.NoError(t, err)
	require.False(t, saved)

	require.NoError(t, tr.ForceSave(ctx, 30.05, 30_050_000, usdBalances("1", 1)))
	cp := mustValid(t, mustLoad(t, store, id))
	assert.Equal(t, int64(30_050_000), cp.BytesProcessed)
}

func TestMilestoneSavesOncePerBoundary(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	tr := store.Track(identity("m.dat", 5), 42_000_000, nil, throttle)

	steps := []struct {
		percent float64
		want    bool
	}{
		{43, false},
		{44.9, false},
		{45, true},
		{46, false},
		{55, true},
		{56, false},
		{100, true},
	}
	for _, step := range steps {
		saved, err := tr.Milestone(ctx, step.percent, int64(step.percent*1_000_000), nil)
		require.NoError(t, err)
		assert.Equal(t, step.want, saved, "percent %v", step.percent)
	}
}

func TestLowerOffsetNeverOverwritesHigherWithinRun(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	id := identity("hw.dat", 6)
	tr := store.Track(id, 0, nil, throttle)

	require.NoError(t, tr.ForceSave(ctx, 60, 60_000_000, nil))
	require.NoError(t, store.SaveProgress(ctx, id, 50, 50_000_000, nil))
	assert.Equal(t, int64(60_000_000), mustValid(t, mustLoad(t, store, id)).BytesProcessed)

	require.NoError(t, tr.Clear(ctx))
	assert.Equal(t, checkpoint.Lookup(checkpoint.NoCheckpoint{}), mustLoad(t, store, id))
}

func TestPersistenceFailures(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	kv := mock_kvstore.NewMockKV(ctrl)
	store := checkpoint.NewStore(kv, checkpoint.Options{}, logging.NewNop())
	ctx := context.Background()
	id := identity("fail.dat", 9)
	writeErr := errors.New("disk full")

	kv.EXPECT().Put(gomock.Any(), "progress/"+id.Key(), gomock.Any()).Return(writeErr).Times(2)
	kv.EXPECT().Put(gomock.Any(), "progress/"+id.Key(), gomock.Any()).Return(nil)

	tr := store.Track(id, 0, nil, throttle)
	saved, err := tr.AutoSave(ctx, 5, 5_000_000, nil)
	require.ErrorIs(t, err, writeErr)
	assert.False(t, saved)

	err = tr.ForceSave(ctx, 5, 5_000_000, nil)
	require.ErrorIs(t, err, writeErr)

	saved, err = tr.AutoSave(ctx, 5, 5_000_000, nil)
	require.NoError(t, err)
	assert.True(t, saved, "a failed autosave is retried on the next tick")

	kv.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, errors.New("io error"))
	_, err = store.LoadProgress(ctx, id)
	require.Error(t, err)

	kv.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, kvstore.ErrNotFound)
	kv.EXPECT().List(gomock.Any(), "progress/").Return(nil, nil)
	lookup, err := store.LoadProgress(ctx, id)
	require.NoError(t, err)
	assert.IsType(t, checkpoint.NoCheckpoint{}, lookup)

	kv.EXPECT().Get(gomock.Any(), gomock.Any()).Return([]byte("garbage"), nil)
	kv.EXPECT().Delete(gomock.Any(), "progress/"+id.Key()).Return(nil)
	lookup, err = store.LoadProgress(ctx, id)
	require.NoError(t, err)
	assert.IsType(t, checkpoint.NoCheckpoint{}, lookup)
}
