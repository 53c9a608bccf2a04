package lifecycle

import (
	"context"
	"testing"

	"prodflow/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddPackaging_HardCapAtOneAndAHalfEstimate(t *testing.T) {
	f := newFixture(t)
	b := f.packagingBatch(t, "P-1", intPtr(100))
	ctx := context.Background()

	res, err := f.svc.AddPackaging(ctx, PackagingInput{BatchID: b.ID, Delta: 140, ClientToken: "p1-a"})
	require.NoError(t, err)
	assert.Equal(t, 140, res.Total)
	assert.True(t, res.Overrun)
	require.NotNil(t, res.AllowedMore)
	assert.Equal(t, 10, *res.AllowedMore)

	_, err = f.svc.AddPackaging(ctx, PackagingInput{BatchID: b.ID, Delta: 20, ClientToken: "p1-b"})
	require.Error(t, err)
	var le *Error
	require.ErrorAs(t, err, &le)
	assert.Equal(t, KindPackagingOverEstimateHardCap, le.Kind)
	require.NotNil(t, le.Allowed)
	assert.Equal(t, 10, *le.Allowed)
	assert.Equal(t, 140, f.get(t, b.ID).PackagingTotal())

	res, err = f.svc.AddPackaging(ctx, PackagingInput{BatchID: b.ID, Delta: 10, ClientToken: "p1-c"})
	require.NoError(t, err)
	assert.Equal(t, 150, res.Total)
	assert.Equal(t, 0, *res.AllowedMore)
}

func TestAddPackaging_SoftGuard(t *testing.T) {
	f := newFixture(t)
	b := f.packagingBatch(t, "P-2", intPtr(100))
	ctx := context.Background()

	res, err := f.svc.AddPackaging(ctx, PackagingInput{BatchID: b.ID, Delta: 60})
	require.NoError(t, err)
	assert.False(t, res.Overrun)
	assert.Equal(t, 100, *res.RemainingBefore)
	assert.Equal(t, 40, *res.RemainingAfter)

	res, err = f.svc.AddPackaging(ctx, PackagingInput{BatchID: b.ID, Delta: 41})
	require.NoError(t, err)
	assert.True(t, res.Overrun)
	assert.Equal(t, 0, *res.RemainingAfter)
}

func TestAddPackaging_NoEstimateNoGuards(t *testing.T) {
	f := newFixture(t)
	b := f.packagingBatch(t, "P-3", nil)

	res, err := f.svc.AddPackaging(context.Background(), PackagingInput{BatchID: b.ID, Delta: 100000})
	require.NoError(t, err)
	assert.Equal(t, 100000, res.Total)
	assert.False(t, res.Overrun)
	assert.Nil(t, res.AllowedMore)
}

func TestAddPackaging_ZeroEstimateIsNoEstimate(t *testing.T) {
	f := newFixture(t)
	b := f.packagingBatch(t, "Z-1", intPtr(0))
	ctx := context.Background()

	res, err := f.svc.AddPackaging(ctx, PackagingInput{BatchID: b.ID, Delta: 5, ClientToken: "z1-a"})
	require.NoError(t, err)
	assert.Equal(t, 5, res.Total)
	assert.False(t, res.Overrun)
	assert.Nil(t, res.AllowedMore)
	assert.Nil(t, res.RemainingBefore)

	res, err = f.svc.AddPackaging(ctx, PackagingInput{BatchID: b.ID, Delta: 5, ClientToken: "z1-a"})
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Equal(t, 5, res.Total)
	assert.Nil(t, res.AllowedMore)

	done, err := f.svc.FinalizePackaging(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, done.Status.Is(store.StatusFinishedProduction))
}

func TestAddPackaging_ReplayWithSameToken(t *testing.T) {
	f := newFixture(t)
	b := f.packagingBatch(t, "P-4", intPtr(100))
	ctx := context.Background()

	first, err := f.svc.AddPackaging(ctx, PackagingInput{BatchID: b.ID, Delta: 30, ClientToken: "same"})
	require.NoError(t, err)
	assert.False(t, first.Duplicate)

	second, err := f.svc.AddPackaging(ctx, PackagingInput{BatchID: b.ID, Delta: 30, ClientToken: "same"})
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, 30, second.Total)
	assert.Equal(t, 30, f.get(t, b.ID).PackagingTotal())
}

func TestAddPackaging_GeneratesToken(t *testing.T) {
	f := newFixture(t)
	b := f.packagingBatch(t, "P-5", nil)

	res, err := f.svc.AddPackaging(context.Background(), PackagingInput{BatchID: b.ID, Delta: 1})
	require.NoError(t, err)
	assert.NotEmpty(t, res.ClientToken)
}

func TestAddPackaging_Rules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	quantityRoom := f.newBatch(t, "P-6", "MIX", 10)
	pkg := f.packagingBatch(t, "P-7", nil)
	bad := store.PackagingUnit("crate")

	tests := []struct {
		name     string
		in       PackagingInput
		wantKind ErrorKind
	}{
		{name: "non-positive", in: PackagingInput{BatchID: pkg.ID, Delta: 0}, wantKind: KindInvalidQuantity},
		{name: "non packaging room", in: PackagingInput{BatchID: quantityRoom.ID, Delta: 1}, wantKind: KindInvalidStateForTransition},
		{name: "bad unit", in: PackagingInput{BatchID: pkg.ID, Delta: 1, PackagingUnit: &bad}, wantKind: KindInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.AddPackaging(ctx, tt.in)
			assert.Equal(t, tt.wantKind, KindOf(err))
		})
	}
}

func TestAddPackaging_StartsWaitingBatch(t *testing.T) {
	f := newFixture(t)
	b := f.packagingBatch(t, "P-8", nil)
	carton := store.PackagingCarton

	_, err := f.svc.AddPackaging(context.Background(), PackagingInput{BatchID: b.ID, Delta: 3, PackagingUnit: &carton})
	require.NoError(t, err)

	got := f.get(t, b.ID)
	assert.True(t, got.Status.Is(store.StatusInProgress))
	assert.NotNil(t, got.StartedAt)
	require.NotNil(t, got.PackagingUnit)
	assert.Equal(t, store.PackagingCarton, *got.PackagingUnit)
}

func TestFinalizePackaging(t *testing.T) {
	f := newFixture(t)
	b := f.packagingBatch(t, "P-9", intPtr(50))
	ctx := context.Background()

	_, err := f.svc.FinalizePackaging(ctx, b.ID)
	assert.True(t, IsKind(err, KindInvalidQuantity))

	_, err = f.svc.AddPackaging(ctx, PackagingInput{BatchID: b.ID, Delta: 48})
	require.NoError(t, err)

	done, err := f.svc.FinalizePackaging(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, done.Status.Is(store.StatusFinishedProduction))
	assert.NotNil(t, done.FinishedAt)
	assert.Len(t, f.history(t, "LBL"), 1)

	_, err = f.svc.FinalizePackaging(ctx, b.ID)
	assert.True(t, IsKind(err, KindInvalidStateForTransition))

	_, err = f.svc.AddPackaging(ctx, PackagingInput{BatchID: b.ID, Delta: 1})
	assert.True(t, IsKind(err, KindInvalidStateForTransition))
}
