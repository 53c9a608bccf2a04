package lifecycle

import (
	"context"
	"testing"

	"prodflow/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func finishIn(t *testing.T, f *fixture, number, room string) *store.Batch {
	t.Helper()
	b := f.newBatch(t, number, room, 10)
	_, err := f.svc.AddProgress(context.Background(), b.ID, 10, "")
	require.NoError(t, err)
	return f.get(t, b.ID)
}

func TestMoveBatch_RedirectResetsRecord(t *testing.T) {
	f := newFixture(t, withoutAutoAdvance())
	b := finishIn(t, f, "M-1", "WGH")
	op := f.ops["Filling"].ID

	res, err := f.svc.MoveBatch(context.Background(), MoveInput{
		Ref:          b.ID.String(),
		TargetRoomID: f.rooms["MIX"].ID,
		OperatorID:   &op,
	})
	require.NoError(t, err)
	assert.Empty(t, res.Warning)
	assert.Equal(t, MoveRedirect, res.Mode)

	got := f.get(t, b.ID)
	assert.Equal(t, f.rooms["MIX"].ID, got.RoomID)
	assert.True(t, got.Status.Is(store.StatusWaiting))
	assert.Equal(t, 0, got.Progress)
	assert.Nil(t, got.StartedAt)
	assert.Nil(t, got.FinishedAt)
	assert.Equal(t, op, *got.OperatorID)

	_, stillThere := f.inRoom(t, "M-1", "WGH")
	assert.False(t, stillThere)
}

func TestMoveBatch_SpawnKeepsSource(t *testing.T) {
	f := newFixture(t, withoutAutoAdvance())
	b := finishIn(t, f, "M-2", "WGH")

	res, err := f.svc.MoveBatch(context.Background(), MoveInput{
		Ref:          b.ID.String(),
		TargetRoomID: f.rooms["PRC"].ID,
		Mode:         MoveSpawn,
	})
	require.NoError(t, err)
	require.NotEqual(t, b.ID, res.Batch.ID)

	src := f.get(t, b.ID)
	assert.Equal(t, f.rooms["WGH"].ID, src.RoomID)
	assert.True(t, src.Status.Finished())

	spawned, ok := f.inRoom(t, "M-2", "PRC")
	require.True(t, ok)
	assert.True(t, spawned.Status.Is(store.StatusWaiting))
}

func TestMoveBatch_DuplicateIsSoftWarning(t *testing.T) {
	f := newFixture(t)
	// auto-advance already put M-3 into PRC
	b := finishIn(t, f, "M-3", "WGH")

	for _, mode := range []MoveMode{MoveRedirect, MoveSpawn} {
		res, err := f.svc.MoveBatch(context.Background(), MoveInput{
			Ref:          b.ID.String(),
			TargetRoomID: f.rooms["PRC"].ID,
			Mode:         mode,
		})
		require.NoError(t, err)
		assert.Equal(t, KindDuplicateBatchInRoom, res.Warning)
		assert.Equal(t, b.ID, res.Batch.ID)
	}
	assert.Equal(t, f.rooms["WGH"].ID, f.get(t, b.ID).RoomID)
}

func TestMoveBatch_Rules(t *testing.T) {
	f := newFixture(t, withoutAutoAdvance())
	ctx := context.Background()

	waiting := f.newBatch(t, "M-4", "WGH", 10)
	gated := f.newBatch(t, "M-5", "PRC", 10)
	_, err := f.svc.AddProgress(ctx, gated.ID, 10, "")
	require.NoError(t, err)
	packaging := f.packagingBatch(t, "M-6", nil)
	finished := finishIn(t, f, "M-7", "WGH")

	tests := []struct {
		name     string
		in       MoveInput
		wantKind ErrorKind
	}{
		{
			name:     "not finished",
			in:       MoveInput{Ref: waiting.ID.String(), TargetRoomID: f.rooms["PRC"].ID},
			wantKind: KindInvalidStateForTransition,
		},
		{
			name:     "gate without release",
			in:       MoveInput{Ref: gated.ID.String(), TargetRoomID: f.rooms["FIL"].ID, Force: true},
			wantKind: KindInvalidStateForTransition,
		},
		{
			name:     "packaging room is terminal",
			in:       MoveInput{Ref: packaging.ID.String(), TargetRoomID: f.rooms["WGH"].ID, Force: true},
			wantKind: KindInvalidStateForTransition,
		},
		{
			name:     "same room",
			in:       MoveInput{Ref: finished.ID.String(), TargetRoomID: f.rooms["WGH"].ID},
			wantKind: KindInvalidStateForTransition,
		},
		{
			name:     "unknown room",
			in:       MoveInput{Ref: finished.ID.String(), TargetRoomID: uuid.New()},
			wantKind: KindNotFound,
		},
		{
			name:     "unknown batch",
			in:       MoveInput{Ref: "no-such-batch", TargetRoomID: f.rooms["PRC"].ID},
			wantKind: KindNotFound,
		},
		{
			name:     "unknown mode",
			in:       MoveInput{Ref: finished.ID.String(), TargetRoomID: f.rooms["PRC"].ID, Mode: "teleport"},
			wantKind: KindInvalidInput,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.MoveBatch(ctx, tt.in)
			assert.Equal(t, tt.wantKind, KindOf(err))
		})
	}

	unknownOp := uuid.New()
	_, err = f.svc.MoveBatch(ctx, MoveInput{Ref: finished.ID.String(), TargetRoomID: f.rooms["PRC"].ID, OperatorID: &unknownOp})
	assert.True(t, IsKind(err, KindNotFound))
}

func TestMoveBatch_ForceCorrectsMisroutedBatch(t *testing.T) {
	f := newFixture(t, withoutAutoAdvance())
	b := f.newBatch(t, "M-8", "WGH", 10)

	res, err := f.svc.MoveBatch(context.Background(), MoveInput{
		Ref:          b.ID.String(),
		TargetRoomID: f.rooms["MIX"].ID,
		Force:        true,
	})
	require.NoError(t, err)
	assert.Equal(t, f.rooms["MIX"].ID, res.Batch.RoomID)
}

func TestMoveBatch_ReleasedGateBatch(t *testing.T) {
	f := newFixture(t, withoutAutoAdvance())
	ctx := context.Background()
	b := f.newBatch(t, "M-9", "PRC", 10)
	_, err := f.svc.AddProgress(ctx, b.ID, 10, "")
	require.NoError(t, err)
	out, err := f.svc.SetOutcome(ctx, b.ID, store.OutcomeRelease)
	require.NoError(t, err)
	require.NotNil(t, out.Next)

	// release already spawned FIL; a manual move elsewhere is still allowed
	res, err := f.svc.MoveBatch(ctx, MoveInput{Ref: b.ID.String(), TargetRoomID: f.rooms["MIX"].ID, Mode: MoveSpawn})
	require.NoError(t, err)
	assert.Empty(t, res.Warning)
	_, ok := f.inRoom(t, "M-9", "MIX")
	assert.True(t, ok)
}

func TestMoveBatch_ByNumberUsesLatestRecord(t *testing.T) {
	f := newFixture(t, withoutAutoAdvance())
	ctx := context.Background()
	first := finishIn(t, f, "M-10", "WGH")

	_, err := f.svc.MoveBatch(ctx, MoveInput{Ref: first.ID.String(), TargetRoomID: f.rooms["MIX"].ID, Mode: MoveSpawn})
	require.NoError(t, err)
	mixed, ok := f.inRoom(t, "M-10", "MIX")
	require.True(t, ok)
	_, err = f.svc.AddProgress(ctx, mixed.ID, 10, "")
	require.NoError(t, err)

	res, err := f.svc.MoveBatch(ctx, MoveInput{Ref: "M-10", TargetRoomID: f.rooms["PRC"].ID})
	require.NoError(t, err)
	assert.Equal(t, mixed.ID, res.Batch.ID)
	assert.Equal(t, f.rooms["PRC"].ID, res.Batch.RoomID)
}

func TestMoveBatches_PerItemResults(t *testing.T) {
	f := newFixture(t, withoutAutoAdvance())
	ok1 := finishIn(t, f, "M-11", "WGH")
	ok2 := finishIn(t, f, "M-12", "WGH")
	notReady := f.newBatch(t, "M-13", "WGH", 10)

	results := f.svc.MoveBatches(context.Background(),
		[]uuid.UUID{ok1.ID, notReady.ID, ok2.ID}, f.rooms["MIX"].ID, nil, MoveRedirect, false)
	require.Len(t, results, 3)

	assert.NoError(t, results[0].Err)
	assert.True(t, IsKind(results[1].Err, KindInvalidStateForTransition))
	assert.NoError(t, results[2].Err)
	assert.Equal(t, f.rooms["MIX"].ID, f.get(t, ok2.ID).RoomID)
}
