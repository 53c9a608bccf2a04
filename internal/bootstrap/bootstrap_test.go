package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"prodflow/internal/config"
	"prodflow/internal/lifecycle"
	"prodflow/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func plantConfig() *config.Config {
	return &config.Config{
		StorageDriver: "memory",
		AutoAdvance:   true,
		Rooms: []config.RoomConfig{
			{Code: "WGH", Name: "Weighing", Kind: "weighing", Next: "FIL"},
			{Code: "FIL", Name: "Filling", Kind: "filling", Next: "LBL"},
			{Code: "LBL", Name: "Labelling", Kind: "labelling"},
		},
		Operators:         []config.OperatorConfig{{Name: "Labeller", Category: "Labelling"}},
		Roles:             config.RolesConfig{EntryRoom: "WGH", ShadowTargetRoom: "LBL"},
		GateKinds:         []string{"processing"},
		ShadowSourceKinds: []string{"filling"},
		PackagingKinds:    []string{"labelling"},
	}
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	backend, err := OpenStore(ctx, &config.Config{StorageDriver: "memory"}, false, quiet())
	require.NoError(t, err)
	require.NoError(t, backend.Ping(ctx))

	_, err = OpenStore(ctx, &config.Config{StorageDriver: "sqlite"}, false, quiet())
	assert.ErrorContains(t, err, "unknown storage driver")
}

func TestNewService_ResolvesRoles(t *testing.T) {
	ctx := context.Background()
	cfg := plantConfig()
	backend, err := OpenStore(ctx, cfg, false, quiet())
	require.NoError(t, err)

	svc, err := NewService(ctx, cfg, backend, quiet())
	require.NoError(t, err)

	wgh, err := backend.GetRoomByCode(ctx, nil, "WGH")
	require.NoError(t, err)
	lbl, err := backend.GetRoomByCode(ctx, nil, "LBL")
	require.NoError(t, err)

	p := svc.Policy()
	require.NotNil(t, p.EntryRoomID)
	assert.Equal(t, wgh.ID, *p.EntryRoomID)
	require.NotNil(t, p.ShadowTargetRoomID)
	assert.Equal(t, lbl.ID, *p.ShadowTargetRoomID)
	assert.True(t, p.IsPackaging(store.KindLabelling))

	item := &store.Item{ID: uuid.New(), Description: "Syrup"}
	require.NoError(t, backend.CreateItem(ctx, nil, item))
	b, err := svc.CreateBatch(ctx, lifecycle.CreateBatchInput{ItemID: item.ID, TargetQuantity: 5, Unit: store.UnitKilogram})
	require.NoError(t, err)
	assert.Equal(t, wgh.ID, b.RoomID)

	// A second start reuses the seeded graph.
	_, err = NewService(ctx, cfg, backend, quiet())
	require.NoError(t, err)
	rooms, err := backend.ListRooms(ctx)
	require.NoError(t, err)
	assert.Len(t, rooms, 3)
}

func TestNewService_UnknownRole(t *testing.T) {
	ctx := context.Background()
	cfg := plantConfig()
	cfg.Roles.EntryRoom = "NOPE"
	backend, err := OpenStore(ctx, cfg, false, quiet())
	require.NoError(t, err)

	_, err = NewService(ctx, cfg, backend, quiet())
	assert.ErrorContains(t, err, "resolve room roles")
}
