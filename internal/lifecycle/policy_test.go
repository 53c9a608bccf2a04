package lifecycle

import (
	"context"
	"testing"

	"prodflow/internal/store"
	"prodflow/internal/store/memory"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePolicy(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	room := &store.Room{ID: uuid.New(), Code: "FIL-1", Name: "Filling 1", Kind: store.KindFilling}
	require.NoError(t, mem.CreateRoom(ctx, nil, room))

	tests := []struct {
		name    string
		mutate  func(c *PolicyConfig)
		wantErr string
	}{
		{"defaults", func(c *PolicyConfig) {}, ""},
		{"entry room", func(c *PolicyConfig) { c.EntryRoom = "FIL-1" }, ""},
		{"unknown entry room", func(c *PolicyConfig) { c.EntryRoom = "NOPE" }, "entry_room"},
		{"unknown shadow target", func(c *PolicyConfig) { c.ShadowTargetRoom = "NOPE" }, "shadow_target_room"},
		{"unknown gate kind", func(c *PolicyConfig) { c.GateKinds = []string{"boiling"} }, "gate_kinds"},
		{"unknown packaging kind", func(c *PolicyConfig) { c.PackagingKinds = []string{""} }, "packaging_kinds"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultPolicyConfig()
			tt.mutate(&cfg)
			p, err := ResolvePolicy(ctx, mem, cfg)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			if cfg.EntryRoom != "" {
				require.NotNil(t, p.EntryRoomID)
				assert.Equal(t, room.ID, *p.EntryRoomID)
			} else {
				assert.Nil(t, p.EntryRoomID)
			}
		})
	}
}

func TestPolicyRoles(t *testing.T) {
	p, err := ResolvePolicy(context.Background(), memory.New(), DefaultPolicyConfig())
	require.NoError(t, err)

	assert.True(t, p.IsGate(store.KindProcessing))
	assert.False(t, p.IsGate(store.KindFilling))
	assert.True(t, p.IsShadowSource(store.KindFilling))
	assert.False(t, p.IsShadowSource(store.KindLabelling))
	assert.True(t, p.IsPackaging(store.KindLabelling))
	assert.False(t, p.IsPackaging(store.KindMixing))
}
