package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"prodflow/internal/store"

	"github.com/google/uuid"
)

// Policy holds the room roles the state machine depends on. It is resolved once at
// startup; nothing in the lifecycle looks rooms up by name afterwards.
type Policy struct {
	// EntryRoomID is the default initial room for new batches.
	EntryRoomID *uuid.UUID

	// ShadowTargetRoomID receives placeholder records from fan-out source rooms.
	ShadowTargetRoomID *uuid.UUID

	ShadowSourceKinds []store.ProcessKind
	GateKinds         []store.ProcessKind
	PackagingKinds    []store.ProcessKind
}

// PolicyConfig is the textual form of Policy as it appears in configuration.
type PolicyConfig struct {
	EntryRoom         string
	ShadowTargetRoom  string
	ShadowSourceKinds []string
	GateKinds         []string
	PackagingKinds    []string
}

// DefaultPolicyConfig mirrors the usual plant layout: filling fans out to
// labelling, processing is gated, labelling counts packaging.
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		ShadowSourceKinds: []string{string(store.KindFilling)},
		GateKinds:         []string{string(store.KindProcessing)},
		PackagingKinds:    []string{string(store.KindLabelling)},
	}
}

// RoomLookup is the read access ResolvePolicy needs.
type RoomLookup interface {
	GetRoomByCode(ctx context.Context, tx store.Tx, code string) (*store.Room, error)
}

// ResolvePolicy maps configured room codes to ids. Empty codes leave the role unset.
func ResolvePolicy(ctx context.Context, rooms RoomLookup, cfg PolicyConfig) (Policy, error) {
	var p Policy
	var err error

	if p.ShadowSourceKinds, err = parseKinds(cfg.ShadowSourceKinds); err != nil {
		return Policy{}, fmt.Errorf("shadow_source_kinds: %w", err)
	}
	if p.GateKinds, err = parseKinds(cfg.GateKinds); err != nil {
		return Policy{}, fmt.Errorf("gate_kinds: %w", err)
	}
	if p.PackagingKinds, err = parseKinds(cfg.PackagingKinds); err != nil {
		return Policy{}, fmt.Errorf("packaging_kinds: %w", err)
	}

	resolve := func(role, code string) (*uuid.UUID, error) {
		if code == "" {
			return nil, nil
		}
		room, err := rooms.GetRoomByCode(ctx, nil, code)
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%s: room %q is not configured", role, code)
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", role, err)
		}
		id := room.ID
		return &id, nil
	}

	if p.EntryRoomID, err = resolve("entry_room", cfg.EntryRoom); err != nil {
		return Policy{}, err
	}
	if p.ShadowTargetRoomID, err = resolve("shadow_target_room", cfg.ShadowTargetRoom); err != nil {
		return Policy{}, err
	}
	return p, nil
}

func parseKinds(names []string) ([]store.ProcessKind, error) {
	kinds := make([]store.ProcessKind, 0, len(names))
	for _, n := range names {
		k := store.ProcessKind(n)
		if !k.Valid() {
			return nil, fmt.Errorf("unknown process kind %q", n)
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

func containsKind(kinds []store.ProcessKind, k store.ProcessKind) bool {
	for _, c := range kinds {
		if c == k {
			return true
		}
	}
	return false
}

// IsGate reports whether batches in rooms of this kind wait for a Release/Reject decision.
func (p Policy) IsGate(k store.ProcessKind) bool { return containsKind(p.GateKinds, k) }

// IsShadowSource reports whether progress in rooms of this kind pre-creates a shadow record.
func (p Policy) IsShadowSource(k store.ProcessKind) bool { return containsKind(p.ShadowSourceKinds, k) }

// IsPackaging reports whether rooms of this kind count packaging instead of quantity.
func (p Policy) IsPackaging(k store.ProcessKind) bool { return containsKind(p.PackagingKinds, k) }
