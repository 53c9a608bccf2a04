package lifecycle

import (
	"context"
	"sync"
	"testing"
	"time"

	"prodflow/internal/events"
	"prodflow/internal/store"
	"prodflow/internal/store/memory"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

// now advances one second per call so consecutive timestamps never collide.
func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type fixture struct {
	svc   *Service
	store *memory.Store
	rooms map[string]*store.Room
	ops   map[string]*store.Operator
	item  *store.Item
	pub   *recordingPublisher
	clock *fakeClock
}

type fixtureOpts struct {
	policy      func(*PolicyConfig)
	backend     func(*memory.Store) store.Backend
	autoAdvance bool
}

type fixtureOpt func(*fixtureOpts)

func withPolicy(fn func(*PolicyConfig)) fixtureOpt {
	return func(o *fixtureOpts) { o.policy = fn }
}

func withoutAutoAdvance() fixtureOpt {
	return func(o *fixtureOpts) { o.autoAdvance = false }
}

func withBackend(fn func(*memory.Store) store.Backend) fixtureOpt {
	return func(o *fixtureOpts) { o.backend = fn }
}

// newFixture seeds the chain WGH(weighing) -> PRC(processing) -> FIL(filling) -> LBL(labelling)
// plus a standalone MIX(mixing) room, one operator per kind, and one item.
func newFixture(t *testing.T, opts ...fixtureOpt) *fixture {
	t.Helper()
	o := fixtureOpts{autoAdvance: true}
	for _, opt := range opts {
		opt(&o)
	}

	ctx := context.Background()
	mem := memory.New()
	clock := &fakeClock{t: time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)}

	f := &fixture{
		store: mem,
		rooms: map[string]*store.Room{},
		ops:   map[string]*store.Operator{},
		pub:   &recordingPublisher{},
		clock: clock,
	}

	chain := []struct {
		code string
		kind store.ProcessKind
	}{
		{"LBL", store.KindLabelling},
		{"FIL", store.KindFilling},
		{"PRC", store.KindProcessing},
		{"WGH", store.KindWeighing},
	}
	var next *uuid.UUID
	for _, c := range chain {
		r := &store.Room{ID: uuid.New(), Code: c.code, Name: c.code, Kind: c.kind, NextRoomID: next, CreatedAt: clock.now()}
		require.NoError(t, mem.CreateRoom(ctx, nil, r))
		f.rooms[c.code] = r
		id := r.ID
		next = &id
	}
	mix := &store.Room{ID: uuid.New(), Code: "MIX", Name: "MIX", Kind: store.KindMixing, CreatedAt: clock.now()}
	require.NoError(t, mem.CreateRoom(ctx, nil, mix))
	f.rooms["MIX"] = mix

	for _, op := range []store.Operator{
		{ID: uuid.New(), Name: "Weigher", Category: "Weighing"},
		{ID: uuid.New(), Name: "Labeller", Category: "Labelling"},
		{ID: uuid.New(), Name: "Filler", Category: "Filling"},
	} {
		op := op
		require.NoError(t, mem.CreateOperator(ctx, nil, &op))
		f.ops[op.Category] = &op
	}

	f.item = &store.Item{ID: uuid.New(), Description: "Paracetamol syrup", CreatedAt: clock.now()}
	require.NoError(t, mem.CreateItem(ctx, nil, f.item))

	cfg := DefaultPolicyConfig()
	cfg.EntryRoom = "WGH"
	cfg.ShadowTargetRoom = "LBL"
	if o.policy != nil {
		o.policy(&cfg)
	}
	policy, err := ResolvePolicy(ctx, mem, cfg)
	require.NoError(t, err)

	var backend store.Backend = mem
	if o.backend != nil {
		backend = o.backend(mem)
	}
	f.svc = NewService(backend, policy,
		WithPublisher(f.pub),
		WithClock(clock.now),
		WithAutoAdvance(o.autoAdvance),
	)
	return f
}

// newBatch creates a batch directly in the given room.
func (f *fixture) newBatch(t *testing.T, number, room string, target int) *store.Batch {
	t.Helper()
	roomID := f.rooms[room].ID
	b, err := f.svc.CreateBatch(context.Background(), CreateBatchInput{
		BatchNumber:    number,
		ItemID:         f.item.ID,
		TargetQuantity: target,
		Unit:           store.UnitKilogram,
		RoomID:         &roomID,
	})
	require.NoError(t, err)
	return b
}

func (f *fixture) packagingBatch(t *testing.T, number string, estimate *int) *store.Batch {
	t.Helper()
	roomID := f.rooms["LBL"].ID
	b, err := f.svc.CreateBatch(context.Background(), CreateBatchInput{
		BatchNumber:        number,
		ItemID:             f.item.ID,
		TargetQuantity:     100,
		Unit:               store.UnitPack,
		RoomID:             &roomID,
		EstimatedPackaging: estimate,
	})
	require.NoError(t, err)
	return b
}

func (f *fixture) get(t *testing.T, id uuid.UUID) *store.Batch {
	t.Helper()
	b, err := f.store.GetBatchByID(context.Background(), nil, id)
	require.NoError(t, err)
	return b
}

func (f *fixture) inRoom(t *testing.T, number, room string) (*store.Batch, bool) {
	t.Helper()
	b, err := f.store.FindBatchInRoom(context.Background(), nil, number, f.rooms[room].ID, false)
	if err != nil {
		require.ErrorIs(t, err, store.ErrNotFound)
		return nil, false
	}
	return b, true
}

func (f *fixture) history(t *testing.T, room string) []store.HistoryRecord {
	t.Helper()
	recs, err := f.store.ListHistory(context.Background(), f.rooms[room].ID, 100)
	require.NoError(t, err)
	return recs
}

func intPtr(n int) *int { return &n }
