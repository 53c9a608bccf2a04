// Package memory is an in-process store.Backend used for local development and tests.
//
// Transactions are serialized: BeginTx takes the single writer slot and works on a
// private copy of the state, which Commit swaps in. Readers outside a transaction
// always see the last committed state.
package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"prodflow/internal/store"

	"github.com/google/uuid"
)

var _ store.Backend = (*Store)(nil)

// ErrTxDone is returned when a finished transaction is committed again.
var ErrTxDone = errors.New("memory: transaction has already been committed or rolled back")

type historyKey struct {
	batchNumber string
	roomID      uuid.UUID
	started     int64
	finished    int64
}

type state struct {
	rooms     map[uuid.UUID]store.Room
	operators map[uuid.UUID]store.Operator
	items     map[uuid.UUID]store.Item
	batches   map[uuid.UUID]store.Batch
	batchSeq  map[uuid.UUID]int64
	history   []store.HistoryRecord
	historyIx map[historyKey]struct{}
	tokens    map[string]store.IdempotencyToken

	nextSeq       int64
	nextHistoryID int64
}

func newState() *state {
	return &state{
		rooms:     make(map[uuid.UUID]store.Room),
		operators: make(map[uuid.UUID]store.Operator),
		items:     make(map[uuid.UUID]store.Item),
		batches:   make(map[uuid.UUID]store.Batch),
		batchSeq:  make(map[uuid.UUID]int64),
		historyIx: make(map[historyKey]struct{}),
		tokens:    make(map[string]store.IdempotencyToken),
	}
}

func (st *state) clone() *state {
	c := &state{
		rooms:         make(map[uuid.UUID]store.Room, len(st.rooms)),
		operators:     make(map[uuid.UUID]store.Operator, len(st.operators)),
		items:         make(map[uuid.UUID]store.Item, len(st.items)),
		batches:       make(map[uuid.UUID]store.Batch, len(st.batches)),
		batchSeq:      make(map[uuid.UUID]int64, len(st.batchSeq)),
		history:       append([]store.HistoryRecord(nil), st.history...),
		historyIx:     make(map[historyKey]struct{}, len(st.historyIx)),
		tokens:        make(map[string]store.IdempotencyToken, len(st.tokens)),
		nextSeq:       st.nextSeq,
		nextHistoryID: st.nextHistoryID,
	}
	for k, v := range st.rooms {
		c.rooms[k] = v
	}
	for k, v := range st.operators {
		c.operators[k] = v
	}
	for k, v := range st.items {
		c.items[k] = v
	}
	for k, v := range st.batches {
		c.batches[k] = v
	}
	for k, v := range st.batchSeq {
		c.batchSeq[k] = v
	}
	for k := range st.historyIx {
		c.historyIx[k] = struct{}{}
	}
	for k, v := range st.tokens {
		c.tokens[k] = v
	}
	return c
}

// Store implements store.Backend in memory.
type Store struct {
	// writer slot, held by an open transaction or a single untransacted write
	sem chan struct{}

	mu sync.RWMutex
	st *state

	closed bool
}

// New returns an empty store.
func New() *Store {
	return &Store{
		sem: make(chan struct{}, 1),
		st:  newState(),
	}
}

type tx struct {
	s    *Store
	st   *state
	done bool
}

func (t *tx) Commit() error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	t.s.mu.Lock()
	t.s.st = t.st
	t.s.mu.Unlock()
	<-t.s.sem
	return nil
}

func (t *tx) Rollback() error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	<-t.s.sem
	return nil
}

// BeginTx waits for the writer slot or for ctx to end.
func (s *Store) BeginTx(ctx context.Context) (store.Tx, error) {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	s.mu.RLock()
	st := s.st.clone()
	s.mu.RUnlock()
	return &tx{s: s, st: st}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errors.New("memory: store closed")
	}
	return ctx.Err()
}

func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// read runs fn against the transaction's view, or the committed state when tx is nil.
func (s *Store) read(t store.Tx, fn func(st *state) error) error {
	if mt, ok := t.(*tx); ok && mt != nil {
		return fn(mt.st)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.st)
}

// write runs fn against the transaction's view. Without a transaction it takes the
// writer slot and applies fn to a copy, publishing it only when fn succeeds.
func (s *Store) write(ctx context.Context, t store.Tx, fn func(st *state) error) error {
	if mt, ok := t.(*tx); ok && mt != nil {
		if mt.done {
			return ErrTxDone
		}
		return fn(mt.st)
	}
	nt, err := s.BeginTx(ctx)
	if err != nil {
		return err
	}
	if err := fn(nt.(*tx).st); err != nil {
		nt.Rollback()
		return err
	}
	return nt.Commit()
}

// Rooms

func (s *Store) CreateRoom(ctx context.Context, t store.Tx, room *store.Room) error {
	return s.write(ctx, t, func(st *state) error {
		for _, r := range st.rooms {
			if r.Code == room.Code || r.Name == room.Name {
				return store.ErrConflict
			}
		}
		st.rooms[room.ID] = copyRoom(*room)
		return nil
	})
}

func (s *Store) GetRoomByID(ctx context.Context, t store.Tx, id uuid.UUID) (*store.Room, error) {
	var out *store.Room
	err := s.read(t, func(st *state) error {
		r, ok := st.rooms[id]
		if !ok {
			return store.ErrNotFound
		}
		c := copyRoom(r)
		out = &c
		return nil
	})
	return out, err
}

func (s *Store) GetRoomByCode(ctx context.Context, t store.Tx, code string) (*store.Room, error) {
	var out *store.Room
	err := s.read(t, func(st *state) error {
		for _, r := range st.rooms {
			if r.Code == code {
				c := copyRoom(r)
				out = &c
				return nil
			}
		}
		return store.ErrNotFound
	})
	return out, err
}

func (s *Store) ListRooms(ctx context.Context) ([]store.Room, error) {
	var rooms []store.Room
	err := s.read(nil, func(st *state) error {
		for _, r := range st.rooms {
			rooms = append(rooms, copyRoom(r))
		}
		return nil
	})
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].Code < rooms[j].Code })
	return rooms, err
}

// Operators

func (s *Store) CreateOperator(ctx context.Context, t store.Tx, op *store.Operator) error {
	return s.write(ctx, t, func(st *state) error {
		for _, o := range st.operators {
			if o.Name == op.Name {
				return store.ErrConflict
			}
		}
		st.operators[op.ID] = *op
		return nil
	})
}

func (s *Store) GetOperatorByID(ctx context.Context, t store.Tx, id uuid.UUID) (*store.Operator, error) {
	var out *store.Operator
	err := s.read(t, func(st *state) error {
		o, ok := st.operators[id]
		if !ok {
			return store.ErrNotFound
		}
		out = &o
		return nil
	})
	return out, err
}

// FindOperatorByCategory prefers exact category matches over containment, then name order.
func (s *Store) FindOperatorByCategory(ctx context.Context, t store.Tx, keyword string) (*store.Operator, error) {
	var out *store.Operator
	err := s.read(t, func(st *state) error {
		var candidates []store.Operator
		for _, o := range st.operators {
			if o.MatchesCategory(keyword) {
				candidates = append(candidates, o)
			}
		}
		if len(candidates) == 0 {
			return store.ErrNotFound
		}
		k := strings.ToLower(keyword)
		sort.Slice(candidates, func(i, j int) bool {
			ei := strings.ToLower(candidates[i].Category) == k
			ej := strings.ToLower(candidates[j].Category) == k
			if ei != ej {
				return ei
			}
			return candidates[i].Name < candidates[j].Name
		})
		out = &candidates[0]
		return nil
	})
	return out, err
}

func (s *Store) ListOperators(ctx context.Context) ([]store.Operator, error) {
	var ops []store.Operator
	err := s.read(nil, func(st *state) error {
		for _, o := range st.operators {
			ops = append(ops, o)
		}
		return nil
	})
	sort.Slice(ops, func(i, j int) bool { return ops[i].Name < ops[j].Name })
	return ops, err
}

// Items

func itemConflicts(st *state, item *store.Item) bool {
	for _, it := range st.items {
		if it.Description == item.Description {
			return true
		}
		if it.Barcode != nil && item.Barcode != nil && *it.Barcode == *item.Barcode {
			return true
		}
	}
	return false
}

func (s *Store) CreateItem(ctx context.Context, t store.Tx, item *store.Item) error {
	return s.write(ctx, t, func(st *state) error {
		if itemConflicts(st, item) {
			return store.ErrConflict
		}
		st.items[item.ID] = copyItem(*item)
		return nil
	})
}

func (s *Store) GetItemByID(ctx context.Context, t store.Tx, id uuid.UUID) (*store.Item, error) {
	var out *store.Item
	err := s.read(t, func(st *state) error {
		it, ok := st.items[id]
		if !ok {
			return store.ErrNotFound
		}
		c := copyItem(it)
		out = &c
		return nil
	})
	return out, err
}

func (s *Store) ListItems(ctx context.Context, limit int) ([]store.Item, error) {
	var items []store.Item
	err := s.read(nil, func(st *state) error {
		for _, it := range st.items {
			items = append(items, copyItem(it))
		}
		return nil
	})
	sort.Slice(items, func(i, j int) bool { return items[i].Description < items[j].Description })
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, err
}

func (s *Store) ImportItems(ctx context.Context, t store.Tx, items []store.Item) (int, error) {
	inserted := 0
	err := s.write(ctx, t, func(st *state) error {
		for i := range items {
			if itemConflicts(st, &items[i]) {
				continue
			}
			st.items[items[i].ID] = copyItem(items[i])
			inserted++
		}
		return nil
	})
	return inserted, err
}

// Batches

func (s *Store) CreateBatch(ctx context.Context, t store.Tx, b *store.Batch) error {
	return s.write(ctx, t, func(st *state) error {
		for _, existing := range st.batches {
			if existing.BatchNumber == b.BatchNumber && existing.RoomID == b.RoomID {
				return store.ErrDuplicateBatchInRoom
			}
		}
		st.nextSeq++
		st.batches[b.ID] = copyBatch(*b)
		st.batchSeq[b.ID] = st.nextSeq
		return nil
	})
}

func (s *Store) GetBatchByID(ctx context.Context, t store.Tx, id uuid.UUID) (*store.Batch, error) {
	var out *store.Batch
	err := s.read(t, func(st *state) error {
		b, ok := st.batches[id]
		if !ok {
			return store.ErrNotFound
		}
		c := copyBatch(b)
		out = &c
		return nil
	})
	return out, err
}

// LockBatch is a plain read: holding the transaction already excludes other writers.
func (s *Store) LockBatch(ctx context.Context, t store.Tx, id uuid.UUID) (*store.Batch, error) {
	return s.GetBatchByID(ctx, t, id)
}

func (s *Store) FindBatchInRoom(ctx context.Context, t store.Tx, batchNumber string, roomID uuid.UUID, forUpdate bool) (*store.Batch, error) {
	var out *store.Batch
	err := s.read(t, func(st *state) error {
		for _, b := range st.batches {
			if b.BatchNumber == batchNumber && b.RoomID == roomID {
				c := copyBatch(b)
				out = &c
				return nil
			}
		}
		return store.ErrNotFound
	})
	return out, err
}

func (s *Store) LatestBatchByNumber(ctx context.Context, t store.Tx, batchNumber string) (*store.Batch, error) {
	var out *store.Batch
	err := s.read(t, func(st *state) error {
		var best int64 = -1
		for id, b := range st.batches {
			if b.BatchNumber != batchNumber {
				continue
			}
			if seq := st.batchSeq[id]; seq > best {
				best = seq
				c := copyBatch(b)
				out = &c
			}
		}
		if out == nil {
			return store.ErrNotFound
		}
		return nil
	})
	return out, err
}

func (s *Store) BatchNumberExists(ctx context.Context, t store.Tx, batchNumber string) (bool, error) {
	exists := false
	err := s.read(t, func(st *state) error {
		for _, b := range st.batches {
			if b.BatchNumber == batchNumber {
				exists = true
				break
			}
		}
		return nil
	})
	return exists, err
}

func (s *Store) BatchNumberRejected(ctx context.Context, t store.Tx, batchNumber string) (bool, error) {
	rejected := false
	err := s.read(t, func(st *state) error {
		for _, b := range st.batches {
			if b.BatchNumber == batchNumber && b.Outcome == store.OutcomeReject {
				rejected = true
				break
			}
		}
		return nil
	})
	return rejected, err
}

func (s *Store) UpdateBatch(ctx context.Context, t store.Tx, b *store.Batch) error {
	return s.write(ctx, t, func(st *state) error {
		if _, ok := st.batches[b.ID]; !ok {
			return store.ErrNotFound
		}
		for id, other := range st.batches {
			if id != b.ID && other.BatchNumber == b.BatchNumber && other.RoomID == b.RoomID {
				return store.ErrDuplicateBatchInRoom
			}
		}
		st.batches[b.ID] = copyBatch(*b)
		return nil
	})
}

// ListBatches returns newest records first.
func (s *Store) ListBatches(ctx context.Context, filter store.BatchFilter) ([]store.Batch, error) {
	type ranked struct {
		b   store.Batch
		seq int64
	}
	var matched []ranked
	err := s.read(nil, func(st *state) error {
		for id, b := range st.batches {
			if filter.RoomID != nil && b.RoomID != *filter.RoomID {
				continue
			}
			if filter.BatchNumber != "" && b.BatchNumber != filter.BatchNumber {
				continue
			}
			if len(filter.Statuses) > 0 && !hasStatus(filter.Statuses, b.Status.Kind) {
				continue
			}
			matched = append(matched, ranked{b: copyBatch(b), seq: st.batchSeq[id]})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].seq > matched[j].seq })

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if len(matched) > limit {
		matched = matched[:limit]
	}
	out := make([]store.Batch, len(matched))
	for i, m := range matched {
		out[i] = m.b
	}
	return out, nil
}

func (s *Store) CountBatchesByStatus(ctx context.Context) (map[store.StatusKind]int64, error) {
	counts := make(map[store.StatusKind]int64)
	err := s.read(nil, func(st *state) error {
		for _, b := range st.batches {
			counts[b.Status.Kind]++
		}
		return nil
	})
	return counts, err
}

func (s *Store) ClaimDueWaiting(ctx context.Context, t store.Tx, now time.Time, excludeKinds []store.ProcessKind, limit int) ([]store.Batch, error) {
	if limit <= 0 {
		limit = 1
	}
	var due []store.Batch
	err := s.read(t, func(st *state) error {
		for _, b := range st.batches {
			if !b.Status.Is(store.StatusWaiting) || b.ScheduledAt == nil || b.ScheduledAt.After(now) {
				continue
			}
			if room, ok := st.rooms[b.RoomID]; ok && hasKind(excludeKinds, room.Kind) {
				continue
			}
			due = append(due, copyBatch(b))
		}
		return nil
	})
	sort.Slice(due, func(i, j int) bool { return due[i].ScheduledAt.Before(*due[j].ScheduledAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	return due, err
}

// History

func (s *Store) RecordHistory(ctx context.Context, t store.Tx, rec *store.HistoryRecord) (bool, error) {
	created := false
	err := s.write(ctx, t, func(st *state) error {
		key := historyKey{
			batchNumber: rec.BatchNumber,
			roomID:      rec.RoomID,
			started:     rec.StartedAt.UnixNano(),
			finished:    rec.FinishedAt.UnixNano(),
		}
		if _, ok := st.historyIx[key]; ok {
			return nil
		}
		st.nextHistoryID++
		rec.ID = st.nextHistoryID
		st.history = append(st.history, copyHistory(*rec))
		st.historyIx[key] = struct{}{}
		created = true
		return nil
	})
	return created, err
}

// ListHistory returns the most recent completions in a room.
func (s *Store) ListHistory(ctx context.Context, roomID uuid.UUID, limit int) ([]store.HistoryRecord, error) {
	var records []store.HistoryRecord
	err := s.read(nil, func(st *state) error {
		for _, r := range st.history {
			if r.RoomID == roomID {
				records = append(records, copyHistory(r))
			}
		}
		return nil
	})
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].FinishedAt.Equal(records[j].FinishedAt) {
			return records[i].FinishedAt.After(records[j].FinishedAt)
		}
		return records[i].ID > records[j].ID
	})
	if limit <= 0 {
		limit = 100
	}
	if len(records) > limit {
		records = records[:limit]
	}
	return records, err
}

func (s *Store) PurgeHistory(ctx context.Context, before *time.Time) (int64, error) {
	var deleted int64
	err := s.write(ctx, nil, func(st *state) error {
		kept := st.history[:0:0]
		for _, r := range st.history {
			if before == nil || r.FinishedAt.Before(*before) {
				delete(st.historyIx, historyKey{r.BatchNumber, r.RoomID, r.StartedAt.UnixNano(), r.FinishedAt.UnixNano()})
				deleted++
				continue
			}
			kept = append(kept, r)
		}
		st.history = kept
		return nil
	})
	return deleted, err
}

// Idempotency

func (s *Store) InsertToken(ctx context.Context, t store.Tx, token *store.IdempotencyToken) (bool, error) {
	isNew := false
	err := s.write(ctx, t, func(st *state) error {
		if _, ok := st.tokens[token.Token]; ok {
			return nil
		}
		st.tokens[token.Token] = *token
		isNew = true
		return nil
	})
	return isNew, err
}

func (s *Store) DeleteTokensBefore(ctx context.Context, before time.Time) (int64, error) {
	var deleted int64
	err := s.write(ctx, nil, func(st *state) error {
		for k, tok := range st.tokens {
			if tok.CreatedAt.Before(before) {
				delete(st.tokens, k)
				deleted++
			}
		}
		return nil
	})
	return deleted, err
}

func hasStatus(list []store.StatusKind, k store.StatusKind) bool {
	for _, s := range list {
		if s == k {
			return true
		}
	}
	return false
}

func hasKind(list []store.ProcessKind, k store.ProcessKind) bool {
	for _, pk := range list {
		if pk == k {
			return true
		}
	}
	return false
}
