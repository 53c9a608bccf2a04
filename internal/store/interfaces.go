package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a looked-up row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateBatchInRoom is returned when a (batch number, room) pair is already taken.
	ErrDuplicateBatchInRoom = errors.New("batch number already present in room")

	// ErrConflict is returned for other unique constraint violations (room code, item description, ...).
	ErrConflict = errors.New("conflicting record")
)

// DBTransaction defines the methods shared by *sql.DB and *sql.Tx
// This allows us to pass either a connection pool or an active transaction to the repository methods.
type DBTransaction interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Tx is an open unit of work. Repository methods accept a nil Tx to run outside a transaction.
type Tx interface {
	Commit() error
	Rollback() error
}

// RoomStore persists the room graph.
type RoomStore interface {
	CreateRoom(ctx context.Context, tx Tx, room *Room) error
	GetRoomByID(ctx context.Context, tx Tx, id uuid.UUID) (*Room, error)
	GetRoomByCode(ctx context.Context, tx Tx, code string) (*Room, error)
	ListRooms(ctx context.Context) ([]Room, error)
}

// OperatorStore persists operators.
type OperatorStore interface {
	CreateOperator(ctx context.Context, tx Tx, op *Operator) error
	GetOperatorByID(ctx context.Context, tx Tx, id uuid.UUID) (*Operator, error)

	// FindOperatorByCategory returns the first operator (by name) whose category
	// matches keyword case-insensitively, or ErrNotFound.
	FindOperatorByCategory(ctx context.Context, tx Tx, keyword string) (*Operator, error)
	ListOperators(ctx context.Context) ([]Operator, error)
}

// ItemStore persists item descriptions.
type ItemStore interface {
	CreateItem(ctx context.Context, tx Tx, item *Item) error
	GetItemByID(ctx context.Context, tx Tx, id uuid.UUID) (*Item, error)
	ListItems(ctx context.Context, limit int) ([]Item, error)

	// ImportItems inserts the items whose description is not stored yet and
	// returns how many were inserted.
	ImportItems(ctx context.Context, tx Tx, items []Item) (int, error)
}

// BatchStore persists batch records.
type BatchStore interface {
	// CreateBatch inserts a record. Returns ErrDuplicateBatchInRoom if the
	// (batch number, room) pair is taken.
	CreateBatch(ctx context.Context, tx Tx, batch *Batch) error

	GetBatchByID(ctx context.Context, tx Tx, id uuid.UUID) (*Batch, error)

	// LockBatch reads a record and holds its row lock until tx ends.
	LockBatch(ctx context.Context, tx Tx, id uuid.UUID) (*Batch, error)

	// FindBatchInRoom returns the record for (batchNumber, roomID), locking it when forUpdate is set.
	FindBatchInRoom(ctx context.Context, tx Tx, batchNumber string, roomID uuid.UUID, forUpdate bool) (*Batch, error)

	// LatestBatchByNumber returns the most recently created record for batchNumber.
	LatestBatchByNumber(ctx context.Context, tx Tx, batchNumber string) (*Batch, error)

	BatchNumberExists(ctx context.Context, tx Tx, batchNumber string) (bool, error)

	// BatchNumberRejected reports whether any record for batchNumber, in any room,
	// carries the reject outcome.
	BatchNumberRejected(ctx context.Context, tx Tx, batchNumber string) (bool, error)

	// UpdateBatch writes back every mutable field of the record.
	UpdateBatch(ctx context.Context, tx Tx, batch *Batch) error

	ListBatches(ctx context.Context, filter BatchFilter) ([]Batch, error)

	// CountBatchesByStatus returns the number of records per status tag.
	CountBatchesByStatus(ctx context.Context) (map[StatusKind]int64, error)

	// ClaimDueWaiting locks up to limit Waiting records scheduled at or before now,
	// skipping rows locked by other transactions and rooms of the excluded kinds.
	ClaimDueWaiting(ctx context.Context, tx Tx, now time.Time, excludeKinds []ProcessKind, limit int) ([]Batch, error)
}

// HistoryStore persists completion snapshots.
type HistoryStore interface {
	// RecordHistory inserts the snapshot unless an identical key
	// (batch number, room, started, finished) exists. Reports whether a row was created.
	RecordHistory(ctx context.Context, tx Tx, rec *HistoryRecord) (bool, error)
	ListHistory(ctx context.Context, roomID uuid.UUID, limit int) ([]HistoryRecord, error)

	// PurgeHistory deletes records finished before the cutoff, or all records when before is nil.
	PurgeHistory(ctx context.Context, before *time.Time) (int64, error)
}

// IdempotencyStore persists request tokens.
type IdempotencyStore interface {
	// InsertToken records token and reports true, or reports false if it already exists.
	InsertToken(ctx context.Context, tx Tx, token *IdempotencyToken) (bool, error)
	DeleteTokensBefore(ctx context.Context, before time.Time) (int64, error)
}

// Backend is everything the lifecycle service and the controller need from storage.
type Backend interface {
	BeginTx(ctx context.Context) (Tx, error)
	Ping(ctx context.Context) error
	Close() error

	RoomStore
	OperatorStore
	ItemStore
	BatchStore
	HistoryStore
	IdempotencyStore
}
