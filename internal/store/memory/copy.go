package memory

import "prodflow/internal/store"

// Stored values must not share pointer fields with caller-owned structs.

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyRoom(r store.Room) store.Room {
	r.NextRoomID = copyPtr(r.NextRoomID)
	return r
}

func copyItem(it store.Item) store.Item {
	it.Barcode = copyPtr(it.Barcode)
	return it
}

func copyBatch(b store.Batch) store.Batch {
	b.Status.RoomID = copyPtr(b.Status.RoomID)
	b.EstimatedPackaging = copyPtr(b.EstimatedPackaging)
	b.PackagingCount = copyPtr(b.PackagingCount)
	b.PackagingUnit = copyPtr(b.PackagingUnit)
	b.OperatorID = copyPtr(b.OperatorID)
	b.ScheduledAt = copyPtr(b.ScheduledAt)
	b.StartedAt = copyPtr(b.StartedAt)
	b.FinishedAt = copyPtr(b.FinishedAt)
	return b
}

func copyHistory(r store.HistoryRecord) store.HistoryRecord {
	r.OperatorID = copyPtr(r.OperatorID)
	return r
}
