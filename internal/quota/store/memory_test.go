package store

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryStoreStaleDateReadsAbsent(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	inserted, err := st.InsertIfAbsent(ctx, "user-1", "2025-06-01", 4, now)
	if err != nil || !inserted {
		t.Fatalf("insert: inserted=%v err=%v", inserted, err)
	}

	snap, err := st.ReadSnapshot(ctx, "user-1", "2025-06-02")
	if err != nil {
		t.Fatalf("read next day: %v", err)
	}
	if snap.Exists {
		t.Fatal("record from a previous date must read as absent")
	}

	// A new day's insert replaces the stale record.
	inserted, err = st.InsertIfAbsent(ctx, "user-1", "2025-06-02", 1, now.Add(24*time.Hour))
	if err != nil || !inserted {
		t.Fatalf("insert next day: inserted=%v err=%v", inserted, err)
	}
	snap, err = st.ReadSnapshot(ctx, "user-1", "2025-06-02")
	if err != nil || !snap.Exists || snap.Used != 1 {
		t.Fatalf("read after rollover insert: exists=%v used=%d err=%v", snap.Exists, snap.Used, err)
	}
}

func TestMemoryStoreConditionalUpdateStaleSnapshot(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if _, err := st.InsertIfAbsent(ctx, "user-1", "2025-06-01", 1, now); err != nil {
		t.Fatalf("insert: %v", err)
	}
	snap, err := st.ReadSnapshot(ctx, "user-1", "2025-06-01")
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	later := now.Add(time.Minute)
	updated, err := st.ConditionalUpdate(ctx, "user-1", "2025-06-01", snap, 2, later)
	if err != nil || !updated {
		t.Fatalf("first update: updated=%v err=%v", updated, err)
	}

	updated, err = st.ConditionalUpdate(ctx, "user-1", "2025-06-01", snap, 3, later)
	if err != nil {
		t.Fatalf("stale update: %v", err)
	}
	if updated {
		t.Fatal("update against a stale snapshot must be rejected")
	}
}

func TestMemoryStoreSnapshotIsolation(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if _, err := st.InsertIfAbsent(ctx, "user-1", "2025-06-01", 1, now); err != nil {
		t.Fatalf("insert: %v", err)
	}
	snap, err := st.ReadSnapshot(ctx, "user-1", "2025-06-01")
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	// Mutating the returned snapshot must not leak into the store.
	*snap.LastChargeAt = snap.LastChargeAt.Add(time.Hour)

	fresh, err := st.ReadSnapshot(ctx, "user-1", "2025-06-01")
	if err != nil {
		t.Fatalf("re-read: %v", err)
	}
	if !fresh.LastChargeAt.Equal(now) {
		t.Fatal("snapshot must be a copy of the stored record")
	}
}

func TestMemoryStoreConcurrentInsert(t *testing.T) {
	st := NewMemoryStore()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	const workers = 30
	inserted := make(chan bool, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := st.InsertIfAbsent(context.Background(), "user-1", "2025-06-01", 1, now)
			if err != nil {
				t.Errorf("insert: %v", err)
				return
			}
			inserted <- ok
		}()
	}
	wg.Wait()
	close(inserted)

	wins := 0
	for ok := range inserted {
		if ok {
			wins++
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one insert winner, got %d", wins)
	}
}
