package metrics

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func newTestStore() *Store {
	return NewStore(prometheus.NewRegistry())
}

func TestRecordToolCall(t *testing.T) {
	store := newTestStore()

	store.RecordToolCall("s1", "db_query", true, 120*time.Millisecond)
	store.RecordToolCall("s1", "db_query", false, 30*time.Millisecond)
	store.RecordToolCall("s2", "fs_read", true, 10*time.Millisecond)

	snap := store.Snapshot()
	if snap.TotalToolCalls != 3 {
		t.Errorf("expected 3 tool calls, got %d", snap.TotalToolCalls)
	}
	dbq := snap.Tools["db_query"]
	if dbq.Count != 2 || dbq.Successes != 1 || dbq.Errors != 1 {
		t.Errorf("unexpected db_query metrics: %+v", dbq)
	}
	if dbq.TotalDurationMS != 150 {
		t.Errorf("expected 150ms total, got %d", dbq.TotalDurationMS)
	}
	if len(snap.RecentSessions) != 2 {
		t.Errorf("expected 2 recent sessions, got %d", len(snap.RecentSessions))
	}
	if snap.RecentSessions[0].SessionID != "s2" {
		t.Errorf("expected most recent session first, got %s", snap.RecentSessions[0].SessionID)
	}
}

func TestRecentSessionsBounded(t *testing.T) {
	store := newTestStore()
	for i := 0; i < recentSessionCap+20; i++ {
		store.RecordToolCall(fmt.Sprintf("session-%d", i), "fs_read", true, time.Millisecond)
	}
	snap := store.Snapshot()
	if len(snap.RecentSessions) != recentSessionCap {
		t.Errorf("expected cap of %d, got %d", recentSessionCap, len(snap.RecentSessions))
	}
	if snap.RecentSessions[0].SessionID != fmt.Sprintf("session-%d", recentSessionCap+19) {
		t.Errorf("expected newest session first, got %s", snap.RecentSessions[0].SessionID)
	}
}

func TestReset(t *testing.T) {
	store := newTestStore()
	store.RecordRequest()
	store.RecordToolCall("s1", "db_query", true, time.Millisecond)

	store.Reset()

	snap := store.Snapshot()
	if snap.TotalRequests != 0 || snap.TotalToolCalls != 0 || len(snap.Tools) != 0 || len(snap.RecentSessions) != 0 {
		t.Errorf("expected empty snapshot after reset: %+v", snap)
	}
}

func TestConcurrentWriters(t *testing.T) {
	store := newTestStore()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				store.RecordToolCall(fmt.Sprintf("s%d", n), "git_status", j%2 == 0, time.Millisecond)
			}
		}(i)
	}
	wg.Wait()

	snap := store.Snapshot()
	if snap.TotalToolCalls != 1000 {
		t.Errorf("expected 1000 calls, got %d", snap.TotalToolCalls)
	}
	gs := snap.Tools["git_status"]
	if gs.Successes != 500 || gs.Errors != 500 {
		t.Errorf("unexpected outcome split: %+v", gs)
	}
}
