package memorystore

import (
	"sync"
	"testing"
	"time"

	"tickscope/pkg/ibkr"

	"github.com/google/uuid"
)

var epoch = time.Date(2025, 6, 20, 14, 30, 0, 0, time.UTC)

func at(sec int) time.Time {
	return epoch.Add(time.Duration(sec) * time.Second)
}

func ibkrID(n int64) ibkr.ConID { return ibkr.ConID(n) }

func trade(conid int64, sec int) Trade {
	return Trade{ID: uuid.New(), ContractID: ibkrID(conid), Price: 100, Timestamp: at(sec)}
}

func quote(conid int64, sec int) Quote {
	bid := 99.5
	return Quote{ID: uuid.New(), ContractID: ibkrID(conid), Bid: &bid, Timestamp: at(sec)}
}

func volume(conid int64, sec int) VolumeTick {
	return VolumeTick{ID: uuid.New(), ContractID: ibkrID(conid), Volume: 1000, Timestamp: at(sec)}
}

// go test -v --run TestTrimRetentionWindow
func TestTrimRetentionWindow(t *testing.T) {
	store := NewSeriesStore(180 * time.Second)
	store.Append(Batch{
		Trades:  []Trade{trade(101, 0), trade(101, 200)},
		Quotes:  []Quote{quote(101, 0), quote(202, 200)},
		Volumes: []VolumeTick{volume(101, 0), volume(101, 200)},
	})

	removed := store.Trim(at(205), 180*time.Second)
	if removed != 3 {
		t.Errorf("expected 3 records removed, got %d", removed)
	}

	snap := store.Snapshot()
	if len(snap.Trades) != 1 || !snap.Trades[0].Timestamp.Equal(at(200)) {
		t.Errorf("unexpected trades after trim: %+v", snap.Trades)
	}
	if len(snap.Quotes) != 1 || snap.Quotes[0].ContractID != 202 {
		t.Errorf("unexpected quotes after trim: %+v", snap.Quotes)
	}
	if len(snap.Volumes) != 1 {
		t.Errorf("unexpected volumes after trim: %+v", snap.Volumes)
	}
}

// go test -v --run TestTrimKeepsBoundaryAndOrder
func TestTrimKeepsBoundaryAndOrder(t *testing.T) {
	store := NewSeriesStore(10 * time.Second)
	store.Append(Batch{Trades: []Trade{
		trade(1, 5),  // before cutoff
		trade(1, 10), // exactly at cutoff: kept
		trade(2, 3),  // before cutoff, interleaved
		trade(1, 15),
		trade(2, 12),
	}})

	store.Trim(at(20), 10*time.Second)

	snap := store.Snapshot()
	want := []int{10, 15, 12}
	if len(snap.Trades) != len(want) {
		t.Fatalf("expected %d trades, got %d", len(want), len(snap.Trades))
	}
	for i, sec := range want {
		if !snap.Trades[i].Timestamp.Equal(at(sec)) {
			t.Errorf("trade %d: got %s, want t=%d", i, snap.Trades[i].Timestamp, sec)
		}
	}
	cutoff := at(20).Add(-10 * time.Second)
	for _, tr := range snap.Trades {
		if tr.Timestamp.Before(cutoff) {
			t.Errorf("record older than cutoff survived: %s", tr.Timestamp)
		}
	}
}

// go test -v --run TestIngestUsesConfiguredRetention
func TestIngestUsesConfiguredRetention(t *testing.T) {
	store := NewSeriesStore(60 * time.Second)
	store.Append(Batch{Trades: []Trade{trade(1, 0)}})

	evicted := store.Ingest(Batch{Volumes: []VolumeTick{volume(1, 100)}}, at(100))
	if evicted != 1 {
		t.Errorf("expected stale trade evicted, got %d", evicted)
	}
	if tr, q, v := store.Counts(); tr != 0 || q != 0 || v != 1 {
		t.Errorf("unexpected counts %d/%d/%d", tr, q, v)
	}
}

// go test -v --run TestSnapshotIsolation
func TestSnapshotIsolation(t *testing.T) {
	store := NewSeriesStore(time.Hour)
	store.Append(Batch{Trades: []Trade{trade(1, 0), trade(1, 1)}})

	snap := store.Snapshot()
	store.Trim(at(3601), time.Hour)
	store.Append(Batch{Trades: []Trade{trade(1, 3601)}})

	if len(snap.Trades) != 2 || !snap.Trades[0].Timestamp.Equal(at(0)) {
		t.Errorf("snapshot changed after mutation: %+v", snap.Trades)
	}
}

// go test -v --run TestClearAll
func TestClearAll(t *testing.T) {
	store := NewSeriesStore(time.Hour)
	store.Append(Batch{Trades: []Trade{trade(1, 0)}, Quotes: []Quote{quote(1, 0)}, Volumes: []VolumeTick{volume(1, 0)}})
	store.ClearAll()
	if n := store.CountAll(); n != 0 {
		t.Errorf("expected empty store, got %d", n)
	}
}

// go test -v -race --run TestConcurrentSnapshotSeesWholeBatches
func TestConcurrentSnapshotSeesWholeBatches(t *testing.T) {
	store := NewSeriesStore(time.Hour)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			// every batch carries one trade and one quote
			store.Append(Batch{Trades: []Trade{trade(1, i)}, Quotes: []Quote{quote(1, i)}})
		}
	}()

	for i := 0; i < 500; i++ {
		snap := store.Snapshot()
		if len(snap.Trades) != len(snap.Quotes) {
			t.Fatalf("torn batch: %d trades vs %d quotes", len(snap.Trades), len(snap.Quotes))
		}
	}
	wg.Wait()
}

// go test -v --run TestForContract
func TestForContract(t *testing.T) {
	snap := Snapshot{
		Trades: []Trade{trade(101, 0), trade(202, 0)},
		Quotes: []Quote{quote(202, 0)},
	}
	got := snap.ForContract(101)
	if len(got.Trades) != 1 || len(got.Quotes) != 0 || len(got.Volumes) != 0 {
		t.Errorf("unexpected filter result: %+v", got)
	}
}
