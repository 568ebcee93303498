package storage

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(Options{
		Dir:         t.TempDir(),
		HistoryFile: "data.json",
		DailyFile:   "fuel_prices.json",
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return store
}

func testRecord(fuelType string, price int64, at time.Time) PriceRecord {
	return PriceRecord{
		FuelType:  fuelType,
		Price:     price,
		Station:   "Test Station",
		Suburb:    "Testville",
		State:     "QLD",
		Postcode:  "4000",
		Timestamp: NewTimestamp(at),
	}
}

func TestMergeDailyIdempotent(t *testing.T) {
	store := newTestStore(t)
	rec := testRecord("U91", 150, time.Now())

	changed, err := store.MergeDaily(rec)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if !changed {
		t.Fatal("first merge should report a change")
	}

	changed, err = store.MergeDaily(rec)
	if err != nil {
		t.Fatalf("second merge: %v", err)
	}
	if changed {
		t.Fatal("merging an identical candidate twice must be a no-op")
	}

	daily := store.Daily("U91")
	if len(daily) != 1 {
		t.Fatalf("expected 1 daily record, got %d", len(daily))
	}
}

func TestMergeDailyKeepsMinimum(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()

	prices := []int64{150, 145, 148, 140, 160}
	for _, p := range prices {
		rec := testRecord("U91", p, now)
		if err := store.RecordFull(rec); err != nil {
			t.Fatalf("record full: %v", err)
		}
		if _, err := store.MergeDaily(rec); err != nil {
			t.Fatalf("merge: %v", err)
		}
	}

	daily := store.Daily("U91")
	if len(daily) != 1 {
		t.Fatalf("expected exactly one daily entry, got %d", len(daily))
	}
	if daily[0].Price != 140 {
		t.Fatalf("daily minimum should be 140, got %d", daily[0].Price)
	}

	history := store.History("U91", time.Time{})
	if len(history) != len(prices) {
		t.Fatalf("full history should keep every record: want %d got %d", len(prices), len(history))
	}
	for _, rec := range history {
		if daily[0].Price > rec.Price {
			t.Fatalf("daily minimum %d exceeds ingested price %d", daily[0].Price, rec.Price)
		}
	}
}

func TestMergeDailySeparateDays(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()

	for i := 0; i < 3; i++ {
		rec := testRecord("U91", 150, now.AddDate(0, 0, -i))
		if _, err := store.MergeDaily(rec); err != nil {
			t.Fatalf("merge: %v", err)
		}
	}

	if got := len(store.Daily("U91")); got != 3 {
		t.Fatalf("expected one entry per day, got %d", got)
	}
}

func TestMergeDailyPreservesRecentLastSent(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()
	store.now = func() time.Time { return now }

	existing := testRecord("U91", 150, now)
	stamp := NewTimestamp(now.AddDate(0, 0, -3))
	existing.LastSent = &stamp
	if _, err := store.MergeDaily(existing); err != nil {
		t.Fatalf("seed merge: %v", err)
	}

	changed, err := store.MergeDaily(testRecord("U91", 145, now))
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if !changed {
		t.Fatal("cheaper candidate should replace the entry")
	}

	daily := store.Daily("U91")
	if daily[0].LastSent == nil {
		t.Fatal("last_sent within 7 days must survive the replacement")
	}
	if !daily[0].LastSent.Equal(stamp.Time) {
		t.Fatalf("last_sent changed: want %v got %v", stamp.Time, daily[0].LastSent.Time)
	}
}

func TestMergeDailyDropsStaleLastSent(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()
	store.now = func() time.Time { return now }

	existing := testRecord("U91", 150, now)
	stamp := NewTimestamp(now.AddDate(0, 0, -8))
	existing.LastSent = &stamp
	if _, err := store.MergeDaily(existing); err != nil {
		t.Fatalf("seed merge: %v", err)
	}

	if _, err := store.MergeDaily(testRecord("U91", 145, now)); err != nil {
		t.Fatalf("merge: %v", err)
	}

	if store.Daily("U91")[0].LastSent != nil {
		t.Fatal("last_sent older than 7 days must not carry over")
	}
}

func TestStoreReload(t *testing.T) {
	dir := t.TempDir()
	opts := Options{Dir: dir, HistoryFile: "data.json", DailyFile: "fuel_prices.json"}

	store, err := Open(opts, zerolog.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	rec := testRecord("U91", 142, time.Now())
	if err := store.RecordFull(rec); err != nil {
		t.Fatalf("record full: %v", err)
	}
	if _, err := store.MergeDaily(rec); err != nil {
		t.Fatalf("merge: %v", err)
	}

	reloaded, err := Open(opts, zerolog.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got := len(reloaded.History("U91", time.Time{})); got != 1 {
		t.Fatalf("history not persisted: got %d records", got)
	}
	daily := reloaded.Daily("U91")
	if len(daily) != 1 || daily[0].Price != 142 {
		t.Fatalf("daily minima not persisted: %#v", daily)
	}
}

func TestStampLastSent(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()

	old := testRecord("U91", 150, now.AddDate(0, 0, -1))
	newest := testRecord("U91", 148, now)
	for _, rec := range []PriceRecord{old, newest} {
		if _, err := store.MergeDaily(rec); err != nil {
			t.Fatalf("merge: %v", err)
		}
	}

	if err := store.StampLastSent(now); err != nil {
		t.Fatalf("stamp: %v", err)
	}

	for _, rec := range store.Daily("U91") {
		if rec.Day() == newest.Day() {
			if rec.LastSent == nil {
				t.Fatal("newest record should carry the digest stamp")
			}
		} else if rec.LastSent != nil {
			t.Fatal("older records must not be stamped")
		}
	}
}

func TestLatestPrices(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()

	for i, p := range []int64{150, 148, 145} {
		rec := testRecord("U91", p, now.AddDate(0, 0, -2+i))
		if _, err := store.MergeDaily(rec); err != nil {
			t.Fatalf("merge: %v", err)
		}
	}
	if _, err := store.MergeDaily(testRecord("Diesel", 170, now)); err != nil {
		t.Fatalf("merge diesel: %v", err)
	}

	prices := store.LatestPrices()
	if prices["U91"] != 145 {
		t.Fatalf("latest U91 should be 145, got %d", prices["U91"])
	}
	if prices["Diesel"] != 170 {
		t.Fatalf("latest Diesel should be 170, got %d", prices["Diesel"])
	}
}
