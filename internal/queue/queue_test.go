package queue

import (
	"fmt"
	"testing"

	"github.com/rs/zerolog"

	"fuelwatch/internal/storage"
)

func rec(fuelType string) storage.PriceRecord {
	return storage.PriceRecord{FuelType: fuelType, Price: 150}
}

func TestQueueFIFO(t *testing.T) {
	q := New(8, zerolog.Nop())

	for _, ft := range []string{"U91", "U95", "Diesel"} {
		q.Enqueue(rec(ft))
	}
	if q.Len() != 3 {
		t.Fatalf("len: want 3 got %d", q.Len())
	}

	drained := q.Drain()
	if len(drained) != 3 {
		t.Fatalf("drain: want 3 got %d", len(drained))
	}
	for i, want := range []string{"U91", "U95", "Diesel"} {
		if drained[i].FuelType != want {
			t.Fatalf("order broken at %d: want %s got %s", i, want, drained[i].FuelType)
		}
	}

	if q.Drain() != nil {
		t.Fatal("a drained queue is empty")
	}
	if q.Len() != 0 {
		t.Fatalf("len after drain: got %d", q.Len())
	}
}

func TestQueueEvictsOldest(t *testing.T) {
	q := New(4, zerolog.Nop())

	for i := 0; i < 6; i++ {
		q.Enqueue(rec(fmt.Sprintf("F%d", i)))
	}
	if q.Len() != 4 {
		t.Fatalf("queue must stay at capacity: got %d", q.Len())
	}

	drained := q.Drain()
	for i, want := range []string{"F2", "F3", "F4", "F5"} {
		if drained[i].FuelType != want {
			t.Fatalf("eviction order broken at %d: want %s got %s", i, want, drained[i].FuelType)
		}
	}
}
