package alerting

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"fuelwatch/internal/storage"
)

// minChange gates repeat alerts: the price must have dropped at least 1 %
// versus the last notified price before a subscriber hears again.
var minChange = decimal.NewFromFloat(0.01)

type sentRecord struct {
	day   string
	price int64
}

// DispatchState is the per-email alert throttle: at most one alert per
// calendar day, and only when the price moved enough since the last one.
// Entries are created on first trigger and never expire; the map is
// bounded by subscriber churn.
type DispatchState struct {
	mu   sync.Mutex
	sent map[string]sentRecord
}

// NewDispatchState constructs an empty throttle.
func NewDispatchState() *DispatchState {
	return &DispatchState{sent: make(map[string]sentRecord)}
}

// Claim atomically checks the throttle for the email and, when delivery is
// allowed, records it. Returns false when an alert already went out today
// or the price has not dropped 1 % since the last notified price.
func (s *DispatchState) Claim(email string, price int64, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	today := now.Format(storage.DayLayout)
	last, ok := s.sent[email]
	if ok {
		if last.day == today {
			return false
		}
		if last.price > 0 {
			drop := decimal.NewFromInt(last.price - price).
				Div(decimal.NewFromInt(last.price))
			if drop.LessThan(minChange) {
				return false
			}
		}
	}

	s.sent[email] = sentRecord{day: today, price: price}
	return true
}
