package storage

import (
	"time"
)

// TimeLayout is the timestamp format used inside the persisted documents.
// The historical data files already use it, so it stays.
const TimeLayout = "2006-01-02 15:04:05"

// DayLayout identifies a calendar day.
const DayLayout = "2006-01-02"

// Timestamp marshals as TimeLayout instead of RFC 3339.
type Timestamp struct {
	time.Time
}

// NewTimestamp truncates t to second precision.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{t.Truncate(time.Second)}
}

// MarshalJSON renders the timestamp in the document layout.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.Format(TimeLayout) + `"`), nil
}

// UnmarshalJSON parses the document layout.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	raw := string(data)
	if len(raw) >= 2 && raw[0] == '"' && raw[len(raw)-1] == '"' {
		raw = raw[1 : len(raw)-1]
	}
	parsed, err := time.ParseInLocation(TimeLayout, raw, time.Local)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

// Day returns the calendar day the timestamp falls on.
func (t Timestamp) Day() string {
	return t.Format(DayLayout)
}

// PriceRecord is one observed price: the cheapest station for a fuel type
// at ingestion time. Immutable once written except for LastSent, which the
// weekly digest loop stamps in place.
type PriceRecord struct {
	FuelType  string     `json:"type"`
	Price     int64      `json:"price"`
	Station   string     `json:"name"`
	Suburb    string     `json:"suburb"`
	State     string     `json:"state"`
	Postcode  string     `json:"postcode"`
	Timestamp Timestamp  `json:"timestamp"`
	LastSent  *Timestamp `json:"last_sent,omitempty"`
}

// Day returns the calendar day of the record.
func (r PriceRecord) Day() string {
	return r.Timestamp.Day()
}

// Method selects how an alert rule is evaluated. The set is closed:
// anything outside it evaluates to "never triggers" rather than erroring,
// so a stale rule in the subscriptions document cannot break dispatch.
type Method string

const (
	MethodMovingAverage Method = "moving_average"
	MethodLowest        Method = "lowest"
	MethodFixed         Method = "fixed"
)

// AlertRule is a single subscriber-configured alert condition.
type AlertRule struct {
	FuelType  string `json:"fuel_type"`
	Method    Method `json:"method"`
	Threshold int64  `json:"threshold,omitempty"`
	Window    int    `json:"ma_window,omitempty"`
}

// SubscriberInfo holds per-subscriber delivery bookkeeping. Alert throttle
// state deliberately does not live here; see alerting.DispatchState.
type SubscriberInfo struct {
	WeeklyLastSent *Timestamp `json:"weekly_last_sent,omitempty"`
}
