package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// lastSentCarryOver is how long a last_sent stamp survives a daily-minima
// replacement. A cheaper price on the same day must not reset the weekly
// digest cadence.
const lastSentCarryOver = 7 * 24 * time.Hour

// Options locate the persisted price documents.
type Options struct {
	Dir         string
	HistoryFile string
	DailyFile   string
}

// Store owns the full price history and the daily-minima table. Both are
// whole JSON documents on disk; the in-memory copy is authoritative within
// the process and every mutation rewrites the document atomically.
type Store struct {
	mu      sync.Mutex
	history []PriceRecord
	daily   []PriceRecord

	historyPath string
	dailyPath   string

	now    func() time.Time
	logger zerolog.Logger
}

// Open loads the price documents, creating empty ones in memory when the
// files do not exist yet.
func Open(opts Options, logger zerolog.Logger) (*Store, error) {
	if opts.HistoryFile == "" || opts.DailyFile == "" {
		return nil, errors.New("storage: history and daily file names are required")
	}

	s := &Store{
		historyPath: filepath.Join(opts.Dir, opts.HistoryFile),
		dailyPath:   filepath.Join(opts.Dir, opts.DailyFile),
		now:         time.Now,
		logger:      logger.With().Str("component", "price_store").Logger(),
	}

	if err := loadDocument(s.historyPath, &s.history); err != nil {
		return nil, fmt.Errorf("load price history: %w", err)
	}
	if err := loadDocument(s.dailyPath, &s.daily); err != nil {
		return nil, fmt.Errorf("load daily minima: %w", err)
	}

	s.logger.Debug().
		Int("history", len(s.history)).
		Int("daily", len(s.daily)).
		Msg("price documents loaded")
	return s, nil
}

// RecordFull appends the record to the full history unconditionally.
func (s *Store) RecordFull(rec PriceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, rec)
	if err := writeDocument(s.historyPath, s.history); err != nil {
		s.history = s.history[:len(s.history)-1]
		return fmt.Errorf("write price history: %w", err)
	}
	return nil
}

// MergeDaily folds the candidate into the daily-minima table. The table
// keeps at most one record per (fuel type, calendar day): the candidate
// replaces the existing entry only when it is strictly cheaper or the day
// has no entry yet. Merging the same candidate twice is a no-op.
func (s *Store) MergeDaily(candidate PriceRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	day := candidate.Day()
	existingIdx := -1
	for i, rec := range s.daily {
		if rec.FuelType == candidate.FuelType && rec.Day() == day {
			existingIdx = i
			break
		}
	}

	if existingIdx >= 0 {
		existing := s.daily[existingIdx]
		if candidate.Price >= existing.Price {
			return false, nil
		}
		if existing.LastSent != nil && s.now().Sub(existing.LastSent.Time) < lastSentCarryOver {
			stamp := *existing.LastSent
			candidate.LastSent = &stamp
		}
		old := s.daily[existingIdx]
		s.daily[existingIdx] = candidate
		if err := writeDocument(s.dailyPath, s.daily); err != nil {
			s.daily[existingIdx] = old
			return false, fmt.Errorf("write daily minima: %w", err)
		}
		return true, nil
	}

	s.daily = append(s.daily, candidate)
	if err := writeDocument(s.dailyPath, s.daily); err != nil {
		s.daily = s.daily[:len(s.daily)-1]
		return false, fmt.Errorf("write daily minima: %w", err)
	}
	return true, nil
}

// History returns every full-history record for the fuel type observed
// after since, in timestamp order. A zero since returns everything.
func (s *Store) History(fuelType string, since time.Time) []PriceRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]PriceRecord, 0)
	for _, rec := range s.history {
		if rec.FuelType != fuelType {
			continue
		}
		if !since.IsZero() && !rec.Timestamp.After(since) {
			continue
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp.Time)
	})
	return out
}

// Daily returns a snapshot of the daily-minima table, optionally filtered
// by fuel type.
func (s *Store) Daily(fuelType string) []PriceRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]PriceRecord, 0, len(s.daily))
	for _, rec := range s.daily {
		if fuelType != "" && rec.FuelType != fuelType {
			continue
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp.Time)
	})
	return out
}

// LatestPrices returns the most recent daily-minima price per fuel type.
func (s *Store) LatestPrices() map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	latestTS := make(map[string]Timestamp)
	prices := make(map[string]int64)
	for _, rec := range s.daily {
		if ts, ok := latestTS[rec.FuelType]; ok && !rec.Timestamp.After(ts.Time) {
			continue
		}
		latestTS[rec.FuelType] = rec.Timestamp
		prices[rec.FuelType] = rec.Price
	}
	return prices
}

// StampLastSent marks the newest daily-minima record with the digest
// delivery time.
func (s *Store) StampLastSent(at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.daily) == 0 {
		return nil
	}
	newest := 0
	for i, rec := range s.daily {
		if rec.Timestamp.After(s.daily[newest].Timestamp.Time) {
			newest = i
		}
	}
	stamp := NewTimestamp(at)
	prev := s.daily[newest].LastSent
	s.daily[newest].LastSent = &stamp
	if err := writeDocument(s.dailyPath, s.daily); err != nil {
		s.daily[newest].LastSent = prev
		return fmt.Errorf("write daily minima: %w", err)
	}
	return nil
}

// HistoryDocument returns the full-history JSON document verbatim.
func (s *Store) HistoryDocument() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return json.MarshalIndent(s.history, "", "    ")
}

// DailyDocument returns the daily-minima JSON document verbatim.
func (s *Store) DailyDocument() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return json.MarshalIndent(s.daily, "", "    ")
}

func loadDocument(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

// writeDocument replaces the document atomically: marshal, write a sibling
// temp file, rename over the target. A crash mid-write leaves the previous
// document intact.
func writeDocument(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
