package app

import (
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"fuelwatch/internal/chart"
	"fuelwatch/internal/storage"
)

// Export renders stored history as CSV and/or PNG.
func (a *App) Export(opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	if opts.FuelType == "" {
		return errors.New("--fuel-type is required")
	}
	if opts.MaxPoints <= 0 {
		opts.MaxPoints = 100000
	}

	store, err := a.openStore()
	if err != nil {
		return err
	}

	since := time.Time{}
	if opts.From != nil {
		since = *opts.From
	}

	records := store.History(opts.FuelType, since)
	if opts.To != nil {
		trimmed := records[:0]
		for _, rec := range records {
			if rec.Timestamp.Before(*opts.To) {
				trimmed = append(trimmed, rec)
			}
		}
		records = trimmed
	}
	if len(records) == 0 {
		a.Logger.Info().Str("fuel_type", opts.FuelType).Msg("no records found for export window")
		return nil
	}

	downsampled := downsample(records, opts.MaxPoints)
	a.Logger.Info().Int("total", len(records)).Int("exported", len(downsampled)).Msg("exporting records")

	if opts.CSVPath != "" {
		if err := writeRecordsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		png, err := chart.Render(opts.FuelType+" lowest price", downsampled, a.Config.Alerting.MAWindow)
		if err != nil {
			return err
		}
		if err := ensureDir(opts.PNGPath); err != nil {
			return err
		}
		if err := os.WriteFile(opts.PNGPath, png, 0o644); err != nil {
			return err
		}
	}

	return nil
}

func downsample(records []storage.PriceRecord, max int) []storage.PriceRecord {
	if max <= 0 || len(records) <= max {
		return records
	}

	result := make([]storage.PriceRecord, 0, max)
	step := float64(len(records)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(records) {
			idx = len(records) - 1
		}
		result = append(result, records[idx])
	}
	return result
}

func writeRecordsCSV(path string, records []storage.PriceRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"timestamp", "type", "price", "name", "suburb", "state", "postcode"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, rec := range records {
		row := []string{
			rec.Timestamp.Format(storage.TimeLayout),
			rec.FuelType,
			fmt.Sprintf("%d", rec.Price),
			rec.Station,
			rec.Suburb,
			rec.State,
			rec.Postcode,
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	return writer.Error()
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
