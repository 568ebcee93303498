package app

import (
	"fmt"
	"os"
	"text/tabwriter"

	"fuelwatch/internal/storage"
)

// Show prints the daily-minima table.
func (a *App) Show(opts ShowOptions) error {
	store, err := a.openStore()
	if err != nil {
		return err
	}

	records := store.Daily(opts.FuelType)
	if len(records) == 0 {
		fmt.Fprintln(os.Stdout, "no records found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Day\tFuel\tPrice ¢/L\tStation\tSuburb\tLast Digest")

	for _, rec := range records {
		lastSent := ""
		if rec.LastSent != nil {
			lastSent = rec.LastSent.Format(storage.TimeLayout)
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%d\t%s\t%s\t%s\n",
			rec.Day(),
			rec.FuelType,
			rec.Price,
			rec.Station,
			rec.Suburb,
			lastSent,
		)
	}

	return writer.Flush()
}
