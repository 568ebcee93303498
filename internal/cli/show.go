package cli

import (
	"github.com/spf13/cobra"

	"fuelwatch/internal/app"
)

var showFuelType string

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the daily-minima table",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Show(app.ShowOptions{FuelType: showFuelType})
	},
}

func init() {
	showCmd.Flags().StringVar(&showFuelType, "fuel-type", "", "Limit output to one fuel type")
}
