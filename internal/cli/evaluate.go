package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"fuelwatch/internal/app"
)

var (
	evalFuelType  string
	evalMethod    string
	evalThreshold int64
	evalWindow    int
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "对存储的历史数据离线运行一条告警规则",
	RunE: func(cmd *cobra.Command, args []string) error {
		if evalFuelType == "" {
			return errors.New("--fuel-type 必须提供")
		}

		return getApp().EvaluateRule(app.EvaluateOptions{
			FuelType:  evalFuelType,
			Method:    evalMethod,
			Threshold: evalThreshold,
			Window:    evalWindow,
		})
	},
}

func init() {
	evaluateCmd.Flags().StringVar(&evalFuelType, "fuel-type", "", "Fuel type to evaluate")
	evaluateCmd.Flags().StringVar(&evalMethod, "method", "moving_average", "Rule method: moving_average, lowest, fixed")
	evaluateCmd.Flags().Int64Var(&evalThreshold, "threshold", 0, "Fixed-method ceiling in ¢/L")
	evaluateCmd.Flags().IntVar(&evalWindow, "window", 0, "Moving-average window in samples")
}
