package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var simulateParams []string

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Evaluate alert criteria against supplied parameter values",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(simulateParams) == 0 {
			return errors.New("at least one --param is required")
		}

		values := make(map[string]float64, len(simulateParams))
		for _, raw := range simulateParams {
			name, text, found := strings.Cut(raw, "=")
			if !found || name == "" {
				return fmt.Errorf("invalid --param %q; expected name=value", raw)
			}
			value, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return fmt.Errorf("invalid --param %q: %w", raw, err)
			}
			values[name] = value
		}

		return getApp().SimulateAlert(cmd.Context(), values)
	},
}

func init() {
	simulateCmd.Flags().StringArrayVar(&simulateParams, "param", nil, "Parameter value as name=value (repeatable), e.g. --param xray_flux=2e-4")
}
