package cli

import (
	"github.com/spf13/cobra"

	"swx-monitor/internal/app"
)

var statusAlerts int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Spot-check critical endpoints and print system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.StatusOptions{
			RecentAlerts: statusAlerts,
		}
		return getApp().Status(cmd.Context(), opts)
	},
}

func init() {
	statusCmd.Flags().IntVar(&statusAlerts, "alerts", 10, "Number of archived alerts to include (0 disables)")
}
