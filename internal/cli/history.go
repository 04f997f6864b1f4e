package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"chatdb/pkg/keys"
	"chatdb/pkg/logger"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print a room's message log without joining",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, err := setup(cmd)
		if err != nil {
			return err
		}
		defer func() {
			_ = a.Close()
			logger.Sync()
		}()

		room, _ := cmd.Flags().GetString("room")
		if room == "" {
			return fmt.Errorf("--room is required")
		}
		var after time.Time
		if s, _ := cmd.Flags().GetString("after"); s != "" {
			after, err = keys.ParseTimestamp(s)
			if err != nil {
				return fmt.Errorf("--after must look like %s: %w", keys.TimestampLayout, err)
			}
		}
		return a.History(cmd.Context(), room, after)
	},
}

func init() {
	historyCmd.Flags().StringP("room", "r", "", "room name")
	historyCmd.Flags().String("after", "", "only messages strictly after this timestamp")
	rootCmd.AddCommand(historyCmd)
}
