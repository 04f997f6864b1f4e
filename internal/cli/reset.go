package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"chatdb/pkg/logger"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete every key in a room's subspace (destructive)",
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
		if err := a.Reset(cmd.Context(), room); err != nil {
			return err
		}
		fmt.Printf("room %q cleared\n", room)
		return nil
	},
}

func init() {
	resetCmd.Flags().StringP("room", "r", "", "room name")
	rootCmd.AddCommand(resetCmd)
}
