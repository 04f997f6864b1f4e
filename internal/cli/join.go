package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"chatdb/pkg/logger"
	"chatdb/pkg/shutdown"
)

var joinCmd = &cobra.Command{
	Use:   "join",
	Short: "Join a room and chat interactively",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cfg, err := setup(cmd)
		if err != nil {
			return err
		}
		defer func() {
			_ = a.Close()
			logger.Sync()
		}()

		room, _ := cmd.Flags().GetString("room")
		user, _ := cmd.Flags().GetString("user")
		if room == "" {
			room = cfg.Chat.Room
		}
		if user == "" {
			user = cfg.Chat.Username
		}
		if room == "" || user == "" {
			return fmt.Errorf("both --room and --user are required")
		}
		reset, _ := cmd.Flags().GetBool("reset")
		clearFirst := reset || cfg.Chat.ClearOnJoin

		ctx, cancel := shutdown.SetupSignalHandler(cmd.Context())
		defer cancel()
		return a.RunChat(ctx, room, user, clearFirst)
	},
}

func init() {
	joinCmd.Flags().StringP("room", "r", "", "room name")
	joinCmd.Flags().StringP("user", "u", "", "username to claim in the room")
	joinCmd.Flags().Bool("reset", false, "clear the room before joining (destructive)")
	rootCmd.AddCommand(joinCmd)
}
