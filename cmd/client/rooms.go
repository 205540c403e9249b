package main

import (
	"github.com/spf13/cobra"

	"github.com/sharetube/tandem/internal/app"
)

var createCmd = &cobra.Command{
	Use:   "create [room-id]",
	Short: "Open a new room and wait for your partner",
	Example: `  tandem create
  tandem create AB12CD --display-name Alice`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		params := &app.EnterParams{Create: true}
		if len(args) == 1 {
			params.RoomId = args[0]
		}

		return runClient(cmd, params)
	},
}

var joinCmd = &cobra.Command{
	Use:     "join <room-id>",
	Short:   "Join the room your partner created",
	Example: `  tandem join ab12cd --spotify-token $TOKEN`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runClient(cmd, &app.EnterParams{RoomId: args[0]})
	},
}
