package cmd

import (
	"github.com/spf13/cobra"
)

var avatarCmd = &cobra.Command{
	Use:   "avatar",
	Short: "Preview the avatar the next submission could receive",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := newClient().NextAvatar()
		if err != nil {
			return err
		}
		cmd.Println(id)
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Manage the export queue",
	Long:  `Mark finished simulations for export, clear them once handled, and fetch the next one waiting.`,
}

var exportMarkCmd = &cobra.Command{
	Use:   "mark [simulation_id]",
	Short: "Mark a simulation ready to export",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		if err := newClient().MarkExport(id); err != nil {
			return err
		}
		cmd.Printf("Simulation %d marked for export\n", id)
		return nil
	},
}

var exportClearCmd = &cobra.Command{
	Use:   "clear [simulation_id]",
	Short: "Remove a simulation from the export queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		if err := newClient().ClearExport(id); err != nil {
			return err
		}
		cmd.Printf("Simulation %d cleared from export queue\n", id)
		return nil
	},
}

var exportNextCmd = &cobra.Command{
	Use:   "next",
	Short: "Print the next simulation waiting for export",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		id, ok, err := newClient().NextExport()
		if err != nil {
			return err
		}
		if !ok {
			cmd.Println("Export queue is empty.")
			return nil
		}
		cmd.Println(id)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(avatarCmd)
	rootCmd.AddCommand(exportCmd)
	exportCmd.AddCommand(exportMarkCmd, exportClearCmd, exportNextCmd)
}
