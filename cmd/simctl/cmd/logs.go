package cmd

import (
	"github.com/spf13/cobra"
)

var logsCmd = &cobra.Command{
	Use:   "logs [simulation_id]",
	Short: "Print the end of a simulation's solver output",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		lines, _ := cmd.Flags().GetInt("lines")

		tail, err := newClient().GetLog(id, lines)
		if err != nil {
			return err
		}
		if len(tail) == 0 {
			cmd.Println(labelStyle.Render("No output yet."))
			return nil
		}
		for _, line := range tail {
			cmd.Println(line)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(logsCmd)
	logsCmd.Flags().IntP("lines", "n", 50, "Number of lines to show")
}
