package cmd

import (
	"fmt"
	"text/tabwriter"

	"simplane/pkg/api"

	"github.com/spf13/cobra"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "List simulations waiting to start, newest first",
	Args:  cobra.NoArgs,
	RunE:  listRunner("/simulations/queued", "No simulations queued."),
}

var runningCmd = &cobra.Command{
	Use:   "running",
	Short: "List running simulations, most recently started first",
	Args:  cobra.NoArgs,
	RunE:  listRunner("/simulations/running", "No simulations running."),
}

var finishedCmd = &cobra.Command{
	Use:   "finished",
	Short: "List finished simulations, newest first",
	Args:  cobra.NoArgs,
	RunE:  listRunner("/simulations/finished", "No finished simulations."),
}

var leaderboardCmd = &cobra.Command{
	Use:   "leaderboard",
	Short: "List the lowest-drag finished simulations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		n, _ := cmd.Flags().GetInt("count")
		return listRunner(fmt.Sprintf("/simulations/min_drag/%d", n), "No scored simulations yet.")(cmd, args)
	},
}

var recentCmd = &cobra.Command{
	Use:   "recent",
	Short: "List the most recently finished simulations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		n, _ := cmd.Flags().GetInt("count")
		return listRunner(fmt.Sprintf("/simulations/recent/%d", n), "No finished simulations.")(cmd, args)
	},
}

func listRunner(path, empty string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		sims, err := newClient().List(path)
		if err != nil {
			return err
		}
		if len(sims) == 0 {
			cmd.Println(empty)
			return nil
		}
		printSimulations(cmd, sims)
		return nil
	}
}

func printSimulations(cmd *cobra.Command, sims []api.Simulation) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tAVATAR\tSCORE\tHANDLE\tSUBMITTED")
	for _, s := range sims {
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\t%s ago\n",
			s.ID,
			s.Name,
			s.AvatarID,
			formatScore(s.Score),
			s.Handle,
			relativeTime(s.CreatedAt),
		)
	}
	w.Flush()
}

func init() {
	rootCmd.AddCommand(queueCmd, runningCmd, finishedCmd, leaderboardCmd, recentCmd)

	leaderboardCmd.Flags().IntP("count", "n", 10, "Number of simulations to show")
	recentCmd.Flags().IntP("count", "n", 10, "Number of simulations to show")
}
