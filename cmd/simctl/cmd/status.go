package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [simulation_id]",
	Short: "Show a simulation",
	Long:  `Retrieve the details of a simulation, including its state (queued, running, finished), progress, score and the nodes it runs on.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		sim, err := newClient().GetSimulation(id)
		if err != nil {
			return err
		}

		cmd.Printf("%s\n", titleStyle.Render("Simulation "+strconv.Itoa(sim.ID)))
		cmd.Println("──────────────────────────────")
		cmd.Printf("%s        %s\n", labelStyle.Render("Name:"), sim.Name)
		if sim.Contact != "" {
			cmd.Printf("%s     %s\n", labelStyle.Render("Contact:"), sim.Contact)
		}
		cmd.Printf("%s       %s\n", labelStyle.Render("State:"), colorizeState(sim.State))
		cmd.Printf("%s    %s\n", labelStyle.Render("Progress:"), progressBar(sim.Progress, 20))
		cmd.Printf("%s       %s\n", labelStyle.Render("Score:"), formatScore(sim.Score))
		cmd.Printf("%s      %d\n", labelStyle.Render("Avatar:"), sim.AvatarID)
		if sim.Handle != "" {
			cmd.Printf("%s      %s\n", labelStyle.Render("Handle:"), sim.Handle)
		}
		if len(sim.Nodes) > 0 {
			cmd.Printf("%s       %s\n", labelStyle.Render("Nodes:"), strings.Join(sim.Nodes, ", "))
		}
		cmd.Printf("%s     %s (%s ago)\n", labelStyle.Render("Created:"), sim.CreatedAt.Format("Mon, 02 Jan 2006 15:04:05 MST"), relativeTime(sim.CreatedAt))
		if sim.ReadyToExport {
			cmd.Printf("%s      yes\n", labelStyle.Render("Export:"))
		}
		return nil
	},
}

var progressCmd = &cobra.Command{
	Use:   "progress [simulation_id]",
	Short: "Show how far a simulation has run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		p, err := newClient().GetProgress(id)
		if err != nil {
			return err
		}

		cmd.Printf("%d %s %s\n", p.ID, colorizeState(p.State), progressBar(p.Progress, 30))
		return nil
	},
}

func parseID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id < 0 {
		return 0, fmt.Errorf("invalid simulation id %q: must be a non-negative integer", s)
	}
	return id, nil
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(progressCmd)
}
