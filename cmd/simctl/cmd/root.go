package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "simctl",
	Short: "simctl is a command line tool for the simplane simulation tracker",
	Long: `simctl talks to the simplane controller, which tracks wind-tunnel
simulations from submission at the capture station to a scored result.

Common workflows:

  Submit an outline captured as "x y" lines:
    simctl submit --name "Ada" --contour-file outline.dat

  Follow a simulation:
    simctl status 12
    simctl progress 12
    simctl logs 12 -n 20

  Inspect the queue and the leaderboard:
    simctl queue
    simctl running
    simctl leaderboard -n 10

  Drive the export queue:
    simctl export next
    simctl export clear 12

Configuration:
  Set the controller endpoint with --url, the SIMPLANE_URL environment
  variable, or "url" in $HOME/.simctl.yaml (default: http://localhost:6161).`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".simctl"
		viper.AddConfigPath(home)
		viper.SetConfigName(".simctl")
		viper.SetConfigType("yaml")
	}

	// Read environment variables that match "SIMPLANE_VARNAME"
	viper.SetEnvPrefix("SIMPLANE")
	viper.AutomaticEnv()

	viper.ReadInConfig()
}

func newClient() *SimClient {
	return NewSimClient(viper.GetString("url"))
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.simctl.yaml)")

	rootCmd.PersistentFlags().String("url", "http://localhost:6161", "simplane controller URL")
	viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))
}
