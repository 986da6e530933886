package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath = "/etc/ribd/config.yaml"
	logPath    = ""
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ribd",
	Short: "Switch-agent routing information base",
	Long: `ribd is the routing information base core of a switch agent.
It merges route contributions from control-plane clients, resolves next-hops
to egress interfaces and publishes immutable forwarding table snapshots.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", configPath, "agent config")
	rootCmd.PersistentFlags().StringVarP(&logPath, "log-path", "l", logPath, "also log to this file")
}
