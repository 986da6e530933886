package cmd

import (
	"fmt"

	"github.com/encodeous/ribd/core"
	"github.com/spf13/cobra"
)

var verbose bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Runs the ribd agent",
	Run: func(cmd *cobra.Command, args []string) {
		if err := core.Start(configPath, logPath, verbose); err != nil {
			fmt.Println("Error:", err.Error())
		}
	},
}

func init() {
	runCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(runCmd)
}
