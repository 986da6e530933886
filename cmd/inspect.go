package cmd

import (
	"fmt"

	"github.com/encodeous/ribd/core"
	"github.com/encodeous/ribd/state"
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:     "inspect",
	Aliases: []string{"i"},
	Short:   "Inspects the route tables of a running agent",
	Run: func(cmd *cobra.Command, args []string) {
		socket := state.DefaultSocketPath
		if len(args) == 1 {
			socket = args[0]
		}
		result, err := core.IPCGet(socket)
		if err != nil {
			fmt.Println("Error:", err.Error())
			return
		}
		fmt.Print(result)
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}
