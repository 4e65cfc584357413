package cli

import (
	"os"

	"github.com/spf13/cobra"
)

func NewRTToolsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   appName,
		Short: "rttools exercises thread-safe time series and real-time threads",
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
			os.Exit(1)
		},
	}
	cmd.AddCommand(NewCmdDemo())
	cmd.AddCommand(NewCmdCheck())
	cmd.AddCommand(NewCmdVersion())
	return cmd
}
