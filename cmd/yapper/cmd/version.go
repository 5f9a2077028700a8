package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/yapper-sdk-go/yapper"
)

var version = "0.1.0" // This should be set at build time using -ldflags

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of the yapper CLI",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "yapper v%s (protocol %d)\n", version, yapper.ProtocolVersion)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
