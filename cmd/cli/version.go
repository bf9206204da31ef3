package cli

import (
	"fmt"

	"github.com/glimps-re/pescan/pkg/config"
	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print pescan version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pescan version: %s\n", config.Version)
		},
	}
}
