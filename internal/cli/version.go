package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/respkv/respkv/internal/version"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the respkv-cli version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String("respkv-cli"))
		},
	}
}
