// Package cli implements respkv-cli, a command-line client for respkv.
package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/respkv/respkv/internal/client"
)

const (
	defaultAddr    = "localhost:8000"
	defaultTimeout = 5 * time.Second
)

// options are the flags shared by every subcommand.
type options struct {
	addr    string
	timeout time.Duration
}

func (o *options) dial() (*client.Client, error) {
	return client.Dial(o.addr, o.timeout)
}

// CLI is the respkv-cli command tree.
type CLI struct {
	root *cobra.Command
}

// NewCLI builds the command tree. Without a subcommand the root command
// starts an interactive prompt.
func NewCLI() *CLI {
	opts := &options{}

	root := &cobra.Command{
		Use:          "respkv-cli",
		Short:        "Command-line client for the respkv key-value server",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runREPL(cmd, opts)
		},
	}
	root.PersistentFlags().StringVarP(&opts.addr, "addr", "a", defaultAddr, "server address")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", defaultTimeout, "dial timeout")

	root.AddCommand(
		newExecCommand(opts),
		newBenchCommand(opts),
		newVersionCommand(),
	)

	return &CLI{root: root}
}

// Run executes the command tree with os.Args.
func (c *CLI) Run() error {
	return c.root.Execute()
}
