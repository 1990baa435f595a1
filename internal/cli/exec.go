package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/respkv/respkv/internal/client"
)

func newExecCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "exec <command> [args...]",
		Short: "Run one command and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.dial()
			if err != nil {
				return err
			}
			defer c.Close()

			v, err := c.Do(args...)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), client.Format(v))
			return nil
		},
	}
}

// runREPL reads command lines until EOF or "quit".
func runREPL(cmd *cobra.Command, opts *options) error {
	c, err := opts.dial()
	if err != nil {
		return err
	}
	defer c.Close()

	out := cmd.OutOrStdout()
	scanner := bufio.NewScanner(cmd.InOrStdin())
	prompt := opts.addr + "> "

	for {
		fmt.Fprint(out, prompt)
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		args := client.SplitArgs(scanner.Text())
		if len(args) == 0 {
			continue
		}
		if name := strings.ToLower(args[0]); name == "quit" || name == "exit" {
			return nil
		}

		v, err := c.Do(args...)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, client.Format(v))
	}
}
