// respkv-cli - command-line client for respkv
//
// Usage:
//
//	respkv-cli [--addr host:port]            interactive prompt
//	respkv-cli exec <command> [args...]      run one command
//	respkv-cli bench [-c clients] [-n requests] [-t test]
//	respkv-cli version
package main

import (
	"os"

	"github.com/respkv/respkv/internal/cli"
)

func main() {
	if err := cli.NewCLI().Run(); err != nil {
		os.Exit(1)
	}
}
