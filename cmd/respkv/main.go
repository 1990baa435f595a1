// respkv - an in-memory key-value server speaking RESP
//
// Usage:
//
//	respkv [flags]
//
// Flags:
//
//	--config string        YAML config file (default: none)
//	--addr string          RESP listen address (default ":8000")
//	--admin-addr string    Admin HTTP address (default ":8080")
//	--no-admin             Disable the admin HTTP server
//	--loglevel string      Log level: debug, info, warn, error (default "info")
//	--maxclients int       Maximum number of clients (default 10000)
//	--idle-timeout dur     Close idle clients after this long (default 0 = never)
//	--save-config string   Write the effective config to this file and exit
//	--version              Show version and exit
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/respkv/respkv/internal/app"
	"github.com/respkv/respkv/internal/config"
	"github.com/respkv/respkv/internal/version"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		configPath  string
		savePath    string
		showVersion bool
		noAdmin     bool
		flagCfg     = config.Default()
	)

	cmd := &cobra.Command{
		Use:          "respkv",
		Short:        "In-memory key-value server speaking RESP",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				fmt.Fprintln(cmd.OutOrStdout(), version.String("respkv"))
				return nil
			}

			cfg := config.Default()
			if configPath != "" {
				loaded, err := config.Load(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}

			// explicit flags win over the file
			flags := cmd.Flags()
			if flags.Changed("addr") {
				cfg.Addr = flagCfg.Addr
			}
			if flags.Changed("admin-addr") {
				cfg.Admin.Addr = flagCfg.Admin.Addr
			}
			if noAdmin {
				cfg.Admin.Enabled = false
			}
			if flags.Changed("loglevel") {
				cfg.LogLevel = flagCfg.LogLevel
			}
			if flags.Changed("maxclients") {
				cfg.MaxClients = flagCfg.MaxClients
			}
			if flags.Changed("idle-timeout") {
				cfg.IdleTimeout = flagCfg.IdleTimeout
			}

			if err := cfg.Validate(); err != nil {
				return err
			}

			if savePath != "" {
				if err := cfg.Save(savePath); err != nil {
					return fmt.Errorf("save config: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "config written to %s\n", savePath)
				return nil
			}

			server := fx.New(app.Module(cfg))
			if err := server.Err(); err != nil {
				return err
			}
			server.Run()
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configPath, "config", "", "YAML config file")
	flags.StringVar(&flagCfg.Addr, "addr", flagCfg.Addr, "RESP listen address")
	flags.StringVar(&flagCfg.Admin.Addr, "admin-addr", flagCfg.Admin.Addr, "admin HTTP address")
	flags.BoolVar(&noAdmin, "no-admin", false, "disable the admin HTTP server")
	flags.StringVar(&flagCfg.LogLevel, "loglevel", flagCfg.LogLevel, "log level: debug, info, warn, error")
	flags.IntVar(&flagCfg.MaxClients, "maxclients", flagCfg.MaxClients, "maximum number of clients")
	flags.DurationVar(&flagCfg.IdleTimeout, "idle-timeout", flagCfg.IdleTimeout, "close idle clients after this long (0 = never)")
	flags.StringVar(&savePath, "save-config", "", "write the effective config to this file and exit")
	flags.BoolVar(&showVersion, "version", false, "show version and exit")

	return cmd
}
