package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AetheriusMC/aetherius/pkg/console"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Attach an interactive console to the running engine",
	Long: `Console attaches to the persistent console daemon. Server log lines
stream in live; type commands prefixed with / (game), $ (components),
or ! (engine). 'quit' or 'exit' detaches without stopping anything.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		client, err := console.Dial(cfg.Daemon.SocketPath)
		if err != nil {
			return err
		}
		defer client.Close()

		fmt.Println("Attached. /<cmd> game, $<verb> components, !<verb> engine, 'quit' to detach.")
		return client.Run(context.Background())
	},
}

var cmdCmd = &cobra.Command{
	Use:   "cmd TEXT...",
	Short: "Send one game command and print the reply",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		text := strings.Join(args, " ")
		if !strings.HasPrefix(text, "/") && !strings.HasPrefix(text, "$") && !strings.HasPrefix(text, "!") {
			text = "/" + text
		}

		res, err := console.Execute(cfg.Daemon.SocketPath, text, 15*time.Second)
		if err != nil {
			return err
		}
		if !res.Success {
			return fmt.Errorf("%s", res.Error)
		}
		if res.Output != "" {
			fmt.Println(res.Output)
		}
		return nil
	},
}
