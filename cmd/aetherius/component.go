package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AetheriusMC/aetherius/pkg/console"
)

var componentCmd = &cobra.Command{
	Use:   "component",
	Short: "Manage components through a running engine",
}

// componentVerb forwards one loader verb over the console socket
func componentVerb(verb string, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	text := "$" + verb
	if len(args) > 0 {
		text += " " + strings.Join(args, " ")
	}
	res, err := console.Execute(cfg.Daemon.SocketPath, text, 90*time.Second)
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
}

func componentSubcommand(verb, short string, needsName bool) *cobra.Command {
	use := verb
	argPolicy := cobra.NoArgs
	if needsName {
		use = verb + " NAME"
		argPolicy = cobra.ExactArgs(1)
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  argPolicy,
		RunE: func(cmd *cobra.Command, args []string) error {
			return componentVerb(verb, args)
		},
	}
}

var componentLoadCmd = &cobra.Command{
	Use:   "load [NAME]",
	Short: "Load one component, or every discovered component in dependency order",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return componentVerb("load", args)
	},
}

func init() {
	componentCmd.AddCommand(componentSubcommand("list", "List components and their states", false))
	componentCmd.AddCommand(componentSubcommand("scan", "Rescan the components directory", false))
	componentCmd.AddCommand(componentLoadCmd)
	componentCmd.AddCommand(componentSubcommand("enable", "Enable a loaded component", true))
	componentCmd.AddCommand(componentSubcommand("disable", "Disable an enabled component", true))
	componentCmd.AddCommand(componentSubcommand("reload", "Reload a component from its manifest", true))
	componentCmd.AddCommand(componentSubcommand("info", "Show one component in detail", true))
	componentCmd.AddCommand(componentSubcommand("stats", "Show component counts by state", false))
}
