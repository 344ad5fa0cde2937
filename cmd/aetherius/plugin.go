package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AetheriusMC/aetherius/pkg/config"
)

const disabledSuffix = ".disabled"

var pluginCmd = &cobra.Command{
	Use:   "plugin",
	Short: "Manage game server plugin jars",
	Long: `Plugin manages the jar files in the server's plugins directory.
Disabling renames NAME.jar to NAME.jar.disabled so the server skips it
on next start; enabling renames it back. The server must be restarted
for changes to take effect.`,
}

var pluginListCmd = &cobra.Command{
	Use:   "list",
	Short: "List plugin jars and whether they are enabled",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		entries, err := os.ReadDir(pluginsDir(cfg))
		if err != nil {
			if os.IsNotExist(err) {
				fmt.Println("no plugins directory")
				return nil
			}
			return err
		}

		type plugin struct {
			name    string
			enabled bool
		}
		var plugins []plugin
		for _, e := range entries {
			name := e.Name()
			switch {
			case strings.HasSuffix(name, ".jar"):
				plugins = append(plugins, plugin{strings.TrimSuffix(name, ".jar"), true})
			case strings.HasSuffix(name, ".jar"+disabledSuffix):
				plugins = append(plugins, plugin{strings.TrimSuffix(name, ".jar"+disabledSuffix), false})
			}
		}
		if len(plugins) == 0 {
			fmt.Println("no plugins installed")
			return nil
		}
		sort.Slice(plugins, func(i, j int) bool { return plugins[i].name < plugins[j].name })
		for _, p := range plugins {
			state := "enabled"
			if !p.enabled {
				state = "disabled"
			}
			fmt.Printf("%-30s %s\n", p.name, state)
		}
		return nil
	},
}

var pluginEnableCmd = &cobra.Command{
	Use:   "enable NAME",
	Short: "Enable a disabled plugin jar",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		jar := filepath.Join(pluginsDir(cfg), args[0]+".jar")
		if _, err := os.Stat(jar); err == nil {
			fmt.Printf("%s is already enabled\n", args[0])
			return nil
		}
		if err := os.Rename(jar+disabledSuffix, jar); err != nil {
			return fmt.Errorf("no such plugin: %s", args[0])
		}
		fmt.Printf("✓ %s enabled (restart the server to load it)\n", args[0])
		return nil
	},
}

var pluginDisableCmd = &cobra.Command{
	Use:   "disable NAME",
	Short: "Disable a plugin jar",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		jar := filepath.Join(pluginsDir(cfg), args[0]+".jar")
		if _, err := os.Stat(jar + disabledSuffix); err == nil {
			fmt.Printf("%s is already disabled\n", args[0])
			return nil
		}
		if err := os.Rename(jar, jar+disabledSuffix); err != nil {
			return fmt.Errorf("no such plugin: %s", args[0])
		}
		fmt.Printf("✓ %s disabled (restart the server to unload it)\n", args[0])
		return nil
	},
}

// pluginsDir resolves the plugins directory; relative paths live under
// the server working directory
func pluginsDir(cfg *config.Config) string {
	dir := cfg.Components.PluginsDir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(cfg.Server.WorkingDir, dir)
	}
	return dir
}

func init() {
	pluginCmd.AddCommand(pluginListCmd)
	pluginCmd.AddCommand(pluginEnableCmd)
	pluginCmd.AddCommand(pluginDisableCmd)
}
