package main

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/spf13/cobra"

	"github.com/AetheriusMC/aetherius/pkg/console"
	"github.com/AetheriusMC/aetherius/pkg/storage"
)

var systemCmd = &cobra.Command{
	Use:   "system",
	Short: "Host information, engine health, and audit logs",
}

var systemInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show host and runtime information",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("aetherius %s (%s/%s, %s)\n", Version, runtime.GOOS, runtime.GOARCH, runtime.Version())

		if info, err := host.Info(); err == nil {
			fmt.Printf("host:   %s (%s %s, up %s)\n",
				info.Hostname, info.Platform, info.PlatformVersion,
				(time.Duration(info.Uptime) * time.Second).String())
		}
		if counts, err := cpu.Counts(true); err == nil {
			fmt.Printf("cpu:    %d logical cores\n", counts)
		}
		if vm, err := mem.VirtualMemory(); err == nil {
			fmt.Printf("memory: %.1f GiB total, %.1f%% used\n",
				float64(vm.Total)/(1<<30), vm.UsedPercent)
		}
		return nil
	},
}

var systemHealthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the engine and game server are healthy",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		res, err := console.Execute(cfg.Daemon.SocketPath, "!status", 5*time.Second)
		if err != nil {
			fmt.Println("✗ engine: not running")
			return fmt.Errorf("engine is down")
		}
		fmt.Println("✓ engine: running")
		if res.Success {
			for _, line := range strings.Split(res.Output, "\n") {
				fmt.Println("  " + line)
			}
		}
		return nil
	},
}

var systemLogsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show recent audited events and commands",
	Long: `Logs reads the audit store directly in read-only mode, so it works
whether or not the engine is running.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")
		commandsOnly, _ := cmd.Flags().GetBool("commands")

		store, err := storage.OpenReadOnly(cfg.Daemon.DataDir)
		if err != nil {
			return fmt.Errorf("cannot open audit store: %w", err)
		}
		defer store.Close()

		if !commandsOnly {
			events, err := store.RecentEvents(limit)
			if err != nil {
				return err
			}
			fmt.Printf("--- events (%d) ---\n", len(events))
			for _, e := range events {
				fmt.Printf("%s  %-28s %s\n",
					e.Time.Format("2006-01-02 15:04:05"), e.Topic, string(e.Data))
			}
		}

		commands, err := store.RecentCommands(limit)
		if err != nil {
			return err
		}
		fmt.Printf("--- commands (%d) ---\n", len(commands))
		for _, c := range commands {
			status := "ok"
			if !c.Success {
				status = "failed: " + c.Error
			}
			fmt.Printf("%s  %-24s %s\n",
				c.Time.Format("2006-01-02 15:04:05"), c.Command, status)
		}
		return nil
	},
}

func init() {
	systemCmd.AddCommand(systemInfoCmd)
	systemCmd.AddCommand(systemHealthCmd)
	systemCmd.AddCommand(systemLogsCmd)

	systemLogsCmd.Flags().IntP("limit", "n", 20, "Maximum entries per section")
	systemLogsCmd.Flags().Bool("commands", false, "Show only the command history")
}
