package main

import (
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/process"
	"github.com/spf13/cobra"

	"github.com/AetheriusMC/aetherius/pkg/console"
	"github.com/AetheriusMC/aetherius/pkg/supervisor"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Manage the game server through a running engine",
}

var serverStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the game server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serverVerb("start")
	},
}

var serverStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the game server gracefully",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serverVerb("stop")
	},
}

var serverRestartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the game server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serverVerb("restart")
	},
}

var serverStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show game server status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		// A running engine answers with full detail
		if res, err := console.Execute(cfg.Daemon.SocketPath, "!status", 5*time.Second); err == nil {
			if !res.Success {
				return fmt.Errorf("%s", res.Error)
			}
			fmt.Println(res.Output)
			return nil
		}

		// No engine: fall back to the persisted state file
		state, err := supervisor.LoadState(supervisor.StateFilePath(cfg.Server.WorkingDir))
		if err != nil {
			fmt.Println("server: stopped (no engine running)")
			return nil
		}
		alive, _ := process.PidExists(int32(state.PID))
		if alive {
			fmt.Printf("server: running unsupervised (pid %d, engine not running)\n", state.PID)
			fmt.Println("run 'aetherius start' to adopt it")
		} else {
			fmt.Printf("server: stopped (stale state file, pid %d is gone)\n", state.PID)
		}
		return nil
	},
}

func init() {
	serverCmd.AddCommand(serverStartCmd)
	serverCmd.AddCommand(serverStopCmd)
	serverCmd.AddCommand(serverRestartCmd)
	serverCmd.AddCommand(serverStatusCmd)
}

// serverVerb forwards a lifecycle verb to the daemon. Stop and restart
// can take a while; the timeout covers the full graceful-stop window.
func serverVerb(verb string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	timeout := cfg.Server.StopTimeout.Std() + 15*time.Second
	res, err := console.Execute(cfg.Daemon.SocketPath, "!server "+verb, timeout)
	if err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("%s", res.Error)
	}
	fmt.Println("✓ " + res.Output)
	return nil
}
