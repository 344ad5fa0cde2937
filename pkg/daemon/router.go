package daemon

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/AetheriusMC/aetherius/pkg/metrics"
	"github.com/AetheriusMC/aetherius/pkg/storage"
)

// route dispatches one console line by its prefix: "/" game command,
// "$" component command, "!" daemon system command. Bare text is not
// forwarded; the client gets a hint instead.
func (d *Daemon) route(sess *session, input string) {
	input = strings.TrimSpace(input)
	switch {
	case input == "":
		return
	case strings.HasPrefix(input, "/"):
		d.gameCommand(sess, strings.TrimSpace(strings.TrimPrefix(input, "/")))
	case strings.HasPrefix(input, "$"):
		d.componentCommand(sess, strings.TrimSpace(strings.TrimPrefix(input, "$")))
	case strings.HasPrefix(input, "!"):
		d.systemCommand(sess, strings.TrimSpace(strings.TrimPrefix(input, "!")))
	default:
		_ = sess.send(&Frame{
			Type:    FrameLog,
			Content: "unrecognised input: prefix game commands with /, component commands with $, system commands with !",
		})
	}
}

func (d *Daemon) gameCommand(sess *session, text string) {
	res := d.server.ExecuteCommand(context.Background(), text, d.cfg.CommandTimeout)

	result := "error"
	if res.Success {
		result = "ok"
	}
	metrics.CommandsTotal.WithLabelValues("game", result).Inc()
	d.auditCommand(sess, text, res.Success, res.Output, res.Error)

	_ = sess.send(&Frame{
		Type:    FrameResponse,
		Success: res.Success,
		Output:  res.Output,
		Error:   res.Error,
	})
}

func (d *Daemon) componentCommand(sess *session, text string) {
	output, err := d.runComponentVerb(text)

	result := "ok"
	errMsg := ""
	if err != nil {
		result = "error"
		errMsg = err.Error()
	}
	metrics.CommandsTotal.WithLabelValues("component", result).Inc()
	d.auditCommand(sess, "$"+text, err == nil, output, errMsg)

	_ = sess.send(&Frame{
		Type:    FrameResponse,
		Success: err == nil,
		Output:  output,
		Error:   errMsg,
	})
}

func (d *Daemon) runComponentVerb(text string) (string, error) {
	if d.components == nil {
		return "", fmt.Errorf("component loader not available")
	}

	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", fmt.Errorf("usage: $<list|scan|load|enable|disable|reload|info|stats> [name]")
	}
	verb := fields[0]
	var name string
	if len(fields) > 1 {
		name = fields[1]
	}

	needName := func() error {
		if name == "" {
			return fmt.Errorf("usage: $%s <name>", verb)
		}
		return nil
	}

	switch verb {
	case "list":
		snaps := d.components.List()
		if len(snaps) == 0 {
			return "no components discovered", nil
		}
		var b strings.Builder
		for _, s := range snaps {
			fmt.Fprintf(&b, "%-20s %-10s %s", s.Info.Name, s.State, s.Info.Version)
			if s.Error != "" {
				fmt.Fprintf(&b, " (%s)", s.Error)
			}
			b.WriteByte('\n')
		}
		return strings.TrimRight(b.String(), "\n"), nil

	case "scan":
		n, err := d.components.Scan()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d components known", n), nil

	case "load":
		if name == "" {
			n, err := d.components.LoadAll()
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("loaded %d components", n), nil
		}
		if err := d.components.Load(name); err != nil {
			return "", err
		}
		return name + " loaded", nil

	case "enable":
		if err := needName(); err != nil {
			return "", err
		}
		if err := d.components.Enable(name); err != nil {
			return "", err
		}
		return name + " enabled", nil

	case "disable":
		if err := needName(); err != nil {
			return "", err
		}
		if err := d.components.Disable(name); err != nil {
			return "", err
		}
		return name + " disabled", nil

	case "reload":
		if err := needName(); err != nil {
			return "", err
		}
		if err := d.components.Reload(name); err != nil {
			return "", err
		}
		return name + " reloaded", nil

	case "info":
		if err := needName(); err != nil {
			return "", err
		}
		snap, err := d.components.Info(name)
		if err != nil {
			return "", err
		}
		var b strings.Builder
		fmt.Fprintf(&b, "%s %s (%s)\n", snap.Info.Name, snap.Info.Version, snap.State)
		if snap.Info.Description != "" {
			fmt.Fprintf(&b, "  %s\n", snap.Info.Description)
		}
		if len(snap.Info.Dependencies) > 0 {
			fmt.Fprintf(&b, "  depends on: %s\n", strings.Join(snap.Info.Dependencies, ", "))
		}
		if snap.Error != "" {
			fmt.Fprintf(&b, "  error: %s\n", snap.Error)
		}
		return strings.TrimRight(b.String(), "\n"), nil

	case "stats":
		stats := d.components.Stats()
		counts := make(map[string]int, len(stats.ByState))
		states := make([]string, 0, len(stats.ByState))
		for state, n := range stats.ByState {
			counts[string(state)] = n
			states = append(states, string(state))
		}
		sort.Strings(states)
		var b strings.Builder
		fmt.Fprintf(&b, "%d components", stats.Total)
		for _, state := range states {
			fmt.Fprintf(&b, ", %d %s", counts[state], state)
		}
		return b.String(), nil

	default:
		return "", fmt.Errorf("unknown component verb: %s", verb)
	}
}

func (d *Daemon) systemCommand(sess *session, text string) {
	verb := strings.Fields(text)
	name := ""
	if len(verb) > 0 {
		name = verb[0]
	}

	var output string
	var err error
	switch name {
	case "status":
		output = d.statusText()
	case "server":
		arg := ""
		if len(verb) > 1 {
			arg = verb[1]
		}
		output, err = d.serverVerb(arg)
	case "help":
		output = strings.Join([]string{
			"/<command>       send a command to the game server",
			"$<verb>          component loader: list scan load enable disable reload info stats",
			"!status          daemon and server status",
			"!server <verb>   game server lifecycle: start stop restart",
			"!help            this help",
			"!quit            shut the daemon down (stops the game server)",
		}, "\n")
	case "quit":
		output = "shutting down"
	default:
		err = fmt.Errorf("unknown system command: %s (try !help)", name)
	}

	result := "ok"
	errMsg := ""
	if err != nil {
		result = "error"
		errMsg = err.Error()
	}
	metrics.CommandsTotal.WithLabelValues("system", result).Inc()
	d.auditCommand(sess, "!"+text, err == nil, output, errMsg)

	_ = sess.send(&Frame{
		Type:    FrameResponse,
		Success: err == nil,
		Output:  output,
		Error:   errMsg,
	})

	if name == "quit" {
		d.requestQuit()
	}
}

func (d *Daemon) serverVerb(arg string) (string, error) {
	switch arg {
	case "start":
		if err := d.server.Start(); err != nil {
			return "", err
		}
		return "server starting", nil
	case "stop":
		if err := d.server.Stop(); err != nil {
			return "", err
		}
		return "server stopped", nil
	case "restart":
		if err := d.server.Restart(); err != nil {
			return "", err
		}
		return "server restarted", nil
	default:
		return "", fmt.Errorf("usage: !server <start|stop|restart>")
	}
}

func (d *Daemon) statusText() string {
	status := d.server.Status()
	var b strings.Builder
	fmt.Fprintf(&b, "server: %s", status.State)
	if status.PID != 0 {
		fmt.Fprintf(&b, " (pid %d, up %s", status.PID,
			(time.Duration(status.UptimeSeconds)*time.Second).String())
		if status.Adopted {
			b.WriteString(", adopted")
		}
		b.WriteString(")")
	}

	m := d.server.Metrics()
	if m.Threads > 0 {
		fmt.Fprintf(&b, "\ncpu: %.1f%%  rss: %.0f MiB  threads: %d",
			m.CPUPercent, m.RSSMiB, m.Threads)
	}

	d.mu.Lock()
	sessions := len(d.sessions)
	d.mu.Unlock()
	fmt.Fprintf(&b, "\nsessions: %d", sessions)

	stats := d.bus.Statistics()
	fmt.Fprintf(&b, "\nevents fired: %d", stats.TotalFired)
	return b.String()
}

func (d *Daemon) auditCommand(sess *session, command string, success bool, output, errMsg string) {
	if d.store == nil {
		return
	}
	if err := d.store.AppendCommand(&storage.CommandEntry{
		ID:      sess.id,
		Command: command,
		Source:  "console",
		Success: success,
		Output:  output,
		Error:   errMsg,
		Time:    time.Now(),
	}); err != nil {
		d.logger.Warn().Err(err).Msg("failed to audit command")
	}
}
