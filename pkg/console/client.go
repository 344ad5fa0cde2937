package console

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/AetheriusMC/aetherius/pkg/daemon"
)

// ErrDaemonGone means the daemon closed the socket under us
var ErrDaemonGone = errors.New("console daemon closed the connection")

// Client is one interactive console session against a running daemon.
// It streams log frames to Out as they arrive and sends command frames
// for every line read from In.
type Client struct {
	conn net.Conn
	In   io.Reader
	Out  io.Writer
	Err  io.Writer
}

// Dial connects to the daemon socket
func Dial(socketPath string) (*Client, error) {
	conn, err := net.DialTimeout("unix", socketPath, 2*time.Second)
	if err != nil {
		return nil, fmt.Errorf("no daemon at %s (is 'aetherius start' running?): %w", socketPath, err)
	}
	return &Client{
		conn: conn,
		In:   os.Stdin,
		Out:  os.Stdout,
		Err:  os.Stderr,
	}, nil
}

// Close tears down the connection. The daemon keeps running.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Run is the interactive loop: a reader goroutine prints every frame
// from the daemon while the main loop forwards stdin lines. Typing
// "quit" or "exit" leaves the console; the daemon and the game server
// stay up. "!quit" asks the daemon itself to shut down.
func (c *Client) Run(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- c.readLoop() }()

	enc := json.NewEncoder(c.conn)
	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(c.In)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			c.conn.Close()
			<-done
			return ctx.Err()
		case err := <-done:
			return err
		case line, ok := <-lines:
			if !ok {
				c.conn.Close()
				<-done
				return nil
			}
			trimmed := strings.TrimSpace(line)
			if trimmed == "quit" || trimmed == "exit" {
				fmt.Fprintln(c.Out, "leaving console; the server keeps running")
				c.conn.Close()
				<-done
				return nil
			}
			if trimmed == "" {
				continue
			}
			if err := enc.Encode(&daemon.Frame{Type: daemon.FrameCommand, Command: trimmed}); err != nil {
				return fmt.Errorf("failed to send command: %w", err)
			}
		}
	}
}

func (c *Client) readLoop() error {
	sc := bufio.NewScanner(c.conn)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var f daemon.Frame
		if err := json.Unmarshal(sc.Bytes(), &f); err != nil {
			continue
		}
		c.printFrame(&f)
	}
	if errors.Is(sc.Err(), net.ErrClosed) || sc.Err() == nil {
		return nil
	}
	return ErrDaemonGone
}

func (c *Client) printFrame(f *daemon.Frame) {
	switch f.Type {
	case daemon.FrameLog:
		if f.IsError {
			fmt.Fprintln(c.Err, f.Content)
		} else {
			fmt.Fprintln(c.Out, f.Content)
		}
	case daemon.FrameResponse:
		if f.Success {
			if f.Output != "" {
				fmt.Fprintln(c.Out, f.Output)
			} else {
				fmt.Fprintln(c.Out, "ok")
			}
		} else {
			fmt.Fprintf(c.Err, "error: %s\n", f.Error)
		}
	}
}

// Execute sends a single command and returns the response frame. Log
// frames arriving in between are discarded; this is the non-interactive
// path behind `aetherius cmd`.
func Execute(socketPath, command string, timeout time.Duration) (*daemon.Frame, error) {
	conn, err := net.DialTimeout("unix", socketPath, 2*time.Second)
	if err != nil {
		return nil, fmt.Errorf("no daemon at %s (is 'aetherius start' running?): %w", socketPath, err)
	}
	defer conn.Close()

	if timeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
			return nil, err
		}
	}

	if err := json.NewEncoder(conn).Encode(&daemon.Frame{
		Type:    daemon.FrameCommand,
		Command: command,
	}); err != nil {
		return nil, fmt.Errorf("failed to send command: %w", err)
	}

	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var f daemon.Frame
		if err := json.Unmarshal(sc.Bytes(), &f); err != nil {
			continue
		}
		if f.Type == daemon.FrameResponse {
			return &f, nil
		}
	}
	if sc.Err() != nil {
		return nil, sc.Err()
	}
	return nil, ErrDaemonGone
}
