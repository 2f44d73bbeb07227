// Package daemon manages the background tracker process through its PID file.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/playtrack/playtrack/pkg/procscan"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// ChildEnv marks the forked child so it runs instead of forking again.
const ChildEnv = "PLAYTRACK_DAEMON_CHILD"

// ErrNotRunning is returned by Stop when no daemon is alive.
var ErrNotRunning = errors.New("daemon is not running or PID file is stale")

type Daemon struct {
	pidFile string
	clock   clockwork.Clock
}

func New(pidFile string) *Daemon {
	return &Daemon{pidFile: pidFile, clock: clockwork.NewRealClock()}
}

// WithClock replaces the clock used while waiting for the process to exit.
func (d *Daemon) WithClock(clock clockwork.Clock) *Daemon {
	d.clock = clock
	return d
}

func (d *Daemon) PIDFile() string {
	return d.pidFile
}

func (d *Daemon) WritePID() error {
	if err := os.MkdirAll(filepath.Dir(d.pidFile), 0o755); err != nil {
		return fmt.Errorf("failed to create PID directory: %w", err)
	}
	pid := os.Getpid()
	if err := os.WriteFile(d.pidFile, fmt.Appendf([]byte{}, "%d", pid), 0o644); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	log.Debug().Int("pid", pid).Str("file", d.pidFile).Msg("wrote PID file")
	return nil
}

// ReadPID returns 0 when the PID file does not exist.
func (d *Daemon) ReadPID() (int, error) {
	data, err := os.ReadFile(d.pidFile)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID in file: %w", err)
	}

	return pid, nil
}

func (d *Daemon) RemovePID() error {
	if err := os.Remove(d.pidFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}
	return nil
}

// IsRunning reports whether the PID file names a live process. A stale
// PID file is removed.
func (d *Daemon) IsRunning() (bool, int, error) {
	pid, err := d.ReadPID()
	if err != nil {
		return false, 0, err
	}

	if pid == 0 {
		return false, 0, nil
	}

	if !alive(pid) {
		log.Debug().Int("pid", pid).Msg("removing stale PID file")
		_ = d.RemovePID()
		return false, 0, nil
	}

	return true, pid, nil
}

func alive(pid int) bool {
	h, err := procscan.HandleForPID(int32(pid))
	if err != nil {
		return false
	}
	return h.IsRunning()
}

// Stop sends SIGTERM to the daemon and waits up to timeout for it to exit,
// so the running session is saved before Stop returns.
func (d *Daemon) Stop(ctx context.Context, timeout time.Duration) error {
	running, pid, err := d.IsRunning()
	if err != nil {
		return fmt.Errorf("error checking daemon status: %w", err)
	}

	if !running {
		return ErrNotRunning
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process: %w", err)
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			_ = d.RemovePID()
			return fmt.Errorf("daemon process already terminated")
		}
		return fmt.Errorf("failed to send SIGTERM: %w", err)
	}

	if err := d.waitExit(ctx, pid, timeout); err != nil {
		return err
	}

	return d.RemovePID()
}

func (d *Daemon) waitExit(ctx context.Context, pid int, timeout time.Duration) error {
	deadline := d.clock.After(timeout)
	ticker := d.clock.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for alive(pid) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("daemon (PID %d) did not exit within %s", pid, timeout)
		case <-ticker.Chan():
		}
	}
	return nil
}

// IsChild reports whether this process is the forked daemon.
func IsChild() bool {
	return os.Getenv(ChildEnv) == "1"
}

// Spawn re-executes the current binary with args as a detached child and
// returns its PID.
func Spawn(args []string) (int, error) {
	exe, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("failed to locate executable: %w", err)
	}

	env := append(os.Environ(), ChildEnv+"=1")
	procAttr := &os.ProcAttr{
		Env:   env,
		Files: []*os.File{nil, nil, nil},
		Sys: &syscall.SysProcAttr{
			Setsid: true,
		},
	}

	process, err := os.StartProcess(exe, append([]string{exe}, args...), procAttr)
	if err != nil {
		return 0, fmt.Errorf("failed to start daemon process: %w", err)
	}
	pid := process.Pid
	_ = process.Release()
	return pid, nil
}
