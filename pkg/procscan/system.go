package procscan

import (
	"context"
	"fmt"
	"os/user"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v4/process"
)

// SystemLister lists OS processes through gopsutil.
type SystemLister struct{}

// NewSystemLister creates a lister for the local machine.
func NewSystemLister() *SystemLister {
	return &SystemLister{}
}

// CurrentUsername returns the name of the user running this program.
func CurrentUsername() string {
	u, err := user.Current()
	if err != nil {
		log.Warn().Err(err).Msg("could not determine current user")
		return ""
	}
	return u.Username
}

// List returns every inspectable process matching the filter.
func (l *SystemLister) List(ctx context.Context, filter Filter) ([]Process, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}

	result := make([]Process, 0, len(procs))
	skipped := 0
	for _, p := range procs {
		info, err := inspect(ctx, p, filter)
		if err != nil {
			skipped++
			continue
		}
		if info == nil {
			continue
		}
		result = append(result, *info)
	}

	log.Trace().Int("processes", len(result)).Int("skipped", skipped).Msg("process scan finished")
	return result, nil
}

// inspect reads the attributes of one process. It returns nil without an
// error when the process belongs to another user.
func inspect(ctx context.Context, p *process.Process, filter Filter) (*Process, error) {
	username, err := p.UsernameWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: pid %d username: %v", ErrAccessDenied, p.Pid, err)
	}
	if !filter.Matches(username) {
		return nil, nil
	}

	name, err := p.NameWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: pid %d name: %v", ErrAccessDenied, p.Pid, err)
	}

	exe, err := p.ExeWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: pid %d exe: %v", ErrAccessDenied, p.Pid, err)
	}

	created, err := p.CreateTimeWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: pid %d create time: %v", ErrAccessDenied, p.Pid, err)
	}

	// Some processes hide their arguments; an empty command line still
	// matches identifiers that only specify the executable.
	cmdline, err := p.CmdlineSliceWithContext(ctx)
	if err != nil {
		cmdline = nil
	}

	return &Process{
		PID:       p.Pid,
		Name:      name,
		Username:  username,
		Exe:       exe,
		Cmdline:   cmdline,
		CreatedAt: time.UnixMilli(created),
		Handle:    &processHandle{proc: p},
	}, nil
}

type processHandle struct {
	proc *process.Process
}

// IsRunning defers to gopsutil, which compares the creation time read at
// listing with the current one, so a recycled PID is not mistaken for the
// original process.
func (h *processHandle) IsRunning() bool {
	running, err := h.proc.IsRunning()
	if err != nil {
		log.Debug().Err(err).Int32("pid", h.proc.Pid).Msg("liveness check failed")
		return false
	}
	return running
}

func (h *processHandle) PID() int32 {
	return h.proc.Pid
}

// HandleForPID returns a handle for an already known PID.
func HandleForPID(pid int32) (Handle, error) {
	p, err := process.NewProcess(pid)
	if err != nil {
		return nil, fmt.Errorf("%w: pid %d: %v", ErrAccessDenied, pid, err)
	}
	return &processHandle{proc: p}, nil
}
