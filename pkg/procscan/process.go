// Package procscan enumerates running processes for the identifier plugins.
package procscan

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrAccessDenied marks a process that could not be inspected, either
// because of permissions or because it exited during the scan.
var ErrAccessDenied = errors.New("process access denied")

// Handle is a live reference to something that can stop running: an OS
// process or a synthetic stand-in for one.
type Handle interface {
	// IsRunning reports whether the process is still alive. The answer may
	// be stale by up to one poll interval.
	IsRunning() bool

	// PID returns the OS process ID, or 0 for synthetic handles.
	PID() int32
}

// Process is a snapshot of one running process.
type Process struct {
	PID       int32
	Name      string
	Username  string
	Exe       string
	Cmdline   []string
	CreatedAt time.Time
	Handle    Handle
}

// CommandLine joins the arguments with single spaces and trims trailing
// whitespace.
func (p Process) CommandLine() string {
	return JoinCmdline(p.Cmdline)
}

// JoinCmdline joins arguments with single spaces and trims trailing whitespace.
func JoinCmdline(args []string) string {
	return strings.TrimRight(strings.Join(args, " "), " \t\r\n")
}

// Filter narrows a process listing.
type Filter struct {
	// Username keeps only processes whose owner ends with this name, so
	// that "DOMAIN\user" matches "user". Empty keeps every process.
	Username string
}

// Matches reports whether the process owner satisfies the filter.
func (f Filter) Matches(username string) bool {
	if f.Username == "" {
		return true
	}
	return strings.HasSuffix(username, f.Username)
}

// Lister is the process enumeration capability. Implementations skip
// processes that fail inspection instead of aborting the scan.
type Lister interface {
	List(ctx context.Context, filter Filter) ([]Process, error)
}
