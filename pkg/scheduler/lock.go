package scheduler

import (
	"context"
	"slices"

	ps "github.com/mitchellh/go-ps"
)

// DefaultLockers are screen lockers whose presence means the session is locked.
var DefaultLockers = []string{"swaylock", "waylock", "gtklock", "hyprlock"}

// LockDetector reports whether the screen is locked.
type LockDetector interface {
	Locked(ctx context.Context) bool
}

// ProcLockDetector looks for a running screen locker in the process table.
type ProcLockDetector struct {
	Names []string
	// List returns the running processes; nil means ps.Processes.
	List func() ([]ps.Process, error)
}

// NewProcLockDetector returns a detector for DefaultLockers.
func NewProcLockDetector() *ProcLockDetector {
	return &ProcLockDetector{Names: DefaultLockers, List: ps.Processes}
}

// Locked reports false when the process table cannot be read.
func (d *ProcLockDetector) Locked(ctx context.Context) bool {
	list := d.List
	if list == nil {
		list = ps.Processes
	}

	procs, err := list()
	if err != nil {
		return false
	}
	for _, p := range procs {
		if ctx.Err() != nil {
			return false
		}
		if slices.Contains(d.Names, p.Executable()) {
			return true
		}
	}
	return false
}
