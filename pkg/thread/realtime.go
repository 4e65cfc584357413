package thread

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Policy is a real-time scheduling policy.
type Policy string

const (
	PolicyFIFO       Policy = "fifo"
	PolicyRoundRobin Policy = "rr"
)

const (
	MinPriority = 1
	MaxPriority = 99
)

// RealTime runs each function on a dedicated OS thread scheduled with a
// real-time policy. Setting the policy usually needs CAP_SYS_NICE; Spawn
// fails with the underlying error if the kernel refuses.
type RealTime struct {
	Policy   Policy
	Priority int
	// LockMemory locks the process address space (mlockall) before the
	// first real-time thread starts, avoiding page faults in the loop.
	LockMemory bool
	Log        logrus.FieldLogger
}

func (r RealTime) Validate() error {
	switch r.Policy {
	case PolicyFIFO, PolicyRoundRobin:
	default:
		return fmt.Errorf("unknown scheduling policy %q", r.Policy)
	}
	if r.Priority < MinPriority || r.Priority > MaxPriority {
		return fmt.Errorf("priority must be between %d and %d, got %d", MinPriority, MaxPriority, r.Priority)
	}
	return nil
}

func (r RealTime) Spawn(ctx context.Context, name string, fn func(context.Context)) (*Handle, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if r.LockMemory {
		if err := lockMemory(); err != nil {
			return nil, fmt.Errorf("locking memory: %w", err)
		}
	}
	h, err := spawnLocked(ctx, r.Log, name, "realtime-"+string(r.Policy), func() error {
		return setScheduler(r.Policy, r.Priority)
	}, fn)
	if err != nil {
		return nil, fmt.Errorf("spawning %s: %w", name, err)
	}
	return h, nil
}
