package source

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// DefaultTerminateWait bounds how long Terminate waits for an exit after
// signaling.
const DefaultTerminateWait = 3 * time.Second

// Terminate sends SIGTERM to pid and waits up to wait for the process to
// exit. With force set, a process still alive at the deadline receives
// SIGKILL; otherwise the survivor is reported as an error. This is a
// presentation-layer side effect: the snapshot cache is not touched and
// the caller is expected to remove the record and trigger a refresh.
func Terminate(ctx context.Context, pid int32, wait time.Duration, force bool) error {
	if wait <= 0 {
		wait = DefaultTerminateWait
	}
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return fmt.Errorf("find process %d: %w", pid, err)
	}
	if err := p.TerminateWithContext(ctx); err != nil {
		return fmt.Errorf("terminate process %d: %w", pid, err)
	}
	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		running, err := p.IsRunningWithContext(ctx)
		if err != nil || !running {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
	if !force {
		return fmt.Errorf("process %d still running after %s", pid, wait)
	}
	if err := p.KillWithContext(ctx); err != nil {
		return fmt.Errorf("kill process %d: %w", pid, err)
	}
	return nil
}
