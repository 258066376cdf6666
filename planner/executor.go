package planner

import (
	"fmt"

	"golang.org/x/sys/unix"

	"go.uber.org/zap"

	"github.com/joyshmitz/process-triage-sub001/model"
)

// ExecutionResult is the outcome of carrying out one Step.
type ExecutionResult struct {
	Step    Step
	Applied bool
	Error   string
}

// Executor carries out plan steps by delivering signals to the effective
// target. Throttle is best-effort: it attempts a cgroup cpu.max write and
// falls back to SIGSTOP-based pausing if the cgroup interface is
// unavailable, the same degrade-gracefully posture the teacher takes
// toward optional kernel interfaces.
type Executor struct {
	logger       *zap.Logger
	cgroupWriter func(pid uint32, quota string) error
}

// NewExecutor builds an Executor. cgroupWriter may be nil, in which case
// throttle always falls back to SIGSTOP.
func NewExecutor(logger *zap.Logger, cgroupWriter func(pid uint32, quota string) error) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{logger: logger, cgroupWriter: cgroupWriter}
}

// Run executes step against its (already routed) Target. Run itself does
// not run or re-verify pre-checks; callers must gate on precheck.AllPassed
// before calling.
func (e *Executor) Run(step Step) ExecutionResult {
	if step.Blocked {
		return ExecutionResult{Step: step, Applied: false, Error: "blocked: " + step.BlockReason}
	}

	pid := int(step.Target.PID)
	var err error

	switch step.Operation {
	case model.ActionKeep:
		// no-op: investigate-only or already-safe candidate.
	case model.ActionPause:
		err = unix.Kill(pid, unix.SIGSTOP)
	case model.ActionThrottle:
		err = e.throttle(step.Target.PID)
	case model.ActionRestart:
		err = unix.Kill(pid, unix.SIGTERM)
	case model.ActionKill:
		err = unix.Kill(pid, unix.SIGKILL)
	}

	if err != nil {
		e.logger.Warn("step execution failed",
			zap.Uint32("pid", step.Target.PID), zap.String("operation", step.Operation.String()), zap.Error(err))
		return ExecutionResult{Step: step, Applied: false, Error: err.Error()}
	}
	return ExecutionResult{Step: step, Applied: true}
}

// throttle attempts a cgroup cpu.max write; if no cgroupWriter is wired up
// (or the write fails), it degrades to SIGSTOP, which at least bounds the
// process's CPU consumption at the cost of fully pausing it rather than
// rate-limiting it.
func (e *Executor) throttle(pid uint32) error {
	if e.cgroupWriter != nil {
		if err := e.cgroupWriter(pid, "50000 100000"); err == nil {
			return nil
		}
		e.logger.Debug("cgroup throttle unavailable, degrading to SIGSTOP", zap.Uint32("pid", pid))
	}
	return unix.Kill(int(pid), unix.SIGSTOP)
}

// Resume delivers SIGCONT to reverse an earlier pause/SIGSTOP-degraded
// throttle, since both of those actions are documented as reversible
// (model.Action.IsReversible).
func (e *Executor) Resume(pid uint32) error {
	return unix.Kill(int(pid), unix.SIGCONT)
}

// VerifyGroup checks that pid's process group still matches expected,
// guarding against a routed step landing on a PID that has since been
// reused by an unrelated process (the identity package's StartID check is
// the authoritative guard; this is a cheap secondary sanity check specific
// to signal delivery).
func VerifyGroup(pid uint32, expectedPgrp uint32) error {
	pgrp, err := unix.Getpgid(int(pid))
	if err != nil {
		return err
	}
	if uint32(pgrp) != expectedPgrp {
		return fmt.Errorf("pid %d process group changed (got %d, want %d)", pid, pgrp, expectedPgrp)
	}
	return nil
}
