package worker

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/domain"
)

// executeRun materializes and runs a claimed run end to end (spec.md
// §4.3 steps 1-8): fetch+verify the artifact, assemble env and arguments,
// spawn the entrypoint, stream its output, poll for cancellation,
// enforce the timeout, and report the outcome.
func (w *Worker) executeRun(ctx context.Context, runID uuid.UUID) {
	run, err := w.store.GetRun(ctx, runID)
	if err != nil {
		w.log.Error("executor: could not load claimed run", "run_id", runID, "err", err)
		return
	}
	version, err := w.store.GetVersionByID(ctx, run.RobotVersionID)
	if err != nil {
		w.failDispatch(ctx, runID, fmt.Sprintf("version lookup failed: %v", err))
		return
	}
	sched, _ := w.store.GetScheduleByRobot(ctx, run.RobotID) // nil is a valid "no schedule" state

	scratch := filepath.Join(w.cfg.ScratchRoot, runID.String())
	defer os.RemoveAll(scratch)

	artifactPath, err := w.artifact.FetchAndVerify(version.ArtifactDigest, artifactFileName(version), scratch)
	if err != nil {
		w.failDispatch(ctx, runID, err.Error())
		return
	}
	if version.ArtifactKind == domain.ArtifactKindZip {
		if err := unzip(artifactPath, scratch); err != nil {
			w.failDispatch(ctx, runID, fmt.Sprintf("artifact extraction failed: %v", err))
			return
		}
	}

	env, err := w.engine.AssembleEnv(ctx, run.RobotID, run.EnvName, version.DefaultEnv, version.RequiredEnvKeys, run.Parameters.RuntimeEnv)
	if err != nil {
		w.failDispatch(ctx, runID, err.Error())
		return
	}
	args := append(append([]string{}, version.DefaultArguments...), run.Parameters.RuntimeArguments...)

	if err := w.engine.ReportStart(ctx, runID, w.cfg.Hostname, os.Getpid()); err != nil {
		w.log.Warn("executor: ReportStart failed", "run_id", runID, "err", err)
	}

	timeout := w.timeoutFor(run, sched)
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := w.buildCommand(runCtx, version, scratch, args, env)
	outcome, errMsg := w.runChild(runCtx, cmd, runID)

	if outcome == domain.RunFailed && runCtx.Err() == context.DeadlineExceeded {
		errMsg = "TIMEOUT"
	}

	artifacts := w.registerArtifacts(scratch, runID)
	if err := w.engine.ReportFinish(ctx, runID, outcome, errMsg, artifacts); err != nil {
		w.log.Error("executor: ReportFinish failed", "run_id", runID, "err", err)
	}
}

func (w *Worker) timeoutFor(run *domain.Run, sched *domain.Schedule) time.Duration {
	if run.TriggerType == domain.TriggerManual || sched == nil || sched.TimeoutSeconds <= 0 {
		return time.Duration(w.cfg.DefaultTimeoutSeconds) * time.Second
	}
	return time.Duration(sched.TimeoutSeconds) * time.Second
}

func (w *Worker) buildCommand(ctx context.Context, version *domain.RobotVersion, scratch string, args []string, env map[string]string) *exec.Cmd {
	entrypoint := filepath.Join(scratch, version.EntrypointPath)
	var cmd *exec.Cmd
	switch version.EntrypointKind {
	case domain.EntrypointScript:
		cmd = exec.CommandContext(ctx, "python3", append([]string{entrypoint}, args...)...)
	default: // EntrypointBinary
		cmd = exec.CommandContext(ctx, entrypoint, args...)
	}
	cmd.Dir = scratch
	if version.WorkingDir != "" {
		cmd.Dir = filepath.Join(scratch, version.WorkingDir)
	}
	cmd.Env = os.Environ()
	for k, v := range env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	return cmd
}

// runChild spawns cmd, forwards its stdout/stderr into AppendLog line by
// line (plus a scratch log file per the executor.py-derived expansion in
// SPEC_FULL §5.8), and runs a cancel-poll goroutine alongside it.
func (w *Worker) runChild(ctx context.Context, cmd *exec.Cmd, runID uuid.UUID) (domain.RunStatus, string) {
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return domain.RunFailed, fmt.Sprintf("stdout pipe: %v", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return domain.RunFailed, fmt.Sprintf("stderr pipe: %v", err)
	}

	scratchLog, err := os.Create(filepath.Join(cmd.Dir, "run.log"))
	if err == nil {
		defer scratchLog.Close()
	}

	if err := cmd.Start(); err != nil {
		return domain.RunFailed, fmt.Sprintf("spawn failed: %v", err)
	}

	pollCtx, stopPoll := context.WithCancel(ctx)
	defer stopPoll()
	canceled := make(chan struct{}, 1)
	go w.pollCancel(pollCtx, runID, cmd, canceled)

	go w.streamLines(runID, stdout, domain.LogInfo, scratchLog)
	go w.streamLines(runID, stderr, domain.LogError, scratchLog)

	waitErr := cmd.Wait()

	select {
	case <-canceled:
		return domain.RunCanceled, ""
	default:
	}

	if ctx.Err() == context.DeadlineExceeded {
		return domain.RunFailed, "TIMEOUT"
	}
	if waitErr == nil {
		return domain.RunSuccess, ""
	}
	if exitErr, ok := waitErr.(*exec.ExitError); ok {
		return domain.RunFailed, fmt.Sprintf("exit code %d", exitErr.ExitCode())
	}
	return domain.RunFailed, waitErr.Error()
}

func (w *Worker) streamLines(runID uuid.UUID, r io.Reader, level domain.LogLevel, scratchLog io.Writer) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if scratchLog != nil {
			fmt.Fprintln(scratchLog, line)
		}
		if err := w.engine.AppendLog(context.Background(), runID, level, line); err != nil {
			w.log.Warn("executor: AppendLog failed", "run_id", runID, "err", err)
		}
	}
}

// pollCancel checks cancel_requested every CancelPollInterval; on true it
// sends SIGTERM, waits CancelGraceSeconds, then SIGKILLs, per spec.md
// §4.3 step 6. It also consumes the control channel, which carries a
// forced-kill signal from RunEngine when a previous cancel grace period
// already elapsed without this worker reporting finish — the case where
// the poll loop itself missed the flag (e.g. this process restarted
// mid-run and re-attached).
func (w *Worker) pollCancel(ctx context.Context, runID uuid.UUID, cmd *exec.Cmd, canceled chan<- struct{}) {
	ticker := time.NewTicker(w.cfg.CancelPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			flagged := false
			if run, err := w.store.GetRun(ctx, runID); err == nil && run.CancelRequested {
				flagged = true
			}
			if !flagged && w.control != nil {
				if killed, err := w.control.Consume(ctx, w.cfg.WorkerID, runID); err == nil && killed {
					flagged = true
				}
			}
			if !flagged {
				continue
			}
			canceled <- struct{}{}
			if cmd.Process != nil {
				_ = cmd.Process.Signal(syscall.SIGTERM)
			}
			select {
			case <-time.After(time.Duration(w.cfg.CancelGraceSeconds) * time.Second):
				if cmd.Process != nil {
					_ = cmd.Process.Kill()
				}
			case <-ctx.Done():
			}
			return
		}
	}
}

// registerArtifacts walks the run's scratch directory after the child
// exits and records every regular file left there as an Artifact — the
// executor.py-derived expansion documented in SPEC_FULL §5.8, in addition
// to any artifacts a future service-run_template mechanism declares
// explicitly.
func (w *Worker) registerArtifacts(scratch string, runID uuid.UUID) []domain.Artifact {
	var out []domain.Artifact
	_ = filepath.Walk(scratch, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() || info.Name() == "run.log" {
			return nil
		}
		rel, relErr := filepath.Rel(scratch, path)
		if relErr != nil {
			rel = info.Name()
		}
		out = append(out, domain.Artifact{
			ID:        uuid.New(),
			RunID:     runID,
			Name:      rel,
			Path:      path,
			SizeBytes: info.Size(),
		})
		return nil
	})
	return out
}

func (w *Worker) failDispatch(ctx context.Context, runID uuid.UUID, reason string) {
	if err := w.engine.ReportFinish(ctx, runID, domain.RunFailed, reason, nil); err != nil {
		w.log.Error("executor: failDispatch could not report finish", "run_id", runID, "err", err)
	}
}

func artifactFileName(v *domain.RobotVersion) string {
	if v.ArtifactKind == domain.ArtifactKindZip {
		return "artifact.zip"
	}
	return filepath.Base(v.EntrypointPath)
}
