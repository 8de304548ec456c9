// Package verify runs the checkers in a fixed order and turns their results
// into a single verification run with evidence and a report.
package verify

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hazz-dev/shipcheck/internal/checker"
	"github.com/hazz-dev/shipcheck/internal/evidence"
	"github.com/hazz-dev/shipcheck/internal/logger"
)

// RunIDLayout formats a run's start time into its ID.
const RunIDLayout = "20060102_150405"

// Writer defines the evidence operations required by the runner.
type Writer interface {
	WriteResult(ctx context.Context, runID string, r checker.CheckResult) (evidence.Artifact, error)
	WriteReport(ctx context.Context, runID, text string) (evidence.Artifact, error)
}

// Recorder receives run metrics.
type Recorder interface {
	ObserveCheck(check, status string, d time.Duration)
	ObserveRun(status string, d time.Duration, finished time.Time)
	EvidenceFailed(artifact string)
}

// Run is the outcome of one verification. It is not modified after Runner.Run
// returns it.
type Run struct {
	ID         string
	Project    string
	Phase      string
	StartedAt  time.Time
	FinishedAt time.Time
	Results    []checker.CheckResult
	Overall    checker.Status
	// Artifacts holds one entry per result, in order, followed by the report.
	Artifacts  []evidence.Artifact
	Report     string
	ReportPath string
}

// Passed returns the number of PASS results.
func (r *Run) Passed() int {
	n := 0
	for _, res := range r.Results {
		if res.Status == checker.StatusPass {
			n++
		}
	}
	return n
}

// OK reports whether the overall status is PASS.
func (r *Run) OK() bool {
	return r.Overall == checker.StatusPass
}

// Duration is the wall time of the run.
func (r *Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// EvidenceErrors returns the artifacts that could not be written.
func (r *Run) EvidenceErrors() []evidence.Artifact {
	var failed []evidence.Artifact
	for _, a := range r.Artifacts {
		if a.Err != nil {
			failed = append(failed, a)
		}
	}
	return failed
}

// Runner executes every checker once per run. Concurrent calls to Run are
// serialized.
type Runner struct {
	mu       sync.Mutex
	project  string
	checkers []checker.Checker
	writer   Writer
	recorder Recorder
	logger   *zap.Logger
	now      func() time.Time
}

// New creates a Runner. Pass nil logger to discard logs.
func New(project string, checkers []checker.Checker, writer Writer, log *zap.Logger) *Runner {
	return &Runner{
		project:  project,
		checkers: checkers,
		writer:   writer,
		logger:   logger.OrNop(log),
		now:      time.Now,
	}
}

// SetRecorder sets the metrics sink invoked after each check and run.
func (r *Runner) SetRecorder(rec Recorder) {
	r.recorder = rec
}

// SetClock replaces the clock used to stamp runs.
func (r *Runner) SetClock(now func() time.Time) {
	r.now = now
}

// Run executes all checkers in order, writes their evidence and the report,
// and returns the completed run. Every checker runs regardless of earlier
// outcomes.
func (r *Runner) Run(ctx context.Context, phase string) *Run {
	r.mu.Lock()
	defer r.mu.Unlock()

	run := &Run{
		Project:   r.project,
		Phase:     phase,
		StartedAt: r.now(),
		Overall:   checker.StatusPass,
	}
	run.ID = run.StartedAt.Format(RunIDLayout)
	log := r.logger.With(zap.String("run_id", run.ID), zap.String("phase", phase))
	log.Info("verification started", zap.Int("checks", len(r.checkers)))

	for _, c := range r.checkers {
		result := r.runCheck(ctx, c)
		fields := []zap.Field{
			zap.String("check", result.Name),
			zap.String("status", string(result.Status)),
			zap.Duration("duration", result.Duration),
			zap.String("summary", result.Summary),
		}
		if kind := result.Status.FaultKind(); kind != "" {
			log.Warn("check result", append(fields, zap.String("kind", string(kind)))...)
		} else {
			log.Info("check result", fields...)
		}
		if r.recorder != nil {
			r.recorder.ObserveCheck(result.Name, string(result.Status), result.Duration)
		}

		art, err := r.writer.WriteResult(ctx, run.ID, result)
		if err != nil {
			r.evidenceFailed(log, art, err)
		}
		run.Results = append(run.Results, result)
		run.Artifacts = append(run.Artifacts, art)

		if result.Status != checker.StatusPass {
			run.Overall = checker.StatusFail
		}
	}

	run.Report = Render(run)
	art, err := r.writer.WriteReport(ctx, run.ID, run.Report)
	if err != nil {
		r.evidenceFailed(log, art, err)
	} else {
		run.ReportPath = art.Path
	}
	run.Artifacts = append(run.Artifacts, art)
	run.FinishedAt = r.now()

	if r.recorder != nil {
		r.recorder.ObserveRun(string(run.Overall), run.Duration(), run.FinishedAt)
	}
	log.Info("verification finished",
		zap.String("overall", string(run.Overall)),
		zap.String("passed", fmt.Sprintf("%d/%d", run.Passed(), len(run.Results))),
		zap.String("report", run.ReportPath),
	)
	return run
}

func (r *Runner) evidenceFailed(log *zap.Logger, art evidence.Artifact, err error) {
	log.Error("writing evidence", zap.String("artifact", art.Name), zap.Error(err))
	if r.recorder != nil {
		r.recorder.EvidenceFailed(art.Name)
	}
}

// runCheck invokes c, turning a panic into an ERROR result so the run goes on.
func (r *Runner) runCheck(ctx context.Context, c checker.Checker) (result checker.CheckResult) {
	start := r.now()
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("checker panicked",
				zap.String("check", c.Name()),
				zap.Any("panic", p),
				zap.ByteString("stack", debug.Stack()),
			)
			result = checker.CheckResult{
				Name:      c.Name(),
				Status:    checker.StatusError,
				Summary:   fmt.Sprintf("checker panicked: %v", p),
				Timestamp: start,
				Duration:  r.now().Sub(start),
				Details:   checker.Details{"error": fmt.Sprint(p)},
			}
		}
	}()
	return c.Check(ctx)
}
