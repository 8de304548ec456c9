// Package evidence persists check results and run reports as timestamped
// files in the evidence directory, optionally mirroring them to object
// storage.
package evidence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/hazz-dev/shipcheck/internal/checker"
	"github.com/hazz-dev/shipcheck/internal/fault"
	"github.com/hazz-dev/shipcheck/internal/logger"
)

const (
	reportPrefix = "verification_report_"
	reportSuffix = ".txt"
)

// ErrNoReport is returned by LatestReport when no run has written a report yet.
var ErrNoReport = errors.New("no verification report found")

// Artifact describes one evidence file produced by a run.
type Artifact struct {
	Name string
	Path string
	// Err is set when the local write failed.
	Err error
	// MirrorErr is set when the local write succeeded but the upload did not.
	MirrorErr error
}

// OK reports whether the artifact was written locally.
func (a Artifact) OK() bool {
	return a.Err == nil
}

// Writer writes evidence artifacts into a single directory.
type Writer struct {
	dir    string
	mirror Mirror
	logger *zap.Logger
}

// NewWriter creates a Writer for dir. mirror may be nil. Pass nil logger to
// discard logs.
func NewWriter(dir string, mirror Mirror, log *zap.Logger) *Writer {
	return &Writer{dir: dir, mirror: mirror, logger: logger.OrNop(log)}
}

// ResultFileName returns the artifact name of a check result for runID.
func ResultFileName(checkName, runID string) string {
	return fmt.Sprintf("%s_%s.json", checkName, runID)
}

// ReportFileName returns the artifact name of the run report for runID.
func ReportFileName(runID string) string {
	return reportPrefix + runID + reportSuffix
}

// WriteResult stores r as <check_name>_<runID>.json.
func (w *Writer) WriteResult(ctx context.Context, runID string, r checker.CheckResult) (Artifact, error) {
	name := ResultFileName(r.Name, runID)
	data, err := json.MarshalIndent(r.Record(runID), "", "  ")
	if err != nil {
		a := Artifact{Name: r.Name, Path: filepath.Join(w.dir, name), Err: err}
		return a, fault.Wrap(fault.EvidenceWrite, "encode "+name, err)
	}
	return w.write(ctx, r.Name, name, append(data, '\n'), "application/json")
}

// WriteReport stores the rendered report as verification_report_<runID>.txt.
func (w *Writer) WriteReport(ctx context.Context, runID, text string) (Artifact, error) {
	return w.write(ctx, "report", ReportFileName(runID), []byte(text), "text/plain; charset=utf-8")
}

func (w *Writer) write(ctx context.Context, label, name string, data []byte, contentType string) (Artifact, error) {
	a := Artifact{Name: label, Path: filepath.Join(w.dir, name)}

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		a.Err = fmt.Errorf("creating evidence dir: %w", err)
		return a, fault.Wrap(fault.EvidenceWrite, "write "+name, a.Err)
	}
	if err := writeAtomic(a.Path, data); err != nil {
		a.Err = err
		return a, fault.Wrap(fault.EvidenceWrite, "write "+name, err)
	}
	w.logger.Debug("evidence written", zap.String("path", a.Path), zap.Int("bytes", len(data)))

	if w.mirror != nil {
		if err := w.mirror.Upload(ctx, name, data, contentType); err != nil {
			a.MirrorErr = err
			w.logger.Warn("mirroring evidence", zap.String("file", name), zap.Error(err))
		}
	}
	return a, nil
}

// writeAtomic replaces path with data. Readers see either the old content or
// the complete new content.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("writing %q: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("syncing %q: %w", tmpName, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		cleanup()
		return fmt.Errorf("chmod %q: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing %q: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming into %q: %w", path, err)
	}
	return nil
}

// LatestReport returns the path and content of the newest run report. Report
// names embed the run ID, so lexical order is chronological.
func (w *Writer) LatestReport() (string, string, error) {
	entries, err := os.ReadDir(w.dir)
	if errors.Is(err, os.ErrNotExist) {
		return "", "", ErrNoReport
	}
	if err != nil {
		return "", "", fmt.Errorf("listing evidence dir: %w", err)
	}

	var reports []string
	for _, e := range entries {
		name := e.Name()
		if e.Type().IsRegular() && strings.HasPrefix(name, reportPrefix) && strings.HasSuffix(name, reportSuffix) {
			reports = append(reports, name)
		}
	}
	if len(reports) == 0 {
		return "", "", ErrNoReport
	}
	sort.Strings(reports)

	path := filepath.Join(w.dir, reports[len(reports)-1])
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("reading report: %w", err)
	}
	return path, string(data), nil
}
