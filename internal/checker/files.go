package checker

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hazz-dev/shipcheck/internal/config"
)

// EntryStatus records the probe of one required file or directory.
type EntryStatus struct {
	Path  string `json:"path"`
	Found bool   `json:"found"`
	Error string `json:"error,omitempty"`
}

type fileChecker struct {
	root  string
	files []string
	dirs  []string
}

// NewFileChecker checks that every required file and directory exists under root.
func NewFileChecker(root string, req config.FileStructure) Checker {
	return &fileChecker{root: root, files: req.RequiredFiles, dirs: req.RequiredDirs}
}

func (c *fileChecker) Name() string { return NameFileStructure }

func (c *fileChecker) Check(_ context.Context) CheckResult {
	result, start := begin(NameFileStructure)
	result.Details["root"] = c.root

	entries, err := os.ReadDir(c.root)
	if err != nil {
		result.Status = StatusError
		result.Summary = fmt.Sprintf("cannot list project root %q: %v", c.root, err)
		result.Details["error"] = err.Error()
		result.Duration = time.Since(start)
		return result
	}

	listing := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		listing = append(listing, name)
	}

	files, missingFiles, filesFaulted := probeEntries(c.root, c.files, false)
	dirs, missingDirs, dirsFaulted := probeEntries(c.root, c.dirs, true)

	result.Details["files"] = files
	result.Details["dirs"] = dirs
	result.Details["missing_files"] = missingFiles
	result.Details["missing_dirs"] = missingDirs
	result.Details["total_files_checked"] = len(c.files)
	result.Details["total_dirs_checked"] = len(c.dirs)
	result.Details["files_found"] = len(c.files) - len(missingFiles)
	result.Details["dirs_found"] = len(c.dirs) - len(missingDirs)
	result.Details["root_listing"] = listing

	switch {
	case filesFaulted || dirsFaulted:
		result.Status = StatusError
		result.Summary = "could not probe every required entry"
	case len(missingFiles) > 0 || len(missingDirs) > 0:
		result.Status = StatusFail
		result.Summary = fmt.Sprintf("Missing %d files and %d directories", len(missingFiles), len(missingDirs))
	default:
		result.Status = StatusPass
		result.Summary = fmt.Sprintf("All %d files and %d directories found", len(c.files), len(c.dirs))
	}
	result.Duration = time.Since(start)
	return result
}

// probeEntries stats each entry under root. faulted is true when a stat failed
// for a reason other than the entry being absent.
func probeEntries(root string, entries []string, wantDir bool) (statuses []EntryStatus, missing []string, faulted bool) {
	statuses = make([]EntryStatus, 0, len(entries))
	missing = []string{}
	for _, entry := range entries {
		st := EntryStatus{Path: entry}
		rel := filepath.FromSlash(strings.TrimSuffix(entry, "/"))
		info, err := os.Stat(filepath.Join(root, rel))
		switch {
		case err == nil && wantDir && !info.IsDir():
			st.Error = "not a directory"
		case err == nil && !wantDir && !info.Mode().IsRegular():
			st.Error = "not a regular file"
		case err == nil:
			st.Found = true
		case errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR):
			// Absent; recorded as missing without an error.
		default:
			st.Error = err.Error()
			faulted = true
		}
		if !st.Found {
			missing = append(missing, entry)
		}
		statuses = append(statuses, st)
	}
	return statuses, missing, faulted
}
