package checker_test

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazz-dev/shipcheck/internal/checker"
	"github.com/hazz-dev/shipcheck/internal/config"
)

func makeProject(t *testing.T, files []string, dirs []string) string {
	t.Helper()
	root := t.TempDir()
	for _, d := range dirs {
		require.NoError(t, os.MkdirAll(filepath.Join(root, d), 0o755))
	}
	for _, f := range files {
		path := filepath.Join(root, f)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	}
	return root
}

var projectLayout = config.FileStructure{
	RequiredFiles: []string{"main.py", "requirements.txt", "src/app.py"},
	RequiredDirs:  []string{"src/", "tests/", "data"},
}

func TestFileChecker_AllPresent(t *testing.T) {
	root := makeProject(t, projectLayout.RequiredFiles, projectLayout.RequiredDirs)

	result := checker.NewFileChecker(root, projectLayout).Check(context.Background())

	require.Equal(t, checker.StatusPass, result.Status, result.Summary)
	assert.Equal(t, checker.NameFileStructure, result.Name)
	assert.Equal(t, []string{"data/", "main.py", "requirements.txt", "src/", "tests/"}, result.Details["root_listing"])
	assert.Empty(t, result.Details["missing_files"])
	assert.Empty(t, result.Details["missing_dirs"])
	assert.Equal(t, 3, result.Details["files_found"])

	for _, st := range result.Details["files"].([]checker.EntryStatus) {
		assert.True(t, st.Found, st.Path)
	}
}

func TestFileChecker_RemovingAnyEntryFails(t *testing.T) {
	entries := append(append([]string{}, projectLayout.RequiredFiles...), projectLayout.RequiredDirs...)
	for _, removed := range entries {
		t.Run(removed, func(t *testing.T) {
			root := makeProject(t, projectLayout.RequiredFiles, projectLayout.RequiredDirs)
			require.NoError(t, os.RemoveAll(filepath.Join(root, filepath.FromSlash(removed))))

			result := checker.NewFileChecker(root, projectLayout).Check(context.Background())
			assert.Equal(t, checker.StatusFail, result.Status)

			missing := append(result.Details["missing_files"].([]string), result.Details["missing_dirs"].([]string)...)
			assert.Contains(t, missing, removed)
		})
	}
}

func TestFileChecker_WrongKind(t *testing.T) {
	root := makeProject(t, []string{"data"}, []string{"main.py"})
	layout := config.FileStructure{RequiredFiles: []string{"main.py"}, RequiredDirs: []string{"data/"}}

	result := checker.NewFileChecker(root, layout).Check(context.Background())

	assert.Equal(t, checker.StatusFail, result.Status)
	files := result.Details["files"].([]checker.EntryStatus)
	dirs := result.Details["dirs"].([]checker.EntryStatus)
	assert.Equal(t, checker.EntryStatus{Path: "main.py", Error: "not a regular file"}, files[0])
	assert.Equal(t, checker.EntryStatus{Path: "data/", Error: "not a directory"}, dirs[0])
}

func TestFileChecker_MissingRootIsError(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nope")
	result := checker.NewFileChecker(root, projectLayout).Check(context.Background())

	assert.Equal(t, checker.StatusError, result.Status)
	assert.NotEmpty(t, result.Details["error"])
}

func TestFileChecker_UnreadableRootIsError(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced")
	}
	root := makeProject(t, projectLayout.RequiredFiles, projectLayout.RequiredDirs)
	require.NoError(t, os.Chmod(root, 0o000))
	t.Cleanup(func() { os.Chmod(root, 0o755) })

	result := checker.NewFileChecker(root, projectLayout).Check(context.Background())

	assert.Equal(t, checker.StatusError, result.Status)
	assert.Contains(t, result.Details["error"], "permission denied")
}

func TestFileChecker_EmptyRequirements(t *testing.T) {
	result := checker.NewFileChecker(t.TempDir(), config.FileStructure{}).Check(context.Background())
	assert.Equal(t, checker.StatusPass, result.Status)
}
