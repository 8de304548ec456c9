package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazz-dev/shipcheck/internal/config"
	"github.com/hazz-dev/shipcheck/internal/fault"
)

func writeTemp(t *testing.T, pattern, content string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), pattern)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatal(err)
	}
	f.Close()
	return f.Name()
}

func TestLoad_JSONConfig(t *testing.T) {
	path := writeTemp(t, "*.json", `{
  "project_name": "Demo",
  "phase": "phase3",
  "root_dir": "/srv/demo",
  "file_structure": {
    "required_files": ["main.py", "README.md"],
    "required_dirs": ["src/"]
  },
  "database": {
    "path": "sqlite:///demo.db",
    "required_tables": ["users"]
  },
  "api": {
    "base_url": "http://127.0.0.1:9000",
    "endpoints": ["/health"],
    "timeout": "2s",
    "headers": {"Authorization": "Bearer token"}
  },
  "evidence": {"dir": "out"},
  "log": {"level": "debug", "format": "json"},
  "bot": {"token": "abc", "mode": "webhook", "allowed_chats": [42, 7]}
}`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "Demo", cfg.ProjectName)
	assert.Equal(t, "phase3", cfg.Phase)
	assert.Equal(t, "/srv/demo", cfg.RootDir)
	assert.Equal(t, []string{"main.py", "README.md"}, cfg.Files.RequiredFiles)
	assert.Equal(t, []string{"src/"}, cfg.Files.RequiredDirs)
	assert.Equal(t, "sqlite:///demo.db", cfg.Database.Path)
	assert.Equal(t, []string{"users"}, cfg.Database.RequiredTables)
	assert.Equal(t, "http://127.0.0.1:9000", cfg.API.BaseURL)
	assert.Equal(t, 2*time.Second, cfg.API.Timeout.Duration)
	assert.Equal(t, "Bearer token", cfg.API.Headers["Authorization"])
	assert.Equal(t, "out", cfg.Evidence.Dir)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "abc", cfg.Bot.Token)
	assert.Equal(t, "webhook", cfg.Bot.Mode)
	assert.Equal(t, []int64{42, 7}, cfg.Bot.AllowedChats)
}

func TestLoad_YAMLConfig(t *testing.T) {
	path := writeTemp(t, "*.yml", `
api:
  base_url: "https://staging.example.com"
  endpoints:
    - /health
bot:
  retry_delay: "10s"
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://staging.example.com", cfg.API.BaseURL)
	assert.Equal(t, []string{"/health"}, cfg.API.Endpoints)
	assert.Equal(t, 10*time.Second, cfg.Bot.RetryDelay.Duration)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := writeTemp(t, "*.json", `{"database": {"path": "other.db"}}`)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	def := config.Default()
	assert.Equal(t, "other.db", cfg.Database.Path)
	assert.Equal(t, def.Database.RequiredTables, cfg.Database.RequiredTables)
	assert.Equal(t, def.API.Endpoints, cfg.API.Endpoints)
	assert.Equal(t, 5*time.Second, cfg.API.Timeout.Duration)
	assert.Equal(t, "verification_evidence", cfg.Evidence.Dir)
	assert.Equal(t, "poll", cfg.Bot.Mode)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeTemp(t, "*.json", `{
  "database": {"path": "file.db"},
  "api": {"base_url": "http://file.example.com", "timeout": "3s"}
}`)
	t.Setenv("DATABASE_PATH", "env.db")
	t.Setenv("API_BASE_URL", "http://env.example.com")
	t.Setenv("API_TIMEOUT", "750ms")
	t.Setenv("TELEGRAM_BOT_TOKEN", "secret-token")
	t.Setenv("LOG_LEVEL", "WARN")
	t.Setenv("BOT_ALLOWED_CHATS", "1, 2,3")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env.db", cfg.Database.Path)
	assert.Equal(t, "http://env.example.com", cfg.API.BaseURL)
	assert.Equal(t, 750*time.Millisecond, cfg.API.Timeout.Duration)
	assert.Equal(t, "secret-token", cfg.Bot.Token)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, []int64{1, 2, 3}, cfg.Bot.AllowedChats)
}

func TestLoad_EmptyEnvIgnored(t *testing.T) {
	t.Setenv("DATABASE_PATH", "")
	cfg, err := config.Load("", config.AllowMissing())
	require.NoError(t, err)
	assert.Equal(t, "phase2.db", cfg.Database.Path)
}

func TestLoad_DotEnvDoesNotOverrideEnvironment(t *testing.T) {
	dotEnv := writeTemp(t, "*.env", "DATABASE_PATH=dotenv.db\nEVIDENCE_DIR=dotenv-evidence\n")
	t.Setenv("DATABASE_PATH", "real.db")
	// Registered so the value loaded from the .env file is removed after the test.
	t.Setenv("EVIDENCE_DIR", "")
	os.Unsetenv("EVIDENCE_DIR")

	cfg, err := config.Load("", config.WithDotEnv(dotEnv))
	require.NoError(t, err)

	assert.Equal(t, "real.db", cfg.Database.Path)
	assert.Equal(t, "dotenv-evidence", cfg.Evidence.Dir)
}

func TestLoad_MissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nonexistent.json")

	_, err := config.Load(missing)
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.Config))

	cfg, err := config.Load(missing, config.AllowMissing())
	require.NoError(t, err)
	assert.Equal(t, config.Default().Database.Path, cfg.Database.Path)
}

func TestLoad_MalformedFile(t *testing.T) {
	path := writeTemp(t, "*.json", `{"api": [`)
	_, err := config.Load(path, config.AllowMissing())
	require.Error(t, err)
	assert.Equal(t, fault.Config, fault.KindOf(err))
}

func TestLoad_UnknownKeysRejected(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"legacy layout", `{"phase2_outputs": {"file_structure": {"required_files": ["main.py"]}}}`, "phase2_outputs"},
		{"misspelled key", `{"databse": {"path": "other.db"}}`, "databse"},
		{"nested typo", `{"api": {"endpoint": ["/health"]}}`, "endpoint"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTemp(t, "*.json", tt.content)
			_, err := config.Load(path)
			require.Error(t, err)
			assert.True(t, fault.IsKind(err, fault.Config))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_EmptyFileKeepsDefaults(t *testing.T) {
	path := writeTemp(t, "*.yml", "")
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestLoad_InvalidTimeout(t *testing.T) {
	path := writeTemp(t, "*.yml", `
api:
  timeout: "bad"
`)
	_, err := config.Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api.timeout")
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"relative base url", `{"api": {"base_url": "localhost:8000"}}`, "base_url"},
		{"zero timeout", `{"api": {"timeout": "0s"}}`, "timeout"},
		{"bad log level", `{"log": {"level": "loud"}}`, "log.level"},
		{"bad log format", `{"log": {"format": "xml"}}`, "log.format"},
		{"bad bot mode", `{"bot": {"mode": "push"}}`, "bot.mode"},
		{"empty database", `{"database": {"path": ""}}`, "database.path"},
		{"s3 without bucket", `{"evidence": {"s3": {"endpoint": "localhost:9000"}}}`, "bucket"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTemp(t, "*.json", tt.content)
			_, err := config.Load(path)
			require.Error(t, err)
			assert.True(t, fault.IsKind(err, fault.Config))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_DedupesLists(t *testing.T) {
	path := writeTemp(t, "*.json", `{
  "file_structure": {"required_files": ["a", " a ", "b", ""]},
  "database": {"required_tables": ["users", "users"]}
}`)
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, cfg.Files.RequiredFiles)
	assert.Equal(t, []string{"users"}, cfg.Database.RequiredTables)
}

func TestWrite_RoundTrip(t *testing.T) {
	for _, name := range []string{"shipcheck.json", "shipcheck.yml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, config.Write(config.Default(), path))

			cfg, err := config.Load(path)
			require.NoError(t, err)
			assert.Equal(t, config.Default(), cfg)
		})
	}
}

func TestWrite_RefusesOverwrite(t *testing.T) {
	path := writeTemp(t, "*.json", "{}")
	err := config.Write(config.Default(), path)
	require.Error(t, err)

	data, _ := os.ReadFile(path)
	assert.True(t, strings.TrimSpace(string(data)) == "{}")
}
