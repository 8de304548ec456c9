package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/hazz-dev/shipcheck/internal/fault"
)

// DefaultPath is the config file looked up when no --config flag is given.
const DefaultPath = "shipcheck.json"

// Duration is a time.Duration that unmarshals from a string like "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = dur
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// FileStructure lists the entries that must exist under the project root.
type FileStructure struct {
	RequiredFiles []string `yaml:"required_files" json:"required_files"`
	RequiredDirs  []string `yaml:"required_dirs" json:"required_dirs"`
}

// Database describes the schema target. Path is a sqlite file path, a
// sqlite:/// connection string, or a postgres:// URL.
type Database struct {
	Path           string   `yaml:"path" json:"path"`
	RequiredTables []string `yaml:"required_tables" json:"required_tables"`
}

// API describes the endpoints probed by the endpoint checker.
type API struct {
	BaseURL   string            `yaml:"base_url" json:"base_url"`
	Endpoints []string          `yaml:"endpoints" json:"endpoints"`
	Timeout   Duration          `yaml:"timeout" json:"timeout"`
	Headers   map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
}

// S3 configures the optional evidence mirror. The mirror is disabled unless
// both Endpoint and Bucket are set.
type S3 struct {
	Endpoint  string `yaml:"endpoint" json:"endpoint"`
	AccessKey string `yaml:"access_key" json:"access_key"`
	SecretKey string `yaml:"secret_key" json:"secret_key"`
	Bucket    string `yaml:"bucket" json:"bucket"`
	Prefix    string `yaml:"prefix" json:"prefix"`
	Region    string `yaml:"region" json:"region"`
	UseSSL    bool   `yaml:"use_ssl" json:"use_ssl"`
}

// Enabled reports whether the mirror has enough settings to be used.
func (s S3) Enabled() bool {
	return s.Endpoint != "" && s.Bucket != ""
}

// Evidence holds artifact output settings.
type Evidence struct {
	Dir string `yaml:"dir" json:"dir"`
	S3  S3     `yaml:"s3" json:"s3"`
}

// Log holds logger settings.
type Log struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// Bot holds chat-bot settings.
type Bot struct {
	Token         string   `yaml:"token" json:"token"`
	APIURL        string   `yaml:"api_url" json:"api_url"`
	Mode          string   `yaml:"mode" json:"mode"`
	PollTimeout   Duration `yaml:"poll_timeout" json:"poll_timeout"`
	RetryDelay    Duration `yaml:"retry_delay" json:"retry_delay"`
	AllowedChats  []int64  `yaml:"allowed_chats,omitempty" json:"allowed_chats,omitempty"`
	Listen        string   `yaml:"listen" json:"listen"`
	WebhookSecret string   `yaml:"webhook_secret" json:"webhook_secret"`
}

// Config is the resolved application configuration. It is built once at
// startup and treated as read-only afterwards.
type Config struct {
	ProjectName string        `yaml:"project_name" json:"project_name"`
	Phase       string        `yaml:"phase" json:"phase"`
	RootDir     string        `yaml:"root_dir" json:"root_dir"`
	Files       FileStructure `yaml:"file_structure" json:"file_structure"`
	Database    Database      `yaml:"database" json:"database"`
	API         API           `yaml:"api" json:"api"`
	Evidence    Evidence      `yaml:"evidence" json:"evidence"`
	Log         Log           `yaml:"log" json:"log"`
	Bot         Bot           `yaml:"bot" json:"bot"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ProjectName: "AI Project Phase 2",
		Phase:       "phase2",
		RootDir:     ".",
		Files: FileStructure{
			RequiredFiles: []string{"main.py", "requirements.txt", "config.json", "verification_tool.py"},
			RequiredDirs:  []string{"src/", "tests/", "data/", "verification_evidence/"},
		},
		Database: Database{
			Path:           "phase2.db",
			RequiredTables: []string{"users", "conversations", "models"},
		},
		API: API{
			BaseURL:   "http://localhost:8000",
			Endpoints: []string{"/health", "/api/v1/chat", "/api/v1/models"},
			Timeout:   Duration{5 * time.Second},
		},
		Evidence: Evidence{
			Dir: "verification_evidence",
		},
		Log: Log{
			Level:  "info",
			Format: "console",
		},
		Bot: Bot{
			APIURL:      "https://api.telegram.org",
			Mode:        "poll",
			PollTimeout: Duration{30 * time.Second},
			RetryDelay:  Duration{5 * time.Second},
		},
	}
}

type options struct {
	allowMissing bool
	dotEnv       string
}

// Option tweaks Load.
type Option func(*options)

// AllowMissing makes Load fall back to defaults when the file does not exist.
func AllowMissing() Option {
	return func(o *options) { o.allowMissing = true }
}

// WithDotEnv loads the given .env file before reading the environment.
// Variables already present in the environment win.
func WithDotEnv(path string) Option {
	return func(o *options) { o.dotEnv = path }
}

// Load resolves the configuration: built-in defaults, then the file at path,
// then environment variables. Every error it returns is a fault.Config.
func Load(path string, opts ...Option) (*Config, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	cfg := Default()
	if path != "" {
		if err := mergeFile(cfg, path); err != nil {
			if !(o.allowMissing && errors.Is(err, fs.ErrNotExist)) {
				return nil, fault.Wrap(fault.Config, "load", err)
			}
		}
	}

	if o.dotEnv != "" {
		// A missing .env is normal outside development.
		_ = godotenv.Load(o.dotEnv)
	}
	if err := applyEnv(cfg); err != nil {
		return nil, fault.Wrap(fault.Config, "environment", err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fault.Wrap(fault.Config, "validate", err)
	}
	return cfg, nil
}

// mergeFile overlays the file at path onto cfg. JSON documents are valid
// YAML, so one decoder handles both formats.
func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}

	// Durations are decoded as strings first so errors can name the field.
	type rawAPI struct {
		BaseURL   string            `yaml:"base_url"`
		Endpoints []string          `yaml:"endpoints"`
		Timeout   string            `yaml:"timeout"`
		Headers   map[string]string `yaml:"headers"`
	}
	type rawBot struct {
		Token         string  `yaml:"token"`
		APIURL        string  `yaml:"api_url"`
		Mode          string  `yaml:"mode"`
		PollTimeout   string  `yaml:"poll_timeout"`
		RetryDelay    string  `yaml:"retry_delay"`
		AllowedChats  []int64 `yaml:"allowed_chats"`
		Listen        string  `yaml:"listen"`
		WebhookSecret string  `yaml:"webhook_secret"`
	}
	type rawConfig struct {
		ProjectName string        `yaml:"project_name"`
		Phase       string        `yaml:"phase"`
		RootDir     string        `yaml:"root_dir"`
		Files       FileStructure `yaml:"file_structure"`
		Database    Database      `yaml:"database"`
		API         rawAPI        `yaml:"api"`
		Evidence    Evidence      `yaml:"evidence"`
		Log         Log           `yaml:"log"`
		Bot         rawBot        `yaml:"bot"`
	}

	// Seed the raw document with the current values so absent keys keep them.
	raw := rawConfig{
		ProjectName: cfg.ProjectName,
		Phase:       cfg.Phase,
		RootDir:     cfg.RootDir,
		Files:       cfg.Files,
		Database:    cfg.Database,
		API: rawAPI{
			BaseURL:   cfg.API.BaseURL,
			Endpoints: cfg.API.Endpoints,
			Timeout:   cfg.API.Timeout.String(),
			Headers:   cfg.API.Headers,
		},
		Evidence: cfg.Evidence,
		Log:      cfg.Log,
		Bot: rawBot{
			Token:         cfg.Bot.Token,
			APIURL:        cfg.Bot.APIURL,
			Mode:          cfg.Bot.Mode,
			PollTimeout:   cfg.Bot.PollTimeout.String(),
			RetryDelay:    cfg.Bot.RetryDelay.String(),
			AllowedChats:  cfg.Bot.AllowedChats,
			Listen:        cfg.Bot.Listen,
			WebhookSecret: cfg.Bot.WebhookSecret,
		},
	}
	// Unknown keys are rejected so a misspelled or foreign layout cannot
	// silently fall back to defaults.
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parsing config %q: %w", path, err)
	}

	apiTimeout, err := parseDuration("api.timeout", raw.API.Timeout)
	if err != nil {
		return err
	}
	pollTimeout, err := parseDuration("bot.poll_timeout", raw.Bot.PollTimeout)
	if err != nil {
		return err
	}
	retryDelay, err := parseDuration("bot.retry_delay", raw.Bot.RetryDelay)
	if err != nil {
		return err
	}

	cfg.ProjectName = raw.ProjectName
	cfg.Phase = raw.Phase
	cfg.RootDir = raw.RootDir
	cfg.Files = raw.Files
	cfg.Database = raw.Database
	cfg.API = API{
		BaseURL:   raw.API.BaseURL,
		Endpoints: raw.API.Endpoints,
		Timeout:   apiTimeout,
		Headers:   raw.API.Headers,
	}
	cfg.Evidence = raw.Evidence
	cfg.Log = raw.Log
	cfg.Bot = Bot{
		Token:         raw.Bot.Token,
		APIURL:        raw.Bot.APIURL,
		Mode:          raw.Bot.Mode,
		PollTimeout:   pollTimeout,
		RetryDelay:    retryDelay,
		AllowedChats:  raw.Bot.AllowedChats,
		Listen:        raw.Bot.Listen,
		WebhookSecret: raw.Bot.WebhookSecret,
	}
	return nil
}

func parseDuration(field, s string) (Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return Duration{}, fmt.Errorf("invalid %s %q: %w", field, s, err)
	}
	return Duration{d}, nil
}

type envBinding struct {
	key   string
	env   string
	apply func(cfg *Config, v string) error
}

var envBindings = []envBinding{
	{"bot.token", "TELEGRAM_BOT_TOKEN", func(c *Config, v string) error { c.Bot.Token = v; return nil }},
	{"bot.mode", "BOT_MODE", func(c *Config, v string) error { c.Bot.Mode = v; return nil }},
	{"bot.listen", "BOT_LISTEN_ADDR", func(c *Config, v string) error { c.Bot.Listen = v; return nil }},
	{"bot.webhook_secret", "BOT_WEBHOOK_SECRET", func(c *Config, v string) error { c.Bot.WebhookSecret = v; return nil }},
	{"bot.allowed_chats", "BOT_ALLOWED_CHATS", func(c *Config, v string) error {
		ids, err := parseChatIDs(v)
		if err != nil {
			return fmt.Errorf("invalid BOT_ALLOWED_CHATS: %w", err)
		}
		c.Bot.AllowedChats = ids
		return nil
	}},
	{"api.base_url", "API_BASE_URL", func(c *Config, v string) error { c.API.BaseURL = v; return nil }},
	{"api.timeout", "API_TIMEOUT", func(c *Config, v string) error {
		d, err := parseDuration("API_TIMEOUT", v)
		if err != nil {
			return err
		}
		c.API.Timeout = d
		return nil
	}},
	{"database.path", "DATABASE_PATH", func(c *Config, v string) error { c.Database.Path = v; return nil }},
	{"root_dir", "PROJECT_ROOT", func(c *Config, v string) error { c.RootDir = v; return nil }},
	{"evidence.dir", "EVIDENCE_DIR", func(c *Config, v string) error { c.Evidence.Dir = v; return nil }},
	{"evidence.s3.endpoint", "EVIDENCE_S3_ENDPOINT", func(c *Config, v string) error { c.Evidence.S3.Endpoint = v; return nil }},
	{"evidence.s3.access_key", "EVIDENCE_S3_ACCESS_KEY", func(c *Config, v string) error { c.Evidence.S3.AccessKey = v; return nil }},
	{"evidence.s3.secret_key", "EVIDENCE_S3_SECRET_KEY", func(c *Config, v string) error { c.Evidence.S3.SecretKey = v; return nil }},
	{"evidence.s3.bucket", "EVIDENCE_S3_BUCKET", func(c *Config, v string) error { c.Evidence.S3.Bucket = v; return nil }},
	{"log.level", "LOG_LEVEL", func(c *Config, v string) error { c.Log.Level = v; return nil }},
	{"log.format", "LOG_FORMAT", func(c *Config, v string) error { c.Log.Format = v; return nil }},
}

// applyEnv overlays environment variables onto cfg. Empty variables are
// treated as unset.
func applyEnv(cfg *Config) error {
	v := viper.New()
	for _, b := range envBindings {
		if err := v.BindEnv(b.key, b.env); err != nil {
			return fmt.Errorf("binding %s: %w", b.env, err)
		}
	}
	for _, b := range envBindings {
		if !v.IsSet(b.key) {
			continue
		}
		if err := b.apply(cfg, v.GetString(b.key)); err != nil {
			return err
		}
	}
	return nil
}

func parseChatIDs(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// normalize trims entries and drops duplicates while keeping first-seen order.
func (c *Config) normalize() {
	c.Files.RequiredFiles = dedupe(c.Files.RequiredFiles)
	c.Files.RequiredDirs = dedupe(c.Files.RequiredDirs)
	c.Database.RequiredTables = dedupe(c.Database.RequiredTables)
	c.API.Endpoints = dedupe(c.API.Endpoints)
	c.Bot.Mode = strings.ToLower(strings.TrimSpace(c.Bot.Mode))
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
}

func dedupe(in []string) []string {
	if in == nil {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

var (
	validLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validFormats = map[string]bool{"console": true, "json": true}
	validModes   = map[string]bool{"poll": true, "webhook": true}
)

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.RootDir == "" {
		return fmt.Errorf("root_dir is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("api.base_url %q must be an absolute http(s) URL", c.API.BaseURL)
	}
	if c.API.Timeout.Duration <= 0 {
		return fmt.Errorf("api.timeout must be positive, got %v", c.API.Timeout)
	}
	if c.Evidence.Dir == "" {
		return fmt.Errorf("evidence.dir is required")
	}
	if c.Evidence.S3.Endpoint != "" && c.Evidence.S3.Bucket == "" {
		return fmt.Errorf("evidence.s3.bucket is required when evidence.s3.endpoint is set")
	}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("invalid log.level %q (must be debug, info, warn, or error)", c.Log.Level)
	}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("invalid log.format %q (must be console or json)", c.Log.Format)
	}
	if !validModes[c.Bot.Mode] {
		return fmt.Errorf("invalid bot.mode %q (must be poll or webhook)", c.Bot.Mode)
	}
	if c.Bot.PollTimeout.Duration < 0 {
		return fmt.Errorf("bot.poll_timeout must not be negative")
	}
	if c.Bot.RetryDelay.Duration < 0 {
		return fmt.Errorf("bot.retry_delay must not be negative")
	}
	return nil
}

// Write serializes cfg to path, choosing YAML for .yml/.yaml and JSON
// otherwise. It refuses to overwrite an existing file.
func Write(cfg *Config, path string) error {
	var (
		data []byte
		err  error
	)
	if strings.HasSuffix(path, ".yml") || strings.HasSuffix(path, ".yaml") {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("creating %q: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("writing %q: %w", path, err)
	}
	return f.Close()
}
