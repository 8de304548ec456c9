package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hazz-dev/shipcheck/internal/checker"
	"github.com/hazz-dev/shipcheck/internal/config"
	"github.com/hazz-dev/shipcheck/internal/evidence"
	"github.com/hazz-dev/shipcheck/internal/fault"
	"github.com/hazz-dev/shipcheck/internal/logger"
	"github.com/hazz-dev/shipcheck/internal/metrics"
	"github.com/hazz-dev/shipcheck/internal/verify"
	"github.com/hazz-dev/shipcheck/internal/version"
)

// Exit codes.
const (
	exitPass        = 0
	exitFail        = 1
	exitConfigError = 2
)

const (
	modeCLI = "cli"
	modeBot = "bot"
	// modeTelegram is accepted as an alias of modeBot.
	modeTelegram = "telegram"
)

type flags struct {
	configPath  string
	mode        string
	phase       string
	root        string
	evidenceDir string
	dotEnv      string
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	root := rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return exitCode(root.Execute())
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitPass
	case fault.IsKind(err, fault.Config):
		return exitConfigError
	default:
		return exitFail
	}
}

func rootCmd() *cobra.Command {
	f := &flags{}
	root := &cobra.Command{
		Use:          "shipcheck",
		Short:        "Verify a project deliverable and record evidence",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			switch f.mode {
			case modeCLI:
				return runVerify(cmd, f)
			case modeBot, modeTelegram:
				return runBot(cmd, f)
			default:
				return fault.Newf(fault.Config, "flags", "invalid --mode %q (must be cli or bot)", f.mode)
			}
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&f.configPath, "config", config.DefaultPath, "config file path (JSON or YAML)")
	pf.StringVar(&f.mode, "mode", modeCLI, "run mode: cli or bot")
	pf.StringVar(&f.phase, "phase", "", "phase label for the run (default from config)")
	pf.StringVar(&f.root, "root", "", "project root to verify (overrides root_dir)")
	pf.StringVar(&f.evidenceDir, "evidence-dir", "", "evidence output directory (overrides evidence.dir)")
	pf.StringVar(&f.dotEnv, "env-file", ".env", "dotenv file loaded before reading the environment")

	root.AddCommand(versionCmd())
	root.AddCommand(verifyCmd(f))
	root.AddCommand(botCmd(f))
	root.AddCommand(statusCmd(f))
	root.AddCommand(initConfigCmd(f))

	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "shipcheck %s\n", version.String())
		},
	}
}

// loadConfig resolves the configuration and applies command-line overrides.
// A missing file is only tolerated at the default path.
func loadConfig(cmd *cobra.Command, f *flags) (*config.Config, error) {
	opts := []config.Option{config.WithDotEnv(f.dotEnv)}
	if !cmd.Flags().Changed("config") {
		opts = append(opts, config.AllowMissing())
	}
	cfg, err := config.Load(f.configPath, opts...)
	if err != nil {
		return nil, err
	}
	if f.root != "" {
		cfg.RootDir = f.root
	}
	if f.evidenceDir != "" {
		cfg.Evidence.Dir = f.evidenceDir
	}
	if f.phase != "" {
		cfg.Phase = f.phase
	}
	return cfg, nil
}

// app holds the components shared by every mode.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	writer   *evidence.Writer
	recorder *metrics.Recorder
	runner   *verify.Runner
}

func newApp(cfg *config.Config) (*app, error) {
	log, err := logger.New(cfg.Log, filepath.Join(cfg.Evidence.Dir, logger.RunLogName))
	if err != nil {
		// Without a run log the run still proceeds; the evidence dir problem
		// will surface again as evidence write errors.
		fallback, ferr := logger.New(cfg.Log, "")
		if ferr != nil {
			return nil, fault.Wrap(fault.Config, "logger", ferr)
		}
		log = fallback
		log.Warn("run log unavailable", zap.Error(err))
	}

	var mirror evidence.Mirror
	if cfg.Evidence.S3.Enabled() {
		m, err := evidence.NewS3Mirror(cfg.Evidence.S3)
		if err != nil {
			log.Warn("evidence mirror disabled", zap.Error(err))
		} else {
			mirror = m
			log.Info("mirroring evidence",
				zap.String("endpoint", cfg.Evidence.S3.Endpoint),
				zap.String("bucket", cfg.Evidence.S3.Bucket),
			)
		}
	}

	writer := evidence.NewWriter(cfg.Evidence.Dir, mirror, log)
	recorder := metrics.New()
	runner := verify.New(cfg.ProjectName, checker.All(cfg), writer, log)
	runner.SetRecorder(recorder)

	return &app{
		cfg:      cfg,
		logger:   log,
		writer:   writer,
		recorder: recorder,
		runner:   runner,
	}, nil
}

func (a *app) close() {
	a.logger.Sync()
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
