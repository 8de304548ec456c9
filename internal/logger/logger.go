// Package logger builds the zap logger shared by every shipcheck component.
//
// Two sinks are combined:
//   - the console (stderr), encoded as console or json and filtered by level;
//   - an optional run log file, always json and append-only, which is the
//     chronological record of every step of every run.
package logger

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hazz-dev/shipcheck/internal/config"
)

// RunLogName is the file name of the append-only run log inside the evidence dir.
const RunLogName = "verification.log"

// New creates a logger for cfg. When runLog is non-empty, entries are also
// appended to that file, creating its directory if needed.
func New(cfg config.Log, runLog string) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parsing log level %q: %w", cfg.Level, err)
	}

	var consoleEnc zapcore.Encoder
	if cfg.Format == "json" {
		consoleEnc = zapcore.NewJSONEncoder(fileEncoderConfig())
	} else {
		ec := zap.NewDevelopmentEncoderConfig()
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
		ec.EncodeTime = zapcore.ISO8601TimeEncoder
		consoleEnc = zapcore.NewConsoleEncoder(ec)
	}
	cores := []zapcore.Core{
		zapcore.NewCore(consoleEnc, zapcore.Lock(os.Stderr), level),
	}

	if runLog != "" {
		if err := os.MkdirAll(filepath.Dir(runLog), 0o755); err != nil {
			return nil, fmt.Errorf("creating run log dir: %w", err)
		}
		f, err := os.OpenFile(runLog, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("opening run log %q: %w", runLog, err)
		}
		// The run log keeps info and above regardless of console verbosity.
		fileLevel := level
		if fileLevel > zapcore.InfoLevel {
			fileLevel = zapcore.InfoLevel
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileEncoderConfig()), zapcore.Lock(f), fileLevel))
	}

	return zap.New(zapcore.NewTee(cores...)), nil
}

func fileEncoderConfig() zapcore.EncoderConfig {
	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "time"
	ec.LevelKey = "level"
	ec.MessageKey = "message"
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	ec.EncodeDuration = zapcore.MillisDurationEncoder
	return ec
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
