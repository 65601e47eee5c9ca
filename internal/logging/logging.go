package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/Krchnk/valutatrade-hub/internal/config"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New builds the process logger: JSON lines into a size-rotated file under
// cfg.Dir, mirrored to stderr when console is set.
func New(cfg config.LogConfig, console bool) (*logrus.Logger, io.Closer, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, nil, err
	}

	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Dir, cfg.File),
		MaxSize:    maxSizeMB(cfg.MaxBytes),
		MaxBackups: cfg.BackupCount,
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if lvl, err := logrus.ParseLevel(cfg.Level); err == nil {
		logger.SetLevel(lvl)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	var out io.Writer = rotator
	if console {
		out = io.MultiWriter(rotator, os.Stderr)
	}
	logger.SetOutput(out)
	return logger, rotator, nil
}

// lumberjack rotates on whole megabytes.
func maxSizeMB(bytes int64) int {
	const mb = 1 << 20
	if bytes <= 0 {
		return 1
	}
	return int((bytes + mb - 1) / mb)
}

// Action writes one audit line for a user-facing operation such as BUY or
// LOGIN: info level with result OK, or error level carrying err.
func Action(logger logrus.FieldLogger, action string, fields logrus.Fields, err error) {
	entry := logger.WithField("action", action).WithFields(fields)
	if err != nil {
		entry.WithError(err).WithField("result", "ERROR").Error(action + " failed")
		return
	}
	entry.WithField("result", "OK").Info(action)
}
