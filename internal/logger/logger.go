// Package logger holds the process-wide zap logger. Until Init runs it is a
// no-op logger, so packages may log unconditionally.
package logger

import (
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

var (
	mu  sync.RWMutex
	log = zap.NewNop()
)

type Options struct {
	// Path receives JSON log lines. Empty means stderr.
	Path string
	// Level is a zap level name; empty means info.
	Level string
}

// Init builds a production JSON logger and installs it as the global one.
func Init(opts Options) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if opts.Level != "" {
		lvl, err := zap.ParseAtomicLevel(opts.Level)
		if err != nil {
			return nil, errors.Wrapf(err, "log level %q", opts.Level)
		}
		cfg.Level = lvl
	}
	out := "stderr"
	if opts.Path != "" {
		out = opts.Path
	}
	cfg.OutputPaths = []string{out}
	cfg.ErrorOutputPaths = []string{out}
	cfg.Sampling = nil
	l, err := cfg.Build()
	if err != nil {
		return nil, errors.Wrap(err, "build logger")
	}
	Set(l)
	return l, nil
}

func Set(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	mu.Lock()
	log = l
	mu.Unlock()
}

func Get() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}
