// Package log builds the indexer's root zap.Logger, grounded on the
// source's init_tracing (config.rs): a JSON-vs-console encoder toggle driven
// by an environment variable, with optional file rotation layered on top via
// lumberjack.
package log

import (
	"os"
	"strconv"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Options configures New.
type Options struct {
	// JSON selects the JSON encoder; false uses zap's console encoder. If
	// unset by the caller, New consults the ENABLE_JSON_LOGS environment
	// variable, matching the source's convention.
	JSON bool
	// Level is the minimum enabled level; defaults to info.
	Level zapcore.Level
	// FilePath, if non-empty, also writes logs to a rotated file via
	// lumberjack alongside stderr.
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// New builds the root logger per opts.
func New(opts Options) (*zap.Logger, error) {
	if opts.MaxSizeMB == 0 {
		opts.MaxSizeMB = 100
	}
	if opts.MaxBackups == 0 {
		opts.MaxBackups = 5
	}
	if opts.MaxAgeDays == 0 {
		opts.MaxAgeDays = 28
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if opts.JSON || enableJSONFromEnv() {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	} else {
		consoleCfg := zap.NewDevelopmentEncoderConfig()
		encoder = zapcore.NewConsoleEncoder(consoleCfg)
	}

	writers := []zapcore.WriteSyncer{zapcore.AddSync(os.Stderr)}
	if opts.FilePath != "" {
		writers = append(writers, zapcore.AddSync(&lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
		}))
	}

	core := zapcore.NewCore(encoder, zapcore.NewMultiWriteSyncer(writers...), opts.Level)
	return zap.New(core, zap.AddCaller()), nil
}

func enableJSONFromEnv() bool {
	v, ok := os.LookupEnv("ENABLE_JSON_LOGS")
	if !ok {
		return false
	}
	b, err := strconv.ParseBool(v)
	return err == nil && b
}
