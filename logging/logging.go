// Package logging - Builds the process logger from configuration.
package logging

import (
	"os"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/nvr-ai/go-detect/config"
)

// DefaultTimeFormatStr is the timestamp layout of every log line.
const DefaultTimeFormatStr = "2006-01-02T15:04:05.000Z0700"

// New builds a logger that writes to stderr and, when cfg.File is set, to a
// rotating file.
//
// Arguments:
//   - cfg: The log configuration.
//
// Returns:
//   - *zap.Logger: The logger. Call Sync before exiting.
//   - error: An error if the level cannot be parsed.
func New(cfg config.Log) (*zap.Logger, error) {
	sinks := []zapcore.WriteSyncer{zapcore.Lock(os.Stderr)}
	if cfg.File != "" {
		sinks = append(sinks, zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}))
	}

	return NewWithSink(cfg, zapcore.NewMultiWriteSyncer(sinks...))
}

// NewWithSink builds a logger writing to an arbitrary sink.
func NewWithSink(cfg config.Log, sink zapcore.WriteSyncer) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, errors.Wrap(err, "parse log level")
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(DefaultTimeFormatStr)
	encoderConfig.EncodeDuration = zapcore.StringDurationEncoder

	var encoder zapcore.Encoder
	switch cfg.Format {
	case "json":
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	default:
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, sink, zap.NewAtomicLevelAt(level))
	return zap.New(core, zap.AddCaller(), zap.ErrorOutput(zapcore.Lock(os.Stderr))), nil
}
