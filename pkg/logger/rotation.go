package logger

import (
	"io"

	"github.com/cockroachdb/errors"
	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewRotationWriter size 按大小轮换，time 按时间轮换，空类型按大小
func NewRotationWriter(cfg *RotationConfig, outputPath string) (io.Writer, error) {
	switch cfg.Type {
	case "", RotationBySize:
		return &lumberjack.Logger{
			Filename:   outputPath,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
			LocalTime:  true,
		}, nil
	case RotationByTime:
		return newTimeRotationWriter(cfg, outputPath)
	default:
		return nil, errors.Wrapf(ErrInvalidRotation, "%q", cfg.Type)
	}
}

func newTimeRotationWriter(cfg *RotationConfig, outputPath string) (io.Writer, error) {
	def := DefaultConfig().Rotation
	interval, retention, pattern := cfg.Interval, cfg.Retention, cfg.Pattern
	if interval <= 0 {
		interval = def.Interval
	}
	if retention <= 0 {
		retention = def.Retention
	}
	if pattern == "" {
		pattern = def.Pattern
	}

	w, err := rotatelogs.New(
		outputPath+pattern,
		rotatelogs.WithLinkName(outputPath),
		rotatelogs.WithRotationTime(interval),
		rotatelogs.WithMaxAge(retention),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create time rotation writer for %s", outputPath)
	}
	return w, nil
}
