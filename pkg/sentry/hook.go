package sentry

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/getsentry/sentry-go"
	"github.com/lk2023060901/httpremote/pkg/logger"
	"go.uber.org/zap/zapcore"
)

// LogHook 把达到 MinLevel 的日志作为事件上报，日志本身照常输出
func (c *Client) LogHook() logger.Hook {
	return logger.HookFunc(func(entry zapcore.Entry, fields []zapcore.Field) bool {
		level := toSentryLevel(entry.Level)
		if levelRank(level) < levelRank(c.minLevel) {
			return true
		}

		enc := zapcore.NewMapObjectEncoder()
		for _, f := range fields {
			f.AddTo(enc)
		}

		event := sentry.NewEvent()
		event.Level = level
		event.Message = entry.Message
		event.Logger = entry.LoggerName
		event.Timestamp = entry.Time
		event.Extra = enc.Fields
		if entry.Caller.Defined {
			event.Tags = map[string]string{"caller": entry.Caller.TrimmedPath()}
		}
		c.CaptureEvent(event)
		return true
	})
}

func parseLevel(s string) (sentry.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "error":
		return sentry.LevelError, nil
	case "warn", "warning":
		return sentry.LevelWarning, nil
	case "dpanic", "panic", "fatal":
		return sentry.LevelFatal, nil
	default:
		return "", errors.Wrapf(ErrInvalidConfig, "unknown min level %q", s)
	}
}

func toSentryLevel(l zapcore.Level) sentry.Level {
	switch {
	case l >= zapcore.DPanicLevel:
		return sentry.LevelFatal
	case l >= zapcore.ErrorLevel:
		return sentry.LevelError
	case l >= zapcore.WarnLevel:
		return sentry.LevelWarning
	case l >= zapcore.InfoLevel:
		return sentry.LevelInfo
	default:
		return sentry.LevelDebug
	}
}

func levelRank(l sentry.Level) int {
	switch l {
	case sentry.LevelDebug:
		return 0
	case sentry.LevelInfo:
		return 1
	case sentry.LevelWarning:
		return 2
	case sentry.LevelError:
		return 3
	default:
		return 4
	}
}
