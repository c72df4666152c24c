package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Hook 在日志写入前调用，返回 false 丢弃该条日志
// fields 可以原地修改，修改对后续钩子与输出可见
type Hook interface {
	OnWrite(entry zapcore.Entry, fields []zapcore.Field) bool
}

type HookFunc func(entry zapcore.Entry, fields []zapcore.Field) bool

func (f HookFunc) OnWrite(entry zapcore.Entry, fields []zapcore.Field) bool {
	return f(entry, fields)
}

// hookedCore 只对调用时传入的字段执行钩子，With 绑定的字段已经编码进下层 Core
type hookedCore struct {
	zapcore.Core
	hooks []Hook
}

func newHookedCore(core zapcore.Core, hooks ...Hook) zapcore.Core {
	return &hookedCore{Core: core, hooks: hooks}
}

func (h *hookedCore) Check(entry zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if h.Enabled(entry.Level) {
		return ce.AddCore(entry, h)
	}
	return ce
}

func (h *hookedCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	for _, hook := range h.hooks {
		if !hook.OnWrite(entry, fields) {
			return nil
		}
	}
	return h.Core.Write(entry, fields)
}

func (h *hookedCore) With(fields []zapcore.Field) zapcore.Core {
	return &hookedCore{Core: h.Core.With(fields), hooks: h.hooks}
}

// Redacted 脱敏后的字段值
const Redacted = "***REDACTED***"

// RedactHook 将指定 key 的字段替换为 Redacted，key 不区分大小写
// 任意类型的字段都会被替换为字符串
func RedactHook(keys ...string) Hook {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[strings.ToLower(k)] = struct{}{}
	}
	return HookFunc(func(_ zapcore.Entry, fields []zapcore.Field) bool {
		for i := range fields {
			if _, ok := set[strings.ToLower(fields[i].Key)]; ok {
				fields[i] = zap.String(fields[i].Key, Redacted)
			}
		}
		return true
	})
}
