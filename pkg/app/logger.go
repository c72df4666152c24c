package app

import (
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/httpremote/pkg/logger"
)

// loggerRegistry 配置文件 loggers 段定义的具名日志，例如 access、audit
type loggerRegistry struct {
	mu      sync.RWMutex
	loggers map[string]logger.Logger
}

func newLoggerRegistry() *loggerRegistry {
	return &loggerRegistry{loggers: make(map[string]logger.Logger)}
}

func (r *loggerRegistry) set(name string, l logger.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loggers[name] = l
}

func (r *loggerRegistry) get(name string) logger.Logger {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loggers[name]
}

func (r *loggerRegistry) names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.loggers))
	for name := range r.loggers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// build 任一配置非法时不注册任何 logger
func (r *loggerRegistry) build(configs map[string]*logger.Config) error {
	built := make(map[string]logger.Logger, len(configs))
	for name, cfg := range configs {
		l, err := logger.New(cfg)
		if err != nil {
			return errors.Wrapf(err, "logger %q", name)
		}
		built[name] = l.Named(name)
	}
	for name, l := range built {
		r.set(name, l)
	}
	return nil
}

func (r *loggerRegistry) syncAll() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var err error
	for name, l := range r.loggers {
		if e := l.Sync(); e != nil {
			err = errors.CombineErrors(err, errors.Wrapf(e, "sync logger %q", name))
		}
	}
	return err
}
