package balancer

import (
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
)

// ErrUnknown 未注册的负载均衡策略
var ErrUnknown = errors.New("balancer: unknown strategy")

var (
	mu       sync.RWMutex
	builders = make(map[string]Builder)
)

func init() {
	Register(NewRandomBuilder())
	Register(NewRoundRobinBuilder())
	Register(NewWeightedBuilder())
	Register(NewConsistentHashBuilder())
	Register(NewLeastLoadedBuilder())
}

// Register 注册负载均衡器构建器，同名覆盖
func Register(b Builder) {
	mu.Lock()
	defer mu.Unlock()
	builders[b.Name()] = b
}

// Get 获取负载均衡器构建器
func Get(name string) Builder {
	mu.RLock()
	defer mu.RUnlock()
	return builders[name]
}

// New 创建负载均衡器实例
func New(name string) (Balancer, error) {
	b := Get(name)
	if b == nil {
		return nil, errors.Wrapf(ErrUnknown, "%q", name)
	}
	return b.Build(), nil
}

// Names 已注册的策略名，按字母序
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(builders))
	for name := range builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
