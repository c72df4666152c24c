package compress

import (
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
)

// Compressor 对应一种 HTTP Content-Encoding
// 实现必须可以并发使用
type Compressor interface {
	// Name Content-Encoding 取值
	Name() string

	// Compress 压缩完整的消息体
	Compress(src []byte) ([]byte, error)

	// NewReader 流式解压，调用方负责限制读取的字节数
	NewReader(r io.Reader) (io.ReadCloser, error)
}

// Factory 压缩器工厂函数类型
type Factory func() (Compressor, error)

// Type 压缩算法类型
type Type string

const (
	// TypeGzip HTTP 标准 gzip
	TypeGzip Type = "gzip"
	// TypeZstd Zstd 压缩算法
	TypeZstd Type = "zstd"
	// TypeSnappy Snappy 分帧格式
	TypeSnappy Type = "snappy"
	// TypeLZ4 LZ4 分帧格式
	TypeLZ4 Type = "lz4"
)

// ErrUnsupported 未注册的编码
var ErrUnsupported = errors.New("compress: unsupported encoding")

var (
	mu        sync.RWMutex
	factories = make(map[Type]Factory)
	instances = make(map[Type]Compressor)
)

func init() {
	// 注册默认支持的压缩算法
	Register(TypeGzip, func() (Compressor, error) {
		return newGzipCompressor(), nil
	})
	Register(TypeZstd, func() (Compressor, error) {
		return newZstdCompressor()
	})
	Register(TypeSnappy, func() (Compressor, error) {
		return &snappyCompressor{}, nil
	})
	Register(TypeLZ4, func() (Compressor, error) {
		return &lz4Compressor{}, nil
	})
}

// Register 注册压缩器工厂，会替换已缓存的实例
func Register(t Type, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[t] = factory
	delete(instances, t)
}

// Unregister 注销压缩器工厂
func Unregister(t Type) {
	mu.Lock()
	defer mu.Unlock()
	delete(factories, t)
	delete(instances, t)
}

// Get 返回共享的压缩器实例，首次使用时创建
func Get(t Type) (Compressor, error) {
	mu.RLock()
	c, ok := instances[t]
	mu.RUnlock()
	if ok {
		return c, nil
	}

	mu.Lock()
	defer mu.Unlock()
	if c, ok := instances[t]; ok {
		return c, nil
	}
	factory, ok := factories[t]
	if !ok {
		return nil, errors.Mark(errors.Newf("unsupported compression type: %s", t), ErrUnsupported)
	}
	c, err := factory()
	if err != nil {
		return nil, errors.Wrapf(err, "create %s compressor", t)
	}
	instances[t] = c
	return c, nil
}

// MustGet 获取压缩器，失败时 panic
func MustGet(t Type) Compressor {
	c, err := Get(t)
	if err != nil {
		panic(err)
	}
	return c
}

// List 返回所有已注册的压缩算法类型（按名称排序）
func List() []Type {
	mu.RLock()
	defer mu.RUnlock()

	types := make([]Type, 0, len(factories))
	for t := range factories {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// IsRegistered 检查压缩算法是否已注册
func IsRegistered(t Type) bool {
	mu.RLock()
	defer mu.RUnlock()
	_, ok := factories[t]
	return ok
}

// Negotiate 按 Accept-Encoding 中出现的顺序选出第一个已注册的编码
// q=0 的编码、identity 与 * 都会被跳过
func Negotiate(acceptEncoding string) (Compressor, bool) {
	for _, part := range strings.Split(acceptEncoding, ",") {
		name, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || name == "identity" || name == "*" {
			continue
		}
		if q, ok := strings.CutPrefix(strings.ReplaceAll(params, " ", ""), "q="); ok && isZeroQ(q) {
			continue
		}
		if !IsRegistered(Type(name)) {
			continue
		}
		if c, err := Get(Type(name)); err == nil {
			return c, true
		}
	}
	return nil, false
}

func isZeroQ(q string) bool {
	return strings.TrimRight(strings.TrimRight(q, "0"), ".") == "0" || q == "0"
}
