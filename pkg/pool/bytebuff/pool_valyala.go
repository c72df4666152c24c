// Package bytebuff 基于 valyala/bytebufferpool 的缓冲池，附带简单统计
package bytebuff

import (
	"io"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/valyala/bytebufferpool"
)

// ErrTooLarge 读取内容超过上限
var ErrTooLarge = errors.New("bytebuff: content exceeds limit")

// Pool 包装 bytebufferpool.Pool 并记录 Get/Put 次数
type Pool struct {
	pool *bytebufferpool.Pool

	gets uint64
	puts uint64
}

var defaultPool = NewPool()

// NewPool 创建缓冲池
func NewPool() *Pool {
	return &Pool{
		pool: &bytebufferpool.Pool{},
	}
}

// Get 获取一个 ByteBuffer，用完必须 Put 归还
func (p *Pool) Get() *bytebufferpool.ByteBuffer {
	atomic.AddUint64(&p.gets, 1)
	return p.pool.Get()
}

// Put 归还 ByteBuffer，归还后不能再访问其内容
func (p *Pool) Put(buf *bytebufferpool.ByteBuffer) {
	if buf == nil {
		return
	}
	atomic.AddUint64(&p.puts, 1)
	p.pool.Put(buf)
}

// ReadAll 从 r 读取全部内容到池化缓冲中
// limit > 0 时，超过 limit 字节返回 ErrTooLarge 且缓冲已归还
func (p *Pool) ReadAll(r io.Reader, limit int64) (*bytebufferpool.ByteBuffer, error) {
	buf := p.Get()

	src := r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}
	n, err := buf.ReadFrom(src)
	if err != nil {
		p.Put(buf)
		return nil, err
	}
	if limit > 0 && n > limit {
		p.Put(buf)
		return nil, errors.Wrapf(ErrTooLarge, "limit %d bytes", limit)
	}
	return buf, nil
}

// Stats 返回 Get/Put 次数
func (p *Pool) Stats() (gets, puts uint64) {
	return atomic.LoadUint64(&p.gets), atomic.LoadUint64(&p.puts)
}

// Get 从默认池获取
func Get() *bytebufferpool.ByteBuffer {
	return defaultPool.Get()
}

// Put 归还到默认池
func Put(buf *bytebufferpool.ByteBuffer) {
	defaultPool.Put(buf)
}

// ReadAll 使用默认池读取
func ReadAll(r io.Reader, limit int64) (*bytebufferpool.ByteBuffer, error) {
	return defaultPool.ReadAll(r, limit)
}

// Stats 返回默认池统计
func Stats() (gets, puts uint64) {
	return defaultPool.Stats()
}
