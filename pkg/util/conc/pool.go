package conc

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/panjf2000/ants/v2"
)

// Pool 基于 ants 的泛型协程池，每次提交返回一个 Future
type Pool[T any] struct {
	inner *ants.Pool
}

// NewPool 创建协程池，cap <= 0 时使用 GOMAXPROCS
func NewPool[T any](cap int, opts ...ants.Option) *Pool[T] {
	if cap <= 0 {
		cap = runtime.GOMAXPROCS(0)
	}
	// 池满时提交阻塞等待（ants 默认行为）
	inner, err := ants.NewPool(cap, opts...)
	if err != nil {
		panic(err)
	}
	return &Pool[T]{inner: inner}
}

// Submit 提交任务
// 池已释放时返回一个携带错误的已完成 Future
func (p *Pool[T]) Submit(fn func() (T, error)) *Future[T] {
	future := newFuture[T]()
	err := p.inner.Submit(func() {
		var (
			value T
			err   error
		)
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("conc: task panicked: %v", r)
			}
			future.complete(value, err)
		}()
		value, err = fn()
	})
	if err != nil {
		var zero T
		future.complete(zero, err)
	}
	return future
}

// Cap 返回池容量
func (p *Pool[T]) Cap() int {
	return p.inner.Cap()
}

// Running 返回正在运行的任务数
func (p *Pool[T]) Running() int {
	return p.inner.Running()
}

// Release 释放协程池，可重复调用
func (p *Pool[T]) Release() {
	p.inner.Release()
}

var (
	defaultPool     *ants.Pool
	defaultPoolOnce sync.Once
)

func getDefaultPool() *ants.Pool {
	defaultPoolOnce.Do(func() {
		// 无界默认池，用于长生命周期的后台任务
		p, err := ants.NewPool(-1)
		if err != nil {
			panic(err)
		}
		defaultPool = p
	})
	return defaultPool
}

// Go 在默认协程池中异步执行任务
func Go[T any](fn func() (T, error)) *Future[T] {
	p := &Pool[T]{inner: getDefaultPool()}
	return p.Submit(fn)
}
