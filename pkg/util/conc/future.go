package conc

// Future 异步任务的结果句柄
type Future[T any] struct {
	ch    chan struct{}
	value T
	err   error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{
		ch: make(chan struct{}),
	}
}

// Await 阻塞直到任务完成，返回结果与错误
func (f *Future[T]) Await() (T, error) {
	<-f.ch
	return f.value, f.err
}

// Value 阻塞等待并仅返回结果
func (f *Future[T]) Value() T {
	<-f.ch
	return f.value
}

// Err 阻塞等待并仅返回错误
func (f *Future[T]) Err() error {
	<-f.ch
	return f.err
}

// Done 任务是否已经完成（不阻塞）
func (f *Future[T]) Done() bool {
	select {
	case <-f.ch:
		return true
	default:
		return false
	}
}

// Inner 返回完成信号通道，便于与 select 组合
func (f *Future[T]) Inner() <-chan struct{} {
	return f.ch
}

func (f *Future[T]) complete(value T, err error) {
	f.value = value
	f.err = err
	close(f.ch)
}

// AwaitAll 等待所有 Future 完成，返回第一个错误
func AwaitAll[T any](futures ...*Future[T]) error {
	var firstErr error
	for _, f := range futures {
		if _, err := f.Await(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Completed 返回一个已完成的 Future
func Completed[T any](value T, err error) *Future[T] {
	f := newFuture[T]()
	f.complete(value, err)
	return f
}
