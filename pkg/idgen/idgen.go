package idgen

// Generator 唯一ID生成器，实现必须可以并发调用
type Generator interface {
	NextID() (int64, error)
}

// Func 函数适配为 Generator
type Func func() (int64, error)

func (f Func) NextID() (int64, error) {
	return f()
}
