package balancer

// Node 候选节点
type Node struct {
	Address string
	// Weight 加权算法使用，<= 0 按 1 处理
	Weight int
	// Load 当前负载，least_loaded 使用
	Load int
	// Value 调用方附带的原始数据，选中后原样取回
	Value any
}

// PickInfo 选择时的上下文信息
type PickInfo struct {
	// Key 一致性哈希使用，为空时退化为轮询
	Key string
}

// Balancer 从候选节点中选出一个，nodes 为空返回 nil
// 实现必须可以并发调用
type Balancer interface {
	Pick(nodes []*Node, info PickInfo) *Node
}

// Builder 负载均衡器构建器
type Builder interface {
	Build() Balancer
	Name() string
}
