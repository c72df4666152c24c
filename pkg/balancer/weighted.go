package balancer

import "sync"

const WeightedName = "weighted"

type weightedBuilder struct{}

func NewWeightedBuilder() Builder {
	return &weightedBuilder{}
}

func (b *weightedBuilder) Build() Balancer {
	return &weightedBalancer{
		current: make(map[string]int),
	}
}

func (b *weightedBuilder) Name() string {
	return WeightedName
}

// weightedBalancer 平滑加权轮询
// 每次所有节点 current += weight，选 current 最大者，被选中节点 current -= total
// A(5) B(1) C(1) 的选择序列为 A A B A C A A
type weightedBalancer struct {
	mu      sync.Mutex
	current map[string]int
}

func (b *weightedBalancer) Pick(nodes []*Node, _ PickInfo) *Node {
	if len(nodes) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	total := 0
	seen := make(map[string]struct{}, len(nodes))
	var best *Node
	for _, node := range nodes {
		w := node.Weight
		if w <= 0 {
			w = 1
		}
		total += w
		b.current[node.Address] += w
		seen[node.Address] = struct{}{}
		if best == nil || b.current[node.Address] > b.current[best.Address] {
			best = node
		}
	}
	b.current[best.Address] -= total

	// 下线节点的累计值不再保留
	for addr := range b.current {
		if _, ok := seen[addr]; !ok {
			delete(b.current, addr)
		}
	}
	return best
}
