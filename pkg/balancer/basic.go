package balancer

import (
	"math/rand/v2"
	"sync/atomic"
)

const (
	RandomName      = "random"
	RoundRobinName  = "round_robin"
	LeastLoadedName = "least_loaded"
)

// builderFunc 无配置的构建器
type builderFunc struct {
	name  string
	build func() Balancer
}

func (b builderFunc) Build() Balancer { return b.build() }
func (b builderFunc) Name() string    { return b.name }

func NewRandomBuilder() Builder {
	return builderFunc{name: RandomName, build: func() Balancer { return randomBalancer{} }}
}

func NewRoundRobinBuilder() Builder {
	return builderFunc{name: RoundRobinName, build: func() Balancer { return &roundRobinBalancer{} }}
}

func NewLeastLoadedBuilder() Builder {
	return builderFunc{name: LeastLoadedName, build: func() Balancer { return &leastLoadedBalancer{} }}
}

type randomBalancer struct{}

func (randomBalancer) Pick(nodes []*Node, _ PickInfo) *Node {
	if len(nodes) == 0 {
		return nil
	}
	return nodes[rand.N(len(nodes))]
}

type roundRobinBalancer struct {
	next atomic.Uint64
}

func (b *roundRobinBalancer) Pick(nodes []*Node, _ PickInfo) *Node {
	if len(nodes) == 0 {
		return nil
	}
	return nodes[(b.next.Add(1)-1)%uint64(len(nodes))]
}

// leastLoadedBalancer 选 Load 最小的节点，并列时轮询
type leastLoadedBalancer struct {
	next atomic.Uint64
}

func (b *leastLoadedBalancer) Pick(nodes []*Node, _ PickInfo) *Node {
	if len(nodes) == 0 {
		return nil
	}
	var idle []*Node
	for _, n := range nodes {
		switch {
		case len(idle) == 0 || n.Load < idle[0].Load:
			idle = append(idle[:0], n)
		case n.Load == idle[0].Load:
			idle = append(idle, n)
		}
	}
	return idle[(b.next.Add(1)-1)%uint64(len(idle))]
}
