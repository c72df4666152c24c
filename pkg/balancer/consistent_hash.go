package balancer

import (
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
)

const ConsistentHashName = "consistent_hash"

type consistentHashBuilder struct {
	virtualNodes int
}

func NewConsistentHashBuilder() Builder {
	return &consistentHashBuilder{virtualNodes: 160}
}

func (b *consistentHashBuilder) Build() Balancer {
	return &consistentHashBalancer{
		virtualNodes: b.virtualNodes,
		fallback:     &roundRobinBalancer{},
	}
}

func (b *consistentHashBuilder) Name() string {
	return ConsistentHashName
}

// consistentHashBalancer 同一个 key 在节点集合不变时总是落到同一节点
// 节点增减只影响环上相邻区间的 key
type consistentHashBalancer struct {
	virtualNodes int
	fallback     Balancer

	mu        sync.Mutex
	ring      *hashRing
	lastNodes string
}

func (b *consistentHashBalancer) Pick(nodes []*Node, info PickInfo) *Node {
	if len(nodes) == 0 {
		return nil
	}
	if info.Key == "" {
		return b.fallback.Pick(nodes, info)
	}

	b.mu.Lock()
	nodeKey := nodeSetKey(nodes)
	if b.ring == nil || b.lastNodes != nodeKey {
		b.ring = newHashRing(nodes, b.virtualNodes)
		b.lastNodes = nodeKey
	}
	ring := b.ring
	b.mu.Unlock()

	return ring.get(info.Key)
}

// nodeSetKey 与节点顺序无关
func nodeSetKey(nodes []*Node) string {
	addrs := make([]string, len(nodes))
	for i, n := range nodes {
		addrs[i] = n.Address
	}
	sort.Strings(addrs)
	return strings.Join(addrs, ",")
}

type hashRing struct {
	nodes        map[uint64]*Node
	sortedHashes []uint64
}

func newHashRing(nodes []*Node, virtualNodes int) *hashRing {
	ring := &hashRing{
		nodes:        make(map[uint64]*Node, len(nodes)*virtualNodes),
		sortedHashes: make([]uint64, 0, len(nodes)*virtualNodes),
	}
	for _, node := range nodes {
		for i := 0; i < virtualNodes; i++ {
			hash := xxhash.Sum64String(node.Address + "#" + strconv.Itoa(i))
			ring.nodes[hash] = node
			ring.sortedHashes = append(ring.sortedHashes, hash)
		}
	}
	sort.Slice(ring.sortedHashes, func(i, j int) bool {
		return ring.sortedHashes[i] < ring.sortedHashes[j]
	})
	return ring
}

// get 顺时针找到第一个不小于 key 哈希值的虚拟节点
func (r *hashRing) get(key string) *Node {
	hash := xxhash.Sum64String(key)
	idx := sort.Search(len(r.sortedHashes), func(i int) bool {
		return r.sortedHashes[i] >= hash
	})
	if idx == len(r.sortedHashes) {
		idx = 0
	}
	return r.nodes[r.sortedHashes[idx]]
}
