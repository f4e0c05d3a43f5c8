package partition

import (
	"fmt"
	"hash/fnv"
)

// Partitioner maps correlation ids onto a fixed number of ordered lanes.
// Every message for the same saga instance lands in the same lane.
type Partitioner struct {
	Count  int
	Prefix string
}

func New(count int, prefix string) Partitioner {
	if count < 1 {
		count = 1
	}
	return Partitioner{Count: count, Prefix: prefix}
}

// Of returns the partition of correlationID.
func (p Partitioner) Of(correlationID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(correlationID))
	return int(h.Sum32() % uint32(p.Count))
}

// RoutingKey is the broker routing key, and queue name, of partition n.
func (p Partitioner) RoutingKey(n int) string {
	return fmt.Sprintf("%s.saga.%d", p.Prefix, n)
}

func (p Partitioner) RoutingKeyFor(correlationID string) string {
	return p.RoutingKey(p.Of(correlationID))
}

// RoutingKeys lists every partition key in lane order.
func (p Partitioner) RoutingKeys() []string {
	keys := make([]string, p.Count)
	for i := range keys {
		keys[i] = p.RoutingKey(i)
	}
	return keys
}
