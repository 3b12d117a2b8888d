package sim

import (
	"container/heap"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// queueEntry is a pending exit. Entries with lower priority values are processed first.
type queueEntry struct {
	priority   *uint256.Int
	exitableAt uint64
	exitID     *uint256.Int
	inFlight   bool
}

// exitPriority orders exits by maturity, then by position, then by insertion.
func exitPriority(exitableAt, position, seq uint64) *uint256.Int {
	p := new(uint256.Int).Lsh(uint256.NewInt(exitableAt), 128)
	p.Or(p, new(uint256.Int).Lsh(uint256.NewInt(position), 64))
	return p.Or(p, uint256.NewInt(seq))
}

type exitQueue []*queueEntry

var _ heap.Interface = (*exitQueue)(nil)

func (q exitQueue) Len() int           { return len(q) }
func (q exitQueue) Less(i, j int) bool { return q[i].priority.Lt(q[j].priority) }
func (q exitQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }

func (q *exitQueue) Push(x any) {
	*q = append(*q, x.(*queueEntry))
}

func (q *exitQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return e
}

func (q exitQueue) peek() *queueEntry {
	if len(q) == 0 {
		return nil
	}
	return q[0]
}

// matured returns, in processing order, up to count entries exitable at now.
// The queue itself is left untouched.
func (q exitQueue) matured(now, count uint64) []*queueEntry {
	cpy := append(exitQueue(nil), q...)
	var out []*queueEntry
	for uint64(len(out)) < count && cpy.Len() > 0 && cpy[0].exitableAt <= now {
		out = append(out, heap.Pop(&cpy).(*queueEntry))
	}
	return out
}

type queues map[common.Address]*exitQueue

func (qs queues) get(token common.Address) *exitQueue {
	q, ok := qs[token]
	if !ok {
		q = new(exitQueue)
		qs[token] = q
	}
	return q
}
