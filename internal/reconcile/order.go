package reconcile

import (
	"container/heap"
	"fmt"
)

type intMinHeap []int

func (h intMinHeap) Len() int           { return len(h) }
func (h intMinHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h intMinHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *intMinHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *intMinHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// order sorts ops topologically with Kahn's algorithm. The ready queue is a
// min-heap by Index, so independent operations keep declaration order.
func order(ops []Operation) ([]Operation, error) {
	byKey := make(map[string]int, len(ops))
	for i, op := range ops {
		if _, dup := byKey[op.Key]; dup {
			return nil, fmt.Errorf("duplicate operation key %q", op.Key)
		}
		byKey[op.Key] = i
	}

	indeg := make([]int, len(ops))
	outgoing := make([][]int, len(ops))
	for i, op := range ops {
		for _, dep := range op.DependsOn {
			d, ok := byKey[dep]
			if !ok {
				return nil, fmt.Errorf("operation %q depends on unknown key %q", op.Key, dep)
			}
			outgoing[d] = append(outgoing[d], i)
			indeg[i]++
		}
	}

	byIndex := make(map[int]int, len(ops))
	for i, op := range ops {
		byIndex[op.Index] = i
	}
	ready := &intMinHeap{}
	heap.Init(ready)
	for i := range indeg {
		if indeg[i] == 0 {
			heap.Push(ready, ops[i].Index)
		}
	}

	out := make([]Operation, 0, len(ops))
	for ready.Len() > 0 {
		n := byIndex[heap.Pop(ready).(int)]
		out = append(out, ops[n])
		for _, m := range outgoing[n] {
			indeg[m]--
			if indeg[m] == 0 {
				heap.Push(ready, ops[m].Index)
			}
		}
	}
	if len(out) != len(ops) {
		return nil, fmt.Errorf("dependency cycle among %d operations", len(ops)-len(out))
	}
	return out, nil
}
