// Package scheduler picks which instance serves the next invocation.
package scheduler

import (
	"errors"
	"sync"

	"github.com/upperfaas/upperfaas/pkg/registry"
)

var ErrNoInstances = errors.New("scheduler: no running instances")

// RoundRobin cycles through the instances of each function. The instance set
// may change between picks, so the counter is taken modulo the current size.
type RoundRobin struct {
	mu   sync.Mutex
	next map[string]uint32
}

func NewRoundRobin() *RoundRobin {
	return &RoundRobin{next: make(map[string]uint32)}
}

func (rr *RoundRobin) Pick(function string, instances []registry.Instance) (registry.Instance, error) {
	if len(instances) == 0 {
		return registry.Instance{}, ErrNoInstances
	}

	rr.mu.Lock()
	n := rr.next[function]
	rr.next[function] = n + 1
	rr.mu.Unlock()

	return instances[n%uint32(len(instances))], nil
}

// Forget drops the counter of a deleted function.
func (rr *RoundRobin) Forget(function string) {
	rr.mu.Lock()
	delete(rr.next, function)
	rr.mu.Unlock()
}
