package dispatch

import (
	"sync"

	"github.com/google/ldpush/schema"
)

// Aggregate collects one result per target. Iteration order is completion
// order, not submission order. Each target's result is written exactly once,
// by the worker that owned the job, so a plain insert under the mutex is all
// the synchronization required.
type Aggregate struct {
	mut     sync.RWMutex
	order   []string
	results map[string]schema.Result
}

func NewAggregate() *Aggregate {
	return &Aggregate{results: make(map[string]schema.Result)}
}

func (a *Aggregate) add(r schema.Result) {
	a.mut.Lock()
	defer a.mut.Unlock()
	name := r.Target.Name()
	if _, dup := a.results[name]; !dup {
		a.order = append(a.order, name)
	}
	a.results[name] = r
}

// Get returns the result for a target name.
func (a *Aggregate) Get(name string) (schema.Result, bool) {
	a.mut.RLock()
	defer a.mut.RUnlock()
	r, ok := a.results[name]
	return r, ok
}

// All returns every result in completion order.
func (a *Aggregate) All() []schema.Result {
	a.mut.RLock()
	defer a.mut.RUnlock()
	out := make([]schema.Result, 0, len(a.order))
	for _, name := range a.order {
		out = append(out, a.results[name])
	}
	return out
}

// Failed returns the results with any outcome other than success, in
// completion order.
func (a *Aggregate) Failed() []schema.Result {
	var out []schema.Result
	for _, r := range a.All() {
		if r.Outcome != schema.Success {
			out = append(out, r)
		}
	}
	return out
}

func (a *Aggregate) Len() int {
	a.mut.RLock()
	defer a.mut.RUnlock()
	return len(a.order)
}
