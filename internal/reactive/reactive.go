// Package reactive holds observable values and lazily recomputed derivations.
//
// A Var is an input. A Memo derives a value from other cells and recomputes only when one
// of them changed since its last run. Nothing is pushed: a read pulls the minimal set of
// recomputations through the graph.
package reactive

import "sync"

// Cell is anything whose changes can be observed by version.
type Cell interface {
	// Version increases every time the cell's value changes.
	Version() uint64
}

// Var is a settable value.
type Var[T any] struct {
	mu      sync.Mutex
	val     T
	version uint64
}

// NewVar returns a Var holding v.
func NewVar[T any](v T) *Var[T] {
	return &Var[T]{val: v, version: 1}
}

func (x *Var[T]) Get() T {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.val
}

// Set replaces the value and bumps the version.
func (x *Var[T]) Set(v T) {
	x.mu.Lock()
	x.val = v
	x.version++
	x.mu.Unlock()
}

func (x *Var[T]) Version() uint64 {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.version
}

// Memo caches the result of fn, including its error, until a dependency changes.
type Memo[T any] struct {
	mu      sync.Mutex
	fn      func() (T, error)
	deps    []Cell
	seen    []uint64
	val     T
	err     error
	valid   bool
	version uint64
	runs    int
}

// NewMemo returns a memo over fn. deps must list every cell fn reads.
func NewMemo[T any](fn func() (T, error), deps ...Cell) *Memo[T] {
	return &Memo[T]{fn: fn, deps: deps, seen: make([]uint64, len(deps))}
}

// Get returns the cached value, recomputing it first if any dependency changed.
func (m *Memo[T]) Get() (T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refresh()
	return m.val, m.err
}

// Version refreshes the memo and returns its version, so memos can depend on memos.
func (m *Memo[T]) Version() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refresh()
	return m.version
}

// Runs returns how many times fn has run.
func (m *Memo[T]) Runs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runs
}

func (m *Memo[T]) refresh() {
	stale := !m.valid
	for i, d := range m.deps {
		if v := d.Version(); v != m.seen[i] {
			m.seen[i] = v
			stale = true
		}
	}
	if !stale {
		return
	}
	m.val, m.err = m.fn()
	m.valid = true
	m.version++
	m.runs++
}
