// Package operation holds the registry of computation kinds the coordinator
// recognizes. Each operation lives in its own file and registers itself at
// init time; the registry is read-only after startup.
//
// The coordinator only validates names; worker bots call Execute.
package operation

import (
	"fmt"
	"sort"

	"github.com/rezkam/flotilla/internal/domain"
)

// Operation computes one result from two integer operands.
type Operation struct {
	// Name is the stable identifier jobs reference.
	Name string

	// Description is operator-facing metadata.
	Description string

	// Execute runs the computation. It returns an error for inputs the
	// operation cannot handle (division by zero).
	Execute func(a, b int) (int, error)
}

// Registry is the immutable set of known operations.
type Registry struct {
	ops map[string]Operation
}

var defaultOps []Operation

func register(op Operation) {
	defaultOps = append(defaultOps, op)
}

// NewRegistry builds a registry from every self-registered operation.
func NewRegistry() *Registry {
	r := &Registry{ops: make(map[string]Operation, len(defaultOps))}
	for _, op := range defaultOps {
		r.ops[op.Name] = op
	}
	return r
}

// Names returns all operation names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.ops))
	for name := range r.ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Contains reports whether name is a known operation.
func (r *Registry) Contains(name string) bool {
	_, ok := r.ops[name]
	return ok
}

// Get returns the named operation.
func (r *Registry) Get(name string) (Operation, error) {
	op, ok := r.ops[name]
	if !ok {
		return Operation{}, fmt.Errorf("%w: %s", domain.ErrUnknownOperation, name)
	}
	return op, nil
}

// Execute runs the named operation on the operands.
func (r *Registry) Execute(name string, a, b int) (int, error) {
	op, err := r.Get(name)
	if err != nil {
		return 0, err
	}
	return op.Execute(a, b)
}
