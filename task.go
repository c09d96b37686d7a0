package caseflow

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/unkn0wn-root/caseflow/dataunit"
)

// Task is what a user works on across a cohort. It supplies the data unit
// factory and is handed every unit that becomes active.
type Task interface {
	Name() string
	Factory() dataunit.Factory
	Receive(ctx context.Context, u dataunit.Unit) error
}

// NewTaskFunc constructs a task.
type NewTaskFunc func() (Task, error)

// Registry maps task names to constructors. Populate it at startup with
// explicit Register calls.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]NewTaskFunc
}

func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]NewTaskFunc)}
}

// Register adds a task. Names are unique; a second registration under the same
// name fails with ErrDuplicateTask and keeps the first.
func (r *Registry) Register(name string, fn NewTaskFunc) error {
	if name == "" || fn == nil {
		return fmt.Errorf("%w: task name and constructor are required", ErrInvalidOptions)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.tasks[name]; dup {
		return fmt.Errorf("%w: %q", ErrDuplicateTask, name)
	}
	r.tasks[name] = fn
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(name string, fn NewTaskFunc) {
	if err := r.Register(name, fn); err != nil {
		panic(err)
	}
}

func (r *Registry) Lookup(name string) (NewTaskFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.tasks[name]
	return fn, ok
}

// New constructs the task registered under name.
func (r *Registry) New(name string) (Task, error) {
	fn, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTask, name)
	}
	return fn()
}

// Names returns registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tasks))
	for n := range r.tasks {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
