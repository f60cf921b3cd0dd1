// Package stdlib provides the chrono standard library of native functions.
package stdlib

import (
	"io"
	"os"
	"sort"
	"time"

	"github.com/thomasrohde/chrono/pkg/evaluator"
)

// Registry holds registered native functions.
type Registry struct {
	fns map[string]*evaluator.Builtin
	out io.Writer
	now func() time.Time
}

// NewRegistry creates a new empty registry writing to stdout.
func NewRegistry() *Registry {
	return &Registry{
		fns: make(map[string]*evaluator.Builtin),
		out: os.Stdout,
		now: time.Now,
	}
}

// SetOutput redirects print() and friends.
func (r *Registry) SetOutput(w io.Writer) {
	r.out = w
}

// SetClock replaces the clock read by Sys.time().
func (r *Registry) SetClock(now func() time.Time) {
	r.now = now
}

// Register adds a native function to the registry.
func (r *Registry) Register(b evaluator.Builtin) {
	r.fns[b.Name] = &b
}

// Get retrieves a native function by name.
func (r *Registry) Get(name string) *evaluator.Builtin {
	return r.fns[name]
}

// All returns all registered native functions.
func (r *Registry) All() map[string]*evaluator.Builtin {
	return r.fns
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.fns))
	for name := range r.fns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Install binds every registered function in the machine's root frame.
func (r *Registry) Install(m *evaluator.Machine) {
	for _, name := range r.Names() {
		m.Define(name, r.fns[name])
	}
}
