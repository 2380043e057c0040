// Package syscalls provides the dispatch table of payload extraction
// actions and the tracer that runs it on syscall entry and exit.
//
// Definitions self-register from init() in the syscalls/linux package, the
// same way handlers register everywhere else in this tree. The tracer never
// switches on syscall numbers itself.
package syscalls

import (
	"sort"
	"sync"

	glog "github.com/zboralski/lktrace/internal/log"
	"github.com/zboralski/lktrace/internal/trace"
	"go.uber.org/zap"
)

// Def describes which argument slots of one syscall carry payloads.
type Def struct {
	Sysno    uint64
	Name     string
	Category trace.Tag

	Entry []Action // run before the kernel services the call
	Exit  []Action // run after the return value is known
}

// Actions returns the actions for phase.
func (d *Def) Actions(phase trace.Phase) []Action {
	if phase == trace.PhaseIn {
		return d.Entry
	}
	return d.Exit
}

// Registry maps syscall numbers to definitions.
type Registry struct {
	mu   sync.RWMutex
	defs map[uint64]*Def
}

// DefaultRegistry is the global registry used by init() functions.
var DefaultRegistry = NewRegistry()

// Debug enables registration logging.
var Debug = false

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[uint64]*Def)}
}

// Register adds or replaces the definition for def.Sysno.
func (r *Registry) Register(def Def) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.defs[def.Sysno] = &def

	if Debug && glog.L != nil {
		glog.L.Debug("registered",
			zap.String("cat", string(def.Category)),
			zap.String("sys", def.Name),
			glog.Sysno(def.Sysno),
			zap.Int("entry", len(def.Entry)),
			zap.Int("exit", len(def.Exit)),
		)
	}
}

// Lookup returns the definition for nr.
func (r *Registry) Lookup(nr uint64) (*Def, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[nr]
	return def, ok
}

// Count returns the number of registered syscalls.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.defs)
}

// List returns every definition ordered by syscall number.
func (r *Registry) List() []*Def {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Def, 0, len(r.defs))
	for _, def := range r.defs {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sysno < out[j].Sysno })
	return out
}

// Register adds a definition to the default registry.
func Register(def Def) {
	DefaultRegistry.Register(def)
}
