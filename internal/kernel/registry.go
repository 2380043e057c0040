package kernel

import (
	"sort"
	"sync"

	"github.com/zboralski/lktrace/internal/emulator"
	glog "github.com/zboralski/lktrace/internal/log"
	"github.com/zboralski/lktrace/internal/trace"
	"go.uber.org/zap"
)

// HandlerFunc services one syscall and returns the value for a0.
type HandlerFunc func(k *Kernel, emu *emulator.Emulator, ev *trace.Event) uint64

// Def binds a syscall number to its handler.
type Def struct {
	Sysno    uint64
	Name     string
	Handler  HandlerFunc
	Category trace.Tag

	// NoReturn marks calls that end the task (exit, exit_group). Their
	// handler result is discarded and emulation stops.
	NoReturn bool
}

// Registry holds the handlers, keyed by syscall number.
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

// Register adds or replaces the handler for def.Sysno.
func (r *Registry) Register(def Def) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs[def.Sysno] = &def

	if Debug && glog.L != nil {
		glog.L.Debug("registered",
			zap.String("cat", string(def.Category)),
			zap.String("sys", def.Name),
			glog.Sysno(def.Sysno),
		)
	}
}

// RegisterFunc is a convenience method to register a handler.
func (r *Registry) RegisterFunc(category trace.Tag, nr uint64, name string, fn HandlerFunc) {
	r.Register(Def{Sysno: nr, Name: name, Handler: fn, Category: category})
}

// Lookup returns the handler for nr.
func (r *Registry) Lookup(nr uint64) (*Def, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[nr]
	return def, ok
}

// Count returns the number of registered handlers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.defs)
}

// List returns every handler ordered by syscall number.
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

// Register adds a handler to the default registry.
func Register(def Def) {
	DefaultRegistry.Register(def)
}

// RegisterFunc adds a handler to the default registry.
func RegisterFunc(category trace.Tag, nr uint64, name string, fn HandlerFunc) {
	DefaultRegistry.RegisterFunc(category, nr, name, fn)
}
