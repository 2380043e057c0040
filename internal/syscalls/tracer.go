package syscalls

import (
	"fmt"

	glog "github.com/zboralski/lktrace/internal/log"
	"github.com/zboralski/lktrace/internal/payload"
	"github.com/zboralski/lktrace/internal/sysno"
	"github.com/zboralski/lktrace/internal/trace"
	"go.uber.org/zap"
)

// Sink receives one record per traced phase.
type Sink interface {
	WriteRecord(rec *trace.Record) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(rec *trace.Record) error

// WriteRecord calls f.
func (f SinkFunc) WriteRecord(rec *trace.Record) error { return f(rec) }

// Tracer runs the dispatch table against syscall events. It keeps no
// per-call state, so one tracer may serve every vCPU as long as the
// extractor's reader and the sink are safe for that.
type Tracer struct {
	Registry  *Registry
	Extractor *payload.Extractor
	Sink      Sink
	Table     *sysno.Table

	// Only restricts tracing to the listed syscalls. nil traces all.
	Only map[uint64]bool

	// Unmatched controls whether syscalls without a definition still get a
	// record (header only). The dispatch itself ignores them either way.
	Unmatched bool

	Log *glog.Logger
}

// NewTracer returns a tracer over the default registry.
func NewTracer(mem payload.Reader, sink Sink) *Tracer {
	return &Tracer{
		Registry:  DefaultRegistry,
		Extractor: payload.New(mem, nil),
		Sink:      sink,
		Table:     sysno.RISCV64(),
		Unmatched: true,
	}
}

// SetFilter restricts tracing to nrs. An empty list removes the filter.
func (t *Tracer) SetFilter(nrs []uint64) {
	if len(nrs) == 0 {
		t.Only = nil
		return
	}
	t.Only = make(map[uint64]bool, len(nrs))
	for _, nr := range nrs {
		t.Only[nr] = true
	}
}

func (t *Tracer) log() *glog.Logger {
	if t.Log != nil {
		return t.Log
	}
	return glog.Get()
}

// Enter runs the entry-phase actions for ev.
func (t *Tracer) Enter(ev *trace.Event) {
	t.trace(ev, trace.PhaseIn)
}

// Exit runs the exit-phase actions for ev. ev.Ret and ev.Args[0] must
// already hold the return value and ev.OrigA0 the caller's a0.
func (t *Tracer) Exit(ev *trace.Event) {
	t.trace(ev, trace.PhaseOut)
}

func (t *Tracer) trace(ev *trace.Event, phase trace.Phase) {
	if ev == nil {
		return
	}
	if t.Only != nil && !t.Only[ev.Sysno] {
		return
	}

	var def *Def
	if t.Registry != nil {
		def, _ = t.Registry.Lookup(ev.Sysno)
	}
	if def == nil && !t.Unmatched {
		return
	}

	e := *ev
	e.Phase = phase
	rec := &trace.Record{Event: e}

	if def != nil {
		actions := def.Actions(phase)
		if len(actions) > 0 {
			t.log().Dispatch(e.Sysno, phase.String(), def.Name, len(actions))
			t.dispatch(rec, actions)
		}
	}

	if t.Sink == nil {
		return
	}
	if err := t.Sink.WriteRecord(rec); err != nil {
		t.log().Warn("write record",
			glog.Sysno(e.Sysno),
			zap.String("phase", phase.String()),
			zap.Error(err),
		)
	}
}

func (t *Tracer) dispatch(rec *trace.Record, actions []Action) {
	var x payload.Extractor
	if t.Extractor != nil {
		x = *t.Extractor
	} else {
		x = *payload.New(nil, nil)
	}
	if x.Mem == nil {
		x.Mem = payload.ReaderFunc(func(uint64, []byte) {})
	}
	if x.Log == nil {
		x.Log = t.Log
	}
	x.Out = payload.EmitterFunc(func(index int, _ *trace.Event, data []byte) {
		rec.Add(index, data)
	})

	ev := &rec.Event
	for _, a := range actions {
		t.run(&x, ev, a)
	}
}

// run executes one action. Broken predicates or sources are contained to
// the action that owns them.
func (t *Tracer) run(x *payload.Extractor, ev *trace.Event, a Action) {
	defer func() {
		if r := recover(); r != nil {
			t.log().Warn("action panicked",
				glog.Sysno(ev.Sysno),
				glog.Index(a.Index),
				zap.String("err", fmt.Sprint(r)),
			)
		}
	}()

	if !a.When.Eval(ev) {
		return
	}
	addr := a.Addr.Value(ev)

	switch a.Kind {
	case KindStruct:
		x.Fixed(ev, a.Index, addr, a.Size)
	case KindCString:
		x.CString(ev, a.Index, addr, a.Size)
	case KindHeap:
		x.HeapString(ev, a.Index, addr, a.SizeFrom.Value(ev))
	case KindArray:
		x.StringArray(ev, a.Index, addr, a.Size)
	}
}

// Name resolves a syscall number for display.
func (t *Tracer) Name(nr uint64) string {
	if t.Registry != nil {
		if def, ok := t.Registry.Lookup(nr); ok && def.Name != "" {
			return def.Name
		}
	}
	if t.Table != nil {
		return t.Table.NameOr(nr)
	}
	return fmt.Sprintf("sys_%d", nr)
}
