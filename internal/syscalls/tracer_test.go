package syscalls

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/zboralski/lktrace/internal/payload"
	"github.com/zboralski/lktrace/internal/trace"
)

type guest map[uint64][]byte

func (g guest) ReadGuest(addr uint64, buf []byte) {
	for base, data := range g {
		if addr >= base && addr < base+uint64(len(data)) {
			copy(buf, data[addr-base:])
			return
		}
	}
}

type records struct {
	out []*trace.Record
}

func (r *records) WriteRecord(rec *trace.Record) error {
	r.out = append(r.out, rec)
	return nil
}

func newTestTracer(mem payload.Reader, defs ...Def) (*Tracer, *records) {
	reg := NewRegistry()
	for _, d := range defs {
		reg.Register(d)
	}
	sink := &records{}
	tr := NewTracer(mem, sink)
	tr.Registry = reg
	return tr, sink
}

func exitEvent(args [8]uint64, ret int64) *trace.Event {
	return trace.NewEntry(args).Return(uint64(ret))
}

func TestRegistryLookupAndList(t *testing.T) {
	reg := NewRegistry()
	reg.Register(Def{Sysno: 64, Name: "write"})
	reg.Register(Def{Sysno: 17, Name: "getcwd"})
	reg.Register(Def{Sysno: 56, Name: "openat"})

	if reg.Count() != 3 {
		t.Fatalf("Count = %d", reg.Count())
	}
	def, ok := reg.Lookup(17)
	if !ok || def.Name != "getcwd" {
		t.Errorf("Lookup(17) = %v, %v", def, ok)
	}
	if _, ok := reg.Lookup(999); ok {
		t.Error("Lookup(999) should miss")
	}

	list := reg.List()
	for i, want := range []uint64{17, 56, 64} {
		if list[i].Sysno != want {
			t.Errorf("List[%d] = %d, want %d", i, list[i].Sysno, want)
		}
	}
}

func TestRegisterReplaces(t *testing.T) {
	reg := NewRegistry()
	reg.Register(Def{Sysno: 1, Name: "a"})
	reg.Register(Def{Sysno: 1, Name: "b"})
	def, _ := reg.Lookup(1)
	if def.Name != "b" || reg.Count() != 1 {
		t.Errorf("got %q, count %d", def.Name, reg.Count())
	}
}

func TestUnknownSyscallIgnored(t *testing.T) {
	tr, sink := newTestTracer(guest{})
	tr.Exit(exitEvent([8]uint64{7: 999}, 0))

	if len(sink.out) != 1 {
		t.Fatalf("records = %d, want 1", len(sink.out))
	}
	if len(sink.out[0].Payloads) != 0 {
		t.Errorf("payloads = %d, want 0", len(sink.out[0].Payloads))
	}

	tr.Unmatched = false
	tr.Exit(exitEvent([8]uint64{7: 999}, 0))
	if len(sink.out) != 1 {
		t.Errorf("unmatched syscall recorded with Unmatched=false")
	}
}

func TestPhaseSelectsActions(t *testing.T) {
	mem := guest{0x1000: []byte("x\x00")}
	tr, sink := newTestTracer(mem, Def{
		Sysno: 5,
		Entry: []Action{Str(0, Arg(0))},
		Exit:  []Action{Str(1, Arg(1))},
	})

	args := [8]uint64{0: 0x1000, 1: 0x1000, 7: 5}
	tr.Enter(trace.NewEntry(args))
	tr.Exit(exitEvent(args, 0))

	if len(sink.out) != 2 {
		t.Fatalf("records = %d", len(sink.out))
	}
	if sink.out[0].Event.Phase != trace.PhaseIn || sink.out[0].Payloads[0].Index != 0 {
		t.Errorf("entry record = %+v", sink.out[0])
	}
	if sink.out[1].Event.Phase != trace.PhaseOut || sink.out[1].Payloads[0].Index != 1 {
		t.Errorf("exit record = %+v", sink.out[1])
	}
}

func TestGatedActionSkippedOnFailure(t *testing.T) {
	mem := guest{
		0x1000: []byte("/etc\x00"),
		0x2000: bytes.Repeat([]byte{0xaa}, 16),
	}
	def := Def{
		Sysno: 79,
		Exit: []Action{
			Str(1, Arg(1)),
			Fixed(2, Arg(2), 16).If(ReturnedZero),
		},
	}
	tr, sink := newTestTracer(mem, def)
	args := [8]uint64{0: 0xffffffffffffff9c, 1: 0x1000, 2: 0x2000, 7: 79}

	tr.Exit(exitEvent(args, -2))
	tr.Exit(exitEvent(args, 0))

	failed, ok := sink.out[0], sink.out[1]
	if len(failed.Payloads) != 1 || failed.Payloads[0].Index != 1 {
		t.Errorf("failed call payloads = %+v", failed.Payloads)
	}
	if len(ok.Payloads) != 2 {
		t.Fatalf("successful call payloads = %d, want 2", len(ok.Payloads))
	}
	if !bytes.Equal(ok.Payloads[1].Data, mem[0x2000]) {
		t.Errorf("struct payload = %x", ok.Payloads[1].Data)
	}
}

func TestOrigA0SurvivesReturn(t *testing.T) {
	mem := guest{0x4000: []byte("/home/user\x00")}
	tr, sink := newTestTracer(mem, Def{
		Sysno: 17,
		Exit:  []Action{Str(0, OrigA0)},
	})

	ev := exitEvent([8]uint64{0: 0x4000, 1: 64, 7: 17}, 11)
	if ev.Args[0] != 11 {
		t.Fatalf("a0 = %d, want return value", ev.Args[0])
	}
	tr.Exit(ev)

	p, ok := sink.out[0].First(0)
	if !ok {
		t.Fatal("no payload at index 0")
	}
	if got := payload.CString(p.Data); got != "/home/user" {
		t.Errorf("path = %q", got)
	}
}

func TestHeapSizeDerivedFromArg(t *testing.T) {
	mem := guest{0x5000: []byte("hello")}
	var sizes []uint64
	tr, sink := newTestTracer(mem, Def{
		Sysno: 64,
		Exit:  []Action{Heap(1, Arg(1), ArgPlusOne(2)).If(FdIs(1, 2))},
	})
	tr.Extractor.Alloc = func(n uint64) []byte {
		sizes = append(sizes, n)
		return make([]byte, n)
	}

	tr.Exit(exitEvent([8]uint64{0: 1, 1: 0x5000, 2: 5, 7: 64}, 5))
	tr.Exit(exitEvent([8]uint64{0: 3, 1: 0x5000, 2: 5, 7: 64}, 5))

	if len(sizes) != 1 || sizes[0] != 6 {
		t.Fatalf("alloc sizes = %v, want [6]", sizes)
	}
	p := sink.out[0].Payloads[0]
	if len(p.Data) != 6 || payload.CString(p.Data) != "hello" {
		t.Errorf("payload = %q", p.Data)
	}
	if len(sink.out[1].Payloads) != 0 {
		t.Error("fd 3 should not be captured")
	}
}

func TestHeapSizeWrapSkips(t *testing.T) {
	tr, sink := newTestTracer(guest{}, Def{
		Sysno: 64,
		Exit:  []Action{Heap(1, Arg(1), ArgPlusOne(2))},
	})
	allocs := 0
	tr.Extractor.Alloc = func(n uint64) []byte {
		allocs++
		return make([]byte, n)
	}

	tr.Exit(exitEvent([8]uint64{0: 1, 1: 0x5000, 2: ^uint64(0), 7: 64}, 0))

	if allocs != 0 {
		t.Errorf("zero-size allocation attempted")
	}
	if len(sink.out[0].Payloads) != 0 {
		t.Errorf("payloads = %d", len(sink.out[0].Payloads))
	}
}

func TestHeapZeroCountOnFailure(t *testing.T) {
	var sizes []uint64
	tr, sink := newTestTracer(guest{}, Def{
		Sysno: 64,
		Exit:  []Action{Heap(1, Arg(1), ArgPlusOne(2)).If(FdIs(1, 2))},
	})
	tr.Extractor.Alloc = func(n uint64) []byte {
		sizes = append(sizes, n)
		return make([]byte, n)
	}

	// write(1, 0x5000, 0) failing with -EPERM
	tr.Exit(exitEvent([8]uint64{0: 1, 1: 0x5000, 2: 0, 7: 64}, -1))

	if len(sizes) != 1 || sizes[0] != 1 {
		t.Fatalf("alloc sizes = %v, want [1]", sizes)
	}
	if len(sink.out) != 1 || len(sink.out[0].Payloads) != 1 {
		t.Fatalf("records = %+v", sink.out)
	}
	p := sink.out[0].Payloads[0]
	if p.Index != 1 || !bytes.Equal(p.Data, []byte{0}) {
		t.Errorf("payload = %+v, want index 1 with one NUL byte", p)
	}
}

func TestFilter(t *testing.T) {
	tr, sink := newTestTracer(guest{})
	tr.SetFilter([]uint64{64})

	tr.Exit(exitEvent([8]uint64{7: 63}, 0))
	tr.Exit(exitEvent([8]uint64{7: 64}, 0))

	if len(sink.out) != 1 || sink.out[0].Event.Sysno != 64 {
		t.Errorf("filtered records = %+v", sink.out)
	}

	tr.SetFilter(nil)
	tr.Exit(exitEvent([8]uint64{7: 63}, 0))
	if len(sink.out) != 2 {
		t.Error("clearing the filter should trace everything")
	}
}

func TestPanickingSourceContained(t *testing.T) {
	boom := Source{Name: "boom", Value: func(*trace.Event) uint64 { panic("boom") }}
	mem := guest{0x1000: []byte("ok\x00")}
	tr, sink := newTestTracer(mem, Def{
		Sysno: 1,
		Exit:  []Action{Str(0, boom), Str(1, Arg(1))},
	})

	tr.Exit(exitEvent([8]uint64{1: 0x1000, 7: 1}, 0))

	if len(sink.out[0].Payloads) != 1 || sink.out[0].Payloads[0].Index != 1 {
		t.Errorf("payloads = %+v", sink.out[0].Payloads)
	}
}

func TestSinkErrorDoesNotStopTracing(t *testing.T) {
	calls := 0
	tr := NewTracer(guest{}, SinkFunc(func(*trace.Record) error {
		calls++
		return errors.New("disk full")
	}))
	tr.Registry = NewRegistry()

	tr.Exit(exitEvent([8]uint64{7: 1}, 0))
	tr.Exit(exitEvent([8]uint64{7: 1}, 0))

	if calls != 2 {
		t.Errorf("sink calls = %d", calls)
	}
}

func TestPredicates(t *testing.T) {
	ok := exitEvent([8]uint64{0: 1, 1: 0x10}, 0)
	fail := exitEvent([8]uint64{0: 1, 1: 0x10}, -14)
	positive := exitEvent([8]uint64{0: 1}, 3)
	entry := trace.NewEntry([8]uint64{})

	tests := []struct {
		name string
		p    Predicate
		ev   *trace.Event
		want bool
	}{
		{"always", Always, fail, true},
		{"zero ok", ReturnedZero, ok, true},
		{"zero fail", ReturnedZero, fail, false},
		{"zero on entry", ReturnedZero, entry, false},
		{"positive", ReturnedPositive, positive, true},
		{"positive zero", ReturnedPositive, ok, false},
		{"nonnull", NonNull(Arg(1)), ok, true},
		{"null", NonNull(Arg(2)), ok, false},
		{"fd", FdIs(1, 2), ok, true},
		{"fd miss", FdIs(0), ok, false},
		{"all", All(ReturnedZero, NonNull(Arg(1))), ok, true},
		{"all fail", All(ReturnedZero, NonNull(Arg(1))), fail, false},
	}
	for _, tt := range tests {
		if got := tt.p.Eval(tt.ev); got != tt.want {
			t.Errorf("%s: Eval = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestActionString(t *testing.T) {
	a := Fixed(2, Arg(2), 128).If(ReturnedZero)
	if got := a.String(); got != "struct(a2, 128) idx2 if ret==0" {
		t.Errorf("String = %q", got)
	}
	h := Heap(1, Arg(1), ArgPlusOne(2)).If(FdIs(1, 2))
	if got := h.String(); got != "heap(a1, a2+1) idx1 if fd in {1,2}" {
		t.Errorf("String = %q", got)
	}
}

func TestArrayActionOnEntry(t *testing.T) {
	ptrs := make([]byte, 24)
	binary.LittleEndian.PutUint64(ptrs[0:], 0x7000)
	binary.LittleEndian.PutUint64(ptrs[8:], 0x7100)
	mem := guest{
		0x6000: ptrs,
		0x7000: []byte("a\x00"),
		0x7100: []byte("b\x00"),
	}
	tr, sink := newTestTracer(mem, Def{Sysno: 221, Entry: []Action{Array(1, Arg(1))}})

	tr.Enter(trace.NewEntry([8]uint64{1: 0x6000, 7: 221}))

	ps := sink.out[0].PayloadsAt(1)
	if len(ps) != 2 {
		t.Fatalf("array payloads = %d", len(ps))
	}
	if payload.CString(ps[0].Data) != "a" || payload.CString(ps[1].Data) != "b" {
		t.Errorf("array = %q, %q", ps[0].Data, ps[1].Data)
	}
}
