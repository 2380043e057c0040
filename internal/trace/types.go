// Package trace provides the per-syscall event model shared by the
// dispatcher, the trace file codec and the analyzer.
package trace

import "fmt"

// Phase identifies which side of a syscall an event was captured on.
// Values match the inout field of the on-disk record.
type Phase uint64

const (
	PhaseOut Phase = 0 // after the kernel serviced the call
	PhaseIn  Phase = 1 // before the kernel services the call
)

func (p Phase) String() string {
	switch p {
	case PhaseIn:
		return "in"
	case PhaseOut:
		return "out"
	}
	return fmt.Sprintf("phase(%d)", uint64(p))
}

// CauseUserEcall is the scause value of an environment call from U-mode.
const CauseUserEcall = 8

// NumArgs is the number of argument registers (a0-a7) carried per event.
const NumArgs = 8

// Tag represents a syscall category.
// Tags are stored without # prefix; the prefix is added on rendering.
type Tag string

// Standard syscall categories.
const (
	File     Tag = "file"
	IO       Tag = "io"
	Process  Tag = "process"
	Signal   Tag = "signal"
	Resource Tag = "resource"
	Time     Tag = "time"
	Memory   Tag = "memory"
)

// Tags is an ordered set of categories, such as the kernel calls made by
// one instruction.
type Tags []Tag

// Has reports whether tag is in t.
func (t Tags) Has(tag Tag) bool {
	for _, x := range t {
		if x == tag {
			return true
		}
	}
	return false
}

// Add appends tag unless it is already present. Empty tags are dropped.
func (t *Tags) Add(tag Tag) {
	if tag != "" && !t.Has(tag) {
		*t = append(*t, tag)
	}
}

// Strings renders t as #-prefixed labels.
func (t Tags) Strings() []string {
	out := make([]string, 0, len(t))
	for _, tag := range t {
		out = append(out, "#"+string(tag))
	}
	return out
}

// Event is the per-call context handed to the dispatcher for one phase.
//
// Args holds the live a0-a7 registers. In the out phase a0 already carries
// the return value, so handlers that need the caller's first argument read
// OrigA0, which the emulator snapshots before the call executes.
type Event struct {
	Phase  Phase
	Sysno  uint64
	Args   [NumArgs]uint64
	OrigA0 uint64
	Ret    int64 // valid in PhaseOut only

	// Capture context, written to the trace record as-is.
	Cause uint64
	PC    uint64 // epc of the ecall
	SP    uint64 // user stack pointer
	Stack [8]uint64
	Satp  uint64
	TP    uint64
	TID   uint64
}

// NewEntry builds an entry-phase event from the argument registers.
// a7 carries the syscall number on riscv64.
func NewEntry(args [NumArgs]uint64) *Event {
	return &Event{
		Phase:  PhaseIn,
		Sysno:  args[7],
		Args:   args,
		OrigA0: args[0],
		Cause:  CauseUserEcall,
	}
}

// Return derives the exit-phase event from an entry event once the kernel
// has produced ret. a0 is overwritten with the result; OrigA0 is kept.
func (e *Event) Return(ret uint64) *Event {
	out := *e
	out.Phase = PhaseOut
	out.Args[0] = ret
	out.Ret = int64(ret)
	return &out
}

// Arg returns argument register n, or 0 when n is out of range.
func (e *Event) Arg(n int) uint64 {
	if n < 0 || n >= NumArgs {
		return 0
	}
	return e.Args[n]
}

// Succeeded reports whether the return value is not a negative errno.
func (e *Event) Succeeded() bool {
	return e.Phase == PhaseOut && e.Ret >= 0
}

// Payload is one extracted argument buffer.
type Payload struct {
	Index int
	Data  []byte
}

// Record is an event together with the payloads emitted for it.
type Record struct {
	Event
	Payloads []Payload
}

// Add appends a copy of data as a payload for argument index.
func (r *Record) Add(index int, data []byte) {
	buf := make([]byte, len(data))
	copy(buf, data)
	r.Payloads = append(r.Payloads, Payload{Index: index, Data: buf})
}

// PayloadsAt returns every payload carrying the given argument index, in
// emission order.
func (r *Record) PayloadsAt(index int) []Payload {
	var out []Payload
	for _, p := range r.Payloads {
		if p.Index == index {
			out = append(out, p)
		}
	}
	return out
}

// First returns the first payload at index.
func (r *Record) First(index int) (Payload, bool) {
	for _, p := range r.Payloads {
		if p.Index == index {
			return p, true
		}
	}
	return Payload{}, false
}
