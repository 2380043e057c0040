package syscalls

import (
	"fmt"
	"strings"

	"github.com/zboralski/lktrace/internal/trace"
)

// Kind selects how an action interprets the bytes at its address.
type Kind int

const (
	KindStruct  Kind = iota // fixed-size raw bytes
	KindCString             // bounded NUL-terminated string
	KindHeap                // runtime-sized string, size from a Source
	KindArray               // NULL-terminated array of string pointers
)

func (k Kind) String() string {
	switch k {
	case KindStruct:
		return "struct"
	case KindCString:
		return "cstring"
	case KindHeap:
		return "heap"
	case KindArray:
		return "array"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Source derives a value (address or length) from an event.
type Source struct {
	Name  string
	Value func(ev *trace.Event) uint64
}

func (s Source) String() string { return s.Name }

// Arg reads argument register n as seen in the current phase.
func Arg(n int) Source {
	return Source{
		Name:  fmt.Sprintf("a%d", n),
		Value: func(ev *trace.Event) uint64 { return ev.Arg(n) },
	}
}

// OrigA0 is the first argument as it was before the call. In the exit
// phase a0 holds the return value, so anything keyed on the caller's a0
// must use this.
var OrigA0 = Source{
	Name:  "orig_a0",
	Value: func(ev *trace.Event) uint64 { return ev.OrigA0 },
}

// ArgPlusOne is argument n plus room for a terminator. The sum wraps to 0
// for a count of 2^64-1, which the extractor treats as a failed allocation.
func ArgPlusOne(n int) Source {
	return Source{
		Name:  fmt.Sprintf("a%d+1", n),
		Value: func(ev *trace.Event) uint64 { return ev.Arg(n) + 1 },
	}
}

// RetPlusOne is the return value plus room for a terminator.
var RetPlusOne = Source{
	Name:  "ret+1",
	Value: func(ev *trace.Event) uint64 { return uint64(ev.Ret) + 1 },
}

// Predicate gates an action. The zero Predicate always holds.
type Predicate struct {
	Name  string
	Holds func(ev *trace.Event) bool
}

func (p Predicate) String() string {
	if p.Holds == nil {
		return "always"
	}
	return p.Name
}

// Eval reports whether the predicate holds for ev.
func (p Predicate) Eval(ev *trace.Event) bool {
	return p.Holds == nil || p.Holds(ev)
}

// Always holds unconditionally.
var Always = Predicate{}

// ReturnedZero holds on the exit phase of a call that returned 0.
var ReturnedZero = Predicate{
	Name: "ret==0",
	Holds: func(ev *trace.Event) bool {
		return ev.Phase == trace.PhaseOut && ev.Ret == 0
	},
}

// ReturnedPositive holds on the exit phase of a call that returned > 0.
var ReturnedPositive = Predicate{
	Name: "ret>0",
	Holds: func(ev *trace.Event) bool {
		return ev.Phase == trace.PhaseOut && ev.Ret > 0
	},
}

// NonNull holds when src is not zero.
func NonNull(src Source) Predicate {
	return Predicate{
		Name:  src.Name + "!=0",
		Holds: func(ev *trace.Event) bool { return src.Value(ev) != 0 },
	}
}

// FdIs holds when the caller's first argument is one of fds.
func FdIs(fds ...uint64) Predicate {
	if len(fds) == 0 {
		return Predicate{Name: "never", Holds: func(*trace.Event) bool { return false }}
	}
	parts := make([]string, len(fds))
	for i, fd := range fds {
		parts[i] = fmt.Sprint(fd)
	}
	name := "fd==" + parts[0]
	if len(fds) > 1 {
		name = "fd in {" + strings.Join(parts, ",") + "}"
	}
	return Predicate{
		Name: name,
		Holds: func(ev *trace.Event) bool {
			for _, fd := range fds {
				if ev.OrigA0 == fd {
					return true
				}
			}
			return false
		},
	}
}

// All holds when every predicate holds.
func All(preds ...Predicate) Predicate {
	names := make([]string, 0, len(preds))
	for _, p := range preds {
		if p.Holds != nil {
			names = append(names, p.Name)
		}
	}
	return Predicate{
		Name: strings.Join(names, " && "),
		Holds: func(ev *trace.Event) bool {
			for _, p := range preds {
				if !p.Eval(ev) {
					return false
				}
			}
			return true
		},
	}
}

// Action extracts one argument slot.
type Action struct {
	Index int
	Kind  Kind
	Addr  Source

	// Size is the byte count of a struct or the capacity of a bounded
	// string. 0 selects the extractor's string capacity.
	Size int

	// SizeFrom supplies the allocation size of a KindHeap action.
	SizeFrom Source

	When Predicate
}

// Fixed reads size raw bytes at src.
func Fixed(index int, src Source, size int) Action {
	return Action{Index: index, Kind: KindStruct, Addr: src, Size: size}
}

// Str reads a bounded string at src.
func Str(index int, src Source) Action {
	return Action{Index: index, Kind: KindCString, Addr: src}
}

// Heap reads a string whose buffer size comes from size.
func Heap(index int, src, size Source) Action {
	return Action{Index: index, Kind: KindHeap, Addr: src, SizeFrom: size}
}

// Array walks a NULL-terminated string pointer array at src.
func Array(index int, src Source) Action {
	return Action{Index: index, Kind: KindArray, Addr: src}
}

// If returns a copy of a gated by p.
func (a Action) If(p Predicate) Action {
	a.When = p
	return a
}

func (a Action) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s(%s", a.Kind, a.Addr)
	switch a.Kind {
	case KindStruct:
		fmt.Fprintf(&b, ", %d", a.Size)
	case KindHeap:
		fmt.Fprintf(&b, ", %s", a.SizeFrom)
	}
	fmt.Fprintf(&b, ") idx%d", a.Index)
	if a.When.Holds != nil {
		b.WriteString(" if ")
		b.WriteString(a.When.Name)
	}
	return b.String()
}
