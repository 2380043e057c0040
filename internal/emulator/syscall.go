package emulator

import (
	"encoding/binary"

	"github.com/zboralski/lktrace/internal/trace"
)

// Exception causes delivered for ecall, by privilege level of the caller.
// Unicorn runs guests in machine mode, so 11 is what we normally see.
const (
	CauseEcallU = 8
	CauseEcallS = 9
	CauseEcallM = 11
)

// SyscallHandler services one guest syscall. It returns the value for a0
// and whether the call returned to the guest at all (exit and exit_group
// do not).
type SyscallHandler interface {
	Syscall(emu *Emulator, ev *trace.Event) (ret uint64, returns bool)
}

// SyscallFunc adapts a function to SyscallHandler.
type SyscallFunc func(emu *Emulator, ev *trace.Event) (uint64, bool)

// Syscall calls f.
func (f SyscallFunc) Syscall(emu *Emulator, ev *trace.Event) (uint64, bool) {
	return f(emu, ev)
}

// SyscallObserver sees every syscall on both sides of the handler.
type SyscallObserver interface {
	Enter(ev *trace.Event)
	Exit(ev *trace.Event)
}

// enosys is -ENOSYS as returned in a0.
const enosys = ^uint64(38 - 1)

// SetSyscallHandler installs the handler for ecall.
func (e *Emulator) SetSyscallHandler(h SyscallHandler) {
	e.handler = h
}

// SetSyscallObserver installs the tracer notified around each ecall.
func (e *Emulator) SetSyscallObserver(o SyscallObserver) {
	e.observer = o
}

// SyscallEvent captures the current register state as an entry event.
func (e *Emulator) SyscallEvent() *trace.Event {
	var args [trace.NumArgs]uint64
	for i := range args {
		args[i] = e.A(i)
	}
	ev := trace.NewEntry(args)
	ev.PC = e.PC()
	ev.SP = e.SP()
	ev.TP = e.TP()
	ev.TID = e.TID

	stack := make([]byte, 8*len(ev.Stack))
	e.ReadGuest(ev.SP, stack)
	for i := range ev.Stack {
		ev.Stack[i] = binary.LittleEndian.Uint64(stack[i*8:])
	}
	return ev
}

func (e *Emulator) onInterrupt(intno uint32) {
	switch intno {
	case CauseEcallU, CauseEcallS, CauseEcallM:
	default:
		e.Stop()
		return
	}

	ev := e.SyscallEvent()
	if e.observer != nil {
		e.observer.Enter(ev)
	}

	ret, returns := enosys, true
	if e.handler != nil {
		ret, returns = e.handler.Syscall(e, ev)
	}
	if !returns {
		e.Stop()
		return
	}

	e.SetA(0, ret)
	if e.observer != nil {
		e.observer.Exit(ev.Return(ret))
	}
	e.SetPC(ev.PC + 4)
}
