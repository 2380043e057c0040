package kernel

import (
	"fmt"

	"github.com/zboralski/lktrace/internal/abi"
	"github.com/zboralski/lktrace/internal/emulator"
	"github.com/zboralski/lktrace/internal/sysno"
	"github.com/zboralski/lktrace/internal/trace"
)

func init() {
	RegisterFunc(trace.Signal, sysno.RT_SIGACTION, "rt_sigaction", sysRtSigaction)
	RegisterFunc(trace.Signal, sysno.RT_SIGPROCMASK, "rt_sigprocmask", sysRtSigprocmask)
	RegisterFunc(trace.Signal, sysno.KILL, "kill", sysKill)
	RegisterFunc(trace.Signal, sysno.TKILL, "tkill", sysTkill)
	RegisterFunc(trace.Signal, sysno.TGKILL, "tgkill", sysTgkill)
}

// unblockable signals can neither be caught nor masked.
const unblockable = 1<<(sysno.SIGKILL-1) | 1<<(sysno.SIGSTOP-1)

func validSignal(sig uint64) bool {
	return sig >= 1 && sig <= sysno.SIGRTMAX
}

func sysRtSigaction(k *Kernel, emu *emulator.Emulator, ev *trace.Event) uint64 {
	// int rt_sigaction(int sig, const struct sigaction *act, struct sigaction *oact, size_t sigsetsize)
	sig, act, oact := ev.Arg(0), ev.Arg(1), ev.Arg(2)
	if !validSignal(sig) {
		return sysno.Errno(sysno.EINVAL)
	}
	if act != 0 && (sig == sysno.SIGKILL || sig == sysno.SIGSTOP) {
		return sysno.Errno(sysno.EINVAL)
	}

	old := k.sigactions[sig]
	if act != 0 {
		var sa abi.Sigaction
		if err := readStruct(emu, act, &sa); err != nil {
			return sysno.Errno(sysno.EFAULT)
		}
		k.sigactions[sig] = sa
		k.report(ev, trace.Signal, "rt_sigaction", fmt.Sprintf("%s handler=0x%x", sysno.SignalName(sig), sa.Handler))
	}
	if oact != 0 {
		return writeStruct(emu, oact, &old)
	}
	return 0
}

func sysRtSigprocmask(k *Kernel, emu *emulator.Emulator, ev *trace.Event) uint64 {
	// int rt_sigprocmask(int how, const sigset_t *set, sigset_t *oset, size_t sigsetsize)
	how, set, oset := ev.Arg(0), ev.Arg(1), ev.Arg(2)

	old := k.sigmask
	if set != 0 {
		data, err := emu.MemRead(set, 8)
		if err != nil {
			return sysno.Errno(sysno.EFAULT)
		}
		mask := abi.Order.Uint64(data) &^ unblockable
		switch how {
		case abi.SIG_BLOCK:
			k.sigmask |= mask
		case abi.SIG_UNBLOCK:
			k.sigmask &^= mask
		case abi.SIG_SETMASK:
			k.sigmask = mask
		default:
			return sysno.Errno(sysno.EINVAL)
		}
	}
	if oset != 0 {
		var b [8]byte
		abi.Order.PutUint64(b[:], old)
		if err := emu.MemWrite(oset, b[:]); err != nil {
			return sysno.Errno(sysno.EFAULT)
		}
	}
	return 0
}

// ignoredByDefault lists signals whose default action is not to terminate.
func ignoredByDefault(sig uint64) bool {
	switch sig {
	case sysno.SIGCHLD, sysno.SIGCONT, sysno.SIGURG, sysno.SIGWINCH:
		return true
	}
	return false
}

// deliver applies sig to the only task there is. Handlers are not run;
// a fatal default action ends the guest with status 128+sig.
func (k *Kernel) deliver(emu *emulator.Emulator, ev *trace.Event, sig uint64) uint64 {
	if sig == 0 {
		return 0
	}
	if !validSignal(sig) {
		return sysno.Errno(sysno.EINVAL)
	}
	k.report(ev, trace.Signal, "signal", sysno.SignalName(sig))

	sa := k.sigactions[sig]
	if sa.Handler == abi.SIG_IGN || ignoredByDefault(sig) {
		return 0
	}
	if sa.Handler == abi.SIG_DFL || sig == sysno.SIGKILL {
		emu.Exit(128 + int(sig))
	}
	return 0
}

func sysKill(k *Kernel, emu *emulator.Emulator, ev *trace.Event) uint64 {
	pid := int64(ev.Arg(0))
	if pid != 0 && pid != -1 && uint64(pid) != k.PID {
		return sysno.Errno(sysno.ESRCH)
	}
	return k.deliver(emu, ev, ev.Arg(1))
}

func sysTkill(k *Kernel, emu *emulator.Emulator, ev *trace.Event) uint64 {
	if ev.Arg(0) != k.PID {
		return sysno.Errno(sysno.ESRCH)
	}
	return k.deliver(emu, ev, ev.Arg(1))
}

func sysTgkill(k *Kernel, emu *emulator.Emulator, ev *trace.Event) uint64 {
	if ev.Arg(0) != k.PID || ev.Arg(1) != k.PID {
		return sysno.Errno(sysno.ESRCH)
	}
	return k.deliver(emu, ev, ev.Arg(2))
}
