package kernel

import (
	"fmt"

	"github.com/zboralski/lktrace/internal/abi"
	"github.com/zboralski/lktrace/internal/emulator"
	"github.com/zboralski/lktrace/internal/sysno"
	"github.com/zboralski/lktrace/internal/trace"
)

func init() {
	Register(Def{Sysno: sysno.EXIT, Name: "exit", Handler: sysExit, Category: trace.Process, NoReturn: true})
	Register(Def{Sysno: sysno.EXIT_GROUP, Name: "exit_group", Handler: sysExit, Category: trace.Process, NoReturn: true})

	RegisterFunc(trace.Process, sysno.SET_TID_ADDRESS, "set_tid_address", sysSetTidAddress)
	RegisterFunc(trace.Process, sysno.SET_ROBUST_LIST, "set_robust_list", sysZero)
	RegisterFunc(trace.Process, sysno.GETPID, "getpid", sysGetpid)
	RegisterFunc(trace.Process, sysno.GETTID, "gettid", sysGetpid)
	RegisterFunc(trace.Process, sysno.GETPPID, "getppid", sysGetppid)
	RegisterFunc(trace.Process, sysno.GETUID, "getuid", sysZero)
	RegisterFunc(trace.Process, sysno.GETEUID, "geteuid", sysZero)
	RegisterFunc(trace.Process, sysno.GETGID, "getgid", sysZero)
	RegisterFunc(trace.Process, sysno.GETEGID, "getegid", sysZero)
	RegisterFunc(trace.Process, sysno.UNAME, "uname", sysUname)
	RegisterFunc(trace.Process, sysno.SCHED_YIELD, "sched_yield", sysZero)
	RegisterFunc(trace.Resource, sysno.PRLIMIT64, "prlimit64", sysPrlimit64)
}

func sysZero(k *Kernel, emu *emulator.Emulator, ev *trace.Event) uint64 {
	return 0
}

func sysExit(k *Kernel, emu *emulator.Emulator, ev *trace.Event) uint64 {
	code := int(int32(ev.Arg(0)))
	k.report(ev, trace.Process, "exit", fmt.Sprint(code))
	emu.Exit(code)
	return 0
}

func sysSetTidAddress(k *Kernel, emu *emulator.Emulator, ev *trace.Event) uint64 {
	k.clearTID = ev.Arg(0)
	return k.PID
}

func sysGetpid(k *Kernel, emu *emulator.Emulator, ev *trace.Event) uint64 {
	return k.PID
}

func sysGetppid(k *Kernel, emu *emulator.Emulator, ev *trace.Event) uint64 {
	return 1
}

func sysUname(k *Kernel, emu *emulator.Emulator, ev *trace.Event) uint64 {
	uts := abi.NewUtsname("Linux", k.Nodename, k.Release, DefaultVersion, "riscv64", "(none)")
	return writeStruct(emu, ev.Arg(0), uts)
}

// rlimit reports the limits the guest sees for resource.
func rlimit(resource uint64) abi.Rlimit {
	switch resource {
	case abi.RLIMIT_STACK:
		return abi.Rlimit{Cur: 8 << 20, Max: abi.RLIM_INFINITY}
	case abi.RLIMIT_NOFILE:
		return abi.Rlimit{Cur: 1024, Max: 4096}
	case abi.RLIMIT_CORE:
		return abi.Rlimit{Cur: 0, Max: abi.RLIM_INFINITY}
	}
	return abi.Rlimit{Cur: abi.RLIM_INFINITY, Max: abi.RLIM_INFINITY}
}

func sysPrlimit64(k *Kernel, emu *emulator.Emulator, ev *trace.Event) uint64 {
	// int prlimit64(pid_t pid, int resource, const struct rlimit64 *new, struct rlimit64 *old)
	pid, resource, old := ev.Arg(0), ev.Arg(1), ev.Arg(3)
	if pid != 0 && pid != k.PID {
		return sysno.Errno(sysno.ESRCH)
	}
	if resource > 15 {
		return sysno.Errno(sysno.EINVAL)
	}
	if old != 0 {
		lim := rlimit(resource)
		return writeStruct(emu, old, &lim)
	}
	return 0
}
