package kernel

import (
	"github.com/zboralski/lktrace/internal/abi"
	"github.com/zboralski/lktrace/internal/emulator"
	"github.com/zboralski/lktrace/internal/sysno"
	"github.com/zboralski/lktrace/internal/trace"
)

// maxBrk bounds how far the program break may grow past its start.
const maxBrk = 64 << 20

func init() {
	RegisterFunc(trace.Memory, sysno.BRK, "brk", sysBrk)
	RegisterFunc(trace.Memory, sysno.MMAP, "mmap", sysMmap)
	RegisterFunc(trace.Memory, sysno.MUNMAP, "munmap", sysZero)
	RegisterFunc(trace.Memory, sysno.MPROTECT, "mprotect", sysZero)
	RegisterFunc(trace.Memory, sysno.MADVISE, "madvise", sysZero)
}

func pageAlign(v uint64) uint64 {
	return (v + emulator.PageSize - 1) &^ (emulator.PageSize - 1)
}

func sysBrk(k *Kernel, emu *emulator.Emulator, ev *trace.Event) uint64 {
	// Linux returns the current break on failure rather than an error.
	want := ev.Arg(0)
	if k.brkBase == 0 || want < k.brkBase || want-k.brkBase > maxBrk {
		return k.brk
	}
	if want > k.brk {
		emu.EnsureMapped(k.brkBase, want-k.brkBase)
	}
	k.brk = want
	return k.brk
}

func sysMmap(k *Kernel, emu *emulator.Emulator, ev *trace.Event) uint64 {
	// void *mmap(void *addr, size_t length, int prot, int flags, int fd, off_t offset)
	addr, length, flags := ev.Arg(0), ev.Arg(1), ev.Arg(3)
	if length == 0 || length > emulator.HeapSize {
		return sysno.Errno(sysno.EINVAL)
	}
	if flags&abi.MAP_ANONYMOUS == 0 {
		return sysno.Errno(sysno.EBADF)
	}
	size := pageAlign(length)

	if flags&abi.MAP_FIXED != 0 {
		if addr&(emulator.PageSize-1) != 0 {
			return sysno.Errno(sysno.EINVAL)
		}
		emu.EnsureMapped(addr, size)
		if err := emu.MemWrite(addr, make([]byte, size)); err != nil {
			return sysno.Errno(sysno.ENOMEM)
		}
		return addr
	}

	p := emu.Malloc(size + emulator.PageSize)
	if p == 0 {
		return sysno.Errno(sysno.ENOMEM)
	}
	return pageAlign(p)
}
