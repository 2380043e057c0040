package kernel

import (
	"io"

	"github.com/zboralski/lktrace/internal/abi"
	"github.com/zboralski/lktrace/internal/emulator"
	"github.com/zboralski/lktrace/internal/sysno"
	"github.com/zboralski/lktrace/internal/trace"
)

// maxClockID is the highest clock id Linux accepts (CLOCK_TAI).
const maxClockID = 11

// maxRandom caps one getrandom call.
const maxRandom = 1 << 16

func init() {
	RegisterFunc(trace.Time, sysno.CLOCK_GETTIME, "clock_gettime", sysClockGettime)
	RegisterFunc(trace.Resource, sysno.GETRANDOM, "getrandom", sysGetrandom)
}

func sysClockGettime(k *Kernel, emu *emulator.Emulator, ev *trace.Event) uint64 {
	clk, tp := ev.Arg(0), ev.Arg(1)
	if clk > maxClockID {
		return sysno.Errno(sysno.EINVAL)
	}
	now := k.Now()
	return writeStruct(emu, tp, &abi.Timespec{Sec: now.Unix(), Nsec: int64(now.Nanosecond())})
}

func sysGetrandom(k *Kernel, emu *emulator.Emulator, ev *trace.Event) uint64 {
	// ssize_t getrandom(void *buf, size_t buflen, unsigned int flags)
	buf, n := ev.Arg(0), ev.Arg(1)
	if n > maxRandom {
		n = maxRandom
	}
	tmp := make([]byte, n)
	got, err := io.ReadFull(k.Rand, tmp)
	if err != nil && got == 0 && n > 0 {
		return sysno.Errno(sysno.EIO)
	}
	if got == 0 {
		return 0
	}
	if err := emu.MemWrite(buf, tmp[:got]); err != nil {
		return sysno.Errno(sysno.EFAULT)
	}
	return uint64(got)
}
