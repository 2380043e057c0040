// Package kernel implements just enough of Linux for small static RISC-V
// programs to run under trace. Handlers self-register per syscall number
// from init(); anything unregistered fails with ENOSYS.
package kernel

import (
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"github.com/zboralski/lktrace/internal/abi"
	"github.com/zboralski/lktrace/internal/emulator"
	glog "github.com/zboralski/lktrace/internal/log"
	"github.com/zboralski/lktrace/internal/sysno"
	"github.com/zboralski/lktrace/internal/trace"
	"golang.org/x/sys/unix"
)

// Defaults reported to the guest.
const (
	DefaultRelease = "6.1.0"
	DefaultVersion = "#1 SMP lktrace"
	DefaultPID     = 1000
)

// Kernel is the per-process state behind the handlers. Set the exported
// fields before the first syscall.
type Kernel struct {
	Registry *Registry

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Rand   io.Reader
	Now    func() time.Time

	Cwd      string
	Nodename string
	Release  string
	PID      uint64

	// OnCall is invoked for every serviced syscall.
	OnCall func(category trace.Tag, name, detail string)
	Log    *glog.Logger

	brkBase uint64
	brk     uint64

	clearTID   uint64
	sigmask    uint64
	sigactions map[uint64]abi.Sigaction
}

// New creates a kernel wired to the host's standard streams.
func New() *Kernel {
	return &Kernel{
		Registry:   DefaultRegistry,
		Stdin:      os.Stdin,
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
		Rand:       rand.Reader,
		Now:        time.Now,
		Cwd:        "/",
		Nodename:   hostNodename(),
		Release:    DefaultRelease,
		PID:        DefaultPID,
		Log:        glog.Get(),
		sigactions: make(map[uint64]abi.Sigaction),
	}
}

// hostNodename borrows the host's node name for uname.
func hostNodename() string {
	var u unix.Utsname
	if err := unix.Uname(&u); err != nil {
		return "localhost"
	}
	if name := unix.ByteSliceToString(u.Nodename[:]); name != "" {
		return name
	}
	return "localhost"
}

// SetBreak sets the initial program break, normally ELFInfo.EndAddr.
func (k *Kernel) SetBreak(addr uint64) {
	k.brkBase = addr
	k.brk = addr
}

// Break returns the current program break.
func (k *Kernel) Break() uint64 {
	return k.brk
}

// Sigaction returns the installed action for signum.
func (k *Kernel) Sigaction(signum uint64) (abi.Sigaction, bool) {
	sa, ok := k.sigactions[signum]
	return sa, ok
}

// Syscall implements emulator.SyscallHandler.
func (k *Kernel) Syscall(emu *emulator.Emulator, ev *trace.Event) (uint64, bool) {
	def, ok := k.Registry.Lookup(ev.Sysno)
	if !ok {
		k.log().Debug("unimplemented syscall", glog.Sysno(ev.Sysno), glog.Ptr("pc", ev.PC))
		return sysno.Errno(sysno.ENOSYS), true
	}
	ret := def.Handler(k, emu, ev)
	if def.NoReturn {
		return 0, false
	}
	return ret, true
}

func (k *Kernel) log() *glog.Logger {
	if k.Log == nil {
		return glog.Get()
	}
	return k.Log
}

// report calls the OnCall callback and logs via zap.
func (k *Kernel) report(ev *trace.Event, category trace.Tag, name, detail string) {
	if k.OnCall != nil {
		k.OnCall(category, name, detail)
	}
	k.log().Kernel(ev.PC, string(category), name, detail)
}

// resolve makes p absolute against the current directory.
func (k *Kernel) resolve(p string) string {
	if path.IsAbs(p) {
		return path.Clean(p)
	}
	return path.Join(k.Cwd, p)
}

// readPath reads a NUL-terminated path argument.
func readPath(emu *emulator.Emulator, addr uint64) (string, error) {
	if addr == 0 {
		return "", fmt.Errorf("NULL path")
	}
	return emu.MemReadString(addr, 4096)
}

// writeStruct packs v into guest memory at addr.
func writeStruct(emu *emulator.Emulator, addr uint64, v interface{}) uint64 {
	data, err := abi.Pack(v)
	if err != nil {
		return sysno.Errno(sysno.EINVAL)
	}
	if err := emu.MemWrite(addr, data); err != nil {
		return sysno.Errno(sysno.EFAULT)
	}
	return 0
}

// readStruct unpacks a guest struct at addr into v.
func readStruct(emu *emulator.Emulator, addr uint64, v interface{}) error {
	data, err := emu.MemRead(addr, uint64(abi.Sizeof(v)))
	if err != nil {
		return err
	}
	return abi.Unpack(data, v)
}
