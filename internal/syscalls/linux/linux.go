// Package linux registers the riscv64 Linux payload extraction policy.
//
// Import it for side effects (or call Register on a private registry):
//
//	import _ "github.com/zboralski/lktrace/internal/syscalls/linux"
package linux

import (
	"github.com/zboralski/lktrace/internal/syscalls"
	"github.com/zboralski/lktrace/internal/sysno"
)

// Kernel struct sizes on riscv64 (asm-generic layouts).
const (
	SizeStat       = 128 // struct stat
	SizeUtsname    = 390 // struct new_utsname, 6 fields of 65 bytes
	SizeStatfs     = 120 // struct statfs64
	SizeSigaction  = 24  // handler, flags, mask; no restorer on riscv
	SizeSigset     = 8   // kernel sigset_t
	SizeRlimit     = 16  // struct rlimit64
	SizeTimespec   = 16  // struct __kernel_timespec
	SizeFdPair     = 8   // int[2] filled by pipe2
	SizeWaitStatus = 4   // int *wstatus
)

// Shorthands for the table files.
var (
	a0     = syscalls.Arg(0)
	a1     = syscalls.Arg(1)
	a2     = syscalls.Arg(2)
	a3     = syscalls.Arg(3)
	origA0 = syscalls.OrigA0

	str   = syscalls.Str
	fixed = syscalls.Fixed

	retOK  = syscalls.ReturnedZero
	retPos = syscalls.ReturnedPositive
)

// okAndSet gates an output struct on success and a non-NULL pointer.
func okAndSet(src syscalls.Source) syscalls.Predicate {
	return syscalls.All(retOK, syscalls.NonNull(src))
}

// Defs returns the full policy in registration order.
func Defs() []syscalls.Def {
	var out []syscalls.Def
	for _, group := range [][]syscalls.Def{
		fileDefs(),
		ioDefs,
		processDefs,
		signalDefs,
		resourceDefs,
	} {
		out = append(out, group...)
	}
	return out
}

// Register installs every definition into r, naming each from the riscv64
// syscall table.
func Register(r *syscalls.Registry) {
	tbl := sysno.RISCV64()
	for _, def := range Defs() {
		if def.Name == "" {
			def.Name = tbl.NameOr(def.Sysno)
		}
		r.Register(def)
	}
}

func init() {
	Register(syscalls.DefaultRegistry)
}
