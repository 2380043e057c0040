package linux

import (
	"github.com/zboralski/lktrace/internal/syscalls"
	"github.com/zboralski/lktrace/internal/sysno"
	"github.com/zboralski/lktrace/internal/trace"
)

var processDefs = []syscalls.Def{
	// execve does not come back on success.
	{
		Sysno:    sysno.EXECVE,
		Category: trace.Process,
		Entry: []syscalls.Action{
			str(0, a0),
			syscalls.Array(1, a1),
			syscalls.Array(2, a2),
		},
	},
	{
		Sysno:    sysno.UNAME,
		Category: trace.Process,
		Exit:     []syscalls.Action{fixed(0, origA0, SizeUtsname).If(retOK)},
	},
	{
		Sysno:    sysno.WAIT4,
		Category: trace.Process,
		Exit: []syscalls.Action{
			fixed(1, a1, SizeWaitStatus).If(syscalls.All(retPos, syscalls.NonNull(a1))),
		},
	},
}
