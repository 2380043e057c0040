package linux

import (
	"github.com/zboralski/lktrace/internal/syscalls"
	"github.com/zboralski/lktrace/internal/sysno"
	"github.com/zboralski/lktrace/internal/trace"
)

var signalDefs = []syscalls.Def{
	// a1 is the installed action; replay uses its handler to spot delivery.
	{
		Sysno:    sysno.RT_SIGACTION,
		Category: trace.Signal,
		Exit:     []syscalls.Action{fixed(1, a1, SizeSigaction).If(okAndSet(a1))},
	},
	{
		Sysno:    sysno.RT_SIGPROCMASK,
		Category: trace.Signal,
		Exit: []syscalls.Action{
			fixed(1, a1, SizeSigset).If(okAndSet(a1)),
			fixed(2, a2, SizeSigset).If(okAndSet(a2)),
		},
	},
}
