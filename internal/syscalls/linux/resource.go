package linux

import (
	"github.com/zboralski/lktrace/internal/syscalls"
	"github.com/zboralski/lktrace/internal/sysno"
	"github.com/zboralski/lktrace/internal/trace"
)

var resourceDefs = []syscalls.Def{
	{
		Sysno:    sysno.PRLIMIT64,
		Category: trace.Resource,
		Exit: []syscalls.Action{
			fixed(2, a2, SizeRlimit).If(okAndSet(a2)),
			fixed(3, a3, SizeRlimit).If(okAndSet(a3)),
		},
	},
	{
		Sysno:    sysno.CLOCK_GETTIME,
		Category: trace.Time,
		Exit:     []syscalls.Action{fixed(1, a1, SizeTimespec).If(retOK)},
	},
}
