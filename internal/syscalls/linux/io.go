package linux

import (
	"github.com/zboralski/lktrace/internal/syscalls"
	"github.com/zboralski/lktrace/internal/sysno"
	"github.com/zboralski/lktrace/internal/trace"
)

// read and write capture the console only. a2+1 leaves room for the
// terminator the normalizer may add.
var ioDefs = []syscalls.Def{
	{
		Sysno:    sysno.READ,
		Category: trace.IO,
		Exit: []syscalls.Action{
			syscalls.Heap(1, a1, syscalls.ArgPlusOne(2)).If(syscalls.FdIs(0)),
		},
	},
	{
		Sysno:    sysno.WRITE,
		Category: trace.IO,
		Exit: []syscalls.Action{
			syscalls.Heap(1, a1, syscalls.ArgPlusOne(2)).If(syscalls.FdIs(1, 2)),
		},
	},
	{
		Sysno:    sysno.PIPE2,
		Category: trace.IO,
		Exit:     []syscalls.Action{fixed(0, origA0, SizeFdPair).If(retOK)},
	},
}
