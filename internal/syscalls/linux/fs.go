package linux

import (
	"github.com/zboralski/lktrace/internal/syscalls"
	"github.com/zboralski/lktrace/internal/sysno"
	"github.com/zboralski/lktrace/internal/trace"
)

// atPath lists *at calls whose only payload is the path in a1.
var atPath = []uint64{
	sysno.OPENAT,
	sysno.FACCESSAT,
	sysno.MKDIRAT,
	sysno.UNLINKAT,
	sysno.FCHMODAT,
	sysno.FCHOWNAT,
	sysno.MKNODAT,
	sysno.UTIMENSAT,
}

func fileDefs() []syscalls.Def {
	defs := make([]syscalls.Def, 0, len(atPath)+12)
	for _, nr := range atPath {
		defs = append(defs, syscalls.Def{
			Sysno:    nr,
			Category: trace.File,
			Exit:     []syscalls.Action{str(1, a1)},
		})
	}

	return append(defs,
		syscalls.Def{
			Sysno:    sysno.FSTATAT,
			Name:     "newfstatat",
			Category: trace.File,
			Exit: []syscalls.Action{
				str(1, a1),
				fixed(2, a2, SizeStat).If(retOK),
			},
		},
		syscalls.Def{
			Sysno:    sysno.FSTAT,
			Category: trace.File,
			Exit:     []syscalls.Action{fixed(1, a1, SizeStat).If(retOK)},
		},
		syscalls.Def{
			Sysno:    sysno.STATFS,
			Category: trace.File,
			Exit: []syscalls.Action{
				str(0, origA0),
				fixed(1, a1, SizeStatfs).If(retOK),
			},
		},
		// The path argument of these sits in a0, which the return clobbers.
		syscalls.Def{Sysno: sysno.GETCWD, Category: trace.File, Exit: []syscalls.Action{str(0, origA0)}},
		syscalls.Def{Sysno: sysno.CHDIR, Category: trace.File, Exit: []syscalls.Action{str(0, origA0)}},
		syscalls.Def{Sysno: sysno.CHROOT, Category: trace.File, Exit: []syscalls.Action{str(0, origA0)}},
		syscalls.Def{
			Sysno:    sysno.MOUNT,
			Category: trace.File,
			Exit:     []syscalls.Action{str(0, origA0), str(1, a1)},
		},
		syscalls.Def{
			Sysno:    sysno.SYMLINKAT,
			Category: trace.File,
			Exit:     []syscalls.Action{str(0, origA0), str(2, a2)},
		},
		syscalls.Def{
			Sysno:    sysno.LINKAT,
			Category: trace.File,
			Exit:     []syscalls.Action{str(1, a1), str(3, a3)},
		},
		syscalls.Def{
			Sysno:    sysno.RENAMEAT2,
			Category: trace.File,
			Exit:     []syscalls.Action{str(1, a1), str(3, a3)},
		},
		syscalls.Def{
			Sysno:    sysno.READLINKAT,
			Category: trace.File,
			Exit: []syscalls.Action{
				str(1, a1),
				syscalls.Heap(2, a2, syscalls.RetPlusOne).If(retPos),
			},
		},
	)
}
