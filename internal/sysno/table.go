package sysno

import (
	"fmt"
	"sort"
	"sync"

	"github.com/elastic/go-seccomp-bpf/arch"
)

// TableVersion identifies the revision of the built-in name tables.
const TableVersion = "asm-generic-6.6"

// Table maps syscall numbers to names for one target architecture.
type Table struct {
	Arch    string
	Version string

	names   map[uint64]string
	numbers map[string]uint64

	fallbackOnce sync.Once
	fallback     map[int]string
}

var generic = map[uint64]string{
	GETCWD:          "getcwd",
	DUP3:            "dup3",
	FCNTL:           "fcntl",
	IOCTL:           "ioctl",
	MKNODAT:         "mknodat",
	MKDIRAT:         "mkdirat",
	UNLINKAT:        "unlinkat",
	SYMLINKAT:       "symlinkat",
	LINKAT:          "linkat",
	UMOUNT2:         "umount2",
	MOUNT:           "mount",
	STATFS:          "statfs",
	FSTATFS:         "fstatfs",
	FTRUNCATE:       "ftruncate",
	FACCESSAT:       "faccessat",
	CHDIR:           "chdir",
	FCHDIR:          "fchdir",
	CHROOT:          "chroot",
	FCHMOD:          "fchmod",
	FCHMODAT:        "fchmodat",
	FCHOWNAT:        "fchownat",
	OPENAT:          "openat",
	CLOSE:           "close",
	PIPE2:           "pipe2",
	GETDENTS64:      "getdents64",
	LSEEK:           "lseek",
	READ:            "read",
	WRITE:           "write",
	READV:           "readv",
	WRITEV:          "writev",
	PREAD64:         "pread64",
	SENDFILE:        "sendfile",
	PPOLL:           "ppoll",
	READLINKAT:      "readlinkat",
	FSTATAT:         "fstatat",
	FSTAT:           "fstat",
	UTIMENSAT:       "utimensat",
	EXIT:            "exit",
	EXIT_GROUP:      "exit_group",
	SET_TID_ADDRESS: "set_tid_address",
	FUTEX:           "futex",
	SET_ROBUST_LIST: "set_robust_list",
	NANOSLEEP:       "nanosleep",
	CLOCK_GETTIME:   "clock_gettime",
	SCHED_YIELD:     "sched_yield",
	KILL:            "kill",
	TKILL:           "tkill",
	TGKILL:          "tgkill",
	SIGALTSTACK:     "sigaltstack",
	RT_SIGACTION:    "rt_sigaction",
	RT_SIGPROCMASK:  "rt_sigprocmask",
	RT_SIGRETURN:    "rt_sigreturn",
	SETPGID:         "setpgid",
	UNAME:           "uname",
	UMASK:           "umask",
	PRCTL:           "prctl",
	GETTIMEOFDAY:    "gettimeofday",
	GETPID:          "getpid",
	GETPPID:         "getppid",
	GETUID:          "getuid",
	GETEUID:         "geteuid",
	GETGID:          "getgid",
	GETEGID:         "getegid",
	GETTID:          "gettid",
	BRK:             "brk",
	MUNMAP:          "munmap",
	CLONE:           "clone",
	EXECVE:          "execve",
	MMAP:            "mmap",
	MPROTECT:        "mprotect",
	MSYNC:           "msync",
	MADVISE:         "madvise",
	WAIT4:           "wait4",
	PRLIMIT64:       "prlimit64",
	RENAMEAT2:       "renameat2",
	GETRANDOM:       "getrandom",
	EXECVEAT:        "execveat",
	RSEQ:            "rseq",
}

// aliases accepts the libc/strace spellings of renamed entries.
var aliases = map[string]uint64{
	"newfstatat": FSTATAT,
	"statfs64":   STATFS,
	"fstatfs64":  FSTATFS,
	"mmap2":      MMAP,
}

var (
	tablesMu sync.Mutex
	tables   = map[string]*Table{}
)

func newTable(archName string, names map[uint64]string) *Table {
	t := &Table{
		Arch:    archName,
		Version: TableVersion,
		names:   names,
		numbers: make(map[string]uint64, len(names)+len(aliases)),
	}
	for nr, name := range names {
		t.numbers[name] = nr
	}
	for name, nr := range aliases {
		t.numbers[name] = nr
	}
	return t
}

// ForArch returns the table for a target architecture. riscv64 and arm64
// share the asm-generic numbering.
func ForArch(name string) (*Table, error) {
	switch name {
	case "", "riscv64", "rv64":
		name = "riscv64"
	case "arm64", "aarch64":
		name = "arm64"
	default:
		return nil, fmt.Errorf("unsupported guest architecture %q", name)
	}

	tablesMu.Lock()
	defer tablesMu.Unlock()
	if t, ok := tables[name]; ok {
		return t, nil
	}
	t := newTable(name, generic)
	tables[name] = t
	return t, nil
}

// RISCV64 returns the riscv64 table.
func RISCV64() *Table {
	t, _ := ForArch("riscv64")
	return t
}

// Name returns the syscall name, or "" when the number is unknown.
func (t *Table) Name(nr uint64) string {
	if name, ok := t.names[nr]; ok {
		return name
	}
	t.fallbackOnce.Do(t.loadFallback)
	return t.fallback[int(nr)]
}

// NameOr returns the syscall name or sys_<nr> when unknown.
func (t *Table) NameOr(nr uint64) string {
	if name := t.Name(nr); name != "" {
		return name
	}
	return fmt.Sprintf("sys_%d", nr)
}

// Lookup resolves a syscall name to its number.
func (t *Table) Lookup(name string) (uint64, bool) {
	if nr, ok := t.numbers[name]; ok {
		return nr, true
	}
	t.fallbackOnce.Do(t.loadFallback)
	for nr, n := range t.fallback {
		if n == name {
			return uint64(nr), true
		}
	}
	return 0, false
}

// Numbers returns every syscall number the built-in table names, sorted.
func (t *Table) Numbers() []uint64 {
	out := make([]uint64, 0, len(t.names))
	for nr := range t.names {
		out = append(out, nr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// loadFallback pulls the seccomp syscall table for the same numbering.
// Older seccomp releases lack riscv64, so arm64 is tried as well.
func (t *Table) loadFallback() {
	for _, name := range []string{t.Arch, "arm64", "aarch64"} {
		info, err := arch.GetInfo(name)
		if err != nil || info == nil {
			continue
		}
		t.fallback = info.SyscallNumbers
		return
	}
	t.fallback = map[int]string{}
}
