// Package sysno holds the guest Linux syscall numbering.
//
// RISC-V 64 uses the asm-generic table, so the constants below are shared
// with arm64. Numbers not listed here are resolved through the seccomp
// architecture tables when a name is needed.
package sysno

// Linux syscall numbers (asm-generic, riscv64).
const (
	GETCWD          uint64 = 17
	DUP3            uint64 = 24
	FCNTL           uint64 = 25
	IOCTL           uint64 = 29
	MKNODAT         uint64 = 33
	MKDIRAT         uint64 = 34
	UNLINKAT        uint64 = 35
	SYMLINKAT       uint64 = 36
	LINKAT          uint64 = 37
	UMOUNT2         uint64 = 39
	MOUNT           uint64 = 40
	STATFS          uint64 = 43
	FSTATFS         uint64 = 44
	FTRUNCATE       uint64 = 46
	FACCESSAT       uint64 = 48
	CHDIR           uint64 = 49
	FCHDIR          uint64 = 50
	CHROOT          uint64 = 51
	FCHMOD          uint64 = 52
	FCHMODAT        uint64 = 53
	FCHOWNAT        uint64 = 54
	OPENAT          uint64 = 56
	CLOSE           uint64 = 57
	PIPE2           uint64 = 59
	GETDENTS64      uint64 = 61
	LSEEK           uint64 = 62
	READ            uint64 = 63
	WRITE           uint64 = 64
	READV           uint64 = 65
	WRITEV          uint64 = 66
	PREAD64         uint64 = 67
	SENDFILE        uint64 = 71
	PPOLL           uint64 = 73
	READLINKAT      uint64 = 78
	FSTATAT         uint64 = 79 // newfstatat
	FSTAT           uint64 = 80
	UTIMENSAT       uint64 = 88
	EXIT            uint64 = 93
	EXIT_GROUP      uint64 = 94
	SET_TID_ADDRESS uint64 = 96
	FUTEX           uint64 = 98
	SET_ROBUST_LIST uint64 = 99
	NANOSLEEP       uint64 = 101
	CLOCK_GETTIME   uint64 = 113
	SCHED_YIELD     uint64 = 124
	KILL            uint64 = 129
	TKILL           uint64 = 130
	TGKILL          uint64 = 131
	SIGALTSTACK     uint64 = 132
	RT_SIGACTION    uint64 = 134
	RT_SIGPROCMASK  uint64 = 135
	RT_SIGRETURN    uint64 = 139
	SETPGID         uint64 = 154
	UNAME           uint64 = 160
	UMASK           uint64 = 166
	PRCTL           uint64 = 167
	GETTIMEOFDAY    uint64 = 169
	GETPID          uint64 = 172
	GETPPID         uint64 = 173
	GETUID          uint64 = 174
	GETEUID         uint64 = 175
	GETGID          uint64 = 176
	GETEGID         uint64 = 177
	GETTID          uint64 = 178
	BRK             uint64 = 214
	MUNMAP          uint64 = 215
	CLONE           uint64 = 220
	EXECVE          uint64 = 221
	MMAP            uint64 = 222
	MPROTECT        uint64 = 226
	MSYNC           uint64 = 227
	MADVISE         uint64 = 233
	WAIT4           uint64 = 260
	PRLIMIT64       uint64 = 261
	RENAMEAT2       uint64 = 276
	GETRANDOM       uint64 = 278
	EXECVEAT        uint64 = 281
	RSEQ            uint64 = 293
)

// MaxSyscall is one past the highest syscall number the analyzer accepts.
const MaxSyscall uint64 = 451
