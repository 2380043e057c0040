package kernel

import (
	"github.com/zboralski/lktrace/internal/abi"
	"github.com/zboralski/lktrace/internal/emulator"
	"github.com/zboralski/lktrace/internal/sysno"
	"github.com/zboralski/lktrace/internal/trace"
)

// The guest sees an empty filesystem: only the standard streams exist and
// every path lookup fails.

func init() {
	RegisterFunc(trace.File, sysno.GETCWD, "getcwd", sysGetcwd)
	RegisterFunc(trace.File, sysno.CHDIR, "chdir", sysChdir)
	RegisterFunc(trace.File, sysno.OPENAT, "openat", sysNoEntry)
	RegisterFunc(trace.File, sysno.FACCESSAT, "faccessat", sysNoEntry)
	RegisterFunc(trace.File, sysno.READLINKAT, "readlinkat", sysNoEntry)
	RegisterFunc(trace.File, sysno.FSTATAT, "newfstatat", sysFstatat)
	RegisterFunc(trace.File, sysno.FSTAT, "fstat", sysFstat)
	RegisterFunc(trace.File, sysno.CLOSE, "close", sysClose)
	RegisterFunc(trace.IO, sysno.IOCTL, "ioctl", sysIoctl)
}

func isStdio(fd uint64) bool {
	return fd <= 2
}

func sysGetcwd(k *Kernel, emu *emulator.Emulator, ev *trace.Event) uint64 {
	// long getcwd(char *buf, unsigned long size)
	buf, size := ev.Arg(0), ev.Arg(1)
	if uint64(len(k.Cwd))+1 > size {
		return sysno.Errno(sysno.ERANGE)
	}
	if err := emu.MemWriteString(buf, k.Cwd); err != nil {
		return sysno.Errno(sysno.EFAULT)
	}
	k.report(ev, trace.File, "getcwd", k.Cwd)
	return uint64(len(k.Cwd) + 1)
}

func sysChdir(k *Kernel, emu *emulator.Emulator, ev *trace.Event) uint64 {
	p, err := readPath(emu, ev.Arg(0))
	if err != nil {
		return sysno.Errno(sysno.EFAULT)
	}
	if p == "" {
		return sysno.Errno(sysno.ENOENT)
	}
	k.Cwd = k.resolve(p)
	k.report(ev, trace.File, "chdir", k.Cwd)
	return 0
}

// sysNoEntry serves the path lookups that take (dirfd, path, ...).
func sysNoEntry(k *Kernel, emu *emulator.Emulator, ev *trace.Event) uint64 {
	p, err := readPath(emu, ev.Arg(1))
	if err != nil {
		return sysno.Errno(sysno.EFAULT)
	}
	name := "openat"
	if def, ok := k.Registry.Lookup(ev.Sysno); ok {
		name = def.Name
	}
	k.report(ev, trace.File, name, p)
	return sysno.Errno(sysno.ENOENT)
}

// stdioStat describes a terminal-like character device.
func (k *Kernel) stdioStat(fd uint64) *abi.Stat {
	now := k.Now()
	ts := abi.Timespec{Sec: now.Unix(), Nsec: int64(now.Nanosecond())}
	return &abi.Stat{
		Dev:     0x16,
		Ino:     3 + fd,
		Mode:    abi.S_IFCHR | 0o620,
		Nlink:   1,
		Rdev:    0x8800 + fd,
		Blksize: 1024,
		Atime:   ts,
		Mtime:   ts,
		Ctime:   ts,
	}
}

func sysFstat(k *Kernel, emu *emulator.Emulator, ev *trace.Event) uint64 {
	fd := ev.Arg(0)
	if !isStdio(fd) {
		return sysno.Errno(sysno.EBADF)
	}
	return writeStruct(emu, ev.Arg(1), k.stdioStat(fd))
}

func sysFstatat(k *Kernel, emu *emulator.Emulator, ev *trace.Event) uint64 {
	// int newfstatat(int dirfd, const char *path, struct stat *st, int flags)
	dirfd, flags := ev.Arg(0), ev.Arg(3)
	p, err := readPath(emu, ev.Arg(1))
	if err != nil {
		return sysno.Errno(sysno.EFAULT)
	}
	if p == "" && flags&abi.AT_EMPTY_PATH != 0 && isStdio(dirfd) {
		return writeStruct(emu, ev.Arg(2), k.stdioStat(dirfd))
	}
	k.report(ev, trace.File, "newfstatat", p)
	return sysno.Errno(sysno.ENOENT)
}

func sysClose(k *Kernel, emu *emulator.Emulator, ev *trace.Event) uint64 {
	if !isStdio(ev.Arg(0)) {
		return sysno.Errno(sysno.EBADF)
	}
	return 0
}

func sysIoctl(k *Kernel, emu *emulator.Emulator, ev *trace.Event) uint64 {
	if !isStdio(ev.Arg(0)) {
		return sysno.Errno(sysno.EBADF)
	}
	return sysno.Errno(sysno.ENOTTY)
}
