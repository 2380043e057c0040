package kernel

import (
	"errors"
	"io"

	"github.com/zboralski/lktrace/internal/abi"
	"github.com/zboralski/lktrace/internal/emulator"
	"github.com/zboralski/lktrace/internal/sysno"
	"github.com/zboralski/lktrace/internal/trace"
)

// maxIO caps a single transfer.
const maxIO = 1 << 20

// maxIovecs is the kernel's UIO_MAXIOV.
const maxIovecs = 1024

func init() {
	RegisterFunc(trace.IO, sysno.READ, "read", sysRead)
	RegisterFunc(trace.IO, sysno.WRITE, "write", sysWrite)
	RegisterFunc(trace.IO, sysno.WRITEV, "writev", sysWritev)
	RegisterFunc(trace.IO, sysno.LSEEK, "lseek", sysLseek)
}

func (k *Kernel) output(fd uint64) io.Writer {
	switch fd {
	case 1:
		return k.Stdout
	case 2:
		return k.Stderr
	}
	return nil
}

func sysRead(k *Kernel, emu *emulator.Emulator, ev *trace.Event) uint64 {
	// ssize_t read(int fd, void *buf, size_t count)
	fd, buf, count := ev.Arg(0), ev.Arg(1), ev.Arg(2)
	if fd != 0 || k.Stdin == nil {
		return sysno.Errno(sysno.EBADF)
	}
	if count == 0 {
		return 0
	}
	if count > maxIO {
		count = maxIO
	}
	tmp := make([]byte, count)
	n, err := k.Stdin.Read(tmp)
	if err != nil && !errors.Is(err, io.EOF) && n == 0 {
		return sysno.Errno(sysno.EIO)
	}
	if n > 0 {
		if err := emu.MemWrite(buf, tmp[:n]); err != nil {
			return sysno.Errno(sysno.EFAULT)
		}
	}
	return uint64(n)
}

func (k *Kernel) writeOut(emu *emulator.Emulator, fd, buf, count uint64) uint64 {
	w := k.output(fd)
	if w == nil {
		return sysno.Errno(sysno.EBADF)
	}
	if count == 0 {
		return 0
	}
	if count > maxIO {
		count = maxIO
	}
	data, err := emu.MemRead(buf, count)
	if err != nil {
		return sysno.Errno(sysno.EFAULT)
	}
	n, err := w.Write(data)
	if err != nil && n == 0 {
		return sysno.Errno(sysno.EIO)
	}
	return uint64(n)
}

func sysWrite(k *Kernel, emu *emulator.Emulator, ev *trace.Event) uint64 {
	// ssize_t write(int fd, const void *buf, size_t count)
	return k.writeOut(emu, ev.Arg(0), ev.Arg(1), ev.Arg(2))
}

func sysWritev(k *Kernel, emu *emulator.Emulator, ev *trace.Event) uint64 {
	// ssize_t writev(int fd, const struct iovec *iov, int iovcnt)
	fd, iov, cnt := ev.Arg(0), ev.Arg(1), ev.Arg(2)
	if k.output(fd) == nil {
		return sysno.Errno(sysno.EBADF)
	}
	if cnt > maxIovecs {
		return sysno.Errno(sysno.EINVAL)
	}
	size := uint64(abi.Sizeof(&abi.Iovec{}))
	var total uint64
	for i := uint64(0); i < cnt; i++ {
		var vec abi.Iovec
		if err := readStruct(emu, iov+i*size, &vec); err != nil {
			return sysno.Errno(sysno.EFAULT)
		}
		ret := k.writeOut(emu, fd, vec.Base, vec.Len)
		if int64(ret) < 0 {
			if total > 0 {
				break
			}
			return ret
		}
		total += ret
	}
	return total
}

func sysLseek(k *Kernel, emu *emulator.Emulator, ev *trace.Event) uint64 {
	if !isStdio(ev.Arg(0)) {
		return sysno.Errno(sysno.EBADF)
	}
	return sysno.Errno(sysno.ESPIPE)
}
