// Package abi describes the guest's Linux structure layouts (riscv64,
// asm-generic, LP64) and packs them with struc.
package abi

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/lunixbochs/struc"
)

// Order is the guest byte order.
var Order = binary.LittleEndian

// AT_FDCWD as the guest passes it in a dirfd register.
const AT_FDCWD = ^uint64(100 - 1)

// Timespec is struct timespec.
type Timespec struct {
	Sec  int64
	Nsec int64
}

// Stat is struct stat.
type Stat struct {
	Dev     uint64
	Ino     uint64
	Mode    uint32
	Nlink   uint32
	Uid     uint32
	Gid     uint32
	Rdev    uint64
	Pad0    uint64
	Size    int64
	Blksize int32
	Pad1    int32
	Blocks  int64
	Atime   Timespec
	Mtime   Timespec
	Ctime   Timespec
	Unused  [2]uint32
}

// File type bits of Stat.Mode.
const (
	S_IFMT  = 0o170000
	S_IFDIR = 0o040000
	S_IFCHR = 0o020000
	S_IFREG = 0o100000
	S_IFLNK = 0o120000
)

// Statfs is struct statfs.
type Statfs struct {
	Type    int64
	Bsize   int64
	Blocks  uint64
	Bfree   uint64
	Bavail  uint64
	Files   uint64
	Ffree   uint64
	Fsid    [2]int32
	Namelen int64
	Frsize  int64
	Flags   int64
	Spare   [4]int64
}

// UtsLen is the length of each utsname field including the terminator.
const UtsLen = 65

// Utsname is struct utsname.
type Utsname struct {
	Sysname    [UtsLen]byte
	Nodename   [UtsLen]byte
	Release    [UtsLen]byte
	Version    [UtsLen]byte
	Machine    [UtsLen]byte
	Domainname [UtsLen]byte
}

// NewUtsname fills the fields in declaration order, truncating each to
// fit with its terminator.
func NewUtsname(fields ...string) *Utsname {
	u := &Utsname{}
	dst := u.fields()
	for i, f := range fields {
		if i >= len(dst) {
			break
		}
		copy(dst[i][:UtsLen-1], f)
	}
	return u
}

func (u *Utsname) fields() []*[UtsLen]byte {
	return []*[UtsLen]byte{&u.Sysname, &u.Nodename, &u.Release, &u.Version, &u.Machine, &u.Domainname}
}

// Fields returns the six fields as strings.
func (u *Utsname) Fields() []string {
	out := make([]string, 0, 6)
	for _, f := range u.fields() {
		out = append(out, CString(f[:]))
	}
	return out
}

// Sigaction is the kernel's struct sigaction. riscv64 has no sa_restorer.
type Sigaction struct {
	Handler uint64
	Flags   uint64
	Mask    uint64
}

// Special handler values.
const (
	SIG_DFL = 0
	SIG_IGN = 1
)

// Sigaction flags.
const (
	SA_NOCLDSTOP = 0x00000001
	SA_SIGINFO   = 0x00000004
	SA_ONSTACK   = 0x08000000
	SA_RESTART   = 0x10000000
	SA_NODEFER   = 0x40000000
	SA_RESETHAND = 0x80000000
	SA_RESTORER  = 0x04000000
)

// rt_sigprocmask how values.
const (
	SIG_BLOCK   = 0
	SIG_UNBLOCK = 1
	SIG_SETMASK = 2
)

// Rlimit is struct rlimit64.
type Rlimit struct {
	Cur uint64
	Max uint64
}

// RLIM_INFINITY is the unlimited resource value.
const RLIM_INFINITY = ^uint64(0)

// Iovec is struct iovec.
type Iovec struct {
	Base uint64
	Len  uint64
}

// FdPair is the int[2] filled by pipe2.
type FdPair struct {
	Read  int32
	Write int32
}

// Pack encodes v in guest layout.
func Pack(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := struc.PackWithOrder(&buf, v, Order); err != nil {
		return nil, fmt.Errorf("pack %T: %w", v, err)
	}
	return buf.Bytes(), nil
}

// Unpack decodes data into v. data must hold at least Sizeof(v) bytes.
func Unpack(data []byte, v interface{}) error {
	if err := struc.UnpackWithOrder(bytes.NewReader(data), v, Order); err != nil {
		return fmt.Errorf("unpack %T: %w", v, err)
	}
	return nil
}

// Sizeof returns the packed size of v.
func Sizeof(v interface{}) int {
	n, err := struc.Sizeof(v)
	if err != nil {
		return 0
	}
	return n
}

// CString returns b up to its first NUL.
func CString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}

// mmap and mprotect protection bits.
const (
	PROT_NONE      = 0x0
	PROT_READ      = 0x1
	PROT_WRITE     = 0x2
	PROT_EXEC      = 0x4
	PROT_SEM       = 0x8
	PROT_GROWSDOWN = 0x01000000
	PROT_GROWSUP   = 0x02000000
)

// mmap flags.
const (
	MAP_SHARED          = 0x01
	MAP_PRIVATE         = 0x02
	MAP_SHARED_VALIDATE = 0x03
	MAP_TYPE            = 0x0f
	MAP_FIXED           = 0x10
	MAP_ANONYMOUS       = 0x20
	MAP_GROWSDOWN       = 0x0100
	MAP_DENYWRITE       = 0x0800
	MAP_EXECUTABLE      = 0x1000
	MAP_LOCKED          = 0x2000
	MAP_NORESERVE       = 0x4000
	MAP_POPULATE        = 0x8000
	MAP_STACK           = 0x20000
)

// AT_EMPTY_PATH lets the *at calls operate on dirfd itself.
const AT_EMPTY_PATH = 0x1000

// Resource numbers for prlimit64.
const (
	RLIMIT_CPU    = 0
	RLIMIT_FSIZE  = 1
	RLIMIT_DATA   = 2
	RLIMIT_STACK  = 3
	RLIMIT_CORE   = 4
	RLIMIT_NOFILE = 7
	RLIMIT_AS     = 9
)
