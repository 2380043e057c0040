// Package payload reads syscall argument buffers out of guest memory and
// hands them to an emitter.
//
// Every read is best-effort: a fault leaves the destination buffer with
// whatever it held before (zeroes, since buffers are freshly allocated) and
// extraction carries on. Tracing must never change what the guest sees, so
// nothing here writes guest memory or returns an error to the caller.
package payload

import (
	"bytes"
	"encoding/binary"
	"fmt"

	glog "github.com/zboralski/lktrace/internal/log"
	"github.com/zboralski/lktrace/internal/trace"
	"go.uber.org/zap"
)

// Reader reads guest memory. A failed read leaves buf untouched.
type Reader interface {
	ReadGuest(addr uint64, buf []byte)
}

// ReaderFunc adapts a function to Reader.
type ReaderFunc func(addr uint64, buf []byte)

// ReadGuest calls f.
func (f ReaderFunc) ReadGuest(addr uint64, buf []byte) { f(addr, buf) }

// Emitter receives one payload for argument index of ev. data is only
// valid for the duration of the call.
type Emitter interface {
	Emit(index int, ev *trace.Event, data []byte)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(index int, ev *trace.Event, data []byte)

// Emit calls f.
func (f EmitterFunc) Emit(index int, ev *trace.Event, data []byte) { f(index, ev, data) }

// Defaults for the extraction limits.
const (
	DefaultStringCapacity  = 64
	DefaultMaxHeapPayload  = 1 << 20
	DefaultMaxArrayEntries = 1024
)

// Normalize guarantees buf holds a bounded C string: when no NUL occurs in
// buf the last byte is replaced by one. buf must be non-empty; an empty
// buffer is left alone.
func Normalize(buf []byte) {
	if len(buf) == 0 {
		return
	}
	if bytes.IndexByte(buf, 0) < 0 {
		buf[len(buf)-1] = 0
	}
}

// CString returns the bytes of buf up to its first NUL.
func CString(buf []byte) string {
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		return string(buf[:i])
	}
	return string(buf)
}

// Extractor materializes argument slots of one guest architecture.
type Extractor struct {
	Mem Reader
	Out Emitter

	Order   binary.ByteOrder
	PtrSize int

	// Alloc returns a zeroed buffer of n bytes or nil when the allocation
	// cannot be served. Defaults to a make bounded by MaxHeapPayload.
	Alloc func(n uint64) []byte

	StringCapacity  int
	MaxHeapPayload  uint64
	MaxArrayEntries int

	Log *glog.Logger
}

// New returns an extractor for a little-endian 64-bit guest.
func New(mem Reader, out Emitter) *Extractor {
	return &Extractor{
		Mem:             mem,
		Out:             out,
		Order:           binary.LittleEndian,
		PtrSize:         8,
		StringCapacity:  DefaultStringCapacity,
		MaxHeapPayload:  DefaultMaxHeapPayload,
		MaxArrayEntries: DefaultMaxArrayEntries,
	}
}

func (x *Extractor) log() *glog.Logger {
	if x.Log != nil {
		return x.Log
	}
	return glog.Get()
}

func (x *Extractor) capacity(n int) int {
	if n > 0 {
		return n
	}
	if x.StringCapacity > 0 {
		return x.StringCapacity
	}
	return DefaultStringCapacity
}

// read fills buf from guest memory. A panicking reader is treated as a
// faulted read.
func (x *Extractor) read(addr uint64, buf []byte) {
	defer func() {
		if r := recover(); r != nil {
			x.log().Debug("guest read panicked", glog.Addr(addr), zap.String("err", fmt.Sprint(r)))
		}
	}()
	x.Mem.ReadGuest(addr, buf)
}

func (x *Extractor) emit(index int, ev *trace.Event, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			x.log().Warn("emit panicked", glog.Sysno(ev.Sysno), glog.Index(index), zap.String("err", fmt.Sprint(r)))
		}
	}()
	x.Out.Emit(index, ev, data)
}

// Fixed reads size bytes at addr and emits them unchanged.
func (x *Extractor) Fixed(ev *trace.Event, index int, addr uint64, size int) {
	if size <= 0 {
		return
	}
	buf := make([]byte, size)
	x.read(addr, buf)
	x.emit(index, ev, buf)
}

// CString reads capacity bytes at addr, normalizes them and emits the
// whole bounded buffer. capacity <= 0 selects StringCapacity.
func (x *Extractor) CString(ev *trace.Event, index int, addr uint64, capacity int) {
	buf := make([]byte, x.capacity(capacity))
	x.read(addr, buf)
	Normalize(buf)
	x.emit(index, ev, buf)
}

// HeapString reads a runtime-sized buffer. size already includes room for
// the terminator; a size of 0 means count+1 wrapped and is treated like
// any other allocation failure: logged and skipped.
func (x *Extractor) HeapString(ev *trace.Event, index int, addr uint64, size uint64) bool {
	buf := x.alloc(size)
	if buf == nil {
		x.log().AllocFailed(ev.Sysno, index, size)
		return false
	}
	x.read(addr, buf)
	Normalize(buf)
	x.emit(index, ev, buf)
	return true
}

func (x *Extractor) alloc(n uint64) []byte {
	if n == 0 {
		return nil
	}
	if x.Alloc != nil {
		return x.Alloc(n)
	}
	limit := x.MaxHeapPayload
	if limit == 0 {
		limit = DefaultMaxHeapPayload
	}
	if n > limit {
		return nil
	}
	return make([]byte, n)
}

// ptrSize is the guest pointer width: 4 when PtrSize says so, otherwise 8.
func (x *Extractor) ptrSize() int {
	if x.PtrSize == 4 {
		return 4
	}
	return 8
}

// ReadPointer reads one guest pointer at addr. A faulted read yields 0.
func (x *Extractor) ReadPointer(addr uint64) uint64 {
	size := x.ptrSize()
	buf := make([]byte, size)
	x.read(addr, buf)
	if size == 4 {
		return uint64(x.Order.Uint32(buf))
	}
	return x.Order.Uint64(buf)
}

// StringArray walks a NULL-terminated array of guest string pointers at
// base, emitting each element as a bounded string under the same index.
// It returns the number of elements emitted and whether the walk stopped
// at MaxArrayEntries before finding the terminator.
func (x *Extractor) StringArray(ev *trace.Event, index int, base uint64, capacity int) (int, bool) {
	limit := x.MaxArrayEntries
	if limit <= 0 {
		limit = DefaultMaxArrayEntries
	}
	step := uint64(x.ptrSize())

	addr := base
	for n := 0; ; n++ {
		ptr := x.ReadPointer(addr)
		if ptr == 0 {
			return n, false
		}
		if n == limit {
			x.log().ArrayTruncated(ev.Sysno, index, base, limit)
			return n, true
		}
		x.CString(ev, index, ptr, capacity)
		addr += step
	}
}
