package analyze

import (
	"errors"
	"fmt"
	"io"

	"github.com/zboralski/lktrace/internal/sysno"
	"github.com/zboralski/lktrace/internal/trace"
)

// RecordReader yields records until io.EOF. tracefile.Reader implements it.
type RecordReader interface {
	Next() (*trace.Record, error)
}

// ReadAll drains r.
func ReadAll(r RecordReader) ([]*trace.Record, error) {
	var recs []*trace.Record
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return recs, nil
		}
		if err != nil {
			return recs, err
		}
		recs = append(recs, rec)
	}
}

// Dump writes one line per record and returns how many were written.
// Records with an out-of-range syscall number are flagged but still shown.
func Dump(w io.Writer, r RecordReader, tbl *sysno.Table) (int, error) {
	if tbl == nil {
		tbl = sysno.RISCV64()
	}
	n := 0
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		line := recordLine(tbl, rec)
		if rec.Sysno >= sysno.MaxSyscall {
			line += " (bad sysno)"
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return n, err
		}
		n++
	}
}

// RecordSlice adapts a slice to RecordReader.
type RecordSlice []*trace.Record

// Next pops the first record.
func (s *RecordSlice) Next() (*trace.Record, error) {
	if len(*s) == 0 {
		return nil, io.EOF
	}
	rec := (*s)[0]
	*s = (*s)[1:]
	return rec, nil
}
