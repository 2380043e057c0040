package tracefile

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/golang/snappy"
	"github.com/zboralski/lktrace/internal/trace"
)

// snappyMagic is the stream identifier chunk of the snappy framing format.
var snappyMagic = []byte("\xff\x06\x00\x00sNaPpY")

// Reader iterates over the records of a trace stream.
type Reader struct {
	r      io.Reader
	closer io.Closer

	Compressed bool
	offset     int64
}

// NewReader reads records from r, detecting snappy framing.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)
	peek, err := br.Peek(len(snappyMagic))
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("read trace: %w", err)
	}
	tr := &Reader{r: br}
	if bytes.Equal(peek, snappyMagic) {
		tr.r = snappy.NewReader(br)
		tr.Compressed = true
	}
	return tr, nil
}

// Open opens a trace file.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trace: %w", err)
	}
	r, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.closer = f
	return r, nil
}

// Next returns the next record, or io.EOF at a clean end of stream.
func (r *Reader) Next() (*trace.Record, error) {
	rec, n, err := readRecord(r.r)
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("record at offset %d: %w", r.offset, err)
	}
	r.offset += int64(n)
	return rec, nil
}

// Close releases the file opened by Open.
func (r *Reader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

// ReadAll returns every record of r.
func ReadAll(r io.Reader) ([]*trace.Record, error) {
	tr, err := NewReader(r)
	if err != nil {
		return nil, err
	}
	var out []*trace.Record
	for {
		rec, err := tr.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
}

// ReadFile returns every record of the trace at path.
func ReadFile(path string) ([]*trace.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trace: %w", err)
	}
	defer f.Close()
	return ReadAll(f)
}
