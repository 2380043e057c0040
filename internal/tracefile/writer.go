package tracefile

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/golang/snappy"
	"github.com/zboralski/lktrace/internal/trace"
)

// Writer appends records to a trace stream. It is safe for concurrent use;
// each record is written whole.
type Writer struct {
	mu     sync.Mutex
	out    io.Writer
	bw     *bufio.Writer
	zw     *snappy.Writer
	closer io.Closer

	records int
	bytes   int64
}

// NewWriter writes records to w, optionally inside snappy framing.
func NewWriter(w io.Writer, compress bool) *Writer {
	tw := &Writer{}
	if compress {
		tw.zw = snappy.NewBufferedWriter(w)
		tw.out = tw.zw
	} else {
		tw.bw = bufio.NewWriter(w)
		tw.out = tw.bw
	}
	return tw
}

// Create opens path for writing, truncating it.
func Create(path string, compress bool) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create trace: %w", err)
	}
	w := NewWriter(f, compress)
	w.closer = f
	return w, nil
}

// WriteRecord encodes rec and appends it.
func (w *Writer) WriteRecord(rec *trace.Record) error {
	b, err := Encode(rec)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.out == nil {
		return fmt.Errorf("write record: %w", os.ErrClosed)
	}
	n, err := w.out.Write(b)
	w.bytes += int64(n)
	if err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	w.records++
	return nil
}

// Flush pushes buffered records to the underlying writer.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flush()
}

func (w *Writer) flush() error {
	if w.zw != nil {
		return w.zw.Flush()
	}
	if w.bw != nil {
		return w.bw.Flush()
	}
	return nil
}

// Close flushes and, for writers from Create, closes the file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.out == nil {
		return nil
	}

	err := w.flush()
	if w.zw != nil {
		if cerr := w.zw.Close(); err == nil {
			err = cerr
		}
	}
	if w.closer != nil {
		if cerr := w.closer.Close(); err == nil {
			err = cerr
		}
	}
	w.out = nil
	return err
}

// Records returns the number of records written.
func (w *Writer) Records() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.records
}

// Bytes returns the uncompressed size of everything written.
func (w *Writer) Bytes() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.bytes
}
