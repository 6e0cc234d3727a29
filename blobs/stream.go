package blobs

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/jobhost/bindings"
	"github.com/jobhost/bindings/blobpath"
)

type (
	// Counter is the Watcher of a blob stream.
	Counter struct {
		verb  string
		bytes atomic.Int64
	}

	// Reader reads a blob counting the bytes read.
	Reader struct {
		io.ReadCloser
		counter Counter
	}

	// Writer writes a blob counting the bytes written.
	// Closing the writer commits the blob and notifies
	// the invocation that it was written.
	Writer struct {
		io.WriteCloser
		counter Counter
		ctx     context.Context
		inv     *bindings.Invocation
		path    blobpath.Path
		once    sync.Once
		err     error
	}
)

// Bytes returns the number of bytes transferred so far.
func (c *Counter) Bytes() int64 {
	return c.bytes.Load()
}

func (c *Counter) Status() string {
	n := c.bytes.Load()
	if n == 0 {
		return ""
	}
	return fmt.Sprintf("%s %d bytes", c.verb, n)
}

func newReader(r io.ReadCloser) *Reader {
	return &Reader{ReadCloser: r, counter: Counter{verb: "Read"}}
}

func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.ReadCloser.Read(p)
	r.counter.bytes.Add(int64(n))
	return n, err
}

// Counter returns the watcher of the stream.
func (r *Reader) Counter() *Counter {
	return &r.counter
}

func newWriter(
	ctx  context.Context,
	inv  *bindings.Invocation,
	path blobpath.Path,
	w    io.WriteCloser,
) *Writer {
	return &Writer{
		WriteCloser: w,
		counter:     Counter{verb: "Wrote"},
		ctx:         ctx,
		inv:         inv,
		path:        path,
	}
}

func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.WriteCloser.Write(p)
	w.counter.bytes.Add(int64(n))
	return n, err
}

// Close commits the blob once.  Later calls return the first result.
func (w *Writer) Close() error {
	w.once.Do(func() {
		if w.err = w.WriteCloser.Close(); w.err == nil {
			w.inv.Observer().Transferred("write", w.counter.Bytes())
			w.inv.BlobWritten(w.ctx, w.path)
		}
	})
	return w.err
}

// Counter returns the watcher of the stream.
func (w *Writer) Counter() *Counter {
	return &w.counter
}
