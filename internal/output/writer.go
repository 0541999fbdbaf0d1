// Package output implements the serialized buffered output writer. A single
// dedicated goroutine consumes batches strictly in submission order and
// appends their bytes through cached file handles, so writes to the same
// path are never torn or reordered.
package output

import (
	"fmt"
	"os"
)

// Batch maps destination paths to encoded bytes. Ownership transfers to the
// writer on submission.
type Batch map[string][]byte

// Done is the completion handle of a submitted batch.
type Done struct {
	ch chan error
}

// Wait blocks until the batch has been written and returns the write error,
// if any. A write error is fatal to the run.
func (d *Done) Wait() error {
	return <-d.ch
}

type submission struct {
	batch Batch
	// closeHandles requests flushing and closing every cached handle
	// instead of writing a batch.
	closeHandles bool
	done         chan error
}

// Writer appends batches to per-path files through cached handles. Handles
// are opened in create-or-append mode on first use and kept open until
// CloseHandles or Close.
type Writer struct {
	queue   chan submission
	handles map[string]*os.File
	stopped chan struct{}
}

// NewWriter creates a writer and starts its consumer goroutine.
func NewWriter() *Writer {
	w := &Writer{
		queue:   make(chan submission, 64),
		handles: make(map[string]*os.File),
		stopped: make(chan struct{}),
	}
	go w.run()
	return w
}

// Submit enqueues a batch. Batches are written strictly in the order they
// arrive into the queue.
func (w *Writer) Submit(batch Batch) *Done {
	done := make(chan error, 1)
	w.queue <- submission{batch: batch, done: done}
	return &Done{ch: done}
}

// CloseHandles flushes and closes every cached handle and clears the cache,
// after all previously submitted batches have been written. The writer keeps
// running and reopens handles on the next submission.
func (w *Writer) CloseHandles() error {
	done := make(chan error, 1)
	w.queue <- submission{closeHandles: true, done: done}
	return <-done
}

// Close drains the queue, closes all handles and stops the goroutine.
func (w *Writer) Close() error {
	close(w.queue)
	<-w.stopped
	return w.closeAll()
}

func (w *Writer) run() {
	defer close(w.stopped)
	for sub := range w.queue {
		if sub.closeHandles {
			sub.done <- w.closeAll()
			continue
		}
		sub.done <- w.write(sub.batch)
	}
}

func (w *Writer) write(batch Batch) error {
	for path, data := range batch {
		if len(data) == 0 {
			continue
		}
		handle, ok := w.handles[path]
		if !ok {
			var err error
			handle, err = os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err != nil {
				return fmt.Errorf("failed to open output file %s: %w", path, err)
			}
			w.handles[path] = handle
		}
		if _, err := handle.Write(data); err != nil {
			return fmt.Errorf("failed to write output file %s: %w", path, err)
		}
	}
	return nil
}

func (w *Writer) closeAll() error {
	var lastErr error
	for path, handle := range w.handles {
		if err := handle.Close(); err != nil {
			lastErr = fmt.Errorf("failed to close output file %s: %w", path, err)
		}
	}
	w.handles = make(map[string]*os.File)
	return lastErr
}
