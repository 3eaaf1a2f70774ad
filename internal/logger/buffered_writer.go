package logger

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

const (
	// DefaultBufferSize is the write buffer for log files
	DefaultBufferSize = 32 * 1024

	// DefaultFlushInterval is how often buffered entries are pushed to the OS
	DefaultFlushInterval = 5 * time.Second

	// LogFilePermissions restricts log files to the owner; entries may carry patient identifiers
	LogFilePermissions = 0o600
)

// BufferedFileWriter is a thread-safe buffered file writer with periodic flushing.
type BufferedFileWriter struct {
	mu            sync.Mutex
	file          *os.File
	writer        *bufio.Writer
	filePath      string
	flushInterval time.Duration
	stopFlush     chan struct{}
	flushDone     chan struct{}
	closed        bool
}

// BufferedWriterOption configures a BufferedFileWriter
type BufferedWriterOption func(*BufferedFileWriter)

// WithFlushInterval sets the auto-flush interval. Zero disables auto-flush.
func WithFlushInterval(interval time.Duration) BufferedWriterOption {
	return func(w *BufferedFileWriter) {
		w.flushInterval = interval
	}
}

// NewBufferedFileWriter opens filePath in append mode and starts the flush loop.
func NewBufferedFileWriter(filePath string, opts ...BufferedWriterOption) (*BufferedFileWriter, error) {
	w := &BufferedFileWriter{
		filePath:      filePath,
		flushInterval: DefaultFlushInterval,
	}
	for _, opt := range opts {
		opt(w)
	}

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, LogFilePermissions) //nolint:gosec // path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", filePath, err)
	}

	w.file = file
	w.writer = bufio.NewWriterSize(file, DefaultBufferSize)

	if w.flushInterval > 0 {
		w.stopFlush = make(chan struct{})
		w.flushDone = make(chan struct{})
		go w.autoFlushLoop()
	}

	return w, nil
}

func (w *BufferedFileWriter) autoFlushLoop() {
	defer close(w.flushDone)

	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopFlush:
			return
		case <-ticker.C:
			// errors resurface on the next Write
			_ = w.Flush()
		}
	}
}

// Write buffers p. Thread-safe.
func (w *BufferedFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.writer == nil {
		return 0, fmt.Errorf("writer is closed")
	}
	return w.writer.Write(p)
}

// Flush pushes the buffer to the OS without fsync. Thread-safe.
func (w *BufferedFileWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked()
}

func (w *BufferedFileWriter) flushLocked() error {
	if w.writer == nil {
		return nil
	}
	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush buffer: %w", err)
	}
	return nil
}

// Close stops the flush loop, syncs, and closes the file. Idempotent.
func (w *BufferedFileWriter) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	if w.stopFlush != nil {
		close(w.stopFlush)
		<-w.flushDone
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	var errs []error
	if err := w.flushLocked(); err != nil {
		errs = append(errs, err)
	}
	if w.file != nil {
		if err := w.file.Sync(); err != nil {
			errs = append(errs, fmt.Errorf("failed to sync file: %w", err))
		}
		if err := w.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close file: %w", err))
		}
		w.file = nil
	}
	w.writer = nil

	return errors.Join(errs...)
}

// FilePath returns the path of the underlying file
func (w *BufferedFileWriter) FilePath() string {
	return w.filePath
}

var _ io.WriteCloser = (*BufferedFileWriter)(nil)
