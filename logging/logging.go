package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

const (
	maxLogSize = 2 * 1024 * 1024 // 2MB
	backupExt  = ".1"
)

// RotatingWriter keeps the daemon log bounded: once the file passes
// maxLogSize it is renamed to <path>.1 and a fresh file is started. One
// backup is kept; older rotations are overwritten.
type RotatingWriter struct {
	mu   sync.Mutex
	file *os.File
	path string
	size int64
}

// Setup routes the standard logger to both stdout and a rotating log file.
func Setup(logPath string) (*RotatingWriter, error) {
	rw := &RotatingWriter{path: logPath}
	if err := rw.open(); err != nil {
		return nil, fmt.Errorf("open log %s: %w", logPath, err)
	}

	// An oversized file left by a previous run rotates immediately rather
	// than growing further.
	if rw.size > maxLogSize {
		rw.rotate()
	}

	log.SetOutput(io.MultiWriter(os.Stdout, rw))
	return rw, nil
}

func (w *RotatingWriter) open() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}

	w.file = f
	w.size = 0
	if info, err := f.Stat(); err == nil {
		w.size = info.Size()
	}
	return nil
}

func (w *RotatingWriter) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	n, err = w.file.Write(p)
	w.size += int64(n)

	if w.size > maxLogSize {
		w.rotate()
	}
	return n, err
}

// rotate is called with w.mu held (or before the writer is shared).
func (w *RotatingWriter) rotate() {
	w.file.Close()
	os.Rename(w.path, w.path+backupExt)

	if err := w.open(); err != nil {
		// Writes fall through to stdout via the MultiWriter.
		w.file, _ = os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	}
}

func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}
