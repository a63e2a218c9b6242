package logger

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const megabyte = 1024 * 1024

// RotationOptions controls when a RotatingWriter rolls its file over.
type RotationOptions struct {
	MaxBytes int64 // rotate before a write would exceed this size; <= 0 disables
	MaxAge   int   // days to keep rotated files; <= 0 keeps them
	Compress bool  // gzip rotated files
}

// RotatingWriter is an io.WriteCloser over a log file that is renamed with a
// timestamp suffix once it grows past MaxBytes. It is safe for concurrent
// writers, which the engine's queue workers are.
type RotatingWriter struct {
	path string
	opts RotationOptions

	mu   sync.Mutex
	file *os.File
	size int64

	// compressions in flight, waited for by Close
	wg sync.WaitGroup
}

// NewRotatingWriter opens (or creates) path for appending.
func NewRotatingWriter(path string, opts RotationOptions) (*RotatingWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, size, err := openAppend(path)
	if err != nil {
		return nil, err
	}

	w := &RotatingWriter{
		path: path,
		opts: opts,
		file: file,
		size: size,
	}
	w.prune(time.Now())
	return w, nil
}

func openAppend(path string) (*os.File, int64, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, 0, fmt.Errorf("failed to stat log file: %w", err)
	}
	return file, info.Size(), nil
}

func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return 0, os.ErrClosed
	}
	if w.opts.MaxBytes > 0 && w.size > 0 && w.size+int64(len(p)) > w.opts.MaxBytes {
		if err := w.rotateLocked(time.Now()); err != nil {
			return 0, err
		}
	}

	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

// Rotate forces a rollover regardless of size.
func (w *RotatingWriter) Rotate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return os.ErrClosed
	}
	return w.rotateLocked(time.Now())
}

// Close closes the file and waits for pending compressions.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	var err error
	if w.file != nil {
		err = w.file.Close()
		w.file = nil
	}
	w.mu.Unlock()

	w.wg.Wait()
	return err
}

func (w *RotatingWriter) rotateLocked(now time.Time) error {
	if err := w.file.Close(); err != nil {
		return err
	}

	base := fmt.Sprintf("%s.%s", w.path, now.Format("20060102-150405.000000000"))
	rotated := base
	for i := 1; fileExists(rotated) || fileExists(rotated+".gz"); i++ {
		rotated = fmt.Sprintf("%s-%d", base, i)
	}
	if err := os.Rename(w.path, rotated); err != nil {
		return err
	}

	if w.opts.Compress {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			_ = gzipFile(rotated)
		}()
	}

	file, _, err := openAppend(w.path)
	if err != nil {
		w.file = nil
		return err
	}
	w.file = file
	w.size = 0

	w.prune(now)
	return nil
}

// gzipFile replaces path with path.gz.
func gzipFile(path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(path + ".gz")
	if err != nil {
		return err
	}

	gzw := gzip.NewWriter(dst)
	if _, err := io.Copy(gzw, src); err != nil {
		gzw.Close()
		dst.Close()
		return err
	}
	if err := gzw.Close(); err != nil {
		dst.Close()
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}
	return os.Remove(path)
}

// prune removes rotated files older than MaxAge days.
func (w *RotatingWriter) prune(now time.Time) {
	if w.opts.MaxAge <= 0 {
		return
	}

	matches, err := filepath.Glob(w.path + ".*")
	if err != nil {
		return
	}

	cutoff := now.AddDate(0, 0, -w.opts.MaxAge)
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		os.Remove(path)
		if !strings.HasSuffix(path, ".gz") {
			os.Remove(path + ".gz")
		}
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
