package logger

import (
	"bufio"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const flushInterval = 2 * time.Second

// AsyncFileWriter buffers log lines through a channel and flushes them
// to disk on a timer. Write never blocks; lines that arrive while the
// channel is full are dropped.
type AsyncFileWriter struct {
	mu    sync.Mutex
	file  *os.File
	buf   *bufio.Writer
	lines chan []byte
	quit  chan struct{}
}

func NewAsyncFileWriter(logFile string, bufferSize int) (*AsyncFileWriter, error) {
	file, err := os.OpenFile(filepath.Clean(logFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, err
	}

	w := &AsyncFileWriter{
		file:  file,
		buf:   bufio.NewWriterSize(file, bufferSize),
		lines: make(chan []byte, 1000),
		quit:  make(chan struct{}),
	}
	go w.run()
	return w, nil
}

func (w *AsyncFileWriter) Write(p []byte) (int, error) {
	select {
	case w.lines <- append([]byte(nil), p...):
		return len(p), nil
	default:
		return 0, nil
	}
}

func (w *AsyncFileWriter) run() {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()
	for {
		select {
		case line := <-w.lines:
			w.mu.Lock()
			_, _ = w.buf.Write(line)
			w.mu.Unlock()
		case <-ticker.C:
			w.mu.Lock()
			_ = w.buf.Flush()
			w.mu.Unlock()
		case <-w.quit:
			w.mu.Lock()
			_ = w.buf.Flush()
			w.mu.Unlock()
			return
		}
	}
}

func (w *AsyncFileWriter) Close() {
	close(w.quit)
	_ = w.file.Close()
}
