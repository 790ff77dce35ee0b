package logger

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// AsyncConsoleHook mirrors formatted entries to stdout from a separate
// goroutine. When the buffer is full the entry is skipped; the file
// output remains the record of truth.
type AsyncConsoleHook struct {
	entries chan string
	quit    chan struct{}
	wg      sync.WaitGroup
}

func NewAsyncConsoleHook(bufferSize int) *AsyncConsoleHook {
	h := &AsyncConsoleHook{
		entries: make(chan string, bufferSize),
		quit:    make(chan struct{}),
	}
	h.wg.Add(1)
	go h.drain()
	return h
}

func (h *AsyncConsoleHook) Fire(entry *logrus.Entry) error {
	line, err := entry.String()
	if err != nil {
		return err
	}
	select {
	case h.entries <- line:
	default:
	}
	return nil
}

func (h *AsyncConsoleHook) drain() {
	defer h.wg.Done()
	for {
		select {
		case line := <-h.entries:
			fmt.Print(line)
		case <-h.quit:
			for len(h.entries) > 0 {
				fmt.Print(<-h.entries)
			}
			return
		}
	}
}

func (h *AsyncConsoleHook) Close() {
	close(h.quit)
	h.wg.Wait()
}

func (h *AsyncConsoleHook) Levels() []logrus.Level {
	return logrus.AllLevels
}
