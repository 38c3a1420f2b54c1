// internal/engine/watcher.go
package engine

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hpcloud/tail"
	"go.uber.org/zap"
)

// oomMarker is what the JVM prints when the heap is exhausted.
const oomMarker = "java.lang.OutOfMemoryError"

// settleInterval is how often WaitOutOfMemory rechecks the flag.
const settleInterval = 10 * time.Millisecond

// LogWatcher follows the engine's diagnostic log, mirrors it into the logger
// at debug level and remembers whether the JVM reported memory exhaustion.
type LogWatcher struct {
	logger *zap.Logger
	tail   *tail.Tail
	oom    atomic.Bool
	lines  atomic.Int64
	done   chan struct{}
	once   sync.Once
}

// WatchLog starts following path from its current end. The file does not need
// to exist yet.
func WatchLog(logger *zap.Logger, path string) (*LogWatcher, error) {
	t, err := tail.TailFile(path, tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: false,
		Poll:      true,
		Location:  &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd},
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to tail engine log: %w", err)
	}

	w := &LogWatcher{
		logger: logger.Named("engine-log"),
		tail:   t,
		done:   make(chan struct{}),
	}
	go w.monitorLoop()
	return w, nil
}

func (w *LogWatcher) monitorLoop() {
	defer close(w.done)
	for line := range w.tail.Lines {
		if line.Err != nil {
			w.logger.Warn("Error reading engine log.", zap.Error(line.Err))
			continue
		}
		w.lines.Add(1)
		if strings.Contains(line.Text, oomMarker) {
			w.oom.Store(true)
			w.logger.Warn("Engine reported memory exhaustion.", zap.String("line", line.Text))
			continue
		}
		w.logger.Debug(line.Text)
	}
}

// Reset clears the memory-exhaustion flag before a new engine call.
func (w *LogWatcher) Reset() { w.oom.Store(false) }

// OutOfMemory reports whether memory exhaustion was logged since the last Reset.
func (w *LogWatcher) OutOfMemory() bool { return w.oom.Load() }

// WaitOutOfMemory gives the tail up to grace to catch up with lines written
// just before the engine exited. It returns as soon as memory exhaustion is
// seen, and otherwise reports the flag once grace has elapsed.
func (w *LogWatcher) WaitOutOfMemory(grace time.Duration) bool {
	timer := time.NewTimer(grace)
	defer timer.Stop()
	ticker := time.NewTicker(settleInterval)
	defer ticker.Stop()

	for {
		if w.oom.Load() {
			return true
		}
		select {
		case <-timer.C:
			return w.oom.Load()
		case <-w.done:
			return w.oom.Load()
		case <-ticker.C:
		}
	}
}

// Lines is the number of log lines seen so far.
func (w *LogWatcher) Lines() int64 { return w.lines.Load() }

// Stop ends the tail and waits for the monitor goroutine to exit.
func (w *LogWatcher) Stop() {
	w.once.Do(func() {
		if err := w.tail.Stop(); err != nil {
			w.logger.Debug("Engine log tail stopped with error.", zap.Error(err))
		}
		w.tail.Cleanup()
		<-w.done
	})
}
