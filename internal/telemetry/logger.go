package telemetry

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Async logger feeding stdout through a buffered channel. A bounded ring
// buffer keeps the most recent lines so the Telegram /logs command can
// replay them without touching the hot path.

type Level string

const (
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
	LevelDebug Level = "DEBUG"
)

var (
	enableDebug atomic.Bool

	logCh chan entry
	once  sync.Once

	ringMu      sync.Mutex
	ringData    []entry
	ringNext    int
	ringSize    = 2000
	ringWrapped bool
)

type entry struct {
	at      time.Time
	level   Level
	message string
}

func Start() {
	once.Do(func() {
		logCh = make(chan entry, 8192)
		ringData = make([]entry, ringSize)

		go func() {
			defer func() {
				if r := recover(); r != nil {
					fmt.Fprintf(os.Stderr, "telemetry panic: %v\n", r)
				}
			}()

			for e := range logCh {
				ringMu.Lock()
				ringData[ringNext] = e
				ringNext = (ringNext + 1) % ringSize
				if ringNext == 0 {
					ringWrapped = true
				}
				ringMu.Unlock()

				fmt.Printf("%s [%s] %s\n",
					e.at.Format("2006/01/02 15:04:05.000"),
					e.level,
					e.message)
			}
		}()
	})
}

func Stop() {
	if logCh != nil {
		close(logCh)
	}
}

func EnableDebug(on bool) { enableDebug.Store(on) }
func DebugOn() bool       { return enableDebug.Load() }

// Non-blocking enqueue; drop if saturated.
func enqueue(level Level, message string) {
	e := entry{at: time.Now(), level: level, message: message}
	select {
	case logCh <- e:
	default:
		fmt.Fprintf(os.Stderr, "telemetry: buffer full, dropping log: %s\n", message)
	}
}

// INFO is always on (use sparingly on hot path).
func Infof(format string, args ...any) {
	enqueue(LevelInfo, fmt.Sprintf(format, args...))
}

func Warnf(format string, args ...any) {
	enqueue(LevelWarn, fmt.Sprintf(format, args...))
}

func Errorf(format string, args ...any) {
	enqueue(LevelError, fmt.Sprintf(format, args...))
}

// DEBUG only formats if enabled (zero cost when off).
func Debugf(format string, args ...any) {
	if !enableDebug.Load() {
		return
	}
	enqueue(LevelDebug, fmt.Sprintf(format, args...))
}

// Tail returns the last n log lines in chronological order.
func Tail(n int) []string {
	if n <= 0 {
		return nil
	}
	if n > ringSize {
		n = ringSize
	}
	ringMu.Lock()
	defer ringMu.Unlock()

	available := ringSize
	if !ringWrapped {
		available = ringNext
	}
	if available == 0 {
		return nil
	}
	if n > available {
		n = available
	}

	out := make([]string, 0, n)
	start := ringNext - 1
	if start < 0 {
		start = ringSize - 1
	}
	for i := 0; i < n; i++ {
		idx := (start - i + ringSize) % ringSize
		e := ringData[idx]
		if !e.at.IsZero() {
			out = append(out, fmt.Sprintf("%s [%s] %s",
				e.at.Format("15:04:05.000"), e.level, e.message))
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}
