package nidas

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/cihub/seelog"
)

// InitLogging points the package-level logger at w, at the given minimum
// level ("trace", "debug", "info", "warn", "error", "critical"). It is
// normally called once by cmd/dsm's Runtime during startup.
func InitLogging(w *os.File, minLevel string) error {
	cfg := fmt.Sprintf(`
<seelog minlevel="%s">
	<outputs formatid="main">
		<file path="%s"/>
	</outputs>
	<formats>
		<format id="main" format="%%Date(2006-01-02T15:04:05.000Z07:00) [%%Level] %%Msg%%n"/>
	</formats>
</seelog>`, minLevel, w.Name())

	logger, err := seelog.LoggerFromConfigAsString(cfg)
	if err != nil {
		return err
	}
	return seelog.ReplaceLogger(logger)
}

func init() {
	// Until InitLogging runs, keep seelog's default console logger rather
	// than silence it, so early startup errors are still visible.
}

// Logf logs at the given seelog severity with sprintf-style formatting.
// Debugf/Infof/Warnf/Errorf/Criticalf below are the common case; this is
// exported for callers that already have a dynamic level (e.g. the
// decreasing-frequency logger).
func Logf(level string, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	switch level {
	case "trace":
		seelog.Trace(msg)
	case "debug":
		seelog.Debug(msg)
	case "info":
		seelog.Info(msg)
	case "warn":
		seelog.Warn(msg)
	case "error":
		seelog.Error(msg)
	default:
		seelog.Critical(msg)
	}
}

func Debugf(format string, args ...interface{})    { Logf("debug", format, args...) }
func Infof(format string, args ...interface{})     { Logf("info", format, args...) }
func Warnf(format string, args ...interface{})     { Logf("warn", format, args...) }
func Errorf(format string, args ...interface{})    { Logf("error", format, args...) }
func Criticalf(format string, args ...interface{}) { Logf("critical", format, args...) }

// DecreasingLogger logs an event at Warn on its first, 2nd, 4th, 8th...
// occurrence (a doubling backoff), used for ChecksumMismatch and
// ParseSample errors per §7 ("logged at decreasing frequency, e.g. every
// 100th occurrence"). A fresh DecreasingLogger should be created per
// distinct error site (e.g. per sensor) so one noisy sensor doesn't
// starve another's log budget.
type DecreasingLogger struct {
	mu    sync.Mutex
	count int64
	next  int64
}

// NewDecreasingLogger creates a DecreasingLogger that logs its first
// occurrence immediately.
func NewDecreasingLogger() *DecreasingLogger {
	return &DecreasingLogger{next: 1}
}

// Log records one occurrence and logs it if the doubling schedule says
// to.
func (d *DecreasingLogger) Log(format string, args ...interface{}) {
	n := atomic.AddInt64(&d.count, 1)

	d.mu.Lock()
	due := n >= d.next
	if due {
		d.next *= 2
	}
	d.mu.Unlock()

	if due {
		Warnf(format+" (occurrence %d)", append(args, n)...)
	}
}
