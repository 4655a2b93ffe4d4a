// Package rlog is the relay's logger: leveled, timestamped, and — unlike the
// teacher's cmn/nlog, which rotates to disk — buffered to stdout only
// (flushed on every Warning/Error line and on Flush), since this daemon runs
// under a supervisor that captures its output. What it keeps from cmn/nlog
// is the severity model (Info/Warning/Error) and a periodic-flush writer;
// what it adds is
// the rate-limited variant spec §7 requires: identical messages about the
// same remote are emitted at most once every 60 seconds.
package rlog

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

type severity int

const (
	sevInfo severity = iota
	sevWarn
	sevErr
)

func (s severity) tag() string {
	switch s {
	case sevWarn:
		return "W"
	case sevErr:
		return "E"
	default:
		return "I"
	}
}

var (
	mu  sync.Mutex
	out = bufio.NewWriterSize(os.Stdout, 32*1024)

	// title is prepended to every line, e.g. the per-process instance id
	// (see internal/instanceid), so logs from several restarts of the same node
	// can be told apart when tailed together.
	title string

	rl = rateLimiter{window: 60 * time.Second, seen: map[string]time.Time{}}
)

func SetTitle(s string) { title = s }

func log(sev severity, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	mu.Lock()
	defer mu.Unlock()
	fmt.Fprintf(out, "%s %s %s %s\n", time.Now().UTC().Format(time.RFC3339Nano), sev.tag(), title, msg)
	if sev >= sevWarn {
		out.Flush()
	}
}

func Infof(format string, args ...any)    { log(sevInfo, format, args...) }
func Warningf(format string, args ...any) { log(sevWarn, format, args...) }
func Errorf(format string, args ...any)   { log(sevErr, format, args...) }

// Flush forces the buffered writer out; called on graceful shutdown and
// periodically by internal/sched.
func Flush() {
	mu.Lock()
	defer mu.Unlock()
	out.Flush()
}

// SetOutput redirects the logger, used by tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = bufio.NewWriterSize(w, 4*1024)
}

// rateLimiter backs ErrorfEvery/WarningfEvery: same key, at most once per
// window. This is the uniform logging rate limit spec §7 and the Open
// Questions section settle on (no separate limit on Peer Directory lookups).
type rateLimiter struct {
	mu     sync.Mutex
	window time.Duration
	seen   map[string]time.Time
}

func (r *rateLimiter) allow(key string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if last, ok := r.seen[key]; ok && now.Sub(last) < r.window {
		return false
	}
	r.seen[key] = now
	if len(r.seen) > 4096 {
		// cheap unbounded-growth guard: this daemon's remote set is a
		// handful of nodes, thousands of distinct keys means something
		// is generating one key per packet, not per remote/message kind.
		r.seen = map[string]time.Time{key: now}
	}
	return true
}

// ErrorfEvery logs at Error severity at most once per 60s for a given key
// (typically "<remote>:<message-kind>"), per spec §7's error rate limiting.
func ErrorfEvery(key string, format string, args ...any) {
	if rl.allow(key, time.Now()) {
		log(sevErr, format, args...)
	}
}

func WarningfEvery(key string, format string, args ...any) {
	if rl.allow(key, time.Now()) {
		log(sevWarn, format, args...)
	}
}
