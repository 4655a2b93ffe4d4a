// Package xerr implements the relay's error taxonomy: a small closed set of
// semantic kinds (never Go source types) that every task classifies its own
// failures into, per spec §7.
package xerr

import (
	"fmt"
	"sync"
	ratomic "sync/atomic"

	"github.com/pkg/errors"
)

type Kind int

const (
	ConfigInvalid Kind = iota
	BusIOTransient
	CodecTooLarge
	CodecMalformed
	SendRejected
	ProofTimeout
	PeerUnknown
	SpoolIO
	ShutdownRequested
)

func (k Kind) String() string {
	switch k {
	case ConfigInvalid:
		return "ConfigInvalid"
	case BusIOTransient:
		return "BusIOTransient"
	case CodecTooLarge:
		return "CodecTooLarge"
	case CodecMalformed:
		return "CodecMalformed"
	case SendRejected:
		return "SendRejected"
	case ProofTimeout:
		return "ProofTimeout"
	case PeerUnknown:
		return "PeerUnknown"
	case SpoolIO:
		return "SpoolIO"
	case ShutdownRequested:
		return "ShutdownRequested"
	default:
		return "Unknown"
	}
}

// RelayError is the one error type every component returns; the Kind
// decides recovery policy (retry, drop, fatal) at the call site, never a
// string match.
type RelayError struct {
	kind  Kind
	cause error
	what  string
}

func New(kind Kind, format string, a ...any) *RelayError {
	return &RelayError{kind: kind, what: fmt.Sprintf(format, a...)}
}

func Wrap(kind Kind, cause error, format string, a ...any) *RelayError {
	return &RelayError{kind: kind, cause: errors.Wrap(cause, fmt.Sprintf(format, a...)), what: fmt.Sprintf(format, a...)}
}

func (e *RelayError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s", e.kind, e.cause.Error())
	}
	return fmt.Sprintf("[%s] %s", e.kind, e.what)
}

func (e *RelayError) Unwrap() error { return e.cause }
func (e *RelayError) Kind() Kind    { return e.kind }

// Is reports whether err (or something it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	for err != nil {
		if re, ok := err.(*RelayError); ok && re.kind == kind {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Fatal reports whether this kind must abort the process, per §7: only
// ConfigInvalid does (catastrophic resource exhaustion is handled by the
// caller directly, it has no RelayError kind of its own).
func Fatal(err error) bool { return Is(err, ConfigInvalid) }

// Errs is a deduplicating, capped collector of errors from a single
// operation (e.g. one fan-out cycle touching several targets), adapted from
// the teacher's cmn/cos.Errs: first occurrence wins, identical messages
// collapse, and the collector itself is safe to Add from the owning task
// only (it is never shared across tasks).
type Errs struct {
	errs []error
	cnt  int64
	mu   sync.Mutex
}

const maxErrs = 8

func (e *Errs) Add(err error) {
	if err == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, added := range e.errs {
		if added.Error() == err.Error() {
			return
		}
	}
	if len(e.errs) < maxErrs {
		e.errs = append(e.errs, err)
		ratomic.StoreInt64(&e.cnt, int64(len(e.errs)))
	}
}

func (e *Errs) Cnt() int { return int(ratomic.LoadInt64(&e.cnt)) }

func (e *Errs) Error() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.errs) == 0 {
		return ""
	}
	s := e.errs[0].Error()
	if len(e.errs) > 1 {
		s = fmt.Sprintf("%s (and %d more)", s, len(e.errs)-1)
	}
	return s
}
