// Package audit records changes made through the management endpoints.
package audit

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Event is a single audited action.
type Event struct {
	Action  string
	Actor   string // client id of the caller
	Target  string
	Details string
	Err     error
}

// Logger writes audit events as JSON lines, apart from the application log.
type Logger struct {
	zl  zerolog.Logger
	now func() time.Time
}

// New creates a Logger writing to w, or stdout when w is nil.
func New(w io.Writer) *Logger {
	if w == nil {
		w = os.Stdout
	}
	return &Logger{
		zl:  zerolog.New(w).With().Str("log", "audit").Logger(),
		now: time.Now,
	}
}

// Record writes e. A nil Logger discards it.
func (l *Logger) Record(e Event) {
	if l == nil {
		return
	}

	ev := l.zl.Log().
		Time("timestamp", l.now().UTC()).
		Str("action", e.Action).
		Str("actor", e.Actor).
		Bool("success", e.Err == nil)
	if e.Target != "" {
		ev = ev.Str("target", e.Target)
	}
	if e.Details != "" {
		ev = ev.Str("details", e.Details)
	}
	if e.Err != nil {
		ev = ev.Str("error", e.Err.Error())
	}
	ev.Send()
}
