// Package windows adapts the monitor process to run as a Windows
// service: event-log reporting and the service control loop. When the
// event-log source cannot be opened, the event logger falls back to
// standard logging only. The package imports the Windows-only
// golang.org/x/sys/windows packages and builds only on Windows.
package windows

import (
	"fmt"
	"log"
	"os"

	"golang.org/x/sys/windows/svc/eventlog"
)

// EventLogger writes to the Windows Event Log when a registered source
// is available and always mirrors to standard logging, so console runs
// see the same messages.
type EventLogger struct {
	source string
	elog   *eventlog.Log
}

// NewEventLogger opens the event-log source the installer registered; a
// missing source is not fatal, only the mirror remains.
func NewEventLogger(source string) *EventLogger {
	l, err := eventlog.Open(source)
	if err != nil {
		log.Printf("Warning: Could not open Windows Event Log source '%s': %v. Falling back to stdout.", source, err)
		return &EventLogger{source: source}
	}
	return &EventLogger{source: source, elog: l}
}

func (l *EventLogger) Info(eid uint32, msg string) {
	if l.elog != nil {
		l.elog.Info(eid, msg)
	}
	log.Printf("[INFO] %s: %s", l.source, msg)
}

func (l *EventLogger) Warning(eid uint32, msg string) {
	if l.elog != nil {
		l.elog.Warning(eid, msg)
	}
	log.Printf("[WARN] %s: %s", l.source, msg)
}

// Error logs an error event. Messages may end up in the system event
// viewer; never pass secrets through here.
func (l *EventLogger) Error(eid uint32, msg string) {
	if l.elog != nil {
		l.elog.Error(eid, msg)
	}
	fmt.Fprintf(os.Stderr, "[ERROR] %s: %s\n", l.source, msg)
}

func (l *EventLogger) Close() {
	if l.elog != nil {
		l.elog.Close()
	}
}
