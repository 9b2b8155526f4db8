package logger

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Entry is one line recorded by a TestLogger. Fields holds the context
// fields merged with the per-call fields.
type Entry struct {
	Level   zerolog.Level
	Message string
	Fields  map[string]interface{}
	Err     error
}

type entryLog struct {
	mu      sync.Mutex
	entries []Entry
}

// TestLogger keeps every line in memory. Loggers derived from it with
// WithField, WithFields or WithError write to the same record.
type TestLogger struct {
	log    *entryLog
	fields map[string]interface{}
	err    error
}

func NewTestLogger() *TestLogger {
	return &TestLogger{log: &entryLog{}}
}

func (l *TestLogger) Debug(msg string) { l.emit(zerolog.DebugLevel, msg, nil) }
func (l *TestLogger) Info(msg string)  { l.emit(zerolog.InfoLevel, msg, nil) }
func (l *TestLogger) Warn(msg string)  { l.emit(zerolog.WarnLevel, msg, nil) }
func (l *TestLogger) Error(msg string) { l.emit(zerolog.ErrorLevel, msg, nil) }
func (l *TestLogger) Fatal(msg string) { l.emit(zerolog.FatalLevel, msg, nil) }

func (l *TestLogger) DebugWithFields(msg string, fields map[string]interface{}) {
	l.emit(zerolog.DebugLevel, msg, fields)
}

func (l *TestLogger) InfoWithFields(msg string, fields map[string]interface{}) {
	l.emit(zerolog.InfoLevel, msg, fields)
}

func (l *TestLogger) WarnWithFields(msg string, fields map[string]interface{}) {
	l.emit(zerolog.WarnLevel, msg, fields)
}

func (l *TestLogger) ErrorWithFields(msg string, fields map[string]interface{}) {
	l.emit(zerolog.ErrorLevel, msg, fields)
}

func (l *TestLogger) FatalWithFields(msg string, fields map[string]interface{}) {
	l.emit(zerolog.FatalLevel, msg, fields)
}

func (l *TestLogger) WithField(key string, value interface{}) Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

func (l *TestLogger) WithFields(fields map[string]interface{}) Logger {
	return &TestLogger{log: l.log, fields: l.merge(fields), err: l.err}
}

func (l *TestLogger) WithError(err error) Logger {
	return &TestLogger{log: l.log, fields: l.fields, err: err}
}

func (l *TestLogger) WithContext(ctx context.Context) Logger { return l }

func (l *TestLogger) GetZerolog() *zerolog.Logger {
	nop := zerolog.Nop()
	return &nop
}

func (l *TestLogger) merge(extra map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(l.fields)+len(extra))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}

func (l *TestLogger) emit(level zerolog.Level, msg string, fields map[string]interface{}) {
	l.log.mu.Lock()
	defer l.log.mu.Unlock()
	l.log.entries = append(l.log.entries, Entry{Level: level, Message: msg, Fields: l.merge(fields), Err: l.err})
}

// Entries returns a copy of everything recorded so far.
func (l *TestLogger) Entries() []Entry {
	l.log.mu.Lock()
	defer l.log.mu.Unlock()
	return append([]Entry(nil), l.log.entries...)
}

// Find returns the entries logged with exactly msg.
func (l *TestLogger) Find(msg string) []Entry {
	var found []Entry
	for _, e := range l.Entries() {
		if e.Message == msg {
			found = append(found, e)
		}
	}
	return found
}

// AtLevel returns the entries logged at level.
func (l *TestLogger) AtLevel(level zerolog.Level) []Entry {
	var found []Entry
	for _, e := range l.Entries() {
		if e.Level == level {
			found = append(found, e)
		}
	}
	return found
}

func (l *TestLogger) HasMessage(msg string) bool { return len(l.Find(msg)) > 0 }

func (l *TestLogger) CountMessages(msg string) int { return len(l.Find(msg)) }
