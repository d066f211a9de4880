package logging

import (
	"fmt"
	"reflect"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestLogger records every entry, Trace included, for assertions.
type TestLogger struct {
	*Logger
	observed *observer.ObservedLogs
}

// NewTestLogger returns a logger that keeps entries in memory.
func NewTestLogger() *TestLogger {
	core, observed := observer.New(TraceLevel)
	return &TestLogger{
		Logger:   &Logger{zap: zap.New(core), config: NewDefaultConfig()},
		observed: observed,
	}
}

// All returns every recorded entry.
func (t *TestLogger) All() []observer.LoggedEntry {
	return t.observed.All()
}

// FilterMessage returns entries whose message contains msg.
func (t *TestLogger) FilterMessage(msg string) *observer.ObservedLogs {
	return t.observed.FilterMessageSnippet(msg)
}

// Reset drops recorded entries.
func (t *TestLogger) Reset() {
	t.observed.TakeAll()
}

func (t *TestLogger) find(level zapcore.Level, msg string) []observer.LoggedEntry {
	var out []observer.LoggedEntry
	for _, e := range t.observed.All() {
		if e.Level == level && strings.Contains(e.Message, msg) {
			out = append(out, e)
		}
	}
	return out
}

// AssertLogged fails tb unless an entry at level contains msg.
func (t *TestLogger) AssertLogged(tb testing.TB, level zapcore.Level, msg string) {
	tb.Helper()
	if len(t.find(level, msg)) == 0 {
		tb.Errorf("expected %s log containing %q, got: %s", level, msg, t.dump())
	}
}

// AssertNotLogged fails tb if an entry at level contains msg.
func (t *TestLogger) AssertNotLogged(tb testing.TB, level zapcore.Level, msg string) {
	tb.Helper()
	if n := len(t.find(level, msg)); n > 0 {
		tb.Errorf("unexpected %s log containing %q (%d entries)", level, msg, n)
	}
}

// FieldValue returns the value of key on the first entry whose message
// contains msg. Strings, bools and integers come back as their Go types.
func (t *TestLogger) FieldValue(msg, key string) (interface{}, bool) {
	for _, e := range t.FilterMessage(msg).All() {
		if v, ok := e.ContextMap()[key]; ok {
			return v, true
		}
	}
	return nil, false
}

// AssertField fails tb unless an entry containing msg has key equal to expected.
func (t *TestLogger) AssertField(tb testing.TB, msg, key string, expected interface{}) {
	tb.Helper()
	for _, e := range t.FilterMessage(msg).All() {
		if v, ok := e.ContextMap()[key]; ok && reflect.DeepEqual(v, expected) {
			return
		}
	}
	tb.Errorf("field %q=%v not found on %q, got: %s", key, expected, msg, t.dump())
}

// AssertNoSecrets fails tb if a recorded string would have been caught by
// the default redaction rules.
func (t *TestLogger) AssertNoSecrets(tb testing.TB) {
	tb.Helper()
	rules := DefaultRedaction()
	patterns, err := compilePatterns(rules.Patterns)
	if err != nil {
		tb.Fatalf("default redaction patterns: %v", err)
	}
	sensitive := make(map[string]bool, len(rules.Fields))
	for _, f := range rules.Fields {
		sensitive[f] = true
	}

	leaks := func(s string) bool {
		for _, re := range patterns {
			if re.MatchString(s) {
				return true
			}
		}
		return false
	}

	for _, e := range t.observed.All() {
		if leaks(e.Message) {
			tb.Errorf("secret in message %q", e.Message)
		}
		for _, f := range e.Context {
			if f.Type != zapcore.StringType {
				continue
			}
			if sensitive[strings.ToLower(f.Key)] && f.String != "" && !strings.HasPrefix(f.String, "[REDACTED") {
				tb.Errorf("field %q not redacted on %q", f.Key, e.Message)
			}
			if leaks(f.String) {
				tb.Errorf("secret in field %q on %q", f.Key, e.Message)
			}
		}
	}
}

// AssertTraceCorrelation fails tb unless an entry containing msg has a trace_id.
func (t *TestLogger) AssertTraceCorrelation(tb testing.TB, msg string) {
	tb.Helper()
	if _, ok := t.FieldValue(msg, "trace_id"); !ok {
		tb.Errorf("message %q missing trace_id", msg)
	}
}

func (t *TestLogger) dump() string {
	var b strings.Builder
	for _, e := range t.observed.All() {
		fmt.Fprintf(&b, "\n  %s %q %v", e.Level, e.Message, e.ContextMap())
	}
	return b.String()
}
