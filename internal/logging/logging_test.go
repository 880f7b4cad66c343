package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func TestNewLoggerLevels(t *testing.T) {
	tests := []struct {
		name    string
		level   log.Level
		logFunc func(*log.Logger)
		wantLog bool
	}{
		{"info at info level", log.InfoLevel, func(l *log.Logger) { l.Info("test") }, true},
		{"debug at info level", log.InfoLevel, func(l *log.Logger) { l.Debug("test") }, false},
		{"debug at debug level", log.DebugLevel, func(l *log.Logger) { l.Debug("test") }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.logFunc(New(&buf, tt.level))
			if got := buf.Len() > 0; got != tt.wantLog {
				t.Errorf("logged = %v, want %v", got, tt.wantLog)
			}
		})
	}
}

func TestContextRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, log.InfoLevel)
	ctx := WithLogger(context.Background(), l)

	if got := FromContext(ctx); got != l {
		t.Error("FromContext() did not return the attached logger")
	}
	if got := FromContext(context.Background()); got != log.Default() {
		t.Error("FromContext() without logger should return log.Default()")
	}
}

func TestProgressDone(t *testing.T) {
	var buf bytes.Buffer
	p := Start(New(&buf, log.InfoLevel))
	p.Done("Built demo")

	if !strings.Contains(buf.String(), "Built demo (") {
		t.Errorf("output = %q, want elapsed suffix", buf.String())
	}
}
