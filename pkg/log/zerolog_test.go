package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	return m
}

func TestZerologAdapter_Fields(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Format: "json", Out: &buf, Level: "debug"})

	l.Info("part saved",
		String("range", "[0 - 128]"),
		Int64("bytes", 42),
		Bool("empty", false),
		Duration("took", time.Second),
		Err(errors.New("boom")),
	)

	m := decode(t, &buf)
	if m["message"] != "part saved" {
		t.Errorf("message = %v, want part saved", m["message"])
	}
	if m["range"] != "[0 - 128]" {
		t.Errorf("range = %v", m["range"])
	}
	if m["bytes"] != float64(42) {
		t.Errorf("bytes = %v, want 42", m["bytes"])
	}
	if m["error"] != "boom" {
		t.Errorf("error = %v, want boom", m["error"])
	}
}

func TestZerologAdapter_Level(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Format: "json", Out: &buf, Level: "warn"})

	l.Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("info written at warn level: %q", buf.String())
	}
	l.Warn("shown")
	if buf.Len() == 0 {
		t.Error("warn not written at warn level")
	}
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	l := With(New(Options{Format: "json", Out: &buf}), String("tenant", "Adams"))

	l.Info("hello", Int("n", 1))

	m := decode(t, &buf)
	if m["tenant"] != "Adams" {
		t.Errorf("tenant = %v, want Adams", m["tenant"])
	}
}

type recordingLogger struct {
	fields []Field
}

func (r *recordingLogger) Debug(msg string, fields ...Field) {}
func (r *recordingLogger) Warn(msg string, fields ...Field)  {}
func (r *recordingLogger) Error(msg string, fields ...Field) {}

func (r *recordingLogger) Info(msg string, fields ...Field) {
	r.fields = append(r.fields, fields...)
}

func TestWith_Wrapper(t *testing.T) {
	rec := &recordingLogger{}
	l := With(rec, String("run_id", "x"))

	l.Info("msg", Int("n", 2))

	if len(rec.fields) != 2 || rec.fields[0].Key != "run_id" || rec.fields[1].Key != "n" {
		t.Errorf("fields = %+v, want run_id then n", rec.fields)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"INFO", zerolog.InfoLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"bogus", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
