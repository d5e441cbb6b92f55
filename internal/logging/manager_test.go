package logging

import (
	"bytes"
	"log"
	"os"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		line, level, source, msg string
	}{
		{"[Registry] Discovered 7 tools", LogLevelInfo, "registry", "Discovered 7 tools"},
		{"[Checkpoint] Warning: could not load previous progress", LogLevelWarn, "checkpoint", "Warning: could not load previous progress"},
		{"2026/01/02 15:04:05 [Generate] call failed: timeout", LogLevelError, "generate", "call failed: timeout"},
		{"plain message", LogLevelInfo, "system", "plain message"},
	}
	for _, tc := range tests {
		level, source, msg := parseLine(tc.line)
		if level != tc.level || source != tc.source || msg != tc.msg {
			t.Errorf("parseLine(%q) = (%q, %q, %q), want (%q, %q, %q)",
				tc.line, level, source, msg, tc.level, tc.source, tc.msg)
		}
	}
}

func TestManager_WritesToZap(t *testing.T) {
	core, observed := observer.New(zapcore.DebugLevel)
	m := NewManager(zap.New(core))

	m.Log(LogLevelWarn, "seeds", "reload failed", map[string]interface{}{"path": "seeds.yaml"})

	entries := observed.All()
	if len(entries) != 1 {
		t.Fatalf("got %d zap entries, want 1", len(entries))
	}
	e := entries[0]
	if e.Level != zapcore.WarnLevel || e.Message != "reload failed" {
		t.Errorf("unexpected entry %+v", e)
	}
	fields := e.ContextMap()
	if fields["source"] != "seeds" || fields["path"] != "seeds.yaml" {
		t.Errorf("unexpected fields %v", fields)
	}
}

func TestManager_GetRecent(t *testing.T) {
	m := NewManager(nil)
	m.Log(LogLevelInfo, "a", "first", nil)
	m.Log(LogLevelError, "b", "second", nil)
	m.Log(LogLevelInfo, "a", "third", nil)

	all := m.GetRecent(10, "", "")
	if len(all) != 3 || all[0].Message != "third" {
		t.Fatalf("GetRecent() = %+v", all)
	}
	if got := m.GetRecent(10, LogLevelError, ""); len(got) != 1 || got[0].Message != "second" {
		t.Errorf("level filter = %+v", got)
	}
	if got := m.GetRecent(1, "", "a"); len(got) != 1 || got[0].Message != "third" {
		t.Errorf("source filter with limit = %+v", got)
	}
}

func TestManager_Handlers(t *testing.T) {
	m := NewManager(nil)
	var seen []string
	m.AddHandler(func(e LogEntry) { seen = append(seen, e.Source) })
	m.Log(LogLevelInfo, "dedup", "x", nil)
	if len(seen) != 1 || seen[0] != "dedup" {
		t.Errorf("handler saw %v", seen)
	}
}

func TestInstallLogInterceptor(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger("info", &buf)
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	m := NewManager(logger)
	m.InstallLogInterceptor()
	defer func() {
		log.SetOutput(os.Stderr)
		log.SetFlags(log.LstdFlags)
	}()

	log.Printf("[Scheduler] No workflows left for pattern get>get")
	_ = m.Sync()

	out := buf.String()
	if !strings.Contains(out, "No workflows left for pattern get>get") || !strings.Contains(out, "scheduler") {
		t.Errorf("interceptor output = %q", out)
	}
	if got := m.GetRecent(1, "", "scheduler"); len(got) != 1 {
		t.Errorf("entry not buffered: %+v", got)
	}
}

func TestNewLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger("warn", &buf)
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	NewManager(logger).Log(LogLevelInfo, "x", "hidden", nil)
	if buf.Len() != 0 {
		t.Errorf("info entry written at warn level: %q", buf.String())
	}

	if _, err := NewLogger("loud", nil); err == nil {
		t.Error("expected error for unknown level")
	}
}
