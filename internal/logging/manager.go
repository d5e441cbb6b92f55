package logging

import (
	"container/ring"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// MaxBufferSize is the maximum number of log entries to keep in memory
	MaxBufferSize = 10000

	// LogLevelDebug represents debug-level logs
	LogLevelDebug = "debug"
	// LogLevelInfo represents info-level logs
	LogLevelInfo = "info"
	// LogLevelWarn represents warning-level logs
	LogLevelWarn = "warn"
	// LogLevelError represents error-level logs
	LogLevelError = "error"
)

// LogEntry represents a single log entry
type LogEntry struct {
	ID        string                 `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Source    string                 `json:"source"`
	Message   string                 `json:"message"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Manager buffers recent log entries and writes them through a zap logger.
type Manager struct {
	mu       sync.RWMutex
	buffer   *ring.Ring
	logger   *zap.Logger
	handlers []func(LogEntry)
}

// NewLogger builds a console zap logger writing to w at the named level.
func NewLogger(level string, w io.Writer) (*zap.Logger, error) {
	lvl := zapcore.InfoLevel
	if level != "" {
		parsed, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
		lvl = parsed
	}
	if w == nil {
		w = os.Stderr
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(w), lvl)
	return zap.New(core), nil
}

// NewManager creates a new logging manager. A nil logger discards output.
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		buffer:   ring.New(MaxBufferSize),
		logger:   logger,
		handlers: make([]func(LogEntry), 0),
	}
}

// Log adds a log entry to the buffer and writes it to the zap sink
func (m *Manager) Log(level, source, message string, metadata map[string]interface{}) {
	entry := LogEntry{
		ID:        fmt.Sprintf("log-%d", time.Now().UnixNano()),
		Timestamp: time.Now(),
		Level:     level,
		Source:    source,
		Message:   message,
		Metadata:  metadata,
	}

	m.mu.Lock()
	m.buffer.Value = entry
	m.buffer = m.buffer.Next()
	handlers := append([]func(LogEntry)(nil), m.handlers...)
	m.mu.Unlock()

	for _, handler := range handlers {
		handler(entry)
	}

	m.write(entry)
}

func (m *Manager) write(entry LogEntry) {
	fields := make([]zap.Field, 0, len(entry.Metadata)+1)
	fields = append(fields, zap.String("source", entry.Source))
	for k, v := range entry.Metadata {
		fields = append(fields, zap.Any(k, v))
	}
	switch entry.Level {
	case LogLevelDebug:
		m.logger.Debug(entry.Message, fields...)
	case LogLevelWarn:
		m.logger.Warn(entry.Message, fields...)
	case LogLevelError:
		m.logger.Error(entry.Message, fields...)
	default:
		m.logger.Info(entry.Message, fields...)
	}
}

// GetRecent returns the most recent log entries from the buffer, newest first
func (m *Manager) GetRecent(limit int, levelFilter, sourceFilter string) []LogEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 || limit > MaxBufferSize {
		limit = 100
	}

	var logs []LogEntry
	m.buffer.Do(func(v interface{}) {
		entry, ok := v.(LogEntry)
		if !ok {
			return
		}
		if levelFilter != "" && entry.Level != levelFilter {
			return
		}
		if sourceFilter != "" && entry.Source != sourceFilter {
			return
		}
		logs = append(logs, entry)
	})

	// Reverse to get newest first
	for i := 0; i < len(logs)/2; i++ {
		logs[i], logs[len(logs)-1-i] = logs[len(logs)-1-i], logs[i]
	}
	if len(logs) > limit {
		logs = logs[:limit]
	}
	return logs
}

// AddHandler registers a handler to be called for each new log entry
func (m *Manager) AddHandler(handler func(LogEntry)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, handler)
}

// Sync flushes the zap sink.
func (m *Manager) Sync() error {
	return m.logger.Sync()
}

// logInterceptWriter implements io.Writer so that Go's standard log package
// output is captured and routed through the logging manager.
type logInterceptWriter struct {
	manager *Manager
}

// Write parses "[Component] message" lines from log.Printf calls.
func (w *logInterceptWriter) Write(p []byte) (n int, err error) {
	level, source, msg := parseLine(string(p))
	w.manager.Log(level, source, msg, nil)
	return len(p), nil
}

// parseLine derives level and source from a standard log line.
func parseLine(line string) (level, source, msg string) {
	msg = strings.TrimSpace(line)
	// Standard log format: "2006/01/02 15:04:05 message"
	if len(msg) > 20 && msg[4] == '/' && msg[7] == '/' && msg[10] == ' ' {
		msg = strings.TrimSpace(msg[20:])
	}

	level = LogLevelInfo
	source = "system"

	lowerMsg := strings.ToLower(msg)
	switch {
	case strings.Contains(lowerMsg, "warn"):
		level = LogLevelWarn
	case strings.Contains(lowerMsg, "error") || strings.Contains(lowerMsg, "fail"):
		level = LogLevelError
	case strings.Contains(lowerMsg, "debug"):
		level = LogLevelDebug
	}

	// "[Registry] message" → source=registry
	if len(msg) > 2 && msg[0] == '[' {
		end := strings.Index(msg, "]")
		if end > 1 {
			source = strings.ToLower(msg[1:end])
			msg = strings.TrimSpace(msg[end+1:])
		}
	}
	return level, source, msg
}

// InstallLogInterceptor redirects Go's standard log package through this manager.
// Call this once at startup after creating the manager.
func (m *Manager) InstallLogInterceptor() {
	log.SetOutput(&logInterceptWriter{manager: m})
	log.SetFlags(0) // zap adds timestamps
}
