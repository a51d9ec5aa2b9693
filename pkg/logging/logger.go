package logging

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level represents log severity
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

var levelRank = map[Level]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// ParseLevel maps a level name to a Level. Empty means info.
func ParseLevel(s string) (Level, error) {
	level := Level(strings.ToLower(strings.TrimSpace(s)))
	if level == "" {
		return LevelInfo, nil
	}
	if _, ok := levelRank[level]; !ok {
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}

// Category represents the subsystem generating the log
type Category string

const (
	CategoryPoll    Category = "poll"
	CategorySite    Category = "site"
	CategoryConfig  Category = "config"
	CategoryAdapter Category = "adapter"
	CategoryCLI     Category = "cli"
)

// Event represents a structured log event
type Event struct {
	Timestamp    time.Time      `json:"timestamp"`
	Level        Level          `json:"level"`
	Category     Category       `json:"category"`
	EventType    string         `json:"type"`
	SessionID    string         `json:"session_id,omitempty"`
	InvocationID string         `json:"invocation_id,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
	Message      string         `json:"message,omitempty"`
}

// Logger writes structured events to a session stream and, for errors, an
// error stream. All methods are safe on a nil *Logger.
type Logger struct {
	sessionID string
	baseDir   string
	out       io.Writer
	errOut    io.Writer
	closers   []io.Closer
	mu        sync.Mutex
	minLevel  Level
}

// NewLogger creates a logger writing sessions/<sessionID>.jsonl and
// errors.jsonl under baseDir.
func NewLogger(baseDir, sessionID string) (*Logger, error) {
	sessionsDir := filepath.Join(baseDir, "sessions")
	if err := os.MkdirAll(sessionsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create sessions directory: %w", err)
	}

	sessionFile, err := os.OpenFile(
		filepath.Join(sessionsDir, sessionID+".jsonl"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND,
		0644,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open session log: %w", err)
	}

	errorFile, err := os.OpenFile(
		filepath.Join(baseDir, "errors.jsonl"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND,
		0644,
	)
	if err != nil {
		sessionFile.Close()
		return nil, fmt.Errorf("failed to open error log: %w", err)
	}

	return &Logger{
		sessionID: sessionID,
		baseDir:   baseDir,
		out:       sessionFile,
		errOut:    errorFile,
		closers:   []io.Closer{sessionFile, errorFile},
		minLevel:  LevelInfo,
	}, nil
}

// NewWriterLogger writes every event as one JSON line to w. Close does not
// close w.
func NewWriterLogger(w io.Writer) *Logger {
	return &Logger{out: w, minLevel: LevelInfo}
}

// SessionPath returns the session log file, or "" for writer loggers.
func (l *Logger) SessionPath() string {
	if l == nil || l.baseDir == "" {
		return ""
	}
	return filepath.Join(l.baseDir, "sessions", l.sessionID+".jsonl")
}

// SetMinLevel sets the minimum log level
func (l *Logger) SetMinLevel(level Level) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.minLevel = level
}

// SetSessionID sets the session ID stamped on subsequent events.
func (l *Logger) SetSessionID(sessionID string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sessionID = sessionID
}

// Log writes an event to appropriate destinations
func (l *Logger) Log(event Event) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.shouldLog(event.Level) {
		return nil
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.SessionID == "" {
		event.SessionID = l.sessionID
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	data = append(data, '\n')

	if l.out != nil {
		if _, err := l.out.Write(data); err != nil {
			return fmt.Errorf("failed to write to session log: %w", err)
		}
	}
	if event.Level == LevelError && l.errOut != nil {
		if _, err := l.errOut.Write(data); err != nil {
			return fmt.Errorf("failed to write to error log: %w", err)
		}
	}
	return nil
}

func (l *Logger) shouldLog(level Level) bool {
	return levelRank[level] >= levelRank[l.minLevel]
}

// Debug logs a debug event
func (l *Logger) Debug(category Category, eventType string, message string, details map[string]any) error {
	return l.Log(Event{Level: LevelDebug, Category: category, EventType: eventType, Message: message, Details: details})
}

// Info logs an info event
func (l *Logger) Info(category Category, eventType string, message string, details map[string]any) error {
	return l.Log(Event{Level: LevelInfo, Category: category, EventType: eventType, Message: message, Details: details})
}

// Warn logs a warning event
func (l *Logger) Warn(category Category, eventType string, message string, details map[string]any) error {
	return l.Log(Event{Level: LevelWarn, Category: category, EventType: eventType, Message: message, Details: details})
}

// Error logs an error event
func (l *Logger) Error(category Category, eventType string, message string, details map[string]any) error {
	return l.Log(Event{Level: LevelError, Category: category, EventType: eventType, Message: message, Details: details})
}

// Close closes the log files owned by the logger.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	var errs []error
	for _, c := range l.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	l.closers = nil
	l.out, l.errOut = nil, nil
	if len(errs) > 0 {
		return fmt.Errorf("errors closing log files: %w", errors.Join(errs...))
	}
	return nil
}

// ReadRecentEvents reads the last count events from a JSONL log. Lines that
// do not decode are skipped.
func ReadRecentEvents(logPath string, count int) ([]Event, error) {
	file, err := os.Open(logPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open log: %w", err)
	}
	defer file.Close()

	var events []Event
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var event Event
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			continue
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read log: %w", err)
	}

	if count >= 0 && len(events) > count {
		events = events[len(events)-count:]
	}
	return events, nil
}
