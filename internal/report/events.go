package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// EventType represents the type of event
type EventType string

const (
	EventExtract EventType = "extract"
	EventIndex   EventType = "index"
	EventSkip    EventType = "skip"
	EventSearch  EventType = "search"
	EventError   EventType = "error"
)

// EventLevel represents the severity level
type EventLevel string

const (
	LevelDebug   EventLevel = "debug"
	LevelInfo    EventLevel = "info"
	LevelWarning EventLevel = "warning"
	LevelError   EventLevel = "error"
)

var levelPriority = map[EventLevel]int{
	LevelDebug:   0,
	LevelInfo:    1,
	LevelWarning: 2,
	LevelError:   3,
}

// ParseLevel maps a level name to an EventLevel, defaulting to info
func ParseLevel(name string) EventLevel {
	lvl := EventLevel(name)
	if _, ok := levelPriority[lvl]; ok {
		return lvl
	}
	return LevelInfo
}

// Event is one line of the JSONL audit trail
type Event struct {
	Timestamp time.Time         `json:"ts"`
	Level     EventLevel        `json:"level"`
	Event     EventType         `json:"event"`
	SetID     int               `json:"set_id,omitempty"`
	Identity  string            `json:"identity,omitempty"`
	SrcPath   string            `json:"src_path,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	Bytes     int64             `json:"bytes,omitempty"`
	Duration  int64             `json:"duration_ms,omitempty"`
	Error     string            `json:"error,omitempty"`
	Extra     map[string]string `json:"extra,omitempty"`
}

// EventLogger writes events to a JSONL file. A nil logger discards everything.
type EventLogger struct {
	file     *os.File
	encoder  *json.Encoder
	mu       sync.Mutex
	path     string
	minLevel EventLevel
}

// NewEventLogger creates outputDir/events-<timestamp>.jsonl.
// Events below minLevel are dropped.
func NewEventLogger(outputDir string, minLevel EventLevel) (*EventLogger, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	path := filepath.Join(outputDir, fmt.Sprintf("events-%s.jsonl", time.Now().Format("20060102-150405")))
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create event log: %w", err)
	}

	return &EventLogger{
		file:     file,
		encoder:  json.NewEncoder(file),
		path:     path,
		minLevel: minLevel,
	}, nil
}

// Log writes an event
func (l *EventLogger) Log(event *Event) error {
	if l == nil || l.file == nil {
		return nil
	}
	if levelPriority[event.Level] < levelPriority[l.minLevel] {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if err := l.encoder.Encode(event); err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	return nil
}

// LogExtract records a background written to the content store
func (l *EventLogger) LogExtract(setID int, srcPath, identity string, size int64) error {
	return l.Log(&Event{
		Level:    LevelInfo,
		Event:    EventExtract,
		SetID:    setID,
		SrcPath:  srcPath,
		Identity: identity,
		Bytes:    size,
	})
}

// LogIndex records a fingerprint computed for a stored image
func (l *EventLogger) LogIndex(identity, algorithm string, duration time.Duration) error {
	return l.Log(&Event{
		Level:    LevelDebug,
		Event:    EventIndex,
		Identity: identity,
		Duration: duration.Milliseconds(),
		Extra:    map[string]string{"hash": algorithm},
	})
}

// LogSkip records a unit of work that was skipped on purpose
func (l *EventLogger) LogSkip(setID int, srcPath, identity, reason string) error {
	return l.Log(&Event{
		Level:    LevelWarning,
		Event:    EventSkip,
		SetID:    setID,
		SrcPath:  srcPath,
		Identity: identity,
		Reason:   reason,
	})
}

// LogSearch records a served query
func (l *EventLogger) LogSearch(requestID string, k, results int, duration time.Duration) error {
	return l.Log(&Event{
		Level:    LevelInfo,
		Event:    EventSearch,
		Duration: duration.Milliseconds(),
		Extra: map[string]string{
			"request_id": requestID,
			"k":          strconv.Itoa(k),
			"results":    strconv.Itoa(results),
		},
	})
}

// LogError records a failure during the given stage
func (l *EventLogger) LogError(stage EventType, srcPath string, err error) error {
	return l.Log(&Event{
		Level:   LevelError,
		Event:   EventError,
		SrcPath: srcPath,
		Reason:  string(stage),
		Error:   err.Error(),
	})
}

// Close closes the event log file
func (l *EventLogger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// Path returns the path to the event log file
func (l *EventLogger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// NullLogger returns a no-op event logger
func NullLogger() *EventLogger {
	return nil
}
