package report

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func readEvents(t *testing.T, path string) []Event {
	t.Helper()
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("Failed to open log file: %v", err)
	}
	defer file.Close()

	var events []Event
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var decoded Event
		if err := json.Unmarshal(scanner.Bytes(), &decoded); err != nil {
			t.Fatalf("Failed to decode line %d: %v", len(events)+1, err)
		}
		events = append(events, decoded)
	}
	return events
}

func TestNewEventLogger(t *testing.T) {
	tmpDir := t.TempDir()

	logger, err := NewEventLogger(filepath.Join(tmpDir, "artifacts"), LevelDebug)
	if err != nil {
		t.Fatalf("NewEventLogger failed: %v", err)
	}
	defer logger.Close()

	if _, err := os.Stat(logger.Path()); os.IsNotExist(err) {
		t.Errorf("Event log file was not created at %s", logger.Path())
	}

	filename := filepath.Base(logger.Path())
	if len(filename) != len("events-20060102-150405.jsonl") {
		t.Errorf("Event log filename format incorrect: %s", filename)
	}
}

func TestEventLogger_Helpers(t *testing.T) {
	logger, err := NewEventLogger(t.TempDir(), LevelDebug)
	if err != nil {
		t.Fatalf("NewEventLogger failed: %v", err)
	}

	logger.LogExtract(11202, "/songs/11202.osz", "11202_bg.jpg", 2048)
	logger.LogIndex("11202_bg.jpg", "gradient-16", 15*time.Millisecond)
	logger.LogSkip(11203, "/songs/11203.osz", "", "no usable difficulty")
	logger.LogSearch("req-1", 10, 3, 40*time.Millisecond)
	logger.LogError(EventIndex, "11204_bg.jpg", errors.New("decode failed"))
	logger.Close()

	events := readEvents(t, logger.Path())
	if len(events) != 5 {
		t.Fatalf("Expected 5 events, got %d", len(events))
	}

	if events[0].Event != EventExtract || events[0].SetID != 11202 || events[0].Identity != "11202_bg.jpg" || events[0].Bytes != 2048 {
		t.Errorf("unexpected extract event %+v", events[0])
	}
	if events[1].Extra["hash"] != "gradient-16" || events[1].Duration != 15 {
		t.Errorf("unexpected index event %+v", events[1])
	}
	if events[2].Level != LevelWarning || events[2].Reason != "no usable difficulty" {
		t.Errorf("unexpected skip event %+v", events[2])
	}
	if events[3].Extra["k"] != "10" || events[3].Extra["results"] != "3" {
		t.Errorf("unexpected search event %+v", events[3])
	}
	if events[4].Level != LevelError || events[4].Reason != "index" || events[4].Error != "decode failed" {
		t.Errorf("unexpected error event %+v", events[4])
	}
	for i, e := range events {
		if e.Timestamp.IsZero() {
			t.Errorf("event %d: timestamp not set", i)
		}
	}
}

func TestEventLogger_MinLevel(t *testing.T) {
	logger, err := NewEventLogger(t.TempDir(), LevelInfo)
	if err != nil {
		t.Fatalf("NewEventLogger failed: %v", err)
	}

	logger.LogIndex("1_bg.jpg", "gradient-16", time.Millisecond) // debug, dropped
	logger.LogExtract(1, "/songs/1.osz", "1_bg.jpg", 10)
	logger.Close()

	events := readEvents(t, logger.Path())
	if len(events) != 1 || events[0].Event != EventExtract {
		t.Errorf("Expected only the extract event, got %+v", events)
	}
}

func TestEventLogger_ConcurrentWrites(t *testing.T) {
	logger, err := NewEventLogger(t.TempDir(), LevelDebug)
	if err != nil {
		t.Fatalf("NewEventLogger failed: %v", err)
	}

	const numGoroutines = 10
	const eventsPerGoroutine = 20

	var wg sync.WaitGroup
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < eventsPerGoroutine; j++ {
				if err := logger.LogExtract(id, "/songs/x.osz", "x_bg.jpg", int64(j)); err != nil {
					t.Errorf("Concurrent log failed: %v", err)
				}
			}
		}(i)
	}
	wg.Wait()
	logger.Close()

	if n := len(readEvents(t, logger.Path())); n != numGoroutines*eventsPerGoroutine {
		t.Errorf("Expected %d events, got %d", numGoroutines*eventsPerGoroutine, n)
	}
}

func TestEventLogger_NullLogger(t *testing.T) {
	logger := NullLogger()

	if err := logger.LogExtract(1, "/p", "1_bg.jpg", 1); err != nil {
		t.Errorf("NullLogger.LogExtract should not return error, got: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("NullLogger.Close should not return error, got: %v", err)
	}
	if logger.Path() != "" {
		t.Errorf("NullLogger.Path should return empty string, got: %s", logger.Path())
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("warning") != LevelWarning || ParseLevel("bogus") != LevelInfo {
		t.Error("ParseLevel returned unexpected levels")
	}
}
