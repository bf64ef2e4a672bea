package observability

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// EventType defines the category of the log event.
type EventType string

const (
	EventTypePlan      EventType = "plan"
	EventTypeDispatch  EventType = "dispatch"
	EventTypeCommand   EventType = "command"
	EventTypeVerdict   EventType = "verdict"
	EventTypeOutcome   EventType = "outcome"
	EventTypeHeartbeat EventType = "heartbeat"
	EventTypeLLM       EventType = "llm"
)

// Event represents a structured log entry.
type Event struct {
	Type      EventType `json:"type"`
	ChatID    string    `json:"chat_id,omitempty"`
	TaskID    string    `json:"task_id,omitempty"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Logger handles structured logging.
type Logger struct {
	llmLogPath string
	maxSize    int64
}

func NewLogger() *Logger {
	return &Logger{
		llmLogPath: filepath.Join("logs", "llm.jsonl"),
		maxSize:    10 * 1024 * 1024, // 10MB
	}
}

// Log emits a structured JSON event to stdout.
func (l *Logger) Log(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		fmt.Printf("{\"error\": \"failed to marshal event: %v\"}\n", err)
		return
	}
	fmt.Println(string(data))

	if evt.Type == EventTypeLLM {
		l.writeToFile(data)
	}
}

func (l *Logger) writeToFile(data []byte) {
	if err := os.MkdirAll(filepath.Dir(l.llmLogPath), 0755); err != nil {
		log.Printf("failed to create log directory: %v", err)
		return
	}

	// Check size before writing
	info, err := os.Stat(l.llmLogPath)
	if err == nil && info.Size() > l.maxSize {
		l.rotateLogs()
	}

	f, err := os.OpenFile(l.llmLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("failed to open log file: %v", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		log.Printf("failed to write to log file: %v", err)
	}
}

func (l *Logger) rotateLogs() {
	// Simple rotation: keep one .old file
	oldPath := l.llmLogPath + ".old"
	_ = os.Remove(oldPath)
	_ = os.Rename(l.llmLogPath, oldPath)
}

// Helper methods for common events

func (l *Logger) LogPlan(chatID, instructionID, plan string) {
	l.Log(Event{
		Type:   EventTypePlan,
		ChatID: chatID,
		TaskID: instructionID,
		Data:   map[string]string{"plan": plan},
	})
}

func (l *Logger) LogDispatch(chatID, taskID, state, action string) {
	l.Log(Event{
		Type:   EventTypeDispatch,
		ChatID: chatID,
		TaskID: taskID,
		Data: map[string]string{
			"state":  state,
			"action": action,
		},
	})
}

func (l *Logger) LogCommand(chatID, taskID string, cmd any) {
	l.Log(Event{
		Type:   EventTypeCommand,
		ChatID: chatID,
		TaskID: taskID,
		Data:   cmd,
	})
}

func (l *Logger) LogVerdict(chatID, taskID, verdict, reason string) {
	l.Log(Event{
		Type:   EventTypeVerdict,
		ChatID: chatID,
		TaskID: taskID,
		Data: map[string]string{
			"verdict": verdict,
			"reason":  reason,
		},
	})
}

func (l *Logger) LogOutcome(chatID, taskID, status, reason string) {
	l.Log(Event{
		Type:   EventTypeOutcome,
		ChatID: chatID,
		TaskID: taskID,
		Data: map[string]string{
			"status": status,
			"reason": reason,
		},
	})
}

func (l *Logger) LogHeartbeat() {
	l.Log(Event{
		Type: EventTypeHeartbeat,
		Data: map[string]string{"status": "alive"},
	})
}

func (l *Logger) LogLLM(chatID, role string, prompt any, response string, usage any) {
	l.Log(Event{
		Type:   EventTypeLLM,
		ChatID: chatID,
		Data: map[string]any{
			"role":     role,
			"prompt":   prompt,
			"response": response,
			"usage":    usage,
		},
	})
}
