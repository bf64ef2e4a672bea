package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/GML-FMGroup/cappuccino/internal/agent"
)

func newTestStore(t *testing.T) *HistoryStore {
	t.Helper()
	tempDir, err := os.MkdirTemp("", "history_test")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	h, err := NewHistoryStore(filepath.Join(tempDir, "history.db"))
	if err != nil {
		t.Fatalf("NewHistoryStore failed: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return h
}

func TestHistoryStore_TaskRecords(t *testing.T) {
	h := newTestStore(t)

	records := []agent.TaskRecord{
		{Instruction: "open calculator", TaskGoal: "open the calculator app", Status: "done"},
		{Instruction: "open calculator", TaskGoal: "type 2+2", Status: "done"},
		{Instruction: "open calculator", TaskGoal: "press equals", Status: "failed", Detail: "button not found"},
	}
	for _, rec := range records {
		if err := h.AddTaskRecord("chat1", rec); err != nil {
			t.Fatalf("AddTaskRecord failed: %v", err)
		}
	}
	if err := h.AddTaskRecord("chat2", agent.TaskRecord{TaskGoal: "other session", Status: "done"}); err != nil {
		t.Fatal(err)
	}

	recs, err := h.RecentRecords("chat1", 10)
	if err != nil {
		t.Fatalf("RecentRecords failed: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(recs))
	}
	// Chronological order: oldest first.
	if recs[0].TaskGoal != "open the calculator app" || recs[2].TaskGoal != "press equals" {
		t.Errorf("Records out of order: %+v", recs)
	}
	if recs[2].Detail != "button not found" {
		t.Errorf("Detail not persisted: %+v", recs[2])
	}
}

func TestHistoryStore_LimitKeepsNewest(t *testing.T) {
	h := newTestStore(t)

	goals := []string{"first", "second", "third", "fourth"}
	for _, g := range goals {
		if err := h.AddTaskRecord("chat1", agent.TaskRecord{TaskGoal: g, Status: "done"}); err != nil {
			t.Fatal(err)
		}
	}

	recs, err := h.RecentRecords("chat1", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(recs))
	}
	// The newest two, still in chronological order.
	if recs[0].TaskGoal != "third" || recs[1].TaskGoal != "fourth" {
		t.Errorf("Limit should keep the newest records: %+v", recs)
	}
}

func TestHistoryStore_EmptySession(t *testing.T) {
	h := newTestStore(t)

	recs, err := h.RecentRecords("nobody", 10)
	if err != nil {
		t.Fatalf("RecentRecords failed: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("Expected no records, got %d", len(recs))
	}
}

func TestHistoryStore_Messages(t *testing.T) {
	h := newTestStore(t)

	if err := h.AddMessage("chat1", "user", "open calculator"); err != nil {
		t.Fatalf("AddMessage failed: %v", err)
	}
	if err := h.AddMessage("chat1", "assistant", "Done."); err != nil {
		t.Fatalf("AddMessage failed: %v", err)
	}

	var count int
	if err := h.DB.QueryRow(`SELECT COUNT(*) FROM messages WHERE chat_id = ?`, "chat1").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("Expected 2 messages, got %d", count)
	}
}
