package store

import (
	"database/sql"

	_ "github.com/glebarez/go-sqlite"

	"github.com/GML-FMGroup/cappuccino/internal/agent"
)

// HistoryStore persists task-level outcomes and chat messages per session
// identity. Raw observations never land here; only paths and text.
type HistoryStore struct {
	DB *sql.DB
}

func NewHistoryStore(dbPath string) (*HistoryStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// Create tables if not exist
	queries := []string{
		`CREATE TABLE IF NOT EXISTS outcomes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id TEXT,
			instruction TEXT,
			task_goal TEXT,
			status TEXT,
			detail TEXT,
			timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id TEXT,
			role TEXT,
			content TEXT,
			timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
	}
	for _, q := range queries {
		_, err = db.Exec(q)
		if err != nil {
			return nil, err
		}
	}

	return &HistoryStore{DB: db}, nil
}

func (h *HistoryStore) AddTaskRecord(chatID string, rec agent.TaskRecord) error {
	query := `INSERT INTO outcomes (chat_id, instruction, task_goal, status, detail) VALUES (?, ?, ?, ?, ?)`
	_, err := h.DB.Exec(query, chatID, rec.Instruction, rec.TaskGoal, rec.Status, rec.Detail)
	return err
}

func (h *HistoryStore) RecentRecords(chatID string, limit int) ([]agent.TaskRecord, error) {
	query := `SELECT instruction, task_goal, status, detail FROM outcomes WHERE chat_id = ? ORDER BY timestamp DESC, id DESC LIMIT ?`
	rows, err := h.DB.Query(query, chatID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []agent.TaskRecord
	for rows.Next() {
		var rec agent.TaskRecord
		if err := rows.Scan(&rec.Instruction, &rec.TaskGoal, &rec.Status, &rec.Detail); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}

	// Reverse to get chronological order
	for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
		recs[i], recs[j] = recs[j], recs[i]
	}

	return recs, rows.Err()
}

func (h *HistoryStore) AddMessage(chatID string, role string, content string) error {
	query := `INSERT INTO messages (chat_id, role, content) VALUES (?, ?, ?)`
	_, err := h.DB.Exec(query, chatID, role, content)
	return err
}

func (h *HistoryStore) Close() error {
	return h.DB.Close()
}
