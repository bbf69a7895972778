package publisher

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	_ "modernc.org/sqlite"

	"github.com/becomeliminal/nim-autopilot/core"
)

// Entry is one journaled activity.
type Entry struct {
	ID          int64
	PostType    core.ActivityType
	Activity    core.Activity
	PublishedAt time.Time
}

// Journal keeps an append-only local copy of every activity in SQLite.
// Rows are only ever inserted.
type Journal struct {
	db  *sql.DB
	now func() time.Time
}

// OpenJournal opens (or creates) the journal database at path.
func OpenJournal(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer keeps inserts ordered.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	createSQL := `CREATE TABLE IF NOT EXISTS activities (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		post_type TEXT NOT NULL,
		cycle_id TEXT NOT NULL,
		content TEXT NOT NULL,
		published_at DATETIME NOT NULL
	)`
	if _, err := db.Exec(createSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	return &Journal{db: db, now: time.Now}, nil
}

// Publish implements Publisher.
func (j *Journal) Publish(ctx context.Context, postType core.ActivityType, activity *core.Activity) error {
	if activity == nil {
		return fmt.Errorf("journal %s: nil activity", postType)
	}
	content, err := json.Marshal(activity)
	if err != nil {
		return fmt.Errorf("marshal activity: %w", err)
	}

	_, err = j.db.ExecContext(ctx,
		`INSERT INTO activities (post_type, cycle_id, content, published_at) VALUES (?, ?, ?, ?)`,
		string(postType), activity.CycleID, string(content), j.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("journal %s: %w", postType, err)
	}
	log.Printf("[JOURNAL] recorded %s (cycle %s)", postType, activity.CycleID)
	return nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, post_type, content, published_at FROM activities ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var postType, content, at string
		if err := rows.Scan(&e.ID, &postType, &content, &at); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(content), &e.Activity); err != nil {
			return nil, fmt.Errorf("decode entry %d: %w", e.ID, err)
		}
		e.PostType = core.ActivityType(postType)
		e.PublishedAt, _ = time.Parse(time.RFC3339Nano, at)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}
