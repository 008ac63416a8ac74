package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/adventurebook/server/internal/adventure"
	"github.com/adventurebook/server/internal/game"
)

// DB wraps database operations
type DB struct {
	conn *sql.DB
	mu   sync.RWMutex
}

// NewDB creates a new database connection
func NewDB(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(); err != nil {
		return nil, err
	}

	db := &DB{conn: conn}

	// Run migrations
	if err := db.migrate(); err != nil {
		return nil, err
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate runs database migrations. Adventures are stored as the raw
// script text and re-parsed on load, so the schema never chases the
// script format.
func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS adventures (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		metadata_text TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS adventure_pages (
		adventure_id TEXT NOT NULL,
		page_id TEXT NOT NULL,
		page_text TEXT NOT NULL,
		PRIMARY KEY (adventure_id, page_id),
		FOREIGN KEY (adventure_id) REFERENCES adventures(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		adventure_id TEXT NOT NULL,
		snapshot_json TEXT NOT NULL,
		game_over INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (adventure_id) REFERENCES adventures(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS session_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		event_json TEXT NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS session_ownership (
		session_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_adventure_pages_adventure_id ON adventure_pages(adventure_id);
	CREATE INDEX IF NOT EXISTS idx_session_events_session_id ON session_events(session_id);
	CREATE INDEX IF NOT EXISTS idx_session_ownership_user_id ON session_ownership(user_id);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// AdventureInfo is a listing entry for a stored adventure
type AdventureInfo struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// SaveAdventure stores an adventure as its raw script text. The pages
// map is keyed by normalized page ID.
func (db *DB) SaveAdventure(id, title, metadataText string, pages map[string]string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO adventures (id, title, metadata_text, created_at, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			metadata_text = excluded.metadata_text,
			updated_at = CURRENT_TIMESTAMP
	`, id, title, metadataText)
	if err != nil {
		return err
	}

	if _, err := tx.Exec("DELETE FROM adventure_pages WHERE adventure_id = ?", id); err != nil {
		return err
	}
	for pageID, text := range pages {
		_, err := tx.Exec(`
			INSERT INTO adventure_pages (adventure_id, page_id, page_text)
			VALUES (?, ?, ?)
		`, id, pageID, text)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// LoadAdventure loads and re-parses a stored adventure
func (db *DB) LoadAdventure(id string) (*adventure.Adventure, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var metadataText string
	err := db.conn.QueryRow(`
		SELECT metadata_text FROM adventures WHERE id = ?
	`, id).Scan(&metadataText)
	if err != nil {
		return nil, err
	}

	adv, err := adventure.ParseMetadata(metadataText)
	if err != nil {
		return nil, fmt.Errorf("adventure %s: %w", id, err)
	}

	rows, err := db.conn.Query(`
		SELECT page_id, page_text FROM adventure_pages WHERE adventure_id = ?
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var pageID, text string
		if err := rows.Scan(&pageID, &text); err != nil {
			return nil, err
		}
		page, err := adventure.ParsePage(text)
		if err != nil {
			return nil, fmt.Errorf("adventure %s page %s: %w", id, pageID, err)
		}
		adv.AddPage(pageID, page)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := adventure.Validate(adv); err != nil {
		return nil, fmt.Errorf("adventure %s: %w", id, err)
	}
	return adv, nil
}

// ListAdventures returns all stored adventures, newest first
func (db *DB) ListAdventures() ([]AdventureInfo, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.Query("SELECT id, title FROM adventures ORDER BY updated_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var infos []AdventureInfo
	for rows.Next() {
		var info AdventureInfo
		if err := rows.Scan(&info.ID, &info.Title); err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}

	return infos, rows.Err()
}

// DeleteAdventure deletes an adventure and all its pages
func (db *DB) DeleteAdventure(id string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.Exec("DELETE FROM adventures WHERE id = ?", id)
	return err
}

// SaveSession persists a session snapshot and its event history
func (db *DB) SaveSession(id, adventureID string, snap game.Snapshot, events []game.Event) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	snapJSON, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO sessions (id, adventure_id, snapshot_json, game_over, created_at, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			snapshot_json = excluded.snapshot_json,
			game_over = excluded.game_over,
			updated_at = CURRENT_TIMESTAMP
	`, id, adventureID, string(snapJSON), boolToInt(snap.GameOver))
	if err != nil {
		return err
	}

	if _, err := tx.Exec("DELETE FROM session_events WHERE session_id = ?", id); err != nil {
		return err
	}
	for i, event := range events {
		eventJSON, err := json.Marshal(event)
		if err != nil {
			return err
		}
		_, err = tx.Exec(`
			INSERT INTO session_events (session_id, seq, event_json)
			VALUES (?, ?, ?)
		`, id, i, string(eventJSON))
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// LoadSession loads a session snapshot and its event history
func (db *DB) LoadSession(id string) (adventureID string, snap game.Snapshot, events []game.Event, err error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var snapJSON string
	err = db.conn.QueryRow(`
		SELECT adventure_id, snapshot_json FROM sessions WHERE id = ?
	`, id).Scan(&adventureID, &snapJSON)
	if err != nil {
		return "", game.Snapshot{}, nil, err
	}
	if err = json.Unmarshal([]byte(snapJSON), &snap); err != nil {
		return "", game.Snapshot{}, nil, err
	}

	rows, err := db.conn.Query(`
		SELECT event_json FROM session_events WHERE session_id = ? ORDER BY seq
	`, id)
	if err != nil {
		return "", game.Snapshot{}, nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var eventJSON string
		if err = rows.Scan(&eventJSON); err != nil {
			return "", game.Snapshot{}, nil, err
		}
		var event game.Event
		if err = json.Unmarshal([]byte(eventJSON), &event); err != nil {
			return "", game.Snapshot{}, nil, err
		}
		events = append(events, event)
	}
	if err = rows.Err(); err != nil {
		return "", game.Snapshot{}, nil, err
	}

	return adventureID, snap, events, nil
}

// SaveSessionOwnership records which user owns a session
func (db *DB) SaveSessionOwnership(sessionID, userID string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.Exec(`
		INSERT OR REPLACE INTO session_ownership (session_id, user_id)
		VALUES (?, ?)
	`, sessionID, userID)
	return err
}

// GetSessionOwner returns the owner of a session
func (db *DB) GetSessionOwner(sessionID string) (string, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var userID string
	err := db.conn.QueryRow(`
		SELECT user_id FROM session_ownership WHERE session_id = ?
	`, sessionID).Scan(&userID)

	if err != nil {
		return "", err
	}
	return userID, nil
}

// IsSessionOwner checks if user owns the session
func (db *DB) IsSessionOwner(sessionID, userID string) (bool, error) {
	owner, err := db.GetSessionOwner(sessionID)
	if err != nil {
		return false, err
	}
	return owner == userID, nil
}

// GetUserSessions returns all sessions owned by a user
func (db *DB) GetUserSessions(userID string) ([]string, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.Query(`
		SELECT session_id FROM session_ownership WHERE user_id = ? ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessionIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		sessionIDs = append(sessionIDs, id)
	}

	return sessionIDs, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
