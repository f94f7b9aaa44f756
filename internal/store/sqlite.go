package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/peykchat/peyk/internal/models"
)

// SQLiteStore is the default embedded EventStore backend.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/peyk.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/peyk.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	// Initialize schema
	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS processed_events (
		id TEXT PRIMARY KEY,
		seen_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		sender TEXT NOT NULL,
		recipient TEXT NOT NULL,
		text TEXT NOT NULL,
		reply_to TEXT DEFAULT '',
		timestamp TEXT NOT NULL,
		edited INTEGER DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS accounts (
		username TEXT PRIMARY KEY,
		password_hash TEXT NOT NULL,
		admin INTEGER DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS presence (
		username TEXT PRIMARY KEY,
		last_seen REAL NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_messages_recipient ON messages(recipient);
	CREATE INDEX IF NOT EXISTS idx_messages_pair ON messages(sender, recipient);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// PutMessage inserts a message iff no row with the same id exists.
// It returns whether a new row was created.
func (s *SQLiteStore) PutMessage(ctx context.Context, msg *models.Message) (bool, error) {
	defer observe("put_message")()

	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO messages (id, sender, recipient, text, reply_to, timestamp, edited)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.Sender, msg.Recipient, msg.Text, msg.ReplyTo, msg.Timestamp, boolToInt(msg.Edited))
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// QueryConversation returns the conversation's messages ordered by
// timestamp ascending, ties broken by insertion order.
func (s *SQLiteStore) QueryConversation(ctx context.Context, conversationID, self string) ([]models.Message, error) {
	defer observe("query_conversation")()

	var rows *sql.Rows
	var err error

	if conversationID == models.GlobalRoom {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, sender, recipient, text, reply_to, timestamp, edited
			FROM messages
			WHERE recipient = ?
			ORDER BY timestamp ASC, rowid ASC
		`, models.GlobalRoom)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, sender, recipient, text, reply_to, timestamp, edited
			FROM messages
			WHERE (sender = ? AND recipient = ?) OR (sender = ? AND recipient = ?)
			ORDER BY timestamp ASC, rowid ASC
		`, self, conversationID, conversationID, self)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMessages(rows)
}

// MarkProcessed records an event id as applied. Idempotent.
func (s *SQLiteStore) MarkProcessed(ctx context.Context, eventID string) error {
	defer observe("mark_processed")()

	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO processed_events (id) VALUES (?)
	`, eventID)
	return err
}

// IsProcessed reports whether an event id has been applied.
func (s *SQLiteStore) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	defer observe("is_processed")()

	var one int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM processed_events WHERE id = ?
	`, eventID).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// PruneProcessed removes processed-event markers seen before the cutoff.
func (s *SQLiteStore) PruneProcessed(ctx context.Context, olderThan time.Time) (int64, error) {
	defer observe("prune_processed")()

	// seen_at defaults to CURRENT_TIMESTAMP, a "YYYY-MM-DD HH:MM:SS" UTC
	// string; bind the cutoff in the same shape so comparison is lexical.
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM processed_events WHERE seen_at < ?
	`, olderThan.UTC().Format("2006-01-02 15:04:05"))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ApplyEvents applies one fetch cycle in a single transaction, so readers
// see all of the cycle's writes or none of them.
func (s *SQLiteStore) ApplyEvents(ctx context.Context, events []models.Event, now time.Time) (ApplyResult, error) {
	defer observe("apply_events")()

	var result ApplyResult

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return result, err
	}
	defer tx.Rollback()

	for i := range events {
		ev := &events[i]

		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM processed_events WHERE id = ?`, ev.ID).Scan(&one)
		if err == nil {
			result.Duplicates++
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return ApplyResult{}, err
		}

		if msg, ok := ev.Message(); ok {
			res, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO messages (id, sender, recipient, text, reply_to, timestamp, edited)
				VALUES (?, ?, ?, ?, ?, ?, 0)
			`, msg.ID, msg.Sender, msg.Recipient, msg.Text, msg.ReplyTo, msg.Timestamp)
			if err != nil {
				return ApplyResult{}, err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return ApplyResult{}, err
			}
			if n > 0 {
				result.NewMessages++
			}

			_, err = tx.ExecContext(ctx, `
				INSERT OR REPLACE INTO presence (username, last_seen) VALUES (?, ?)
			`, ev.Username, unixSeconds(now))
			if err != nil {
				return ApplyResult{}, err
			}
		} else {
			result.Ignored++
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO processed_events (id) VALUES (?)
		`, ev.ID); err != nil {
			return ApplyResult{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return ApplyResult{}, err
	}
	return result, nil
}

// TouchPresence upserts a user's last-seen timestamp.
func (s *SQLiteStore) TouchPresence(ctx context.Context, username string, lastSeen time.Time) error {
	defer observe("touch_presence")()

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO presence (username, last_seen) VALUES (?, ?)
	`, username, unixSeconds(lastSeen))
	return err
}

// ListPresence returns known usernames, most recently seen first.
func (s *SQLiteStore) ListPresence(ctx context.Context, exclude string) ([]string, error) {
	defer observe("list_presence")()

	rows, err := s.db.QueryContext(ctx, `
		SELECT username FROM presence WHERE username != ? ORDER BY last_seen DESC
	`, exclude)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// GetAccount retrieves an account by username. Returns nil when absent.
func (s *SQLiteStore) GetAccount(ctx context.Context, username string) (*models.Account, error) {
	defer observe("get_account")()

	account := &models.Account{}
	var adminInt int
	err := s.db.QueryRowContext(ctx, `
		SELECT username, password_hash, admin FROM accounts WHERE username = ?
	`, username).Scan(&account.Username, &account.PasswordHash, &adminInt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	account.Admin = adminInt == 1
	return account, nil
}

// CreateAccount inserts an account if the username is free. Inserting an
// existing username is a no-op.
func (s *SQLiteStore) CreateAccount(ctx context.Context, username, passwordHash string, admin bool) error {
	defer observe("create_account")()

	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO accounts (username, password_hash, admin) VALUES (?, ?, ?)
	`, username, passwordHash, boolToInt(admin))
	return err
}

func scanMessages(rows *sql.Rows) ([]models.Message, error) {
	var msgs []models.Message
	for rows.Next() {
		var msg models.Message
		var editedInt int
		err := rows.Scan(
			&msg.ID,
			&msg.Sender,
			&msg.Recipient,
			&msg.Text,
			&msg.ReplyTo,
			&msg.Timestamp,
			&editedInt,
		)
		if err != nil {
			return nil, err
		}
		msg.Edited = editedInt == 1
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

// unixSeconds converts a time to fractional wall-clock seconds, the
// presence table's last_seen representation.
func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
