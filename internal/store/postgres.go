package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/peykchat/peyk/internal/models"
)

// PostgresStore is the shared-database EventStore backend, for deployments
// where several engine instances sync into one log.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	store := &PostgresStore{pool: pool}

	if err := store.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist. The seq column gives the
// tie-break insertion order that SQLite gets from rowid.
func (s *PostgresStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS processed_events (
		id TEXT PRIMARY KEY,
		seen_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		seq BIGSERIAL,
		sender TEXT NOT NULL,
		recipient TEXT NOT NULL,
		text TEXT NOT NULL,
		reply_to TEXT NOT NULL DEFAULT '',
		timestamp TEXT NOT NULL,
		edited BOOLEAN NOT NULL DEFAULT FALSE
	);

	CREATE TABLE IF NOT EXISTS accounts (
		username TEXT PRIMARY KEY,
		password_hash TEXT NOT NULL,
		admin BOOLEAN NOT NULL DEFAULT FALSE
	);

	CREATE TABLE IF NOT EXISTS presence (
		username TEXT PRIMARY KEY,
		last_seen DOUBLE PRECISION NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_messages_recipient ON messages(recipient);
	CREATE INDEX IF NOT EXISTS idx_messages_pair ON messages(sender, recipient);
	`

	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// PutMessage inserts a message iff no row with the same id exists.
func (s *PostgresStore) PutMessage(ctx context.Context, msg *models.Message) (bool, error) {
	defer observe("put_message")()

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO messages (id, sender, recipient, text, reply_to, timestamp, edited)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`, msg.ID, msg.Sender, msg.Recipient, msg.Text, msg.ReplyTo, msg.Timestamp, msg.Edited)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// QueryConversation returns the conversation's messages ordered by
// timestamp ascending, ties broken by insertion order.
func (s *PostgresStore) QueryConversation(ctx context.Context, conversationID, self string) ([]models.Message, error) {
	defer observe("query_conversation")()

	var rows pgx.Rows
	var err error

	if conversationID == models.GlobalRoom {
		rows, err = s.pool.Query(ctx, `
			SELECT id, sender, recipient, text, reply_to, timestamp, edited
			FROM messages
			WHERE recipient = $1
			ORDER BY timestamp ASC, seq ASC
		`, models.GlobalRoom)
	} else {
		rows, err = s.pool.Query(ctx, `
			SELECT id, sender, recipient, text, reply_to, timestamp, edited
			FROM messages
			WHERE (sender = $1 AND recipient = $2) OR (sender = $2 AND recipient = $1)
			ORDER BY timestamp ASC, seq ASC
		`, self, conversationID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		var msg models.Message
		err := rows.Scan(
			&msg.ID,
			&msg.Sender,
			&msg.Recipient,
			&msg.Text,
			&msg.ReplyTo,
			&msg.Timestamp,
			&msg.Edited,
		)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

// MarkProcessed records an event id as applied. Idempotent.
func (s *PostgresStore) MarkProcessed(ctx context.Context, eventID string) error {
	defer observe("mark_processed")()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO processed_events (id) VALUES ($1) ON CONFLICT (id) DO NOTHING
	`, eventID)
	return err
}

// IsProcessed reports whether an event id has been applied.
func (s *PostgresStore) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	defer observe("is_processed")()

	var one int
	err := s.pool.QueryRow(ctx, `
		SELECT 1 FROM processed_events WHERE id = $1
	`, eventID).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// PruneProcessed removes processed-event markers seen before the cutoff.
func (s *PostgresStore) PruneProcessed(ctx context.Context, olderThan time.Time) (int64, error) {
	defer observe("prune_processed")()

	tag, err := s.pool.Exec(ctx, `
		DELETE FROM processed_events WHERE seen_at < $1
	`, olderThan.UTC())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ApplyEvents applies one fetch cycle in a single transaction.
func (s *PostgresStore) ApplyEvents(ctx context.Context, events []models.Event, now time.Time) (ApplyResult, error) {
	defer observe("apply_events")()

	var result ApplyResult

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return result, err
	}
	defer tx.Rollback(ctx)

	for i := range events {
		ev := &events[i]

		var one int
		err := tx.QueryRow(ctx, `SELECT 1 FROM processed_events WHERE id = $1`, ev.ID).Scan(&one)
		if err == nil {
			result.Duplicates++
			continue
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return ApplyResult{}, err
		}

		if msg, ok := ev.Message(); ok {
			tag, err := tx.Exec(ctx, `
				INSERT INTO messages (id, sender, recipient, text, reply_to, timestamp)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (id) DO NOTHING
			`, msg.ID, msg.Sender, msg.Recipient, msg.Text, msg.ReplyTo, msg.Timestamp)
			if err != nil {
				return ApplyResult{}, err
			}
			if tag.RowsAffected() > 0 {
				result.NewMessages++
			}

			_, err = tx.Exec(ctx, `
				INSERT INTO presence (username, last_seen) VALUES ($1, $2)
				ON CONFLICT (username) DO UPDATE SET last_seen = EXCLUDED.last_seen
			`, ev.Username, unixSeconds(now))
			if err != nil {
				return ApplyResult{}, err
			}
		} else {
			result.Ignored++
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO processed_events (id) VALUES ($1) ON CONFLICT (id) DO NOTHING
		`, ev.ID); err != nil {
			return ApplyResult{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return ApplyResult{}, err
	}
	return result, nil
}

// TouchPresence upserts a user's last-seen timestamp.
func (s *PostgresStore) TouchPresence(ctx context.Context, username string, lastSeen time.Time) error {
	defer observe("touch_presence")()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO presence (username, last_seen) VALUES ($1, $2)
		ON CONFLICT (username) DO UPDATE SET last_seen = EXCLUDED.last_seen
	`, username, unixSeconds(lastSeen))
	return err
}

// ListPresence returns known usernames, most recently seen first.
func (s *PostgresStore) ListPresence(ctx context.Context, exclude string) ([]string, error) {
	defer observe("list_presence")()

	rows, err := s.pool.Query(ctx, `
		SELECT username FROM presence WHERE username != $1 ORDER BY last_seen DESC
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
func (s *PostgresStore) GetAccount(ctx context.Context, username string) (*models.Account, error) {
	defer observe("get_account")()

	account := &models.Account{}
	err := s.pool.QueryRow(ctx, `
		SELECT username, password_hash, admin FROM accounts WHERE username = $1
	`, username).Scan(&account.Username, &account.PasswordHash, &account.Admin)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return account, nil
}

// CreateAccount inserts an account if the username is free.
func (s *PostgresStore) CreateAccount(ctx context.Context, username, passwordHash string, admin bool) error {
	defer observe("create_account")()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO accounts (username, password_hash, admin) VALUES ($1, $2, $3)
		ON CONFLICT (username) DO NOTHING
	`, username, passwordHash, admin)
	return err
}
