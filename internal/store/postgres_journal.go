package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/example/marketplace/internal/event"
	_ "github.com/lib/pq"
)

// PostgresJournal is the durable outbox: every envelope the bus publishes
// lands here before dispatch, so restarts can replay missed reactions.
type PostgresJournal struct {
	db *sql.DB
}

func NewPostgresJournal(db *sql.DB) *PostgresJournal {
	return &PostgresJournal{db: db}
}

// Append inserts one envelope. Envelope IDs are primary keys, so an
// accidental double publish fails loudly instead of duplicating.
func (j *PostgresJournal) Append(ctx context.Context, env event.Envelope) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO event_journal (id, event_type, data, created_at)
		 VALUES ($1, $2, $3, $4)`,
		env.ID,
		env.Type,
		[]byte(env.Data),
		env.Timestamp,
	)
	return err
}

// ListSince returns envelopes recorded after the given instant, oldest first
func (j *PostgresJournal) ListSince(ctx context.Context, since time.Time) ([]event.Envelope, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, event_type, data, created_at
		 FROM event_journal
		 WHERE created_at > $1
		 ORDER BY created_at ASC`,
		since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var envelopes []event.Envelope
	for rows.Next() {
		var env event.Envelope
		var data []byte
		if err := rows.Scan(&env.ID, &env.Type, &data, &env.Timestamp); err != nil {
			return nil, err
		}
		env.Data = data
		envelopes = append(envelopes, env)
	}
	return envelopes, rows.Err()
}

// ConnectPostgres opens a pooled connection and ensures the journal table
func ConnectPostgres(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS event_journal (
		id         TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		data       JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS event_journal_created_at_idx
		ON event_journal (created_at)`)
	if err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}
