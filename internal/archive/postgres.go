package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ngabriel/parley/internal/session"
)

// PostgresStore persists the roleplay archive in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS roleplay_sessions (
			session_id TEXT PRIMARY KEY,
			book TEXT NOT NULL,
			chapter TEXT NOT NULL,
			profile TEXT NOT NULL,
			transcript JSONB NOT NULL,
			pii_redacted BOOLEAN NOT NULL DEFAULT FALSE,
			started_at TIMESTAMPTZ NOT NULL,
			ended_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE TABLE IF NOT EXISTS roleplay_feedback (
			session_id TEXT PRIMARY KEY REFERENCES roleplay_sessions (session_id),
			summary TEXT NOT NULL,
			scores JSONB NOT NULL,
			suggestions TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_roleplay_sessions_ended ON roleplay_sessions (ended_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) SaveSession(ctx context.Context, record SessionRecord) error {
	if record.EndedAt.IsZero() {
		record.EndedAt = time.Now().UTC()
	}
	transcript, err := json.Marshal(record.Transcript)
	if err != nil {
		return fmt.Errorf("marshal transcript: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO roleplay_sessions (session_id, book, chapter, profile, transcript, pii_redacted, started_at, ended_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (session_id) DO UPDATE SET transcript = EXCLUDED.transcript, ended_at = EXCLUDED.ended_at`,
		record.SessionID,
		record.Book,
		record.Chapter,
		record.Profile,
		transcript,
		record.PIIRedacted,
		record.StartedAt,
		record.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveFeedback(ctx context.Context, record FeedbackRecord) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	scores, err := json.Marshal(record.Scores)
	if err != nil {
		return fmt.Errorf("marshal scores: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO roleplay_feedback (session_id, summary, scores, suggestions, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (session_id) DO UPDATE SET summary = EXCLUDED.summary, scores = EXCLUDED.scores, suggestions = EXCLUDED.suggestions`,
		record.SessionID,
		record.Summary,
		scores,
		record.Suggestions,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save feedback: %w", err)
	}
	return nil
}

func (s *PostgresStore) RecentSessions(ctx context.Context, limit int) ([]SessionRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.pool.Query(ctx,
		`SELECT session_id, book, chapter, profile, transcript, pii_redacted, started_at, ended_at
		 FROM roleplay_sessions ORDER BY ended_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent sessions: %w", err)
	}
	defer rows.Close()

	records := make([]SessionRecord, 0, limit)
	for rows.Next() {
		var r SessionRecord
		var transcript []byte
		if err := rows.Scan(&r.SessionID, &r.Book, &r.Chapter, &r.Profile, &transcript, &r.PIIRedacted, &r.StartedAt, &r.EndedAt); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		if err := json.Unmarshal(transcript, &r.Transcript); err != nil {
			return nil, fmt.Errorf("unmarshal transcript: %w", err)
		}
		if r.Transcript == nil {
			r.Transcript = []session.Turn{}
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session rows: %w", err)
	}

	return records, nil
}

func (s *PostgresStore) FeedbackFor(ctx context.Context, sessionID string) (FeedbackRecord, bool, error) {
	var r FeedbackRecord
	var scores []byte
	err := s.pool.QueryRow(ctx,
		`SELECT session_id, summary, scores, suggestions, created_at
		 FROM roleplay_feedback WHERE session_id = $1`,
		sessionID,
	).Scan(&r.SessionID, &r.Summary, &scores, &r.Suggestions, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return FeedbackRecord{}, false, nil
	}
	if err != nil {
		return FeedbackRecord{}, false, fmt.Errorf("query feedback: %w", err)
	}
	if err := json.Unmarshal(scores, &r.Scores); err != nil {
		return FeedbackRecord{}, false, fmt.Errorf("unmarshal scores: %w", err)
	}
	return r, true, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
