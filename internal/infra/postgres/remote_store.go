package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"chapter-quiz-service/internal/domain"
)

// RemoteStore keeps attempt history in the quiz_attempts table.
type RemoteStore struct {
	pool *pgxpool.Pool
}

func NewRemoteStore(pool *pgxpool.Pool) *RemoteStore {
	return &RemoteStore{pool: pool}
}

const insertAttemptSQL = `
INSERT INTO quiz_attempts (id, identity, email, chapter, score, total, percentage, hints_used, responses, submitted_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (id) DO NOTHING`

func (s *RemoteStore) Insert(ctx context.Context, a domain.RemoteAttempt) error {
	return insertAttempt(ctx, s.pool, a)
}

// pgxExecer is satisfied by both the pool and a transaction.
type pgxExecer interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

func insertAttempt(ctx context.Context, q pgxExecer, a domain.RemoteAttempt) error {
	responses := a.Responses
	if responses == nil {
		responses = []domain.QuestionResponse{}
	}
	raw, err := json.Marshal(responses)
	if err != nil {
		return fmt.Errorf("marshal responses: %w", err)
	}
	_, err = q.Exec(ctx, insertAttemptSQL,
		a.ID, a.Identity, a.Email, a.Chapter, a.Score, a.Total, a.Percentage, a.HintsUsed, string(raw), a.SubmittedAt)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

const bestAttemptsSQL = `
SELECT DISTINCT ON (chapter)
       id, identity, email, chapter, score, total, percentage, hints_used, responses, submitted_at
FROM quiz_attempts
WHERE identity = $1
ORDER BY chapter, percentage DESC, submitted_at ASC`

func (s *RemoteStore) Best(ctx context.Context, identity string) (domain.RemoteRecord, bool, error) {
	rows, err := s.pool.Query(ctx, bestAttemptsSQL, identity)
	if err != nil {
		return domain.RemoteRecord{}, false, fmt.Errorf("query best attempts: %w", err)
	}
	defer rows.Close()

	record := domain.RemoteRecord{Identity: identity, Chapters: make(map[int]domain.RemoteAttempt)}
	for rows.Next() {
		var (
			a   domain.RemoteAttempt
			raw []byte
		)
		if err := rows.Scan(&a.ID, &a.Identity, &a.Email, &a.Chapter, &a.Score, &a.Total,
			&a.Percentage, &a.HintsUsed, &raw, &a.SubmittedAt); err != nil {
			return domain.RemoteRecord{}, false, fmt.Errorf("scan attempt: %w", err)
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &a.Responses); err != nil {
				return domain.RemoteRecord{}, false, fmt.Errorf("unmarshal responses: %w", err)
			}
		}
		if a.Email != "" {
			record.Email = a.Email
		}
		record.Chapters[a.Chapter] = a
	}
	if err := rows.Err(); err != nil {
		return domain.RemoteRecord{}, false, err
	}
	return record, len(record.Chapters) > 0, nil
}

func (s *RemoteStore) Rekey(ctx context.Context, from, to, email string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE quiz_attempts SET identity = $2, email = CASE WHEN $3 = '' THEN email ELSE $3 END WHERE identity = $1`,
		from, to, email)
	if err != nil {
		return fmt.Errorf("rekey attempts: %w", err)
	}
	return nil
}

func (s *RemoteStore) Absorb(ctx context.Context, from string, copies []domain.RemoteAttempt) error {
	return s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		for _, a := range copies {
			if err := insertAttempt(ctx, tx, a); err != nil {
				return err
			}
		}
		if _, err := tx.Exec(ctx, `DELETE FROM quiz_attempts WHERE identity = $1`, from); err != nil {
			return fmt.Errorf("delete anonymous attempts: %w", err)
		}
		return nil
	})
}

func (s *RemoteStore) Identities(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT identity FROM quiz_attempts`)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
