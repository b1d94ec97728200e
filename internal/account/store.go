package account

import (
	"context"
	"time"

	"github.com/Zyptonix/Traffic-Rewards/internal/db"

	"github.com/google/uuid"
)

// Store reads and mutates user accounts. Points only ever move through
// Grant's atomic increment; a plain read-modify-write would lose
// concurrent awards from another device of the same user.
type Store struct {
	db db.Querier
}

func NewStore(q db.Querier) *Store {
	return &Store{db: q}
}

// Ensure lazily creates the account with zero points on first access
// and returns the current row.
func (s *Store) Ensure(ctx context.Context, userID string) (Account, error) {
	if _, err := s.db.Exec(ctx, `
		INSERT INTO accounts (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING
	`, userID); err != nil {
		return Account{}, err
	}
	return s.Get(ctx, userID)
}

func (s *Store) Get(ctx context.Context, userID string) (Account, error) {
	var acc Account
	row := s.db.QueryRow(ctx, `
		SELECT user_id, points, last_point_at, created_at
		FROM accounts WHERE user_id=$1
	`, userID)
	if err := row.Scan(&acc.UserID, &acc.Points, &acc.LastPointAt, &acc.CreatedAt); err != nil {
		return Account{}, err
	}
	return acc, nil
}

// Grant commits the point increment, the cooldown anchor, and the
// history entry in one transaction so points and history never
// diverge.
func (s *Store) Grant(ctx context.Context, userID string, amount int64, reason string, at time.Time) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `
		UPDATE accounts SET points = points + $2, last_point_at = $3
		WHERE user_id=$1
	`, userID, amount, at); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO point_history (id, user_id, amount, reason, awarded_at)
		VALUES ($1,$2,$3,$4,$5)
	`, uuid.NewString(), userID, amount, reason, at); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// History returns the newest grants first.
func (s *Store) History(ctx context.Context, userID string, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, amount, reason, awarded_at
		FROM point_history WHERE user_id=$1
		ORDER BY awarded_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Amount, &e.Reason, &e.AwardedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}
