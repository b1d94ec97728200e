// Package status is the read-only projection of a user's traffic
// session and point account. It renders state written by the sampling
// pipeline and never writes decision state itself.
package status

import (
	"context"
	"fmt"
	"time"

	"github.com/Zyptonix/Traffic-Rewards/internal/account"
	"github.com/Zyptonix/Traffic-Rewards/internal/session"
)

const defaultCooldown = 5 * time.Minute

// Snapshot is the read model devices poll and the stream pushes.
type Snapshot struct {
	Points              int64            `json:"points"`
	Severity            session.Severity `json:"severity"`
	Stuck               bool             `json:"stuck"`
	OnRoad              bool             `json:"on_road"`
	CooldownRemainingMS int64            `json:"cooldown_remaining_ms"`
}

type Service struct {
	Sessions *session.Store
	Accounts *account.Store

	Cooldown time.Duration
	Now      func() time.Time
}

// Snapshot joins the cached session flags with the account. The remote
// last_point_at anchors the cooldown countdown, never the session
// mirror.
func (s *Service) Snapshot(ctx context.Context, userID string) (Snapshot, error) {
	st, err := s.Sessions.Load(ctx, userID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load session: %w", err)
	}
	acc, err := s.Accounts.Ensure(ctx, userID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load account: %w", err)
	}

	snap := Snapshot{
		Points:   acc.Points,
		Severity: st.Severity,
		Stuck:    st.Stuck,
		OnRoad:   st.OnRoad,
	}
	if acc.LastPointAt.After(time.Unix(0, 0)) {
		if remaining := s.effectiveCooldown() - s.now().Sub(acc.LastPointAt); remaining > 0 {
			snap.CooldownRemainingMS = remaining.Milliseconds()
		}
	}
	return snap, nil
}

func (s *Service) History(ctx context.Context, userID string, limit int) ([]account.HistoryEntry, error) {
	return s.Accounts.History(ctx, userID, limit)
}

func (s *Service) effectiveCooldown() time.Duration {
	if s.Cooldown > 0 {
		return s.Cooldown
	}
	return defaultCooldown
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
