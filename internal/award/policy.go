// Package award decides when a stuck driver earns points and records
// the grant against the shared account.
package award

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/Zyptonix/Traffic-Rewards/internal/account"
	"github.com/Zyptonix/Traffic-Rewards/internal/session"
)

// Award reasons as they appear in the point history.
const (
	ReasonHeavyTraffic    = "stuck in heavy traffic on road"
	ReasonModerateTraffic = "stuck in moderate traffic on road"
)

const (
	defaultCooldown       = 5 * time.Minute
	defaultHeavyPoints    = 10
	defaultModeratePoints = 5
)

// Decision reports the outcome of one policy evaluation.
// CooldownRemaining is only meaningful when the cooldown gate was
// consulted: the wait left when it blocked the grant, or the full
// cooldown just started by a grant.
type Decision struct {
	Granted           bool
	Amount            int64
	Reason            string
	CooldownRemaining time.Duration
}

// Policy awards points when a user is stuck on a road in qualifying
// traffic and the account's cooldown has elapsed. The account row is
// the cooldown anchor shared across devices; the session only mirrors
// it.
type Policy struct {
	Accounts *account.Store
	Sessions *session.Store

	Cooldown       time.Duration
	HeavyPoints    int64
	ModeratePoints int64
}

// Evaluate runs the award rules for one processed sample. The check
// and the grant are not atomic across devices; two samples racing the
// same cooldown window can both be granted.
func (p *Policy) Evaluate(ctx context.Context, userID string, stuck, onRoad bool, severity session.Severity, now time.Time) (Decision, error) {
	amount, reason := p.grantFor(severity)
	if !stuck || !onRoad || amount == 0 {
		return Decision{}, nil
	}

	acc, err := p.Accounts.Ensure(ctx, userID)
	if err != nil {
		return Decision{}, fmt.Errorf("load account: %w", err)
	}

	// An account that has never been awarded carries the epoch anchor
	// and is ready immediately.
	cooldown := p.effectiveCooldown()
	if acc.LastPointAt.After(time.Unix(0, 0)) {
		if elapsed := now.Sub(acc.LastPointAt); elapsed < cooldown {
			// The remote anchor wins over whatever the session holds.
			if err := p.Sessions.SaveAwardAt(ctx, userID, acc.LastPointAt); err != nil {
				log.Printf("award: refresh award time for %s: %v", userID, err)
			}
			return Decision{CooldownRemaining: cooldown - elapsed}, nil
		}
	}

	if err := p.Accounts.Grant(ctx, userID, amount, reason, now); err != nil {
		return Decision{}, fmt.Errorf("grant points: %w", err)
	}
	if err := p.Sessions.SaveAwardAt(ctx, userID, now); err != nil {
		log.Printf("award: persist award time for %s: %v", userID, err)
	}
	return Decision{Granted: true, Amount: amount, Reason: reason, CooldownRemaining: cooldown}, nil
}

func (p *Policy) grantFor(severity session.Severity) (int64, string) {
	switch severity {
	case session.SeverityHeavy:
		return p.effectiveHeavyPoints(), ReasonHeavyTraffic
	case session.SeverityModerate:
		return p.effectiveModeratePoints(), ReasonModerateTraffic
	default:
		return 0, ""
	}
}

func (p *Policy) effectiveCooldown() time.Duration {
	if p.Cooldown > 0 {
		return p.Cooldown
	}
	return defaultCooldown
}

func (p *Policy) effectiveHeavyPoints() int64 {
	if p.HeavyPoints > 0 {
		return p.HeavyPoints
	}
	return defaultHeavyPoints
}

func (p *Policy) effectiveModeratePoints() int64 {
	if p.ModeratePoints > 0 {
		return p.ModeratePoints
	}
	return defaultModeratePoints
}
