package sampler

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/Zyptonix/Traffic-Rewards/internal/award"
	"github.com/Zyptonix/Traffic-Rewards/internal/location"
	"github.com/Zyptonix/Traffic-Rewards/internal/oracle"
	"github.com/Zyptonix/Traffic-Rewards/internal/session"
	"github.com/Zyptonix/Traffic-Rewards/internal/status"
	"github.com/Zyptonix/Traffic-Rewards/internal/stream"
	"github.com/Zyptonix/Traffic-Rewards/internal/stuck"
)

// Outcome is what one processed fix produced.
type Outcome struct {
	Stuck    bool             `json:"stuck"`
	Severity session.Severity `json:"severity"`
	OnRoad   bool             `json:"on_road"`
	Granted  bool             `json:"granted"`
	Amount   int64            `json:"amount"`
}

// Pipeline is the per-fix decision core, independent of how fixes are
// scheduled: detector, oracle refreshes, award policy, in that order,
// synchronously. Status and Hub are optional; when set, every
// processed fix pushes a fresh snapshot to the user's stream.
type Pipeline struct {
	Sessions *session.Store
	Oracle   *oracle.Client
	Policy   *award.Policy
	Status   *status.Service
	Hub      *stream.Hub

	Thresholds stuck.Thresholds
	Now        func() time.Time
}

func (p *Pipeline) ProcessFix(ctx context.Context, userID string, fix location.Sample) (Outcome, error) {
	now := p.now()

	st, err := p.Sessions.Load(ctx, userID)
	if err != nil {
		return Outcome{}, fmt.Errorf("load session: %w", err)
	}

	res := stuck.Evaluate(st.Reference, fix, now, p.Thresholds)
	if res.ReferenceReplaced {
		if err := p.Sessions.SaveReference(ctx, userID, res.Reference); err != nil {
			return Outcome{}, fmt.Errorf("persist reference: %w", err)
		}
	}
	if err := p.Sessions.SaveStuck(ctx, userID, res.Stuck); err != nil {
		return Outcome{}, fmt.Errorf("persist verdict: %w", err)
	}

	severity := p.Oracle.RefreshTraffic(ctx, userID, fix)
	onRoad := p.Oracle.RefreshOnRoad(ctx, userID, fix)

	// A failed grant is logged, not fatal: conditions persisting to the
	// next sample make it eligible to retry.
	decision, err := p.Policy.Evaluate(ctx, userID, res.Stuck, onRoad, severity, now)
	if err != nil {
		log.Printf("sampler: award evaluation for %s: %v", userID, err)
	}

	p.pushStatus(ctx, userID)

	return Outcome{
		Stuck:    res.Stuck,
		Severity: severity,
		OnRoad:   onRoad,
		Granted:  decision.Granted,
		Amount:   decision.Amount,
	}, nil
}

func (p *Pipeline) pushStatus(ctx context.Context, userID string) {
	if p.Hub == nil || p.Status == nil {
		return
	}
	snap, err := p.Status.Snapshot(ctx, userID)
	if err != nil {
		log.Printf("sampler: status snapshot for %s: %v", userID, err)
		return
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		log.Printf("sampler: encode snapshot for %s: %v", userID, err)
		return
	}
	p.Hub.Broadcast(userID, payload)
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}
