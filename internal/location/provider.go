package location

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Zyptonix/Traffic-Rewards/internal/shared/geo"
)

// Sample is a single device location fix. Fixes are ephemeral; only
// the detector's reference point outlives the run that consumed them.
type Sample struct {
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	HeadingDeg float64   `json:"heading_deg"`
	RecordedAt time.Time `json:"recorded_at"`
}

// WatchOptions filter delivery to a watcher. Zero values disable the
// corresponding filter.
type WatchOptions struct {
	MinInterval  time.Duration
	MinDistanceM float64
}

var ErrNoFix = errors.New("no fix recorded yet")

// Provider supplies location fixes per user: one-shot reads for the
// background task, a cancellable stream for foreground sampling.
type Provider interface {
	CurrentFix(ctx context.Context, userID string) (Sample, error)
	WatchFixes(ctx context.Context, userID string, opts WatchOptions) (<-chan Sample, func(), error)
}

// PushProvider is fed by devices posting fixes over HTTP. It keeps the
// latest fix per user for CurrentFix and fans pushes out to active
// watchers.
type PushProvider struct {
	mu       sync.RWMutex
	latest   map[string]Sample
	watchers map[string]map[*watcher]struct{}
}

type watcher struct {
	opts    WatchOptions
	ch      chan Sample
	last    Sample
	hasLast bool
}

func NewPushProvider() *PushProvider {
	return &PushProvider{
		latest:   map[string]Sample{},
		watchers: map[string]map[*watcher]struct{}{},
	}
}

// Push records the fix and delivers it to watchers. Sends never block;
// a slow watcher misses fixes rather than stalling ingestion.
func (p *PushProvider) Push(userID string, s Sample) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.latest[userID] = s
	for w := range p.watchers[userID] {
		if !w.accepts(s) {
			continue
		}
		select {
		case w.ch <- s:
			w.last = s
			w.hasLast = true
		default:
		}
	}
}

func (w *watcher) accepts(s Sample) bool {
	if !w.hasLast {
		return true
	}
	if w.opts.MinInterval > 0 && s.RecordedAt.Sub(w.last.RecordedAt) < w.opts.MinInterval {
		return false
	}
	if w.opts.MinDistanceM > 0 &&
		geo.DistanceMeters(w.last.Lat, w.last.Lng, s.Lat, s.Lng) < w.opts.MinDistanceM {
		return false
	}
	return true
}

func (p *PushProvider) CurrentFix(_ context.Context, userID string) (Sample, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s, ok := p.latest[userID]
	if !ok {
		return Sample{}, ErrNoFix
	}
	return s, nil
}

// WatchFixes subscribes to a user's pushed fixes. The returned cancel
// func is idempotent; cancelling ctx unsubscribes as well.
func (p *PushProvider) WatchFixes(ctx context.Context, userID string, opts WatchOptions) (<-chan Sample, func(), error) {
	w := &watcher{opts: opts, ch: make(chan Sample, 16)}

	p.mu.Lock()
	if p.watchers[userID] == nil {
		p.watchers[userID] = map[*watcher]struct{}{}
	}
	p.watchers[userID][w] = struct{}{}
	p.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			p.mu.Lock()
			if set, ok := p.watchers[userID]; ok {
				delete(set, w)
				if len(set) == 0 {
					delete(p.watchers, userID)
				}
			}
			p.mu.Unlock()
			// No sender can reach w past this point.
			close(w.ch)
		})
	}

	if ctx != nil && ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}

	return w.ch, cancel, nil
}
