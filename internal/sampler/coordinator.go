package sampler

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/Zyptonix/Traffic-Rewards/internal/location"
)

type CoordinatorState string

const (
	StateUnregistered     CoordinatorState = "UNREGISTERED"
	StateBackgroundActive CoordinatorState = "BACKGROUND_ACTIVE"
	StateForegroundActive CoordinatorState = "FOREGROUND_ACTIVE"
	StateStopped          CoordinatorState = "STOPPED"
)

// Coordinator owns the sampling lifecycle of one user: a foreground
// watch while a screen is focused, a recurring background task
// otherwise. At most one sampling context is active at a time; each
// context captures a generation number, and any pass that outlives its
// generation discards its work instead of applying it.
type Coordinator struct {
	UserID            string
	Provider          location.Provider
	Scheduler         Scheduler
	Pipeline          *Pipeline
	WatchOptions      location.WatchOptions
	BackgroundEnabled bool

	mu         sync.Mutex
	state      CoordinatorState
	generation uint64
	cancel     func()
}

// FocusGained stops any background task and starts the foreground
// watch. Idempotent while already foreground-active.
func (c *Coordinator) FocusGained(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateForegroundActive {
		return nil
	}
	c.stopLocked()

	watchCtx, cancelWatch := context.WithCancel(context.Background())
	samples, stop, err := c.Provider.WatchFixes(watchCtx, c.UserID, c.WatchOptions)
	if err != nil {
		cancelWatch()
		c.state = StateStopped
		return err
	}

	c.generation++
	gen := c.generation
	c.cancel = func() {
		stop()
		cancelWatch()
	}
	c.state = StateForegroundActive

	go c.consume(watchCtx, gen, samples)
	return nil
}

// FocusLost stops the foreground watch and, when background sampling
// is enabled, hands off to the recurring background task.
func (c *Coordinator) FocusLost(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopLocked()
	if !c.BackgroundEnabled {
		c.state = StateStopped
		return nil
	}

	c.generation++
	gen := c.generation
	if err := c.Scheduler.RegisterRecurring(c.taskID(), func(taskCtx context.Context) {
		c.backgroundPass(taskCtx, gen)
	}); err != nil {
		c.state = StateStopped
		return err
	}
	c.state = StateBackgroundActive
	return nil
}

// Stop tears down whichever sampling context is active.
func (c *Coordinator) Stop(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	c.state = StateStopped
}

func (c *Coordinator) State() CoordinatorState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == "" {
		return StateUnregistered
	}
	return c.state
}

// stopLocked cancels the active sampling context and advances the
// generation so an in-flight pass is discarded rather than applied.
func (c *Coordinator) stopLocked() {
	c.generation++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.Scheduler != nil && c.Scheduler.IsRegistered(c.taskID()) {
		if err := c.Scheduler.Unregister(c.taskID()); err != nil {
			log.Printf("sampler: unregister task for %s: %v", c.UserID, err)
		}
	}
}

func (c *Coordinator) consume(ctx context.Context, gen uint64, samples <-chan location.Sample) {
	for fix := range samples {
		if !c.active(gen) {
			return
		}
		if _, err := c.Pipeline.ProcessFix(ctx, c.UserID, fix); err != nil {
			log.Printf("sampler: foreground fix for %s: %v", c.UserID, err)
		}
	}
}

// backgroundPass reads the latest recorded fix and runs the pipeline.
// Re-delivery of an already-seen fix is safe: the detector treats a
// sample no newer than the reference as a pass-through while the
// stationary clock keeps running.
func (c *Coordinator) backgroundPass(ctx context.Context, gen uint64) {
	if !c.active(gen) {
		return
	}
	fix, err := c.Provider.CurrentFix(ctx, c.UserID)
	if err != nil {
		if !errors.Is(err, location.ErrNoFix) {
			log.Printf("sampler: background fix for %s: %v", c.UserID, err)
		}
		return
	}
	if _, err := c.Pipeline.ProcessFix(ctx, c.UserID, fix); err != nil {
		log.Printf("sampler: background fix for %s: %v", c.UserID, err)
	}
}

func (c *Coordinator) active(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation == gen
}

func (c *Coordinator) taskID() string {
	return "traffic:sample:" + c.UserID
}
