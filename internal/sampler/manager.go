package sampler

import (
	"context"
	"sync"

	"github.com/Zyptonix/Traffic-Rewards/internal/location"
)

// Manager owns one Coordinator per user, created lazily on first
// contact from a device.
type Manager struct {
	Provider          *location.PushProvider
	Scheduler         Scheduler
	Pipeline          *Pipeline
	WatchOptions      location.WatchOptions
	BackgroundEnabled bool

	mu           sync.Mutex
	coordinators map[string]*Coordinator
}

func (m *Manager) coordinator(userID string) *Coordinator {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.coordinators == nil {
		m.coordinators = map[string]*Coordinator{}
	}
	co, ok := m.coordinators[userID]
	if !ok {
		co = &Coordinator{
			UserID:            userID,
			Provider:          m.Provider,
			Scheduler:         m.Scheduler,
			Pipeline:          m.Pipeline,
			WatchOptions:      m.WatchOptions,
			BackgroundEnabled: m.BackgroundEnabled,
		}
		m.coordinators[userID] = co
	}
	return co
}

// PushFix records a device fix. An active foreground watch picks it up
// immediately; the background task reads it on its next tick.
func (m *Manager) PushFix(ctx context.Context, userID string, fix location.Sample) CoordinatorState {
	m.Provider.Push(userID, fix)
	return m.coordinator(userID).State()
}

// Focus applies a device focus transition and reports the resulting
// coordinator state.
func (m *Manager) Focus(ctx context.Context, userID string, focused bool) (CoordinatorState, error) {
	co := m.coordinator(userID)
	var err error
	if focused {
		err = co.FocusGained(ctx)
	} else {
		err = co.FocusLost(ctx)
	}
	return co.State(), err
}

// State reports a user's coordinator state without creating one.
func (m *Manager) State(userID string) CoordinatorState {
	m.mu.Lock()
	co, ok := m.coordinators[userID]
	m.mu.Unlock()

	if !ok {
		return StateUnregistered
	}
	return co.State()
}

// StopAll shuts every coordinator down; used on server shutdown.
func (m *Manager) StopAll(ctx context.Context) {
	m.mu.Lock()
	coordinators := make([]*Coordinator, 0, len(m.coordinators))
	for _, co := range m.coordinators {
		coordinators = append(coordinators, co)
	}
	m.mu.Unlock()

	for _, co := range coordinators {
		co.Stop(ctx)
	}
}
