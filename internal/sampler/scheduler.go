package sampler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Scheduler is the recurring-task capability behind background
// sampling. The coordinator registers a handler per user; the
// scheduler owns the timer plumbing.
type Scheduler interface {
	RegisterRecurring(id string, handler func(context.Context)) error
	Unregister(id string) error
	IsRegistered(id string) bool
}

var ErrSchedulerClosed = errors.New("scheduler closed")

const defaultSampleInterval = 30 * time.Second

// TickerScheduler runs each registered handler on its own ticker
// goroutine. Unregister cancels the task's context without waiting for
// an in-flight run; Close waits so shutdown is clean.
type TickerScheduler struct {
	Interval time.Duration

	mu     sync.Mutex
	tasks  map[string]*tickerTask
	closed bool
}

type tickerTask struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func NewTickerScheduler(interval time.Duration) *TickerScheduler {
	return &TickerScheduler{Interval: interval, tasks: map[string]*tickerTask{}}
}

func (s *TickerScheduler) RegisterRecurring(id string, handler func(context.Context)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSchedulerClosed
	}
	if _, ok := s.tasks[id]; ok {
		return fmt.Errorf("task %s already registered", id)
	}

	ctx, cancel := context.WithCancel(context.Background())
	task := &tickerTask{cancel: cancel, done: make(chan struct{})}
	s.tasks[id] = task

	interval := s.Interval
	if interval <= 0 {
		interval = defaultSampleInterval
	}

	go func() {
		defer close(task.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				handler(ctx)
			}
		}
	}()
	return nil
}

func (s *TickerScheduler) Unregister(id string) error {
	s.mu.Lock()
	task, ok := s.tasks[id]
	if ok {
		delete(s.tasks, id)
	}
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("task %s not registered", id)
	}
	task.cancel()
	return nil
}

func (s *TickerScheduler) IsRegistered(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[id]
	return ok
}

// Close stops every task and waits for running handlers to return.
func (s *TickerScheduler) Close() {
	s.mu.Lock()
	tasks := s.tasks
	s.tasks = map[string]*tickerTask{}
	s.closed = true
	s.mu.Unlock()

	for _, task := range tasks {
		task.cancel()
	}
	for _, task := range tasks {
		<-task.done
	}
}
