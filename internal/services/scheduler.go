package services

import (
	"sync"
	"time"
)

// Scheduler runs a task once after a delay. Tasks are addressed by key so a
// pending task can be cancelled or replaced.
type Scheduler interface {
	Schedule(key string, delay time.Duration, task func())
	Cancel(key string) bool
	Pending() int
	Stop()
}

// TimerScheduler keeps pending tasks as in-process timers. Anything pending
// when the process exits is lost.
type TimerScheduler struct {
	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
}

// NewTimerScheduler creates an empty scheduler
func NewTimerScheduler() *TimerScheduler {
	return &TimerScheduler{timers: make(map[string]*time.Timer)}
}

// Schedule registers task under key, replacing any task already pending for it
func (s *TimerScheduler) Schedule(key string, delay time.Duration, task func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	if existing, ok := s.timers[key]; ok {
		existing.Stop()
	}

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		if s.timers[key] != timer {
			s.mu.Unlock()
			return
		}
		delete(s.timers, key)
		s.mu.Unlock()

		task()
	})
	s.timers[key] = timer
}

// Cancel stops the task pending under key. It reports whether one was pending.
func (s *TimerScheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	timer, ok := s.timers[key]
	if !ok {
		return false
	}
	timer.Stop()
	delete(s.timers, key)
	return true
}

// Pending returns the number of tasks that have not fired yet
func (s *TimerScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop drops every pending task and refuses new ones
func (s *TimerScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, timer := range s.timers {
		timer.Stop()
		delete(s.timers, key)
	}
	s.stopped = true
}
