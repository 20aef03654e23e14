package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

type sentMessage struct {
	To   string
	Body string
}

// fakeGateway records every send. Phones listed in failFor return an error.
type fakeGateway struct {
	mu      sync.Mutex
	sent    []sentMessage
	failFor map[string]bool
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{failFor: make(map[string]bool)}
}

func (f *fakeGateway) Send(ctx context.Context, to, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[to] {
		return errors.New("gateway unavailable")
	}
	f.sent = append(f.sent, sentMessage{To: to, Body: body})
	return nil
}

func (f *fakeGateway) to(phone string) []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentMessage
	for _, m := range f.sent {
		if m.To == phone {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeGateway) containing(phone, fragment string) int {
	n := 0
	for _, m := range f.to(phone) {
		if strings.Contains(m.Body, fragment) {
			n++
		}
	}
	return n
}

func (f *fakeGateway) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = nil
}

// manualScheduler holds tasks until the test fires them
type manualScheduler struct {
	mu     sync.Mutex
	tasks  map[string]func()
	delays map[string]time.Duration
}

func newManualScheduler() *manualScheduler {
	return &manualScheduler{tasks: make(map[string]func()), delays: make(map[string]time.Duration)}
}

func (m *manualScheduler) Schedule(key string, delay time.Duration, task func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[key] = task
	m.delays[key] = delay
}

func (m *manualScheduler) Cancel(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tasks[key]
	delete(m.tasks, key)
	return ok
}

func (m *manualScheduler) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

func (m *manualScheduler) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = make(map[string]func())
}

// fireAll runs every pending task as if its delay had elapsed
func (m *manualScheduler) fireAll() {
	m.mu.Lock()
	tasks := m.tasks
	m.tasks = make(map[string]func())
	m.mu.Unlock()
	for _, task := range tasks {
		task()
	}
}
