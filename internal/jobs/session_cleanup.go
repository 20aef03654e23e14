package jobs

import (
	"context"
	"log"
	"sync"
	"time"
)

// sessionExpirer is the part of the transfer service the job drives
type sessionExpirer interface {
	ExpireIdleSessions(ctx context.Context, ttl time.Duration, now time.Time) (int, error)
}

// SessionCleanupJob periodically expires abandoned transfer conversations
type SessionCleanupJob struct {
	expirer  sessionExpirer
	ttl      time.Duration
	interval time.Duration

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	running bool
}

// NewSessionCleanupJob creates a job that sweeps every interval
func NewSessionCleanupJob(expirer sessionExpirer, ttl, interval time.Duration) *SessionCleanupJob {
	return &SessionCleanupJob{
		expirer:  expirer,
		ttl:      ttl,
		interval: interval,
	}
}

// Start begins the sweep loop. A zero TTL or interval disables the job.
func (j *SessionCleanupJob) Start() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.running {
		log.Println("Session cleanup job already running")
		return
	}
	if j.ttl <= 0 || j.interval <= 0 {
		log.Println("⚠️  Session expiry disabled (SESSION_TTL=0)")
		return
	}

	j.stop = make(chan struct{})
	j.done = make(chan struct{})
	j.running = true
	go j.loop(j.stop, j.done)
	log.Printf("Session cleanup job started (ttl %v, every %v)", j.ttl, j.interval)
}

// Stop halts the loop and waits for an in-flight sweep
func (j *SessionCleanupJob) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	j.running = false
	close(j.stop)
	done := j.done
	j.mu.Unlock()

	<-done
	log.Println("Session cleanup job stopped")
}

// RunOnce performs a single sweep
func (j *SessionCleanupJob) RunOnce(ctx context.Context) int {
	n, err := j.expirer.ExpireIdleSessions(ctx, j.ttl, time.Now())
	if err != nil {
		log.Printf("Error expiring sessions: %v", err)
		return 0
	}
	if n > 0 {
		log.Printf("Cleaned up %d expired sessions", n)
	}
	return n
}

func (j *SessionCleanupJob) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			j.RunOnce(context.Background())
		}
	}
}
