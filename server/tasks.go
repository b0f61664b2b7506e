package server

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"
)

type TaskStatus string

const (
	TaskQueued  TaskStatus = "queued"
	TaskRunning TaskStatus = "running"
	TaskDone    TaskStatus = "done"
	TaskFailed  TaskStatus = "failed"
)

const (
	defaultTaskTimeout = 5 * time.Minute
	defaultDoneTTL     = 30 * time.Minute

	// Event buffer per task. The browser normally drains continuously; a
	// full buffer means it detached, so publishes drop rather than block.
	taskEventBuffer = 256
)

// TaskInfo is the read-only view of a chat task handed to HTTP responses.
type TaskInfo struct {
	ID         string     `json:"task_id"`
	SessionID  string     `json:"session_id"`
	Query      string     `json:"-"`
	Status     TaskStatus `json:"status"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

type chatTask struct {
	info   *TaskInfo
	ctx    context.Context
	cancel context.CancelFunc

	events    chan Event
	closeOnce sync.Once
	dropped   int
}

// publish is only called from the worker goroutine that owns the task, so
// it can never race with closeEvents.
func (t *chatTask) publish(ev Event) {
	select {
	case t.events <- ev:
	default:
		t.dropped++
	}
}

func (t *chatTask) closeEvents() {
	t.closeOnce.Do(func() { close(t.events) })
}

// TaskStore queues chat turns for the worker and keeps finished tasks
// around long enough for a late stream subscriber, then evicts them.
type TaskStore struct {
	mu        sync.RWMutex
	tasks     map[string]*chatTask
	queue     chan *chatTask
	done      chan struct{}
	closeOnce sync.Once

	doneTTL time.Duration
	now     func() time.Time
}

func NewTaskStore(maxQueue int) *TaskStore {
	if maxQueue <= 0 {
		maxQueue = 100
	}
	s := &TaskStore{
		tasks:   make(map[string]*chatTask),
		queue:   make(chan *chatTask, maxQueue),
		done:    make(chan struct{}),
		doneTTL: defaultDoneTTL,
		now:     time.Now,
	}
	go s.evictLoop()
	return s
}

func (s *TaskStore) Enqueue(parent context.Context, sessionID, query string, timeout time.Duration) (*TaskInfo, error) {
	if timeout <= 0 {
		timeout = defaultTaskTimeout
	}
	select {
	case <-s.done:
		return nil, fmt.Errorf("store is closed")
	default:
	}

	ctx, cancel := context.WithTimeout(parent, timeout)
	t := &chatTask{
		info: &TaskInfo{
			ID:        fmt.Sprintf("task_%x", rand.Uint64()),
			SessionID: sessionID,
			Query:     query,
			Status:    TaskQueued,
			CreatedAt: s.now(),
		},
		ctx:    ctx,
		cancel: cancel,
		events: make(chan Event, taskEventBuffer),
	}

	s.mu.Lock()
	s.tasks[t.info.ID] = t
	s.mu.Unlock()

	select {
	case s.queue <- t:
		cp := *t.info
		return &cp, nil
	default:
		t.cancel()
		s.mu.Lock()
		delete(s.tasks, t.info.ID)
		s.mu.Unlock()
		return nil, fmt.Errorf("queue is full")
	}
}

func (s *TaskStore) Get(id string) (*TaskInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok || t == nil || t.info == nil {
		return nil, false
	}
	cp := *t.info
	return &cp, true
}

func (s *TaskStore) get(id string) *chatTask {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tasks[id]
}

// Next blocks until a task is available or the store is closed.
func (s *TaskStore) Next() (*chatTask, bool) {
	select {
	case t, ok := <-s.queue:
		return t, ok
	case <-s.done:
		return nil, false
	}
}

func (s *TaskStore) Update(id string, fn func(info *TaskInfo)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tasks[id]
	if t == nil || t.info == nil {
		return
	}
	fn(t.info)
}

func (s *TaskStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

// Close cancels all in-flight tasks and stops the worker and evict loop.
func (s *TaskStore) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.mu.RLock()
		defer s.mu.RUnlock()
		for _, t := range s.tasks {
			if t != nil && t.cancel != nil {
				t.cancel()
			}
		}
	})
}

func isTerminal(st TaskStatus) bool {
	return st == TaskDone || st == TaskFailed
}

func (s *TaskStore) evictLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.evictExpired()
		}
	}
}

// evictExpired drops tasks that finished longer than doneTTL ago so the map
// stays bounded in a long-running daemon.
func (s *TaskStore) evictExpired() {
	now := s.now()
	ttl := s.doneTTL
	if ttl <= 0 {
		ttl = defaultDoneTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.tasks {
		if t == nil || t.info == nil {
			delete(s.tasks, id)
			continue
		}
		if !isTerminal(t.info.Status) {
			continue
		}
		if t.info.FinishedAt != nil && now.Sub(*t.info.FinishedAt) > ttl {
			delete(s.tasks, id)
		}
	}
}
