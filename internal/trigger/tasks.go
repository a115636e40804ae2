package trigger

import (
	"sort"
	"sync"
	"time"
)

// Task is a delayed run waiting for its timer.
type Task struct {
	ID        string    `json:"taskId"`
	Created   time.Time `json:"created"`
	ExecuteAt time.Time `json:"executeAt"`

	timer *time.Timer
}

// taskSet tracks pending delayed runs. A task leaves the set when it fires
// or is cancelled, whichever happens first.
type taskSet struct {
	mu    sync.Mutex
	tasks map[string]*Task
}

func newTaskSet() *taskSet {
	return &taskSet{tasks: make(map[string]*Task)}
}

// schedule registers fn to run after delay. It reports false when id is
// already pending.
func (s *taskSet) schedule(id string, now time.Time, delay time.Duration, fn func()) (*Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[id]; exists {
		return nil, false
	}
	task := &Task{ID: id, Created: now, ExecuteAt: now.Add(delay)}
	task.timer = time.AfterFunc(delay, func() {
		if s.claim(task) {
			fn()
		}
	})
	s.tasks[id] = task
	return task, true
}

// claim removes task if it is still the pending entry for its id.
func (s *taskSet) claim(task *Task) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tasks[task.ID] != task {
		return false
	}
	delete(s.tasks, task.ID)
	return true
}

func (s *taskSet) cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return false
	}
	task.timer.Stop()
	delete(s.tasks, id)
	return true
}

func (s *taskSet) cancelAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.tasks)
	for id, task := range s.tasks {
		task.timer.Stop()
		delete(s.tasks, id)
	}
	return n
}

func (s *taskSet) list() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		out = append(out, Task{ID: task.ID, Created: task.Created, ExecuteAt: task.ExecuteAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Created.Before(out[j].Created) })
	return out
}

func (s *taskSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}
