package postcommit

import "context"

// Task is one side effect scheduled to run after a transaction commits.
// Tasks sharing a Key run in submission order.
type Task struct {
	Key  string
	Name string
	Run  func(ctx context.Context) error
}

// Hooks collects tasks while a transaction is open. Nothing runs until the
// coordinator sees a successful commit; a rollback discards the list.
type Hooks struct {
	tasks []Task
}

func (h *Hooks) After(key, name string, fn func(ctx context.Context) error) {
	if h == nil || fn == nil {
		return
	}
	h.tasks = append(h.tasks, Task{Key: key, Name: name, Run: fn})
}

func (h *Hooks) Tasks() []Task {
	if h == nil {
		return nil
	}
	out := make([]Task, len(h.tasks))
	copy(out, h.tasks)
	return out
}

func (h *Hooks) Len() int {
	if h == nil {
		return 0
	}
	return len(h.tasks)
}

// Runner executes committed tasks. Submit must never block the caller on task execution.
type Runner interface {
	Submit(ctx context.Context, t Task)
}
