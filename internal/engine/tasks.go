package engine

import (
	"context"
	"fmt"

	"github.com/jotdeck/jotdeck/internal/remote"
	"github.com/jotdeck/jotdeck/internal/schema"
	"github.com/jotdeck/jotdeck/internal/search"
)

// Tasks returns a copy of the task list in board order.
func (e *Engine) Tasks() []schema.Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	return schema.CloneTasks(e.tasks)
}

// Task returns the task with the given ID.
func (e *Engine) Task(id string) (schema.Task, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if i := indexOfTask(e.tasks, id); i >= 0 {
		return schema.CloneTasks(e.tasks[i : i+1])[0], true
	}
	return schema.Task{}, false
}

// SetTasks replaces the whole task list. The list is one remote document,
// so any change dirties and reschedules the single task-list write.
func (e *Engine) SetTasks(tasks []schema.Task) error {
	next := schema.CloneTasks(tasks)
	return e.editTasks(func([]schema.Task) ([]schema.Task, error) {
		return next, nil
	})
}

// AddTask validates t, fills its defaults and appends it to the list.
func (e *Engine) AddTask(t schema.Task) (schema.Task, error) {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = e.now()
	}
	t.SetDefaults()
	if err := t.Validate(); err != nil {
		return schema.Task{}, fmt.Errorf("invalid task: %w", err)
	}

	err := e.editTasks(func(tasks []schema.Task) ([]schema.Task, error) {
		if indexOfTask(tasks, t.ID) >= 0 {
			return nil, fmt.Errorf("task %s already exists", t.ID)
		}
		return append(tasks, t), nil
	})
	if err != nil {
		return schema.Task{}, err
	}
	return t, nil
}

// UpdateTask applies fn to the task with the given ID. The ID and creation
// time cannot be changed.
func (e *Engine) UpdateTask(id string, fn func(t *schema.Task)) (schema.Task, error) {
	var updated schema.Task
	err := e.editTasks(func(tasks []schema.Task) ([]schema.Task, error) {
		i := indexOfTask(tasks, id)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", ErrNoSuchTask, id)
		}
		t := tasks[i]
		fn(&t)
		t.ID = tasks[i].ID
		t.CreatedAt = tasks[i].CreatedAt
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("invalid task: %w", err)
		}
		tasks[i] = t
		updated = t
		return tasks, nil
	})
	return updated, err
}

// MoveTask changes the board column of a task. Completion is unaffected.
func (e *Engine) MoveTask(id string, status schema.Status) (schema.Task, error) {
	if !status.IsValid() {
		return schema.Task{}, fmt.Errorf("invalid status %q", status)
	}
	return e.UpdateTask(id, func(t *schema.Task) { t.Status = status })
}

// SetTaskCompleted marks a task done or not done.
func (e *Engine) SetTaskCompleted(id string, done bool) (schema.Task, error) {
	now := e.now()
	return e.UpdateTask(id, func(t *schema.Task) {
		if t.Completed != done {
			t.SetCompleted(done, now)
		}
	})
}

// ToggleTask flips the completed flag of a task.
func (e *Engine) ToggleTask(id string) (schema.Task, error) {
	now := e.now()
	return e.UpdateTask(id, func(t *schema.Task) { t.SetCompleted(!t.Completed, now) })
}

// DeleteTask removes a task from the list.
func (e *Engine) DeleteTask(id string) error {
	return e.editTasks(func(tasks []schema.Task) ([]schema.Task, error) {
		i := indexOfTask(tasks, id)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", ErrNoSuchTask, id)
		}
		return append(tasks[:i], tasks[i+1:]...), nil
	})
}

// editTasks runs fn on a copy of the list under the engine lock and
// commits the result. Identical serializations are a no-op.
func (e *Engine) editTasks(fn func(tasks []schema.Task) ([]schema.Task, error)) error {
	e.mu.Lock()
	if err := e.checkOpenLocked(); err != nil {
		e.mu.Unlock()
		return err
	}
	prev := e.tasks
	next, err := fn(schema.CloneTasks(prev))
	if err != nil {
		e.mu.Unlock()
		return err
	}
	if next == nil {
		next = []schema.Task{}
	}

	serialized := schema.SerializeTasks(next)
	if serialized == schema.SerializeTasks(prev) {
		e.mu.Unlock()
		return nil
	}
	e.tasks = next
	demo := e.identity.Demo()

	var schedule bool
	switch {
	case demo:
		e.tasksOrig = serialized
	case serialized == e.tasksOrig:
		e.tasksDirty = false
	default:
		e.tasksDirty = true
		schedule = true
	}
	snapshot := schema.CloneTasks(next)
	e.mu.Unlock()

	if e.cfg.Index != nil {
		kept := make(map[string]bool, len(snapshot))
		for _, t := range snapshot {
			kept[t.ID] = true
			e.cfg.Index.Update(search.TaskDocument(t))
		}
		for _, t := range prev {
			if !kept[t.ID] {
				e.cfg.Index.Remove(search.TypeTask, t.ID)
			}
		}
	}
	e.persistLocal(func(ctx context.Context, c LocalCache) error { return c.ReplaceTasks(ctx, snapshot) })

	if schedule {
		e.schedule(tasksKey)
	} else if !demo {
		e.timers.cancel(tasksKey)
	}
	return nil
}

// flushTasks writes the task list document if it is dirty.
func (e *Engine) flushTasks(ctx context.Context) error {
	var tasks []schema.Task
	n, wrote, err := e.persist(ctx, persistOp{
		key: tasksKey,
		snapshot: func() (string, bool, error) {
			if !e.tasksDirty {
				return "", false, nil
			}
			tasks = schema.CloneTasks(e.tasks)
			data, err := schema.MarshalTaskList(tasks, e.now())
			if err != nil {
				return "", false, err
			}
			return string(data), true, nil
		},
		target: func(topo Topology) fileTarget {
			return fileTarget{name: schema.TasksFilename, parentID: topo.User, mimeType: remote.MimeJSON}
		},
		commit: func(string) {
			saved := schema.SerializeTasks(tasks)
			e.tasksOrig = saved
			if schema.SerializeTasks(e.tasks) == saved {
				e.tasksDirty = false
			}
		},
	})
	if err != nil {
		return err
	}
	if wrote {
		e.logger.Printf("Saved task list (%d tasks, %d bytes)", len(tasks), n)
	}
	return nil
}

func indexOfTask(tasks []schema.Task, id string) int {
	for i := range tasks {
		if tasks[i].ID == id {
			return i
		}
	}
	return -1
}
