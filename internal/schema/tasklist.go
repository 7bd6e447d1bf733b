package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// TasksFilename is the remote name of the task list document.
const TasksFilename = "tasks.json"

// TaskList is the remote task document.
type TaskList struct {
	Tasks        []Task    `json:"tasks"`
	LastModified time.Time `json:"lastModified"`
}

// MarshalTaskList encodes the task list document.
func MarshalTaskList(tasks []Task, lastModified time.Time) ([]byte, error) {
	if tasks == nil {
		tasks = []Task{}
	}
	data, err := json.MarshalIndent(TaskList{Tasks: tasks, LastModified: lastModified.UTC()}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task list: %w", err)
	}
	return data, nil
}

// ParseTaskList decodes a task list document. Tasks missing optional fields
// get defaults. Both the object form and a bare array are accepted.
func ParseTaskList(data []byte) (TaskList, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return TaskList{Tasks: []Task{}}, nil
	}

	var list TaskList
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &list.Tasks); err != nil {
			return TaskList{Tasks: []Task{}}, fmt.Errorf("%w: task list: %v", ErrParse, err)
		}
	} else if err := json.Unmarshal(trimmed, &list); err != nil {
		return TaskList{Tasks: []Task{}}, fmt.Errorf("%w: task list: %v", ErrParse, err)
	}

	if list.Tasks == nil {
		list.Tasks = []Task{}
	}
	for i := range list.Tasks {
		list.Tasks[i].SetDefaults()
	}
	return list, nil
}

// SerializeTasks returns the canonical form used to decide whether the list
// differs from what was last persisted. LastModified is deliberately left out.
func SerializeTasks(tasks []Task) string {
	if tasks == nil {
		tasks = []Task{}
	}
	data, err := json.Marshal(tasks)
	if err != nil {
		// Task has no unmarshalable fields
		return ""
	}
	return string(data)
}

// CloneTasks returns a deep copy of tasks.
func CloneTasks(tasks []Task) []Task {
	out := make([]Task, len(tasks))
	for i, t := range tasks {
		if t.CompletedAt != nil {
			at := *t.CompletedAt
			t.CompletedAt = &at
		}
		out[i] = t
	}
	return out
}
