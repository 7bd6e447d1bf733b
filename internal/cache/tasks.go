package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jotdeck/jotdeck/internal/schema"
)

// upsertTask keeps a task's board position on update. A NULL position on
// insert appends the task to the end of the board.
const upsertTask = `
	INSERT INTO tasks (id, title, status, priority, completed, due_date, created_at, data, position)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, COALESCE(?, (SELECT COALESCE(MAX(position), -1) + 1 FROM tasks)))
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		status = excluded.status,
		priority = excluded.priority,
		completed = excluded.completed,
		due_date = excluded.due_date,
		created_at = excluded.created_at,
		data = excluded.data,
		position = CASE WHEN ? IS NULL THEN tasks.position ELSE excluded.position END
`

// PutTask inserts or replaces one task. A new task goes to the end of the
// board; an existing one keeps its place.
func (db *DB) PutTask(ctx context.Context, t schema.Task) error {
	return putTask(ctx, db.conn, t, sql.NullInt64{})
}

func putTask(ctx context.Context, ex execer, t schema.Task, position sql.NullInt64) error {
	if t.ID == "" {
		return fmt.Errorf("invalid task: id is required")
	}
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}
	completed := 0
	if t.Completed {
		completed = 1
	}
	_, err = ex.ExecContext(ctx, upsertTask,
		t.ID,
		t.Title,
		string(t.Status),
		string(t.Priority),
		completed,
		stringToNull(t.DueDate),
		formatTime(t.CreatedAt),
		string(data),
		position,
		position,
	)
	if err != nil {
		return fmt.Errorf("failed to put task %s: %w", t.ID, err)
	}
	return nil
}

// DeleteTask removes one task. Returns nil if it doesn't exist.
func (db *DB) DeleteTask(ctx context.Context, id string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete task %s: %w", id, err)
	}
	return nil
}

// AllTasks returns every cached task in board order, the order of the
// list last passed to ReplaceTasks.
func (db *DB) AllTasks(ctx context.Context) ([]schema.Task, error) {
	return db.queryTasks(ctx, `SELECT data FROM tasks ORDER BY position, created_at, id`)
}

// TaskFilter narrows ListTasks.
type TaskFilter struct {
	// Status restricts to one board column (empty = all)
	Status schema.Status
	// IncludeCompleted includes completed tasks
	IncludeCompleted bool
	// DueOnOrBefore restricts to tasks due on or before this date (YYYY-MM-DD)
	DueOnOrBefore string
	// Limit restricts the number of results (0 = no limit)
	Limit int
}

// ListTasks returns cached tasks matching f. Results are ordered by
// priority (high first), then creation time.
func (db *DB) ListTasks(ctx context.Context, f TaskFilter) ([]schema.Task, error) {
	var (
		conditions []string
		args       []any
	)
	if f.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(f.Status))
	}
	if !f.IncludeCompleted {
		conditions = append(conditions, "completed = 0")
	}
	if f.DueOnOrBefore != "" {
		conditions = append(conditions, "due_date IS NOT NULL AND due_date <= ?")
		args = append(args, f.DueOnOrBefore)
	}

	query := `SELECT data FROM tasks`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY
		CASE priority WHEN 'high' THEN 0 WHEN 'medium' THEN 1 ELSE 2 END,
		created_at, id`
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	return db.queryTasks(ctx, query, args...)
}

func (db *DB) queryTasks(ctx context.Context, query string, args ...any) ([]schema.Task, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	tasks := []schema.Task{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		var t schema.Task
		if err := json.Unmarshal([]byte(data), &t); err != nil {
			return nil, fmt.Errorf("failed to decode cached task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tasks: %w", err)
	}
	return tasks, nil
}

// ReplaceTasks clears the collection and inserts tasks.
func (db *DB) ReplaceTasks(ctx context.Context, tasks []schema.Task) error {
	return db.inTx(ctx, func(tx *sql.Tx) error {
		return replaceTasks(ctx, tx, tasks)
	})
}

func replaceTasks(ctx context.Context, tx *sql.Tx, tasks []schema.Task) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks`); err != nil {
		return fmt.Errorf("failed to clear tasks: %w", err)
	}
	for i, t := range tasks {
		if err := putTask(ctx, tx, t, sql.NullInt64{Int64: int64(i), Valid: true}); err != nil {
			return err
		}
	}
	return nil
}
