package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/mickamy/testfixtures/example/model"
	"github.com/mickamy/testfixtures/fixture"
)

// ErrNotFound is returned when no todo matches.
var ErrNotFound = errors.New("repo: todo not found")

// TodoRepository reads todos with plain database/sql.
type TodoRepository struct {
	db      fixture.Querier
	dialect fixture.Dialect
}

func NewTodoRepository(db fixture.Querier, dialect fixture.Dialect) *TodoRepository {
	return &TodoRepository{db: db, dialect: dialect}
}

const todoColumns = "id, user_id, description, done, due_at, created_at"

func (r *TodoRepository) FindAll(ctx context.Context) ([]model.Todo, error) {
	return r.query(ctx, "SELECT "+todoColumns+" FROM todos ORDER BY id")
}

func (r *TodoRepository) FindByID(ctx context.Context, id int) (model.Todo, error) {
	todos, err := r.query(ctx, "SELECT "+todoColumns+" FROM todos WHERE id = "+r.dialect.Placeholder(1), id)
	if err != nil {
		return model.Todo{}, err
	}
	if len(todos) == 0 {
		return model.Todo{}, ErrNotFound
	}
	return todos[0], nil
}

func (r *TodoRepository) FindPendingByUser(ctx context.Context, userID int) ([]model.Todo, error) {
	return r.query(ctx,
		"SELECT "+todoColumns+" FROM todos WHERE user_id = "+r.dialect.Placeholder(1)+" AND done = "+r.dialect.Placeholder(2)+" ORDER BY id",
		userID, false)
}

func (r *TodoRepository) MarkDone(ctx context.Context, id int) error {
	res, err := r.db.ExecContext(ctx, "UPDATE todos SET done = "+r.dialect.Placeholder(1)+" WHERE id = "+r.dialect.Placeholder(2), true, id)
	if err != nil {
		return fmt.Errorf("repo: mark done: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("repo: mark done: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *TodoRepository) query(ctx context.Context, query string, args ...any) ([]model.Todo, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("repo: query todos: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var todos []model.Todo
	for rows.Next() {
		var t model.Todo
		if err := rows.Scan(&t.ID, &t.UserID, &t.Description, &t.Done, &t.DueAt, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("repo: scan todo: %w", err)
		}
		todos = append(todos, t)
	}
	return todos, rows.Err() //nolint:wrapcheck // iteration errors are returned as is
}
