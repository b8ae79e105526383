package model

import (
	"database/sql"
	"time"
)

type Todo struct {
	ID          int
	UserID      int
	Description string
	Done        bool
	DueAt       sql.NullTime
	CreatedAt   time.Time
}
