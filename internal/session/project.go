package session

import "time"

// Project groups sessions under one body of work. Sessions always belong
// to exactly one project.
type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
