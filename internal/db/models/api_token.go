package models

import "time"

// APIToken is a project-scoped credential. Only the SHA-256 hash of the raw token is stored.
type APIToken struct {
	ID        string    `db:"id" json:"id"`
	ProjectID string    `db:"project_id" json:"project_id"`
	TokenHash string    `db:"token_hash" json:"-"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
