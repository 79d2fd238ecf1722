// Package models defines the row types persisted by the repositories layer.
// Models carry no behaviour beyond presentation helpers; business rules live in internal/services.
package models

import "time"

// Organization is the top-level tenant. Names are globally unique.
type Organization struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
