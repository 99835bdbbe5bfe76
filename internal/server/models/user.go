// Package models defines server-side data models persisted in the database.
package models

import "time"

type User struct {
	ID           int64     `json:"id"`
	UserName     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}
