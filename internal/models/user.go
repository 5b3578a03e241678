package models

import "time"

// User mirrors the identity provider's user row.
type User struct {
	ID    int    `db:"id" json:"id"`
	Name  string `db:"name" json:"name"`
	Email string `db:"email" json:"email,omitempty"`
}

// Friendship is one direction of a friendship pair.
type Friendship struct {
	ID        int       `db:"id" json:"id"`
	UserOneID int       `db:"user_one_id" json:"user_one_id"`
	UserTwoID int       `db:"user_two_id" json:"user_two_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
