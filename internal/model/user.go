// Package model defines the data structures used throughout the application.
package model

import "time"

// User is a catalog owner identified by a unique username.
//
// Users are created on first lookup (see service.UserService.FindOrCreate) and
// are never updated afterwards. The internal ID is an xid string, the same
// scheme used for movies, so IDs never leak database row numbering.
type User struct {
	ID        string    `json:"id"        db:"id"`
	Username  string    `json:"username"  db:"username"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}
