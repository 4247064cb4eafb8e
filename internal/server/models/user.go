// Package models holds the persistent domain records shared by repositories
// and services.
package models

import "time"

// User is an identity record. Email is the login key and is matched
// case-sensitively; uniqueness is enforced by the store.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}
