package models

import "time"

// Identity is the authenticated principal attached to a connection or request
// once, at accept time.
type Identity struct {
	UserId   string `json:"sub"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

type User struct {
	Id           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	ProfileImage string    `json:"profile_image"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Identity returns the claims carried in tokens issued for u.
func (u *User) Identity() Identity {
	return Identity{UserId: u.Id, Username: u.Username, Email: u.Email}
}
