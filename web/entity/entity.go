// Package entity defines the data structures shared by the web layer.
package entity

// Msg is the standard API response envelope.
type Msg struct {
	Success bool   `json:"success"`
	Msg     string `json:"msg"`
	Obj     any    `json:"obj"`
}

// UserSummary is the subject view returned by login and /me.
type UserSummary struct {
	Id       int    `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Active   bool   `json:"active"`
}

// LoginResult carries the issued token and the subject summary.
type LoginResult struct {
	Token string      `json:"token"`
	User  UserSummary `json:"user"`
}
