package domain

import "strings"

// User is a backend identity. Roles gate what the client shows; the backend
// enforces them.
type User struct {
	ID         int64  `json:"id"`
	Email      string `json:"email"`
	FullName   string `json:"fullName"`
	Role       Role   `json:"role"`
	Site       string `json:"site,omitempty"`
	Discipline string `json:"discipline,omitempty"`
}

// DisplayName prefers the full name and falls back to the email.
func (u User) DisplayName() string {
	if name := strings.TrimSpace(u.FullName); name != "" {
		return name
	}
	return u.Email
}

// SameEmail compares addresses case-insensitively after trimming.
func SameEmail(a, b string) bool {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	if a == "" || b == "" {
		return false
	}
	return strings.EqualFold(a, b)
}
