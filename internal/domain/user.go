package domain

import "time"

// User is the billing view of an account: identity for notifications plus
// the check-credit balance consumed per graded submission.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Balance   int       `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
}

// LedgerEntry is an append-only record of balance movement. Renewal top-ups
// are stored with a negative used amount, consumption with a positive one.
type LedgerEntry struct {
	ID         int64     `json:"id"`
	UserID     string    `json:"user_id"`
	UsedAmount int       `json:"used_amount"`
	Comment    string    `json:"comment"`
	CreatedAt  time.Time `json:"created_at"`
}
