package domain

import "errors"

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountBanned   = errors.New("account banned")
)

type Account struct {
	UserID string
	Email  string
	Banned bool
}

// InGoodStanding reports ErrAccountBanned for banned accounts.
func (a Account) InGoodStanding() error {
	if a.Banned {
		return ErrAccountBanned
	}
	return nil
}
