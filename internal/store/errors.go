package store

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrAlreadyResolved = errors.New("transaction already resolved")
)
