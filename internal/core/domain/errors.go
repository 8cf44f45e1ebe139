package domain

import "errors"

var (
	ErrValidation         = errors.New("validation error")
	ErrAlreadyVoted       = errors.New("participant has already voted for this item")
	ErrItemNotFound       = errors.New("item not found")
	ErrTransactionAborted = errors.New("transaction aborted")
	ErrSubscription       = errors.New("subscription error")
	ErrSchema             = errors.New("document does not match schema")
	ErrVoteInProgress     = errors.New("a vote for this item is already in progress")
)
