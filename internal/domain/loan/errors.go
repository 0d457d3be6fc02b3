package loan

import "errors"

var (
	ErrNotFound          = errors.New("loan not found")
	ErrInvalidTransition = errors.New("loan not in a state that allows this transition")
	ErrStaleStatus       = errors.New("loan status changed concurrently")
	ErrOpenLoanExists    = errors.New("borrower already has an open loan")
	ErrLocked            = errors.New("loan is locked by another operation")
)
