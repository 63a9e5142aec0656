package store

import "errors"

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrJobNotFound       = errors.New("job not found")
	ErrUnknownStudio     = errors.New("unknown studio")
	ErrOrderLocked       = errors.New("order has started processing")
	ErrRunInProgress     = errors.New("a batch is already running for this order")
	ErrNoPendingJobs     = errors.New("order has no pending jobs")
	ErrNoImages          = errors.New("no images supplied")
	ErrInvalidTransition = errors.New("job is already in a terminal state")
	ErrJobNotFailed      = errors.New("only failed jobs can be resubmitted")
	ErrRunNotActive      = errors.New("no batch is running for this order")
)
