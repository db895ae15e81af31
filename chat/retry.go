package chat

import (
	"errors"

	"agora/repository"
)

// RetryPolicy decides whether a failed persistence attempt is tried again.
type RetryPolicy struct {
	MaxRetries int
	Retryable  func(error) bool
}

// DuplicateKeyRetry retries once after a unique index collision.
var DuplicateKeyRetry = RetryPolicy{
	MaxRetries: 1,
	Retryable: func(err error) bool {
		return errors.Is(err, repository.ErrDuplicateKey)
	},
}

// Do calls op until it succeeds, fails with a non-retryable error, or the
// retries are used up. attempt starts at 0.
func (p RetryPolicy) Do(op func(attempt int) error) error {
	var err error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		err = op(attempt)
		if err == nil {
			return nil
		}
		if p.Retryable == nil || !p.Retryable(err) {
			return err
		}
	}
	return err
}
