package chat

import (
	"errors"
	"fmt"
	"testing"

	"agora/repository"
)

func TestDuplicateKeyRetryBound(t *testing.T) {
	cases := []struct {
		name     string
		failures []error
		calls    int
		wantErr  bool
	}{
		{"first attempt succeeds", nil, 1, false},
		{"one duplicate", []error{repository.ErrDuplicateKey}, 2, false},
		{"two duplicates", []error{repository.ErrDuplicateKey, repository.ErrDuplicateKey}, 2, true},
		{"wrapped duplicate", []error{fmt.Errorf("insert: %w", repository.ErrDuplicateKey)}, 2, false},
		{"other error", []error{errors.New("timeout")}, 1, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			calls := 0
			err := DuplicateKeyRetry.Do(func(attempt int) error {
				if attempt != calls {
					t.Fatalf("attempt = %d, want %d", attempt, calls)
				}
				calls++
				if attempt < len(tc.failures) {
					return tc.failures[attempt]
				}
				return nil
			})
			if calls != tc.calls {
				t.Fatalf("calls = %d, want %d", calls, tc.calls)
			}
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}
