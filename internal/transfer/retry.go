package transfer

import (
	"time"

	"github.com/juju/clock"
	"github.com/juju/retry"
)

// Policy bounds how often a path transfer is attempted.
type Policy struct {
	Attempts int
	Delay    time.Duration
}

// DefaultPolicy retries a failed transfer once after five seconds.
func DefaultPolicy() Policy {
	return Policy{Attempts: 2, Delay: 5 * time.Second}
}

// Retry calls fn until it succeeds or p.Attempts calls have failed, waiting
// p.Delay on clk between calls. It returns the number of calls made and the
// last error.
func Retry(clk clock.Clock, p Policy, fn func(attempt int) error) (int, error) {
	attempts := 0
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			attempts++
			return fn(attempts)
		},
		Attempts: p.Attempts,
		Delay:    p.Delay,
		Clock:    clk,
	})
	if err != nil {
		return attempts, retry.LastError(err)
	}
	return attempts, nil
}
