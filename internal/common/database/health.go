package database

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// Check names one backend for PingAll.
type Check struct {
	Name   string
	Pinger Pinger
}

// PingAll pings every backend with its own timeout and joins the failures.
// Checks with a nil Pinger are skipped.
func PingAll(ctx context.Context, timeout time.Duration, checks ...Check) error {
	var errs []error
	for _, c := range checks {
		if c.Pinger == nil {
			continue
		}
		pctx, cancel := context.WithTimeout(ctx, timeout)
		err := c.Pinger.Ping(pctx)
		cancel()
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.Name, err))
		}
	}
	return errors.Join(errs...)
}
