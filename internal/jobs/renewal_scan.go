package jobs

import (
	"context"
	"time"

	"github.com/Spok95/learning-platform/internal/subscriptions"
)

type RenewalScanner interface {
	ScanForRenewal(ctx context.Context, now time.Time) (*subscriptions.RenewalReport, error)
}

// RenewalScan wraps the daily scan as a Job. The report itself is logged by the scanner.
func RenewalScan(s RenewalScanner) Job {
	return func(ctx context.Context) error {
		_, err := s.ScanForRenewal(ctx, time.Now())
		return err
	}
}
