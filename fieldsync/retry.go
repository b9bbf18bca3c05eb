// Copyright 2026 VideoDept Authors
// SPDX-License-Identifier: Apache-2.0

package fieldsync

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

const maxMergeAttempts = 3

func isRetryablePGTxError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.SQLState() {
	case "40001", // serialization_failure
		"40P01", // deadlock_detected
		"55P03": // lock_not_available (incl. lock_timeout)
		return true
	default:
		return false
	}
}

// withMergeRetry runs the transactional merge path, retrying on revision
// mismatches and retryable PostgreSQL transaction errors so a true concurrent
// writer forces a re-read instead of silently losing a field update.
func (s *SyncService) withMergeRetry(ctx context.Context, op func() error) error {
	var err error
	for attempt := 1; attempt <= maxMergeAttempts; attempt++ {
		err = op()
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrRevisionMismatch) && !isRetryablePGTxError(err) {
			return err
		}
		s.logger.Debug("Retrying merge transaction", "attempt", attempt, "error", err)
		if sleepErr := sleepWithContext(ctx, time.Duration(attempt)*25*time.Millisecond); sleepErr != nil {
			return sleepErr
		}
	}
	return err
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
