// Package repository persists per-user login flags set by admins.
package repository

import (
	"context"
	"time"
)

// Repository stores the "require OTP on next login" flag. Unknown users read as false.
type Repository interface {
	RequireOTP(ctx context.Context, userID string) (bool, error)
	SetRequireOTP(ctx context.Context, userID string, required bool, at time.Time) error
}
