package audit

import (
	"fmt"
	"time"
)

// MinRetentionYears is the compliance floor: nothing younger may be
// purged, whatever an operator asks for.
const MinRetentionYears = 7

// CheckRetentionPolicy rejects any purge/cleanup configured below the
// compliance floor.
func CheckRetentionPolicy(requestedYears int) error {
	if requestedYears < MinRetentionYears {
		return fmt.Errorf("compliance violation: retention must be minimum %d years (requested: %d)", MinRetentionYears, requestedYears)
	}
	return nil
}

// EnsureSafePurgeDate returns the newest timestamp a purge may touch.
// 2557 days rounds seven years up across leap years, erring on keeping
// records longer.
func EnsureSafePurgeDate() time.Time {
	return time.Now().AddDate(0, 0, -2557)
}

// CanPurge reports whether a record is old enough to purge.
func CanPurge(recordTime time.Time) bool {
	return recordTime.Before(EnsureSafePurgeDate())
}
