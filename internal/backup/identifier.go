package backup

import (
	"time"
)

// NewIdentifier of a backup started at t, e.g. backup_20240305_060708
func NewIdentifier(t time.Time) string {
	return "backup_" + t.Format("20060102_150405")
}
