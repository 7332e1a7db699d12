package sync

import "time"

func timeNow() time.Time { return time.Now() }

func timeSinceMillis(t time.Time) int64 {
	return time.Since(t).Milliseconds()
}
