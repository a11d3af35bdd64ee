package reconciler

import "time"

// microsToTime converts a bucse Action's microsecond timestamp (spec §3.1)
// to a time.Time.
func microsToTime(us int64) time.Time {
	return time.UnixMicro(us)
}

// NowMicros is the inverse: t as a microsecond timestamp, used when
// composing new Actions.
func NowMicros(t time.Time) int64 {
	return t.UnixMicro()
}
