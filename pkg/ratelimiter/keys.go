package ratelimiter

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"
)

// counterKey derives the storage key of the w bucket containing now:
//
//	{prefix}:{zone}:{key}:m{minute}
//	{prefix}:{zone}:{key}:h{hour}
//	{prefix}:{zone}:{key}:d{YYYYMMDD}
//
// Other clients of the same store depend on this layout.
func counterKey(prefix, zone, key string, w Window, now time.Time) string {
	now = now.UTC()
	switch w {
	case Minute:
		return fmt.Sprintf("%s:%s:%s:m%d", prefix, zone, key, now.Minute())
	case Hour:
		return fmt.Sprintf("%s:%s:%s:h%d", prefix, zone, key, now.Hour())
	default:
		return dayKey(prefix, zone, key, civil.DateOf(now))
	}
}

func dayKey(prefix, zone, key string, d civil.Date) string {
	return fmt.Sprintf("%s:%s:%s:d%04d%02d%02d", prefix, zone, key, d.Year, int(d.Month), d.Day)
}
