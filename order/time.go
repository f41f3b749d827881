package order

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// ParseTime reads a timestamp field as the stores hand it back: time.Time
// from Firestore and memory, RFC3339 strings from Redis, epoch millis for
// client clocks. ok is false for anything else, including the zero time.
func ParseTime(v interface{}) (time.Time, bool) {
	switch x := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return x, !x.IsZero()
	case *time.Time:
		if x == nil {
			return time.Time{}, false
		}
		return *x, !x.IsZero()
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return time.Time{}, false
		}
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t, true
		}
		return fromMillis(s)
	case json.Number:
		return fromMillis(x.String())
	case map[string]interface{}:
		// serialized {seconds, nanoseconds} timestamps
		secs, ok := x["seconds"]
		if !ok {
			secs, ok = x["_seconds"]
		}
		if !ok {
			return time.Time{}, false
		}
		sec, err := cast.ToInt64E(secs)
		if err != nil {
			return time.Time{}, false
		}
		nanos, _ := cast.ToInt64E(x["nanoseconds"])
		return time.Unix(sec, nanos).UTC(), true
	case float64, float32, int, int32, int64, uint, uint32, uint64:
		return fromMillis(v)
	}
	return time.Time{}, false
}

func fromMillis(v interface{}) (time.Time, bool) {
	ms, err := cast.ToFloat64E(v)
	if err != nil || ms <= 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(int64(ms)).UTC(), true
}

// Millis returns t as epoch milliseconds, the unit of createdAtClient.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}
