package recovery

import (
	"encoding/binary"
	"time"
)

// filetimeEpochDelta is the number of 100ns intervals between 1601-01-01 and the
// Unix epoch.
const filetimeEpochDelta = 116444736000000000

// FromFiletime converts an 8-byte little-endian FILETIME to UTC. Zero values and
// values before 1970 or after year 9999 are rejected.
func FromFiletime(b []byte) (time.Time, bool) {
	if len(b) != 8 {
		return time.Time{}, false
	}
	v := binary.LittleEndian.Uint64(b)
	if v <= filetimeEpochDelta {
		return time.Time{}, false
	}
	v -= filetimeEpochDelta
	t := time.Unix(int64(v/10_000_000), int64(v%10_000_000)*100).UTC()
	if t.Year() > 9999 {
		return time.Time{}, false
	}
	return t, true
}

// ToFiletime is the inverse of FromFiletime.
func ToFiletime(t time.Time) []byte {
	v := uint64(t.UnixNano()/100) + filetimeEpochDelta
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}
