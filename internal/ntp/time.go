package ntp

import (
	"math"
	"time"

	"golang.org/x/sys/unix"
)

const (
	EraLength   int64   = 4_294_967_296 // 2^32
	ShortLength float64 = 65536         // 2^16

	// MaxSeconds is the largest seconds value handed out on the wire (2^32 - 2).
	MaxSeconds float64 = 4_294_967_294
)

// EpochDelta returns the number of seconds between the NTP epoch
// (1900-01-01) and the unix epoch, derived from the calendar day count.
func EpochDelta() float64 {
	ntpEpoch := time.Date(1900, time.January, 1, 0, 0, 0, 0, time.UTC)
	unixEpoch := time.Unix(0, 0).UTC()
	days := int64(unixEpoch.Sub(ntpEpoch).Hours()) / 24
	return float64(days * 24 * 3600)
}

// SplitTimestamp packs a real-valued timestamp into its seconds and
// fraction words. The fraction is truncated, never rounded.
func SplitTimestamp(t float64) (uint32, uint32) {
	whole := math.Trunc(t)
	frac := math.Abs(t-whole) * float64(EraLength)
	return uint32(int64(whole)), uint32(frac)
}

func JoinTimestamp(sec, frac uint32) float64 {
	return float64(sec) + float64(frac)/float64(EraLength)
}

// EncodeShort packs a small real value as 16.16 fixed point.
func EncodeShort(d float64) ShortEncoded {
	whole := math.Trunc(d)
	frac := math.Abs(d-whole) * ShortLength
	return ShortEncoded(uint32(int64(whole))<<16 | uint32(frac)&0xffff)
}

func DecodeShort(s ShortEncoded) float64 {
	return float64(s) / ShortLength
}

// SystemTime reads CLOCK_REALTIME directly.
func SystemTime() time.Time {
	var now unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_REALTIME, &now); err != nil {
		return time.Now()
	}
	return time.Unix(now.Unix())
}

// SecondsToTime converts a unix-epoch real timestamp into a time.Time.
func SecondsToTime(t float64) time.Time {
	sec, frac := math.Modf(t)
	return time.Unix(int64(sec), int64(frac*1e9))
}
