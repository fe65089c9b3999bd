package packet

import "math"

// NTP timestamps are 64-bit fixed-point values: seconds since 1900 in the
// upper 32 bits, fractional seconds in the lower 32. Conversions to and
// from Unix nanoseconds saturate instead of wrapping.

// Seconds between the NTP epoch (1900) and the Unix epoch (1970).
const ntpUnixOffset = 2208988800

// UnixNsToNTP converts Unix nanoseconds to an NTP timestamp. Times before
// the Unix epoch saturate to zero; times past the NTP range saturate to the
// maximum.
func UnixNsToNTP(ns int64) uint64 {
	if ns < 0 {
		return 0
	}
	sec := uint64(ns/1e9) + ntpUnixOffset
	if sec > math.MaxUint32 {
		return math.MaxUint64
	}
	frac := (uint64(ns%1e9) << 32) / 1e9
	return sec<<32 | frac
}

// NTPToUnixNs converts an NTP timestamp to Unix nanoseconds. Times before
// the Unix epoch saturate to zero.
func NTPToUnixNs(ntp uint64) int64 {
	sec := ntp >> 32
	if sec < ntpUnixOffset {
		return 0
	}
	unixSec := sec - ntpUnixOffset
	if unixSec > math.MaxInt64/1000000000-1 {
		return math.MaxInt64
	}
	frac := ntp & 0xffffffff
	ns := (frac*1e9 + (1 << 31)) >> 32
	return int64(unixSec)*1e9 + int64(ns)
}
