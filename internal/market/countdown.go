package market

// FallbackIntervalSeconds is used when an interval tag is not
// recognized. Matches the 30m default chart interval.
const FallbackIntervalSeconds = 1800

var intervalSeconds = map[string]int64{
	"1m":  60,
	"3m":  180,
	"5m":  300,
	"15m": 900,
	"30m": 1800,
	"1h":  3600,
	"2h":  7200,
	"4h":  14400,
	"6h":  21600,
	"8h":  28800,
	"12h": 43200,
	"1d":  86400,
	"3d":  259200,
	"1w":  604800,
}

// IntervalSeconds maps an interval tag to its period length in seconds.
// Unknown tags fall back to FallbackIntervalSeconds rather than failing.
func IntervalSeconds(tag string) int64 {
	if sec, ok := intervalSeconds[tag]; ok {
		return sec
	}
	return FallbackIntervalSeconds
}

// KnownInterval reports whether tag is one of the recognized interval
// tags.
func KnownInterval(tag string) bool {
	_, ok := intervalSeconds[tag]
	return ok
}

// SecondsToClose returns the seconds remaining until the current period
// ends. When lastOpenUnix is positive the boundary is anchored on the
// latest known period start; otherwise it is the next multiple of the
// interval after nowUnix. Both arguments are UTC epoch seconds. Never
// negative: 0 means the boundary has passed and the next update is
// pending.
func SecondsToClose(intervalSec, nowUnix, lastOpenUnix int64) int64 {
	if intervalSec <= 0 {
		return 0
	}
	next := lastOpenUnix + intervalSec
	if lastOpenUnix <= 0 {
		next = (nowUnix/intervalSec + 1) * intervalSec
	}
	if remain := next - nowUnix; remain > 0 {
		return remain
	}
	return 0
}
