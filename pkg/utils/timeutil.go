package utils

import (
	"regexp"
	"strings"
	"time"
)

// IST is the Indian Standard Time location (UTC+5:30).
var IST *time.Location

func init() {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		// no tz database
		loc = time.FixedZone("IST", 5*60*60+30*60)
	}
	IST = loc
}

// NowIST returns the current time in IST.
func NowIST() time.Time {
	return time.Now().In(IST)
}

// Phase is a segment of the NSE trading day.
type Phase string

const (
	PhaseWeekend   Phase = "WEEKEND"
	PhaseHoliday   Phase = "HOLIDAY"
	PhasePreMarket Phase = "PRE-MARKET"
	PhasePreOpen   Phase = "PRE-OPEN SESSION" // 9:00 to 9:15 order collection
	PhaseOpen      Phase = "OPEN"             // 9:15 to 15:30 inclusive
	PhaseClosed    Phase = "CLOSED"
)

// clock returns h:m on the IST calendar day of t.
func clock(t time.Time, h, m int) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), h, m, 0, 0, IST)
}

// PhaseAt returns the trading phase at t. For PhaseHoliday the holiday name
// is returned as well.
func PhaseAt(t time.Time) (Phase, string) {
	t = t.In(IST)
	if wd := t.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return PhaseWeekend, ""
	}
	if name, ok := nseHolidays[t.Format("2006-01-02")]; ok {
		return PhaseHoliday, name
	}
	switch {
	case t.Before(clock(t, 9, 0)):
		return PhasePreMarket, ""
	case t.Before(clock(t, 9, 15)):
		return PhasePreOpen, ""
	case !t.After(clock(t, 15, 30)):
		return PhaseOpen, ""
	}
	return PhaseClosed, ""
}

// IsMarketOpenAt reports whether continuous trading is running at t.
func IsMarketOpenAt(t time.Time) bool {
	p, _ := PhaseAt(t)
	return p == PhaseOpen
}

// MarketStatusAt describes the trading phase at t, e.g. "OPEN" or
// "CLOSED (Diwali (Laxmi Pujan))".
func MarketStatusAt(t time.Time) string {
	switch p, name := PhaseAt(t); p {
	case PhaseWeekend:
		return "CLOSED (Weekend)"
	case PhaseHoliday:
		return "CLOSED (" + name + ")"
	default:
		return string(p)
	}
}

// nseHolidays lists exchange holidays on weekdays, keyed by IST date.
var nseHolidays = map[string]string{
	"2026-01-26": "Republic Day",
	"2026-02-17": "Mahashivratri",
	"2026-03-10": "Holi",
	"2026-03-30": "Id-ul-Fitr (Ramadan)",
	"2026-04-02": "Ram Navami",
	"2026-04-03": "Good Friday",
	"2026-04-14": "Dr. Ambedkar Jayanti",
	"2026-05-01": "Maharashtra Day",
	"2026-05-25": "Buddha Purnima",
	"2026-06-05": "Id-ul-Zuha (Bakri Id)",
	"2026-07-06": "Muharram",
	"2026-08-18": "Parsi New Year",
	"2026-09-04": "Milad-un-Nabi",
	"2026-10-02": "Mahatma Gandhi Jayanti",
	"2026-10-20": "Dussehra",
	"2026-11-09": "Diwali (Laxmi Pujan)",
	"2026-11-10": "Diwali (Balipratipada)",
	"2026-11-30": "Guru Nanak Jayanti",
	"2026-12-25": "Christmas",
}

// snapshotTimeLayout is the scraper's IST wall-clock timestamp, e.g. "9:16:20 AM".
const snapshotTimeLayout = "3:04:05 PM"

// SnapshotTimestamp formats t the way scraped snapshots are stamped.
func SnapshotTimestamp(t time.Time) string {
	return t.In(IST).Format(snapshotTimeLayout)
}

var clockLabel = regexp.MustCompile(`^(\d{1,2}:\d{2})(?::\d{2})?\s*([AaPp][Mm])?$`)

// NormalizeTimeLabel shortens a snapshot timestamp to hours and minutes for
// axis and table labels: "9:16:20 AM" → "9:16 AM". RFC 3339 timestamps are
// shown in IST. Anything else is returned trimmed.
func NormalizeTimeLabel(ts string) string {
	ts = strings.TrimSpace(ts)
	if m := clockLabel.FindStringSubmatch(ts); m != nil {
		if m[2] == "" {
			return m[1]
		}
		return m[1] + " " + strings.ToUpper(m[2])
	}
	if t, err := time.Parse(time.RFC3339, ts); err == nil {
		return t.In(IST).Format("3:04 PM")
	}
	return ts
}
