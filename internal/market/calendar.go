package market

import (
	"time"
)

// Normalize truncates a timestamp to its UTC calendar day.
func Normalize(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// IsBusinessDay reports whether the given date is a US market trading day.
func IsBusinessDay(d time.Time) bool {
	d = Normalize(d)
	if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	return !isHoliday(d)
}

// PrevBusinessDay returns the latest trading day strictly before d.
func PrevBusinessDay(d time.Time) time.Time {
	d = Normalize(d).AddDate(0, 0, -1)
	for !IsBusinessDay(d) {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// NextBusinessDay returns the earliest trading day strictly after d.
func NextBusinessDay(d time.Time) time.Time {
	d = Normalize(d).AddDate(0, 0, 1)
	for !IsBusinessDay(d) {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

// AddBusinessDays walks n trading days from d. Negative n walks backwards.
// When d itself is not a trading day the walk starts from the nearest one in
// the direction of travel.
func AddBusinessDays(d time.Time, n int) time.Time {
	d = Normalize(d)
	step := 1
	if n < 0 {
		step = -1
		n = -n
	}
	if !IsBusinessDay(d) {
		if step > 0 {
			d = NextBusinessDay(d)
		} else {
			d = PrevBusinessDay(d)
		}
	}
	for i := 0; i < n; i++ {
		if step > 0 {
			d = NextBusinessDay(d)
		} else {
			d = PrevBusinessDay(d)
		}
	}
	return d
}

// BusinessDays lists every trading day in [start, end], inclusive on both ends.
func BusinessDays(start, end time.Time) []time.Time {
	start = Normalize(start)
	end = Normalize(end)
	days := make([]time.Time, 0, int(end.Sub(start).Hours()/24)+1)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if IsBusinessDay(d) {
			days = append(days, d)
		}
	}
	return days
}

// BusinessDaysBetween counts trading days in [start, end).
func BusinessDaysBetween(start, end time.Time) int {
	start = Normalize(start)
	end = Normalize(end)
	if !start.Before(end) {
		return 0
	}
	count := 0
	for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
		if IsBusinessDay(d) {
			count++
		}
	}
	return count
}

// isHoliday tests d against the US market holiday schedule:
// https://www.nyse.com/markets/hours-calendars
func isHoliday(d time.Time) bool {
	for _, h := range holidays(d.Year()) {
		if h.Equal(d) {
			return true
		}
	}
	return false
}

func holidays(year int) []time.Time {
	hs := []time.Time{
		sundayToMonday(time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)),
		nthWeekday(year, time.January, time.Monday, 3),  // Martin Luther King Jr. Day
		nthWeekday(year, time.February, time.Monday, 3), // Presidents' Day
		goodFriday(year),
		lastWeekday(year, time.May, time.Monday), // Memorial Day
		nearestWorkday(time.Date(year, time.July, 4, 0, 0, 0, 0, time.UTC)),
		nthWeekday(year, time.September, time.Monday, 1),   // Labor Day
		nthWeekday(year, time.November, time.Thursday, 4),  // Thanksgiving
		nearestWorkday(time.Date(year, time.December, 25, 0, 0, 0, 0, time.UTC)),
	}
	// US markets first observed Juneteenth in 2022.
	if year >= 2022 {
		hs = append(hs, nearestWorkday(time.Date(year, time.June, 19, 0, 0, 0, 0, time.UTC)))
	}
	return hs
}

func nearestWorkday(d time.Time) time.Time {
	switch d.Weekday() {
	case time.Saturday:
		return d.AddDate(0, 0, -1)
	case time.Sunday:
		return d.AddDate(0, 0, 1)
	}
	return d
}

func sundayToMonday(d time.Time) time.Time {
	if d.Weekday() == time.Sunday {
		return d.AddDate(0, 0, 1)
	}
	return d
}

func nthWeekday(year int, month time.Month, weekday time.Weekday, n int) time.Time {
	d := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	offset := (int(weekday) - int(d.Weekday()) + 7) % 7
	return d.AddDate(0, 0, offset+(n-1)*7)
}

func lastWeekday(year int, month time.Month, weekday time.Weekday) time.Time {
	d := time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
	offset := (int(d.Weekday()) - int(weekday) + 7) % 7
	return d.AddDate(0, 0, -offset)
}

// goodFriday is two days before Easter Sunday (anonymous Gregorian algorithm).
func goodFriday(year int) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	easter := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	return easter.AddDate(0, 0, -2)
}
