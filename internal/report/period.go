package report

import "time"

const dateLayout = "2006-01-02"

// WeekRange returns Monday through Friday of the ISO week containing ref.
// Weekends fall outside the range even when daily data exists for them.
func WeekRange(ref time.Time) (string, string) {
	weekday := int(ref.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	monday := ref.AddDate(0, 0, 1-weekday)
	friday := monday.AddDate(0, 0, 4)
	return monday.Format(dateLayout), friday.Format(dateLayout)
}

// MonthRange returns the first and last calendar day of ref's month.
func MonthRange(ref time.Time) (string, string) {
	first := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, ref.Location())
	last := first.AddDate(0, 1, -1)
	return first.Format(dateLayout), last.Format(dateLayout)
}

// ParseDate parses a YYYY-MM-DD reference date.
func ParseDate(v string) (time.Time, error) {
	return time.Parse(dateLayout, v)
}
