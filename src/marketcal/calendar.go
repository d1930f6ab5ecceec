package marketcal

import "time"

const (
	DaysPerWeek          = 7
	OffsetDaysForHoliday = 1
	ThirdMondayOffset    = 2
	FourthThursdayOffset = 3

	openHour    = 9
	openMinute  = 30
	closeHour   = 16
	closeMinute = 0
)

// IsMarketOpen reports whether the NYSE regular session is open at t.
// It is a pure function of the timestamp: weekends, US market holidays
// and anything outside 09:30-16:00 Eastern are closed.
func IsMarketOpen(t time.Time) bool {
	et := getEasternTime(t)

	if et.Weekday() == time.Saturday || et.Weekday() == time.Sunday {
		return false
	}
	if isHoliday(et) {
		return false
	}

	minutes := et.Hour()*60 + et.Minute()
	open := openHour*60 + openMinute
	close := closeHour*60 + closeMinute

	return minutes >= open && minutes < close
}

func getEasternTime(t time.Time) time.Time {
	nyLocation, err := time.LoadLocation("America/New_York")
	if err != nil {
		return t.UTC()
	}
	return t.In(nyLocation)
}

func isHoliday(t time.Time) bool {
	year := t.Year()

	// Calculate New Year's Day, adjusted for being on a Sunday
	newYearsDay := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	if newYearsDay.Weekday() == time.Sunday {
		newYearsDay = newYearsDay.AddDate(0, 0, OffsetDaysForHoliday)
	}

	// Martin Luther King Jr. Day and Presidents' Day calculation
	mlkDay := calculateSpecificMonday(year, time.January, ThirdMondayOffset)
	presidentsDay := calculateSpecificMonday(year, time.February, ThirdMondayOffset)

	// Memorial Day
	memorialDay := time.Date(year, time.May, 31, 0, 0, 0, 0, time.UTC)
	for memorialDay.Weekday() != time.Monday {
		memorialDay = memorialDay.AddDate(0, 0, -1)
	}

	// Juneteenth
	juneteenth := observedHoliday(time.Date(year, time.June, 19, 0, 0, 0, 0, time.UTC))

	// Independence Day
	independenceDay := observedHoliday(time.Date(year, time.July, 4, 0, 0, 0, 0, time.UTC))

	// Labor Day
	laborDay := calculateSpecificMonday(year, time.September, 0)

	// Thanksgiving Day
	thanksgivingDay := calculateSpecificThursday(year, time.November, FourthThursdayOffset)

	// Christmas Day
	christmasDay := observedHoliday(time.Date(year, time.December, 25, 0, 0, 0, 0, time.UTC))

	holidays := []time.Time{
		newYearsDay,
		mlkDay,
		presidentsDay,
		memorialDay,
		juneteenth,
		independenceDay,
		laborDay,
		thanksgivingDay,
		christmasDay,
	}
	return isDateAmong(t, holidays)
}

// observedHoliday shifts a fixed-date holiday to the nearest weekday
// when it lands on a weekend.
func observedHoliday(d time.Time) time.Time {
	switch d.Weekday() {
	case time.Saturday:
		return d.AddDate(0, 0, -OffsetDaysForHoliday)
	case time.Sunday:
		return d.AddDate(0, 0, OffsetDaysForHoliday)
	default:
		return d
	}
}

// calculateSpecificMonday calculates the specific Monday of a month (like the third Monday).
func calculateSpecificMonday(year int, month time.Month, mondayOffset int) time.Time {
	firstOfMonth := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	offset := int(time.Monday-firstOfMonth.Weekday()+DaysPerWeek) % DaysPerWeek
	return firstOfMonth.AddDate(0, 0, offset+mondayOffset*DaysPerWeek)
}

// calculateSpecificThursday calculates the specific Thursday of a month (like the fourth Thursday).
func calculateSpecificThursday(year int, month time.Month, thursdayOffset int) time.Time {
	firstOfMonth := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	offset := int(time.Thursday-firstOfMonth.Weekday()+DaysPerWeek) % DaysPerWeek
	return firstOfMonth.AddDate(0, 0, offset+thursdayOffset*DaysPerWeek)
}

// isDateAmong checks if the given date matches any date in the list.
func isDateAmong(t time.Time, dates []time.Time) bool {
	for _, d := range dates {
		if t.Format("2006-01-02") == d.Format("2006-01-02") {
			return true
		}
	}
	return false
}
