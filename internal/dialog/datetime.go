package dialog

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Natural-language date and time normalization. Ambiguity resolves
// deterministically: yearless dates snap to their soonest future
// occurrence, and a bare hour between 1 and 7 is read as afternoon,
// since clinic hours make "at 3" mean 15:00.

var (
	isoDateRE   = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	monthDayRE  = regexp.MustCompile(`(?i)\b(jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|jun(?:e)?|jul(?:y)?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)\.?\s+(\d{1,2})(?:st|nd|rd|th)?\b`)
	dayMonthRE  = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?\s+(?:of\s+)?(jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|jun(?:e)?|jul(?:y)?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)\b`)
	weekdayRE   = regexp.MustCompile(`(?i)\b(?:(next)\s+)?(sun(?:day)?|mon(?:day)?|tue(?:s(?:day)?)?|wed(?:nesday)?|thu(?:rs(?:day)?)?|fri(?:day)?|sat(?:urday)?)\b`)
	clockTimeRE = regexp.MustCompile(`(?i)\b(\d{1,2})(?::(\d{2}))?\s*(am|pm|a\.m\.|p\.m\.)?\b`)
)

var monthsByPrefix = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

var weekdaysByPrefix = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday,
	"wed": time.Wednesday, "thu": time.Thursday, "fri": time.Friday,
	"sat": time.Saturday,
}

// NormalizedDate is a resolved calendar day plus whether resolution
// required a default (which demotes provenance to inferred).
type NormalizedDate struct {
	Day      time.Time
	Inferred bool
}

// NormalizeDate resolves a free-text date expression relative to now.
func NormalizeDate(text string, now time.Time) (NormalizedDate, bool) {
	lowered := strings.ToLower(strings.TrimSpace(text))
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	switch {
	case strings.Contains(lowered, "day after tomorrow"):
		return NormalizedDate{Day: today.AddDate(0, 0, 2)}, true
	case strings.Contains(lowered, "tomorrow"):
		return NormalizedDate{Day: today.AddDate(0, 0, 1)}, true
	case strings.Contains(lowered, "today"):
		return NormalizedDate{Day: today}, true
	}

	if m := isoDateRE.FindStringSubmatch(lowered); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, now.Location())
		if d.Month() == time.Month(month) && d.Day() == day {
			return NormalizedDate{Day: d}, true
		}
		return NormalizedDate{}, false
	}

	if m := monthDayRE.FindStringSubmatch(lowered); m != nil {
		return resolveMonthDay(m[1], m[2], today)
	}
	if m := dayMonthRE.FindStringSubmatch(lowered); m != nil {
		return resolveMonthDay(m[2], m[1], today)
	}

	if m := weekdayRE.FindStringSubmatch(lowered); m != nil {
		wd, ok := weekdaysByPrefix[strings.ToLower(m[2])[:3]]
		if !ok {
			return NormalizedDate{}, false
		}
		days := (int(wd) - int(today.Weekday()) + 7) % 7
		if days == 0 {
			days = 7
		}
		if strings.EqualFold(m[1], "next") && days <= 3 {
			days += 7
		}
		return NormalizedDate{Day: today.AddDate(0, 0, days), Inferred: true}, true
	}

	return NormalizedDate{}, false
}

// resolveMonthDay applies the soonest-future policy for yearless dates:
// a month/day already past this year means next year.
func resolveMonthDay(monthText, dayText string, today time.Time) (NormalizedDate, bool) {
	month, ok := monthsByPrefix[strings.ToLower(monthText)[:3]]
	if !ok {
		return NormalizedDate{}, false
	}
	day, err := strconv.Atoi(dayText)
	if err != nil || day < 1 || day > 31 {
		return NormalizedDate{}, false
	}

	d := time.Date(today.Year(), month, day, 0, 0, 0, 0, today.Location())
	if d.Month() != month || d.Day() != day {
		return NormalizedDate{}, false
	}
	inferred := false
	if d.Before(today) {
		d = d.AddDate(1, 0, 0)
		inferred = true
	}
	return NormalizedDate{Day: d, Inferred: inferred}, true
}

// NormalizedTime is a resolved clock time plus whether an AM/PM default
// was applied.
type NormalizedTime struct {
	Hour     int
	Minute   int
	Inferred bool
}

// NormalizeTime resolves a free-text time expression to a clock time.
func NormalizeTime(text string) (NormalizedTime, bool) {
	lowered := strings.ToLower(strings.TrimSpace(text))

	switch {
	case strings.Contains(lowered, "noon"):
		return NormalizedTime{Hour: 12}, true
	case strings.Contains(lowered, "morning") && !clockTimeRE.MatchString(lowered):
		return NormalizedTime{Hour: 9, Inferred: true}, true
	case strings.Contains(lowered, "afternoon") && !clockTimeRE.MatchString(lowered):
		return NormalizedTime{Hour: 14, Inferred: true}, true
	}

	matches := clockTimeRE.FindAllStringSubmatch(lowered, -1)
	if len(matches) == 0 {
		return NormalizedTime{}, false
	}
	// Prefer the first number carrying an am/pm marker over a bare one.
	m := matches[0]
	for _, cand := range matches {
		if cand[3] != "" {
			m = cand
			break
		}
	}
	hour, err := strconv.Atoi(m[1])
	if err != nil || hour > 23 {
		return NormalizedTime{}, false
	}
	minute := 0
	if m[2] != "" {
		minute, err = strconv.Atoi(m[2])
		if err != nil || minute > 59 {
			return NormalizedTime{}, false
		}
	}

	meridiem := strings.ReplaceAll(m[3], ".", "")
	switch meridiem {
	case "pm", "p":
		if hour < 12 {
			hour += 12
		}
		return NormalizedTime{Hour: hour, Minute: minute}, true
	case "am", "a":
		if hour == 12 {
			hour = 0
		}
		return NormalizedTime{Hour: hour, Minute: minute}, true
	}

	// No meridiem: hours 1-7 default to the afternoon block.
	if hour >= 1 && hour <= 7 {
		return NormalizedTime{Hour: hour + 12, Minute: minute, Inferred: true}, true
	}
	return NormalizedTime{Hour: hour, Minute: minute}, true
}

// CombineDateTime joins a resolved day and clock time into one instant.
func CombineDateTime(day time.Time, t NormalizedTime) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour, t.Minute, 0, 0, day.Location())
}
