package profile

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"capsulemail/internal/model"
)

const dateOnly = "2006-01-02"

// parseBirthday reads a date-only "YYYY-MM-DD" birthday as UTC midnight.
// Date-only strings keep day math stable across timezones and DST shifts.
func parseBirthday(birthday string) (time.Time, error) {
	return time.Parse(dateOnly, birthday)
}

// DayNumber counts days of life as of now, with the birth day itself as day 1.
func DayNumber(birthday string, now time.Time) (int, error) {
	birth, err := parseBirthday(birthday)
	if err != nil {
		return 0, fmt.Errorf("parse birthday %q: %w", birthday, err)
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return int(today.Sub(birth).Hours()/24) + 1, nil
}

// AgeString renders an age like "2 months" or "1 year, 3 months". Years are
// omitted entirely below the first birthday.
func AgeString(birthday string, now time.Time) (string, error) {
	birth, err := parseBirthday(birthday)
	if err != nil {
		return "", fmt.Errorf("parse birthday %q: %w", birthday, err)
	}

	years := now.Year() - birth.Year()
	months := int(now.Month()) - int(birth.Month())
	if months < 0 {
		years--
		months += 12
	}
	if now.Day() < birth.Day() {
		months--
		if months < 0 {
			years--
			months += 12
		}
	}

	if years == 0 {
		return plural(months, "month"), nil
	}
	return plural(years, "year") + ", " + plural(months, "month"), nil
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

// NewEntry freezes a capsule entry for the given child at composition time:
// recipient fields, day number, age, subject, and body are all fixed now so a
// later profile edit never repoints or rewords a queued entry.
func NewEntry(child model.ChildProfile, text string, photoURIs []string, now time.Time) (model.CapsuleEntry, error) {
	day, err := DayNumber(child.Birthday, now)
	if err != nil {
		return model.CapsuleEntry{}, err
	}
	age, err := AgeString(child.Birthday, now)
	if err != nil {
		return model.CapsuleEntry{}, err
	}

	return model.CapsuleEntry{
		ID:         uuid.NewString(),
		ChildID:    child.ID,
		ChildName:  child.Name,
		ChildEmail: child.Email,
		Text:       text,
		PhotoURIs:  photoURIs,
		CreatedAt:  now.UTC().Format(time.RFC3339),
		Status:     model.StatusPending,
		DayNumber:  day,
		Age:        age,
		Subject:    fmt.Sprintf("Day %d — a note for %s", day, child.Name),
		Body:       fmt.Sprintf("Day %d • Age %s\n\n%s\n\n#timecapsule", day, age, text),
	}, nil
}
