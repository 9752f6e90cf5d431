package domain

import (
	"strings"
	"time"
)

// ActivityType enumerates the kinds of wellness activity a student can log.
type ActivityType string

const (
	ActivityTypeMeditation ActivityType = "meditation"
	ActivityTypeExercise   ActivityType = "exercise"
	ActivityTypeStrategy   ActivityType = "strategy"
)

// ActivityTypes lists the accepted types in display order.
var ActivityTypes = []ActivityType{ActivityTypeMeditation, ActivityTypeExercise, ActivityTypeStrategy}

// ParseActivityType normalises raw input and reports whether it names a known type.
func ParseActivityType(raw string) (ActivityType, bool) {
	t := ActivityType(strings.ToLower(strings.TrimSpace(raw)))
	return t, t.Valid()
}

// Valid reports whether t is one of the enumerated activity types.
func (t ActivityType) Valid() bool {
	switch t {
	case ActivityTypeMeditation, ActivityTypeExercise, ActivityTypeStrategy:
		return true
	}
	return false
}

// ActivityRecord is one logged completion of a wellness activity. Records are never mutated.
//
// A zero CompletedAt marks a completion time that could not be determined; such records still
// count as sessions but never contribute an active day to the streak.
type ActivityRecord struct {
	ID              string
	UserID          string
	Type            ActivityType
	Name            string
	Slug            string
	DurationSeconds int
	CompletedAt     time.Time
	CreatedAt       time.Time
}

var completedAtLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	time.DateOnly,
}

// ParseCompletedAt parses a completion timestamp, returning the zero time when raw is not a
// recognised layout. Values without a zone are read as UTC.
func ParseCompletedAt(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range completedAtLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC()
		}
	}
	return time.Time{}
}
