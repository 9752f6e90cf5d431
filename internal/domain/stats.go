package domain

import (
	"math"
	"sort"
	"time"
)

const secondsPerDay = 24 * 60 * 60

// ActivityStats summarises a single user's activity history. It is derived on every request
// and never stored.
type ActivityStats struct {
	TotalSessions   int `json:"totalSessions"`
	TotalMinutes    int `json:"totalMinutes"`
	MeditationCount int `json:"meditationCount"`
	ExerciseCount   int `json:"exerciseCount"`
	StrategyCount   int `json:"strategyCount"`
	Streak          int `json:"streak"`
}

// ComputeStats derives ActivityStats from one user's records as of now.
//
// Day boundaries are taken in UTC for both the records and now, whatever zone the inputs carry.
// Total minutes are rounded half away from zero, so 90 seconds is 2 minutes. Records with an
// unknown type count toward sessions and minutes but toward no category. Records with a zero
// CompletedAt contribute no active day. Negative durations count as zero.
//
// The streak is the number of consecutive active days ending at the most recent one, and is
// only alive when that day is today or yesterday.
func ComputeStats(records []ActivityRecord, now time.Time) ActivityStats {
	stats := ActivityStats{TotalSessions: len(records)}
	if len(records) == 0 {
		return stats
	}

	var totalSeconds int64
	activeDays := make(map[int64]struct{}, len(records))
	for _, rec := range records {
		if rec.DurationSeconds > 0 {
			totalSeconds += int64(rec.DurationSeconds)
		}

		switch rec.Type {
		case ActivityTypeMeditation:
			stats.MeditationCount++
		case ActivityTypeExercise:
			stats.ExerciseCount++
		case ActivityTypeStrategy:
			stats.StrategyCount++
		}

		if rec.CompletedAt.IsZero() {
			continue
		}
		activeDays[dayNumber(rec.CompletedAt)] = struct{}{}
	}

	stats.TotalMinutes = int(math.Round(float64(totalSeconds) / 60))
	stats.Streak = currentStreak(activeDays, dayNumber(now))
	return stats
}

func currentStreak(activeDays map[int64]struct{}, today int64) int {
	if len(activeDays) == 0 {
		return 0
	}

	days := make([]int64, 0, len(activeDays))
	for day := range activeDays {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i] > days[j] })

	if latest := days[0]; latest != today && latest != today-1 {
		return 0
	}

	streak := 1
	for i := 1; i < len(days); i++ {
		if days[i-1]-days[i] != 1 {
			break
		}
		streak++
	}
	return streak
}

// dayNumber returns the count of whole UTC days between the Unix epoch and ts.
func dayNumber(ts time.Time) int64 {
	u := ts.UTC()
	midnight := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return midnight.Unix() / secondsPerDay
}
