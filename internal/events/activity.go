// Package events defines the payloads the activity service publishes.
package events

import "time"

// ActivityLogged represents the message emitted when a student completes a wellness activity.
type ActivityLogged struct {
	ActivityID      string    `json:"activity_id"`
	UserID          string    `json:"user_id"`
	Type            string    `json:"type"`
	Name            string    `json:"name"`
	Slug            string    `json:"slug"`
	DurationSeconds int       `json:"duration_seconds"`
	CompletedAt     time.Time `json:"completed_at"`
}

// EventActivityLogged is the event type header for ActivityLogged payloads.
const EventActivityLogged = "activity.logged"
