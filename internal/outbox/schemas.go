package outbox

import "example.com/wellness/internal/events"

const activityLoggedSchema = `{
  "type": "object",
  "title": "ActivityLogged",
  "properties": {
    "activity_id": {"type": "string"},
    "user_id": {"type": "string"},
    "type": {"type": "string", "enum": ["meditation", "exercise", "strategy"]},
    "name": {"type": "string"},
    "slug": {"type": "string"},
    "duration_seconds": {"type": "integer", "minimum": 0},
    "completed_at": {"type": "string", "format": "date-time"}
  },
  "required": ["activity_id", "user_id", "type", "name", "slug", "duration_seconds", "completed_at"],
  "additionalProperties": false
}`

// SchemaCatalogEntry maps event type to schema definition.
type SchemaCatalogEntry struct {
	Schema string
}

var schemaCatalog = map[string]SchemaCatalogEntry{
	events.EventActivityLogged: {Schema: activityLoggedSchema},
}
