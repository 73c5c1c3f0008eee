package outbox

import "example.com/activitysync/internal/events"

const syncRequestedSchema = `{
  "type": "object",
  "title": "SyncRequested",
  "properties": {
    "sync_run_id": {"type": "string"},
    "athlete_id": {"type": "string"},
    "provider": {"type": "string"},
    "after": {"type": "string", "format": "date-time"},
    "external_activity_id": {"type": "string"}
  },
  "required": ["sync_run_id", "athlete_id", "provider"],
  "additionalProperties": false
}`

const syncCompletedSchema = `{
  "type": "object",
  "title": "SyncCompleted",
  "properties": {
    "sync_run_id": {"type": "string"},
    "athlete_id": {"type": "string"},
    "provider": {"type": "string"},
    "status": {"type": "string", "enum": ["success", "failed"]},
    "activity_count": {"type": "integer"},
    "linked_count": {"type": "integer"},
    "reason": {"type": "string"},
    "finished_at": {"type": "string", "format": "date-time"}
  },
  "required": ["sync_run_id", "athlete_id", "provider", "status", "activity_count", "linked_count", "finished_at"],
  "additionalProperties": false
}`

// schemaCatalog maps an event type to the JSON schema registered for it.
var schemaCatalog = map[string]string{
	events.SyncRequestedType: syncRequestedSchema,
	events.SyncCompletedType: syncCompletedSchema,
}
