package outbox

const membershipChangedSchema = `{
  "type": "object",
  "title": "MembershipChanged",
  "properties": {
    "event_id": {"type": "string"},
    "event_type": {"type": "string", "enum": ["participant.signed_up", "participant.unregistered"]},
    "activity": {"type": "string"},
    "email": {"type": "string"},
    "occurred_at": {"type": "string", "format": "date-time"},
    "participant_count": {"type": "integer", "minimum": 0},
    "roster_version": {"type": "integer", "minimum": 1}
  },
  "required": ["event_id", "event_type", "activity", "email", "occurred_at", "participant_count", "roster_version"],
  "additionalProperties": false
}`
