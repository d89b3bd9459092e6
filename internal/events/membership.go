// Package events defines the membership event payloads shared by the API and consumer.
package events

import "time"

// Event types emitted when a roster changes.
const (
	TypeSignedUp     = "participant.signed_up"
	TypeUnregistered = "participant.unregistered"
)

// MembershipChanged is emitted after a participant joins or leaves an activity.
// RosterVersion orders events for one activity; a higher version always
// describes a later roster.
type MembershipChanged struct {
	EventID          string    `json:"event_id"`
	EventType        string    `json:"event_type"`
	Activity         string    `json:"activity"`
	Email            string    `json:"email"`
	OccurredAt       time.Time `json:"occurred_at"`
	ParticipantCount int       `json:"participant_count"`
	RosterVersion    uint64    `json:"roster_version"`
}

// SubjectForTopic returns the Schema Registry subject holding a topic's value schema.
func SubjectForTopic(topic string) string {
	return topic + "-value"
}
