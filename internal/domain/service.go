// Package domain defines the business logic for the activity signup service.
package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"example.com/signup/internal/ctxlog"
	"example.com/signup/internal/events"
	"example.com/signup/internal/observability"
)

// Operation names used for metrics and events.
const (
	OperationSignup     = "signup"
	OperationUnregister = "unregister"
)

// EventPublisher receives membership events after a roster changes.
type EventPublisher interface {
	Publish(ctx context.Context, event events.MembershipChanged) error
}

// NoopPublisher discards events.
type NoopPublisher struct{}

// Publish performs no action.
func (NoopPublisher) Publish(context.Context, events.MembershipChanged) error { return nil }

// Service orchestrates signup workflows on top of the Directory.
type Service struct {
	directory *Directory
	publisher EventPublisher
	now       func() time.Time
}

// NewService constructs a Service. A nil publisher discards events.
func NewService(directory *Directory, publisher EventPublisher) *Service {
	if publisher == nil {
		publisher = NoopPublisher{}
	}
	s := &Service{
		directory: directory,
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for name, activity := range directory.List() {
		observability.RecordRosterSize(name, len(activity.Participants))
	}
	return s
}

// ListActivities returns every activity keyed by name.
func (s *Service) ListActivities(ctx context.Context) map[string]Activity {
	return s.directory.List()
}

// Signup registers email for the named activity.
func (s *Service) Signup(ctx context.Context, activity, email string) (string, error) {
	change, err := s.directory.Signup(activity, email)
	if err != nil {
		observability.RecordRejection(OperationSignup, reason(err))
		return "", err
	}
	s.recordChange(ctx, events.TypeSignedUp, OperationSignup, activity, email, change)
	return fmt.Sprintf("Signed up %s for %s", email, activity), nil
}

// Unregister removes email from the named activity.
func (s *Service) Unregister(ctx context.Context, activity, email string) (string, error) {
	change, err := s.directory.Unregister(activity, email)
	if err != nil {
		observability.RecordRejection(OperationUnregister, reason(err))
		return "", err
	}
	s.recordChange(ctx, events.TypeUnregistered, OperationUnregister, activity, email, change)
	return fmt.Sprintf("Unregistered %s from %s", email, activity), nil
}

func (s *Service) recordChange(ctx context.Context, eventType, operation, activity, email string, change Change) {
	observability.RecordMembershipChange(activity, operation, change.Count)

	event := events.MembershipChanged{
		EventID:          uuid.NewString(),
		EventType:        eventType,
		Activity:         activity,
		Email:            email,
		OccurredAt:       s.now(),
		ParticipantCount: change.Count,
		RosterVersion:    change.Version,
	}
	// The roster is already updated; a lost event is logged, not surfaced.
	if err := s.publisher.Publish(ctx, event); err != nil {
		observability.RecordPublishFailure(eventType)
		ctxlog.FromContext(ctx).Warn("membership event not published",
			"event_type", eventType, "activity", activity, "error", err)
	}
}

func reason(err error) string {
	switch {
	case errors.Is(err, ErrActivityNotFound):
		return "activity_not_found"
	case errors.Is(err, ErrAlreadyRegistered):
		return "already_registered"
	case errors.Is(err, ErrNotRegistered):
		return "not_registered"
	default:
		return "unknown"
	}
}
