package domain

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"example.com/signup/internal/events"
)

// metricValue reads a counter or gauge sample from the default registry.
// Missing series read as zero.
func metricValue(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			if !labelsMatch(metric, labels) {
				continue
			}
			switch family.GetType() {
			case dto.MetricType_COUNTER:
				return metric.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				return metric.GetGauge().GetValue()
			}
		}
	}
	return 0
}

func labelsMatch(metric *dto.Metric, want map[string]string) bool {
	if len(metric.GetLabel()) != len(want) {
		return false
	}
	for _, pair := range metric.GetLabel() {
		if want[pair.GetName()] != pair.GetValue() {
			return false
		}
	}
	return true
}

type recordingPublisher struct {
	events []events.MembershipChanged
	err    error
}

func (r *recordingPublisher) Publish(_ context.Context, event events.MembershipChanged) error {
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, event)
	return nil
}

func TestServiceSignupMessageAndEvent(t *testing.T) {
	changes := map[string]string{"activity": "Basketball Team", "operation": OperationSignup}
	before := metricValue(t, "signup_service_directory_membership_changes_total", changes)
	publisher := &recordingPublisher{}
	service := NewService(seedDirectory(), publisher)
	fixed := time.Date(2025, time.September, 2, 8, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return fixed }

	msg, err := service.Signup(context.Background(), "Basketball Team", "alice@mergington.edu")
	require.NoError(t, err)
	require.Equal(t, "Signed up alice@mergington.edu for Basketball Team", msg)

	require.Len(t, publisher.events, 1)
	event := publisher.events[0]
	require.Equal(t, events.TypeSignedUp, event.EventType)
	require.Equal(t, "Basketball Team", event.Activity)
	require.Equal(t, "alice@mergington.edu", event.Email)
	require.Equal(t, 1, event.ParticipantCount)
	require.Equal(t, uint64(1), event.RosterVersion)
	require.Equal(t, fixed, event.OccurredAt)
	require.NotEmpty(t, event.EventID)

	require.Equal(t, before+1, metricValue(t, "signup_service_directory_membership_changes_total", changes))
	require.Equal(t, float64(1), metricValue(t, "signup_service_directory_roster_size", map[string]string{"activity": "Basketball Team"}))
}

func TestServiceSeedsRosterSizeGauge(t *testing.T) {
	NewService(seedDirectory(), nil)

	require.Equal(t, float64(2), metricValue(t, "signup_service_directory_roster_size", map[string]string{"activity": "Chess Club"}))
}

func TestServiceEventsCarryIncreasingVersions(t *testing.T) {
	publisher := &recordingPublisher{}
	service := NewService(seedDirectory(), publisher)
	ctx := context.Background()

	_, err := service.Signup(ctx, "Basketball Team", "alice@mergington.edu")
	require.NoError(t, err)
	_, err = service.Unregister(ctx, "Basketball Team", "alice@mergington.edu")
	require.NoError(t, err)

	require.Len(t, publisher.events, 2)
	require.Equal(t, uint64(1), publisher.events[0].RosterVersion)
	require.Equal(t, uint64(2), publisher.events[1].RosterVersion)
	require.Equal(t, 0, publisher.events[1].ParticipantCount)
}

func TestServiceUnregisterMessageAndEvent(t *testing.T) {
	publisher := &recordingPublisher{}
	service := NewService(seedDirectory(), publisher)

	msg, err := service.Unregister(context.Background(), "Chess Club", "daniel@mergington.edu")
	require.NoError(t, err)
	require.Equal(t, "Unregistered daniel@mergington.edu from Chess Club", msg)
	require.Len(t, publisher.events, 1)
	require.Equal(t, events.TypeUnregistered, publisher.events[0].EventType)
	require.Equal(t, 1, publisher.events[0].ParticipantCount)
}

func TestServiceRejectionsPublishNothing(t *testing.T) {
	const rejectionsTotal = "signup_service_directory_rejections_total"
	alreadyRegistered := map[string]string{"operation": OperationSignup, "reason": "already_registered"}
	notRegistered := map[string]string{"operation": OperationUnregister, "reason": "not_registered"}
	notFound := map[string]string{"operation": OperationSignup, "reason": "activity_not_found"}
	beforeAlready := metricValue(t, rejectionsTotal, alreadyRegistered)
	beforeNot := metricValue(t, rejectionsTotal, notRegistered)
	beforeNotFound := metricValue(t, rejectionsTotal, notFound)

	publisher := &recordingPublisher{}
	service := NewService(seedDirectory(), publisher)
	ctx := context.Background()

	_, err := service.Signup(ctx, "Chess Club", "michael@mergington.edu")
	require.ErrorIs(t, err, ErrAlreadyRegistered)
	_, err = service.Unregister(ctx, "Basketball Team", "nobody@mergington.edu")
	require.ErrorIs(t, err, ErrNotRegistered)
	_, err = service.Signup(ctx, "Underwater Basket Weaving", "x@mergington.edu")
	require.ErrorIs(t, err, ErrActivityNotFound)

	require.Empty(t, publisher.events)
	require.Equal(t, beforeAlready+1, metricValue(t, rejectionsTotal, alreadyRegistered))
	require.Equal(t, beforeNot+1, metricValue(t, rejectionsTotal, notRegistered))
	require.Equal(t, beforeNotFound+1, metricValue(t, rejectionsTotal, notFound))
}

func TestServicePublisherFailureKeepsMutation(t *testing.T) {
	failures := map[string]string{"event_type": events.TypeSignedUp}
	before := metricValue(t, "signup_service_events_publish_failures_total", failures)
	service := NewService(seedDirectory(), &recordingPublisher{err: errors.New("queue full")})

	_, err := service.Signup(context.Background(), "Basketball Team", "alice@mergington.edu")
	require.NoError(t, err)
	require.Contains(t, service.ListActivities(context.Background())["Basketball Team"].Participants, "alice@mergington.edu")
	require.Equal(t, before+1, metricValue(t, "signup_service_events_publish_failures_total", failures))
}

func TestNewServiceDefaultsToNoopPublisher(t *testing.T) {
	service := NewService(seedDirectory(), nil)

	_, err := service.Signup(context.Background(), "Basketball Team", "alice@mergington.edu")
	require.NoError(t, err)
}
