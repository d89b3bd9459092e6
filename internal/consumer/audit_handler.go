package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"example.com/signup/internal/events"
)

type rosterState struct {
	count   int
	version uint64
}

// AuditHandler logs every membership change and remembers the roster size of
// the newest version seen for each activity. Events that arrive after a newer
// version are logged and otherwise ignored.
type AuditHandler struct {
	logger *slog.Logger

	mu      sync.RWMutex
	rosters map[string]rosterState
}

// NewAuditHandler constructs an AuditHandler.
func NewAuditHandler(logger *slog.Logger) *AuditHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditHandler{logger: logger, rosters: make(map[string]rosterState)}
}

// Handle decodes a MembershipChanged payload and records it.
func (h *AuditHandler) Handle(ctx context.Context, msg Message) error {
	switch msg.EventType {
	case events.TypeSignedUp, events.TypeUnregistered:
	default:
		return fmt.Errorf("unsupported event type %q", msg.EventType)
	}

	var event events.MembershipChanged
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return fmt.Errorf("decode membership event: %w", err)
	}
	if event.Activity == "" {
		return fmt.Errorf("membership event %s has no activity", event.EventID)
	}
	if event.RosterVersion == 0 {
		return fmt.Errorf("membership event %s has no roster version", event.EventID)
	}

	logger := h.logger.With(
		"event_id", event.EventID,
		"event_type", event.EventType,
		"activity", event.Activity,
		"email", event.Email,
		"roster_version", event.RosterVersion,
		"offset", msg.Offset,
	)

	if !h.apply(event) {
		recordStaleEvent(event.Activity)
		logger.DebugContext(ctx, "stale membership event ignored")
		return nil
	}

	logger.InfoContext(ctx, "membership changed",
		"participant_count", event.ParticipantCount,
		"occurred_at", event.OccurredAt,
	)
	return nil
}

func (h *AuditHandler) apply(event events.MembershipChanged) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, ok := h.rosters[event.Activity]; ok && current.version >= event.RosterVersion {
		return false
	}
	h.rosters[event.Activity] = rosterState{count: event.ParticipantCount, version: event.RosterVersion}
	recordAuditedRoster(event.Activity, event.ParticipantCount)
	return true
}

// ParticipantCount returns the roster size of the newest version seen for activity.
func (h *AuditHandler) ParticipantCount(activity string) (int, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	state, ok := h.rosters[activity]
	return state.count, ok
}
