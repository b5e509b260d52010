package audit

import (
	"maps"
	"time"
)

// EventProjection is the flat read model returned to privileged readers.
type EventProjection struct {
	ID               string    `json:"id"`
	Timestamp        time.Time `json:"timestamp"`
	Action           string    `json:"action"`
	Category         string    `json:"category"`
	Outcome          string    `json:"outcome"`
	FailureReason    string    `json:"failure_reason,omitempty"`
	ActorUserID      string    `json:"actor_user_id,omitempty"`
	ActorDisplayName string    `json:"actor_display_name,omitempty"`
	ActorIPAddress   string    `json:"actor_ip_address,omitempty"`
	ResourceType     string    `json:"resource_type"`
	ResourceID       string    `json:"resource_id"`
	ResourceName     string    `json:"resource_name,omitempty"`
	OrganizationID   string    `json:"organization_id,omitempty"`
	OrganizationName string    `json:"organization_name,omitempty"`
	CorrelationID    string    `json:"correlation_id,omitempty"`
}

// RedactedEventProjection is the self-service read model. It has no IP
// address field, so the address cannot leak through serialization.
type RedactedEventProjection struct {
	ID               string    `json:"id"`
	Timestamp        time.Time `json:"timestamp"`
	Action           string    `json:"action"`
	Outcome          string    `json:"outcome"`
	FailureReason    string    `json:"failure_reason,omitempty"`
	ActorUserID      string    `json:"actor_user_id,omitempty"`
	ActorDisplayName string    `json:"actor_display_name,omitempty"`
	ResourceType     string    `json:"resource_type"`
	ResourceID       string    `json:"resource_id"`
	ResourceName     string    `json:"resource_name,omitempty"`
	OrganizationID   string    `json:"organization_id,omitempty"`
	OrganizationName string    `json:"organization_name,omitempty"`
	CorrelationID    string    `json:"correlation_id,omitempty"`
}

// EventDetail is a single event with its structured payload.
type EventDetail struct {
	EventProjection
	Details map[string]any `json:"details,omitempty"`
}

// Project flattens an event into its privileged read model.
func Project(e Event) EventProjection {
	p := EventProjection{
		ID:               e.ID.String(),
		Timestamp:        e.Timestamp.UTC(),
		Action:           e.Action.String(),
		Category:         string(e.Category()),
		Outcome:          string(e.Outcome),
		FailureReason:    e.FailureReason,
		ActorDisplayName: e.Actor.DisplayName,
		ActorIPAddress:   e.Actor.IPAddress,
		ResourceType:     e.Resource.Type.String(),
		ResourceID:       e.Resource.ID,
		ResourceName:     e.Resource.Name,
		OrganizationName: e.Organization.Name,
		CorrelationID:    e.CorrelationID,
	}
	if !e.Actor.UserID.IsNil() {
		p.ActorUserID = e.Actor.UserID.String()
	}
	if !e.Organization.ID.IsNil() {
		p.OrganizationID = e.Organization.ID.String()
	}
	return p
}

// ProjectRedacted flattens an event for a self-service reader.
func ProjectRedacted(e Event) RedactedEventProjection {
	p := Project(e)
	return RedactedEventProjection{
		ID:               p.ID,
		Timestamp:        p.Timestamp,
		Action:           p.Action,
		Outcome:          p.Outcome,
		FailureReason:    p.FailureReason,
		ActorUserID:      p.ActorUserID,
		ActorDisplayName: p.ActorDisplayName,
		ResourceType:     p.ResourceType,
		ResourceID:       p.ResourceID,
		ResourceName:     p.ResourceName,
		OrganizationID:   p.OrganizationID,
		OrganizationName: p.OrganizationName,
		CorrelationID:    p.CorrelationID,
	}
}

// ProjectDetail flattens an event and keeps a copy of its details.
func ProjectDetail(e Event) EventDetail {
	return EventDetail{EventProjection: Project(e), Details: maps.Clone(e.Details)}
}
