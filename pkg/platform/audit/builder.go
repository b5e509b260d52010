package audit

import (
	"context"
	"maps"
	"time"
	"unicode/utf8"

	id "auditpipe/pkg/domain"
	dErrors "auditpipe/pkg/domain-errors"
	"auditpipe/pkg/requestcontext"
)

// Builder assembles an Event. Setters never fail; Build reports a missing
// resource.
type Builder struct {
	event       Event
	resourceSet bool
}

// NewEvent starts an event. The id and timestamp are fixed here and are not
// exposed to setters.
func NewEvent() *Builder {
	return &Builder{
		event: Event{
			ID:        id.NewEventID(),
			Timestamp: time.Now().UTC(),
			Outcome:   OutcomeSuccess,
		},
	}
}

// FromContext copies the request id and client ip carried by ctx. Explicit
// CorrelationID or Actor calls made afterwards take precedence.
func (b *Builder) FromContext(ctx context.Context) *Builder {
	if reqID := requestcontext.RequestID(ctx); reqID != "" && b.event.CorrelationID == "" {
		b.event.CorrelationID = reqID
	}
	if ip := requestcontext.ClientIP(ctx); ip != "" && b.event.Actor.IPAddress == "" {
		b.event.Actor.IPAddress = ip
	}
	if userID := requestcontext.UserID(ctx); !userID.IsNil() && b.event.Actor.UserID.IsNil() {
		b.event.Actor.UserID = userID
	}
	return b
}

func (b *Builder) Actor(userID id.UserID, displayName, ipAddress string) *Builder {
	b.event.Actor = Actor{UserID: userID, DisplayName: displayName, IPAddress: ipAddress}
	return b
}

func (b *Builder) ActorUser(userID id.UserID) *Builder {
	b.event.Actor.UserID = userID
	return b
}

// SystemActor marks the event as performed by the platform itself.
func (b *Builder) SystemActor() *Builder {
	b.event.Actor = Actor{DisplayName: "system"}
	return b
}

func (b *Builder) Resource(resourceType ResourceType, resourceID, name string) *Builder {
	b.event.Resource = Resource{Type: resourceType, ID: resourceID, Name: name}
	b.resourceSet = true
	return b
}

func (b *Builder) Action(action ActionType) *Builder {
	b.event.Action = action
	return b
}

func (b *Builder) Organization(orgID id.OrganizationID, name string) *Builder {
	b.event.Organization = Organization{ID: orgID, Name: name}
	return b
}

func (b *Builder) Success() *Builder {
	b.event.Outcome = OutcomeSuccess
	b.event.FailureReason = ""
	return b
}

func (b *Builder) Failure(reason string) *Builder {
	return b.outcome(OutcomeFailure, reason)
}

func (b *Builder) Denied(reason string) *Builder {
	return b.outcome(OutcomeDenied, reason)
}

func (b *Builder) Partial(reason string) *Builder {
	return b.outcome(OutcomePartial, reason)
}

func (b *Builder) outcome(o Outcome, reason string) *Builder {
	b.event.Outcome = o
	b.event.FailureReason = TruncateReason(reason)
	return b
}

func (b *Builder) CorrelationID(correlationID string) *Builder {
	b.event.CorrelationID = correlationID
	return b
}

// Details replaces the structured payload. The map is copied.
func (b *Builder) Details(details map[string]any) *Builder {
	b.event.Details = maps.Clone(details)
	return b
}

// Detail sets a single key in the structured payload.
func (b *Builder) Detail(key string, value any) *Builder {
	if b.event.Details == nil {
		b.event.Details = make(map[string]any)
	}
	b.event.Details[key] = value
	return b
}

// Build returns the assembled event. It fails with a validation error only
// when the resource was never set or has an empty identifier; enum ranges are
// checked by Event.Validate on the write paths.
func (b *Builder) Build() (Event, error) {
	if !b.resourceSet {
		return Event{}, dErrors.New(dErrors.CodeValidation, "resource is required")
	}
	if b.event.Resource.ID == "" {
		return Event{}, dErrors.New(dErrors.CodeValidation, "resource id is required")
	}

	e := b.event
	e.Details = maps.Clone(b.event.Details)
	return e, nil
}

// TruncateReason caps reason at MaxFailureReasonLength characters and appends
// TruncationMarker when anything was cut.
func TruncateReason(reason string) string {
	if utf8.RuneCountInString(reason) <= MaxFailureReasonLength {
		return reason
	}
	n := 0
	for i := range reason {
		if n == MaxFailureReasonLength {
			return reason[:i] + TruncationMarker
		}
		n++
	}
	return reason
}
