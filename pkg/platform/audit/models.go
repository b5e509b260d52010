package audit

import (
	"fmt"
	"time"

	id "auditpipe/pkg/domain"
	dErrors "auditpipe/pkg/domain-errors"
)

// ActionContractVersion identifies the revision of the ActionType and
// ResourceType enumerations. Consumers that persist or forward the numeric
// values should compare against it before trusting unknown values.
const ActionContractVersion = 1

// MaxFailureReasonLength caps the free-text failure reason, in characters.
const MaxFailureReasonLength = 1000

// TruncationMarker is appended to failure reasons that exceeded the cap.
const TruncationMarker = "...[truncated]"

// EventCategory classifies audit events by their primary purpose.
// Compliance events should travel the synchronous path so they commit with
// the business transaction; the asynchronous path is lossy under overflow.
type EventCategory string

const (
	// CategoryCompliance covers events with legal/regulatory significance:
	// deletions, role changes, exports and administrative operations.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers authentication and authorization outcomes.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine activity.
	CategoryOperations EventCategory = "operations"
)

// ActionType is a closed enumeration of auditable actions.
// Values 100-199 are reserved for administrative operations.
type ActionType int

const (
	ActionCreated             ActionType = 1
	ActionUpdated             ActionType = 2
	ActionDeleted             ActionType = 3
	ActionAccessed            ActionType = 4
	ActionExported            ActionType = 5
	ActionStatusChanged       ActionType = 6
	ActionRoleChanged         ActionType = 7
	ActionAuthenticated       ActionType = 8
	ActionAuthorizationDenied ActionType = 9

	ActionAdminBandStart ActionType = 100
	ActionAdminBandEnd   ActionType = 199

	ActionAdminSettingsChanged  ActionType = 100
	ActionAdminUserImpersonated ActionType = 101
	ActionAdminRetentionPurge   ActionType = 102
)

type actionMeta struct {
	name     string
	category EventCategory
}

var actions = map[ActionType]actionMeta{
	ActionCreated:               {"created", CategoryOperations},
	ActionUpdated:               {"updated", CategoryOperations},
	ActionDeleted:               {"deleted", CategoryCompliance},
	ActionAccessed:              {"accessed", CategoryOperations},
	ActionExported:              {"exported", CategoryCompliance},
	ActionStatusChanged:         {"status_changed", CategoryOperations},
	ActionRoleChanged:           {"role_changed", CategoryCompliance},
	ActionAuthenticated:         {"authenticated", CategorySecurity},
	ActionAuthorizationDenied:   {"authorization_denied", CategorySecurity},
	ActionAdminSettingsChanged:  {"admin.settings_changed", CategoryCompliance},
	ActionAdminUserImpersonated: {"admin.user_impersonated", CategoryCompliance},
	ActionAdminRetentionPurge:   {"admin.retention_purge", CategoryCompliance},
}

var actionsByName = func() map[string]ActionType {
	m := make(map[string]ActionType, len(actions))
	for a, meta := range actions {
		m[meta.name] = a
	}
	return m
}()

// Valid reports whether the action is a member of the enumeration.
func (a ActionType) Valid() bool {
	_, ok := actions[a]
	return ok
}

// String returns the stable wire name used in storage and exports.
func (a ActionType) String() string {
	if meta, ok := actions[a]; ok {
		return meta.name
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// IsAdministrative reports whether the action sits in the reserved admin band.
func (a ActionType) IsAdministrative() bool {
	return a >= ActionAdminBandStart && a <= ActionAdminBandEnd
}

// Category returns the EventCategory for this action.
// Unknown actions default to CategoryOperations.
func (a ActionType) Category() EventCategory {
	if meta, ok := actions[a]; ok {
		return meta.category
	}
	return CategoryOperations
}

// ParseActionType resolves a wire name into an ActionType.
func ParseActionType(s string) (ActionType, error) {
	if a, ok := actionsByName[s]; ok {
		return a, nil
	}
	return 0, dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("unknown action type %q", s))
}

// ResourceType is a closed enumeration of audited resource kinds.
// Values 100-199 are reserved for extension resources.
type ResourceType int

const (
	ResourceOrganization ResourceType = 1
	ResourceMembership   ResourceType = 2
	ResourceUser         ResourceType = 3
	ResourceProject      ResourceType = 4
	ResourceProposal     ResourceType = 5
	ResourceVote         ResourceType = 6
	ResourceWebhook      ResourceType = 7
	ResourceAPIKey       ResourceType = 8
	ResourceRole         ResourceType = 9
	ResourceSettings     ResourceType = 10
	ResourceAuditLog     ResourceType = 11

	ResourceExtensionBandStart ResourceType = 100
	ResourceExtensionBandEnd   ResourceType = 199
)

var resourceNames = map[ResourceType]string{
	ResourceOrganization: "organization",
	ResourceMembership:   "membership",
	ResourceUser:         "user",
	ResourceProject:      "project",
	ResourceProposal:     "proposal",
	ResourceVote:         "vote",
	ResourceWebhook:      "webhook",
	ResourceAPIKey:       "api_key",
	ResourceRole:         "role",
	ResourceSettings:     "settings",
	ResourceAuditLog:     "audit_log",
}

var resourcesByName = func() map[string]ResourceType {
	m := make(map[string]ResourceType, len(resourceNames))
	for r, name := range resourceNames {
		m[name] = r
	}
	return m
}()

func (r ResourceType) Valid() bool {
	_, ok := resourceNames[r]
	return ok
}

func (r ResourceType) String() string {
	if name, ok := resourceNames[r]; ok {
		return name
	}
	return fmt.Sprintf("resource(%d)", int(r))
}

// ParseResourceType resolves a wire name into a ResourceType.
func ParseResourceType(s string) (ResourceType, error) {
	if r, ok := resourcesByName[s]; ok {
		return r, nil
	}
	return 0, dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("unknown resource type %q", s))
}

// Outcome is the result of the audited action.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeDenied  Outcome = "denied"
	OutcomePartial Outcome = "partial"
)

func (o Outcome) Valid() bool {
	switch o {
	case OutcomeSuccess, OutcomeFailure, OutcomeDenied, OutcomePartial:
		return true
	}
	return false
}

// ParseOutcome resolves a wire name into an Outcome.
func ParseOutcome(s string) (Outcome, error) {
	o := Outcome(s)
	if !o.Valid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("unknown outcome %q", s))
	}
	return o, nil
}

// Actor identifies who performed the action. System actions leave UserID nil.
type Actor struct {
	UserID      id.UserID
	DisplayName string
	IPAddress   string
}

// Resource identifies what the action was performed on. ID is mandatory.
type Resource struct {
	Type ResourceType
	ID   string
	Name string
}

// Organization scopes the event to a tenant organization when applicable.
type Organization struct {
	ID   id.OrganizationID
	Name string
}

// Event is an immutable record of one auditable action. Construct it with
// NewEvent; ID and Timestamp are assigned once at construction.
type Event struct {
	ID            id.EventID
	Timestamp     time.Time
	Actor         Actor
	Action        ActionType
	Outcome       Outcome
	FailureReason string
	Resource      Resource
	Organization  Organization
	Details       map[string]any
	CorrelationID string
}

// Category returns the category of the event's action.
func (e Event) Category() EventCategory { return e.Action.Category() }

// Validate checks the invariants every persisted event must hold. Stores
// rely on callers having validated; publishers call this before writing.
func (e Event) Validate() error {
	switch {
	case e.ID.IsNil():
		return dErrors.New(dErrors.CodeValidation, "event id is required")
	case e.Timestamp.IsZero():
		return dErrors.New(dErrors.CodeValidation, "event timestamp is required")
	case e.Resource.ID == "":
		return dErrors.New(dErrors.CodeValidation, "resource id is required")
	case !e.Resource.Type.Valid():
		return dErrors.New(dErrors.CodeValidation, "resource type is invalid")
	case !e.Action.Valid():
		return dErrors.New(dErrors.CodeValidation, "action type is invalid")
	case !e.Outcome.Valid():
		return dErrors.New(dErrors.CodeValidation, "outcome is invalid")
	case e.Outcome == OutcomeSuccess && e.FailureReason != "":
		return dErrors.New(dErrors.CodeValidation, "failure reason must be empty on success")
	}
	return nil
}

// Cursor marks a position in (timestamp, id) order for keyset pagination.
type Cursor struct {
	Timestamp time.Time
	ID        id.EventID
}

// CursorOf returns the cursor positioned at e.
func CursorOf(e Event) Cursor {
	return Cursor{Timestamp: e.Timestamp, ID: e.ID}
}
