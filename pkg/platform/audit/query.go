package audit

import (
	"math"
	"slices"
	"strings"
	"time"

	id "auditpipe/pkg/domain"
	dErrors "auditpipe/pkg/domain-errors"
)

const (
	DefaultPage     = 1
	DefaultPageSize = 50
	MaxPageSize     = 100

	// MaxPage keeps Offset within int range for every valid page size.
	MaxPage = math.MaxInt / MaxPageSize
)

// SortDirection orders results by timestamp.
type SortDirection string

const (
	SortDesc SortDirection = "desc"
	SortAsc  SortDirection = "asc"
)

// ParseSortDirection accepts "asc" or "desc"; empty means the default.
func ParseSortDirection(s string) (SortDirection, error) {
	switch SortDirection(strings.ToLower(s)) {
	case "":
		return SortDesc, nil
	case SortDesc:
		return SortDesc, nil
	case SortAsc:
		return SortAsc, nil
	}
	return "", dErrors.New(dErrors.CodeInvalidInput, "sort must be asc or desc")
}

// Query describes a filtered, paginated read. Zero values mean "no filter";
// a zero Page or PageSize takes the default.
type Query struct {
	OrganizationID id.OrganizationID
	ActorUserID    id.UserID
	ActionType     ActionType
	ActionTypes    []ActionType
	ResourceType   ResourceType
	ResourceTypes  []ResourceType
	ResourceID     string
	Outcome        Outcome
	From           time.Time
	To             time.Time
	Search         string
	Page           int
	PageSize       int
	Sort           SortDirection
}

// WithDefaults fills unset paging and sort fields.
func (q Query) WithDefaults() Query {
	if q.Page == 0 {
		q.Page = DefaultPage
	}
	if q.PageSize == 0 {
		q.PageSize = DefaultPageSize
	}
	if q.Sort == "" {
		q.Sort = SortDesc
	}
	return q
}

// Validate rejects out-of-range pagination and inverted date ranges.
// Call it after WithDefaults.
func (q Query) Validate() error {
	if q.Page < 1 {
		return dErrors.New(dErrors.CodeValidation, "page must be >= 1")
	}
	if q.Page > MaxPage {
		return dErrors.New(dErrors.CodeValidation, "page is out of range")
	}
	if q.PageSize < 1 || q.PageSize > MaxPageSize {
		return dErrors.New(dErrors.CodeValidation, "page_size must be between 1 and 100")
	}
	if !q.From.IsZero() && !q.To.IsZero() && q.From.After(q.To) {
		return dErrors.New(dErrors.CodeValidation, "from must not be after to")
	}
	if q.Sort != SortAsc && q.Sort != SortDesc {
		return dErrors.New(dErrors.CodeValidation, "sort must be asc or desc")
	}
	return q.Filter().validateEnums()
}

// Offset is the number of rows to skip for the requested page.
func (q Query) Offset() int {
	return (q.Page - 1) * q.PageSize
}

// Filter collapses single and multi-value selectors. A non-empty multi-value
// list wins and the single value is ignored.
func (q Query) Filter() Filter {
	f := Filter{
		OrganizationID: q.OrganizationID,
		ActorUserID:    q.ActorUserID,
		ResourceID:     q.ResourceID,
		Outcome:        q.Outcome,
		From:           q.From,
		To:             q.To,
		Search:         strings.TrimSpace(q.Search),
		Sort:           q.Sort,
	}
	switch {
	case len(q.ActionTypes) > 0:
		f.Actions = slices.Clone(q.ActionTypes)
	case q.ActionType != 0:
		f.Actions = []ActionType{q.ActionType}
	}
	switch {
	case len(q.ResourceTypes) > 0:
		f.ResourceTypes = slices.Clone(q.ResourceTypes)
	case q.ResourceType != 0:
		f.ResourceTypes = []ResourceType{q.ResourceType}
	}
	if f.Sort == "" {
		f.Sort = SortDesc
	}
	return f
}

// Filter is the normalized predicate handed to stores.
type Filter struct {
	OrganizationID id.OrganizationID
	ActorUserID    id.UserID
	Actions        []ActionType
	ResourceTypes  []ResourceType
	ResourceID     string
	Outcome        Outcome
	From           time.Time
	To             time.Time
	Search         string
	Sort           SortDirection
}

func (f Filter) validateEnums() error {
	for _, a := range f.Actions {
		if !a.Valid() {
			return dErrors.New(dErrors.CodeValidation, "unknown action type in filter")
		}
	}
	for _, r := range f.ResourceTypes {
		if !r.Valid() {
			return dErrors.New(dErrors.CodeValidation, "unknown resource type in filter")
		}
	}
	if f.Outcome != "" && !f.Outcome.Valid() {
		return dErrors.New(dErrors.CodeValidation, "unknown outcome in filter")
	}
	return nil
}

// Matches evaluates the filter against a single event. The date range is
// inclusive on both ends and search is a case-insensitive substring match on
// resource name and actor display name.
func (f Filter) Matches(e Event) bool {
	if !f.OrganizationID.IsNil() && e.Organization.ID != f.OrganizationID {
		return false
	}
	if !f.ActorUserID.IsNil() && e.Actor.UserID != f.ActorUserID {
		return false
	}
	if len(f.Actions) > 0 && !slices.Contains(f.Actions, e.Action) {
		return false
	}
	if len(f.ResourceTypes) > 0 && !slices.Contains(f.ResourceTypes, e.Resource.Type) {
		return false
	}
	if f.ResourceID != "" && e.Resource.ID != f.ResourceID {
		return false
	}
	if f.Outcome != "" && e.Outcome != f.Outcome {
		return false
	}
	if !f.From.IsZero() && e.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.Timestamp.After(f.To) {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(e.Resource.Name), needle) &&
			!strings.Contains(strings.ToLower(e.Actor.DisplayName), needle) {
			return false
		}
	}
	return true
}

// Page is one page of query results.
type Page[T any] struct {
	Items      []T   `json:"items"`
	TotalCount int64 `json:"total_count"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalPages int   `json:"total_pages"`
}

// NewPage assembles a page and derives TotalPages.
func NewPage[T any](items []T, total int64, page, pageSize int) Page[T] {
	if items == nil {
		items = []T{}
	}
	pages := 0
	if pageSize > 0 {
		pages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}
	return Page[T]{Items: items, TotalCount: total, Page: page, PageSize: pageSize, TotalPages: pages}
}
