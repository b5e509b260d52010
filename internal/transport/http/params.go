package httptransport

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	id "auditpipe/pkg/domain"
	dErrors "auditpipe/pkg/domain-errors"
	audit "auditpipe/pkg/platform/audit"
	strutil "auditpipe/pkg/platform/strings"
)

// parseQuery maps query-string parameters onto an audit.Query. Unknown
// enumeration names and malformed values are bad requests. An explicit page or
// page_size below 1 is a validation error; absent ones stay zero and take the
// defaults. Upper paging limits are left to audit.Query.Validate.
func parseQuery(v url.Values) (audit.Query, error) {
	var (
		q   audit.Query
		err error
	)

	if s := v.Get("organization_id"); s != "" {
		if q.OrganizationID, err = id.ParseOrganizationID(s); err != nil {
			return q, err
		}
	}
	if s := v.Get("actor_user_id"); s != "" {
		if q.ActorUserID, err = id.ParseUserID(s); err != nil {
			return q, err
		}
	}
	if s := v.Get("action"); s != "" {
		if q.ActionType, err = audit.ParseActionType(s); err != nil {
			return q, err
		}
	}
	if q.ActionTypes, err = parseList(v.Get("actions"), audit.ParseActionType); err != nil {
		return q, err
	}
	if s := v.Get("resource_type"); s != "" {
		if q.ResourceType, err = audit.ParseResourceType(s); err != nil {
			return q, err
		}
	}
	if q.ResourceTypes, err = parseList(v.Get("resource_types"), audit.ParseResourceType); err != nil {
		return q, err
	}
	q.ResourceID = v.Get("resource_id")
	if s := v.Get("outcome"); s != "" {
		if q.Outcome, err = audit.ParseOutcome(s); err != nil {
			return q, err
		}
	}
	if q.From, err = parseTime(v, "from"); err != nil {
		return q, err
	}
	if q.To, err = parseTime(v, "to"); err != nil {
		return q, err
	}
	q.Search = strings.TrimSpace(v.Get("q"))
	if q.Page, err = parsePositive(v, "page"); err != nil {
		return q, err
	}
	if q.PageSize, err = parsePositive(v, "page_size"); err != nil {
		return q, err
	}
	if q.Sort, err = audit.ParseSortDirection(v.Get("sort")); err != nil {
		return q, err
	}
	return q, nil
}

func parseList[T any](raw string, parse func(string) (T, error)) ([]T, error) {
	parts := strutil.SplitList(raw)
	if len(parts) == 0 {
		return nil, nil
	}
	out := make([]T, 0, len(parts))
	for _, part := range parts {
		v, err := parse(part)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func parseTime(v url.Values, key string) (time.Time, error) {
	s := v.Get(key)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, dErrors.New(dErrors.CodeBadRequest, key+" must be an RFC 3339 timestamp")
	}
	return t, nil
}

// parsePositive returns 0 when key is absent.
func parsePositive(v url.Values, key string) (int, error) {
	n, err := parseInt(v, key)
	if err != nil || v.Get(key) == "" {
		return n, err
	}
	if n < 1 {
		return 0, dErrors.New(dErrors.CodeValidation, key+" must be >= 1")
	}
	return n, nil
}

func parseInt(v url.Values, key string) (int, error) {
	s := v.Get(key)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeBadRequest, key+" must be an integer")
	}
	return n, nil
}
