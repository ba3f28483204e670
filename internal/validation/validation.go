// Package validation checks and normalizes request input at the API boundary.
// Values it returns (agent names, emails, windows) are trusted downstream and
// never re-validated.
package validation

import (
	"fmt"
	"net/mail"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bcnelson/agent-access-manager/internal/domain"
)

const (
	// MaxGroupNameLength bounds agent group names.
	MaxGroupNameLength = 255

	// DefaultPageSize and MaxPageSize bound group list pagination.
	DefaultPageSize = 20
	MaxPageSize     = 100

	dateLayout = "2006-01-02"
)

// ValidateAgentName normalizes raw to an uppercase catalog agent.
func ValidateAgentName(field, raw string) (domain.AgentName, error) {
	if strings.TrimSpace(raw) == "" {
		return "", NewValidationError(field, raw, "agent name is required")
	}
	name, ok := domain.ParseAgentName(raw)
	if !ok {
		return "", NewValidationError(field, raw,
			"unknown agent; allowed: "+strings.Join(domain.AgentCatalogStrings(), ", "))
	}
	return name, nil
}

// ValidateAgentNames normalizes a list of agent names and removes duplicates,
// keeping first-seen order. A nil list is always rejected; an empty one only
// when allowEmpty is false.
func ValidateAgentNames(field string, raw []string, allowEmpty bool) ([]domain.AgentName, error) {
	if raw == nil {
		return nil, NewValidationError(field, "", "must be an array of agent names")
	}
	if len(raw) == 0 && !allowEmpty {
		return nil, NewValidationError(field, "", "must contain at least one agent name")
	}

	var errs ValidationErrors
	names := make([]domain.AgentName, 0, len(raw))
	for i, r := range raw {
		name, err := ValidateAgentName(fmt.Sprintf("%s[%d]", field, i), r)
		if err != nil {
			errs.Merge(err)
			continue
		}
		names = append(names, name)
	}
	if errs.HasErrors() {
		return nil, errs
	}
	return domain.UniqueAgentNames(names), nil
}

// NormalizeEmail trims raw, checks that it is a bare email address and
// lowercases it. Users are stored and looked up by the lowercased form, so
// email matching is case-insensitive.
func NormalizeEmail(field, raw string) (string, error) {
	email := strings.TrimSpace(raw)
	if email == "" {
		return "", NewValidationError(field, raw, "email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", NewValidationError(field, raw, "must be a valid email address")
	}
	return strings.ToLower(email), nil
}

// ValidateUserRef checks that a user is identified by id or email. When both
// are given the id wins and the email is ignored.
func ValidateUserRef(userID, email string) (domain.UserRef, error) {
	if id := strings.TrimSpace(userID); id != "" {
		return domain.UserRef{ID: id}, nil
	}
	if strings.TrimSpace(email) == "" {
		return domain.UserRef{}, NewValidationError("email", "", "email or userId is required")
	}
	normalized, err := NormalizeEmail("email", email)
	if err != nil {
		return domain.UserRef{}, err
	}
	return domain.UserRef{Email: normalized}, nil
}

// ValidateGroupName trims name and checks its length.
func ValidateGroupName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", NewValidationError("name", name, "group name must not be empty")
	}
	if len(trimmed) > MaxGroupNameLength {
		return "", NewValidationError("name", name,
			fmt.Sprintf("group name must be at most %d characters", MaxGroupNameLength))
	}
	return trimmed, nil
}

// ValidateSelector checks that exactly one of groupId and groupName is set.
func ValidateSelector(field string, sel *domain.GroupSelector) (domain.GroupSelector, error) {
	if sel == nil {
		return domain.GroupSelector{}, NewValidationError(field, "", "selector is required")
	}
	out := domain.GroupSelector{
		GroupID:   strings.TrimSpace(sel.GroupID),
		GroupName: strings.TrimSpace(sel.GroupName),
	}
	switch {
	case out.GroupID == "" && out.GroupName == "":
		return out, NewValidationError(field, "", "one of groupId or groupName is required")
	case out.GroupID != "" && out.GroupName != "":
		return out, NewValidationError(field, "", "groupId and groupName are mutually exclusive")
	}
	return out, nil
}

// ValidateSelectors validates every selector in a non-empty list.
func ValidateSelectors(field string, sels []domain.GroupSelector) ([]domain.GroupSelector, error) {
	if len(sels) == 0 {
		return nil, NewValidationError(field, "", "must contain at least one selector")
	}
	var errs ValidationErrors
	out := make([]domain.GroupSelector, 0, len(sels))
	for i := range sels {
		sel, err := ValidateSelector(fmt.Sprintf("%s[%d]", field, i), &sels[i])
		if err != nil {
			errs.Merge(err)
			continue
		}
		out = append(out, sel)
	}
	if errs.HasErrors() {
		return nil, errs
	}
	return out, nil
}

// ParseTime accepts an RFC 3339 timestamp or a YYYY-MM-DD date (midnight UTC).
func ParseTime(field, raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	return time.Time{}, NewValidationError(field, raw, "must be an RFC 3339 timestamp or YYYY-MM-DD date")
}

// ParseWindow converts the raw window fields of a request.
func ParseWindow(req domain.WindowRequest) (domain.Window, error) {
	var (
		w    domain.Window
		errs ValidationErrors
	)
	if req.StartsAt != nil {
		t, err := ParseTime("startsAt", *req.StartsAt)
		if err != nil {
			errs.Merge(err)
		} else {
			w.StartsAt = &t
		}
	}
	if req.ExpiresAt.Set {
		if !req.ExpiresAt.Valid {
			w.ExpiresAt = domain.Null[time.Time]()
		} else if t, err := ParseTime("expiresAt", req.ExpiresAt.Value); err != nil {
			errs.Merge(err)
		} else {
			w.ExpiresAt = domain.Some(t)
		}
	}
	if req.DurationDays != nil {
		if *req.DurationDays < 0 {
			errs.Add("durationDays", strconv.Itoa(*req.DurationDays), "must not be negative")
		} else {
			d := *req.DurationDays
			w.DurationDays = &d
		}
	}
	if errs.HasErrors() {
		return domain.Window{}, errs
	}
	return w, nil
}

// ValidateAddDays checks 0 < |addDays| <= maxDays.
func ValidateAddDays(addDays *int, maxDays int) (int, error) {
	if addDays == nil {
		return 0, NewValidationError("addDays", "", "addDays is required")
	}
	n := *addDays
	if n == 0 || n > maxDays || n < -maxDays {
		return 0, NewValidationError("addDays", strconv.Itoa(n),
			fmt.Sprintf("must be non-zero and between -%d and %d", maxDays, maxDays))
	}
	return n, nil
}

// ParseBool parses an optional boolean query parameter.
func ParseBool(field, raw string) (*bool, error) {
	if raw == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, NewValidationError(field, raw, "must be true or false")
	}
	return &b, nil
}

// ParseGroupListFilter reads name, isActive, page, pageSize, sortBy and
// sortOrder from a query string.
func ParseGroupListFilter(q url.Values) (domain.GroupListFilter, error) {
	var errs ValidationErrors
	filter := domain.GroupListFilter{
		NameContains: strings.TrimSpace(q.Get("name")),
		Page:         1,
		PageSize:     DefaultPageSize,
		SortBy:       domain.GroupSortCreatedAt,
	}

	if active, err := ParseBool("isActive", q.Get("isActive")); err != nil {
		errs.Merge(err)
	} else {
		filter.IsActive = active
	}

	if raw := q.Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			errs.Add("page", raw, "must be a positive integer")
		} else {
			filter.Page = page
		}
	}
	if raw := q.Get("pageSize"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size < 1 || size > MaxPageSize {
			errs.Add("pageSize", raw, fmt.Sprintf("must be between 1 and %d", MaxPageSize))
		} else {
			filter.PageSize = size
		}
	}

	switch sortBy := domain.GroupSortField(q.Get("sortBy")); sortBy {
	case "":
	case domain.GroupSortName, domain.GroupSortCreatedAt, domain.GroupSortUpdatedAt:
		filter.SortBy = sortBy
	default:
		errs.Add("sortBy", string(sortBy), "must be one of name, createdAt, updatedAt")
	}

	switch order := strings.ToLower(q.Get("sortOrder")); order {
	case "", "asc":
	case "desc":
		filter.Descending = true
	default:
		errs.Add("sortOrder", order, "must be asc or desc")
	}

	if errs.HasErrors() {
		return domain.GroupListFilter{}, errs
	}
	return filter, nil
}
