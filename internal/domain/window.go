package domain

import "time"

// Window is the validity window requested for an assignment. Every field is
// optional; see Resolve for how they combine.
type Window struct {
	StartsAt     *time.Time
	ExpiresAt    Optional[time.Time]
	DurationDays *int
}

// ResolvedWindow is the outcome of Window.Resolve. ExpiresAt.Set == false
// means the expiry is unresolved: updates keep the stored value and creates
// default to no expiry.
type ResolvedWindow struct {
	StartsAt     *time.Time
	ExpiresAt    Optional[time.Time]
	DurationDays *int
}

// Resolve computes the expiry for the window at time now.
//
// An explicit ExpiresAt (including null) always wins. Otherwise a positive
// DurationDays yields StartsAt (or now) plus that many calendar days.
// DurationDays is carried through unchanged so it can be recorded.
func (w Window) Resolve(now time.Time) ResolvedWindow {
	r := ResolvedWindow{
		StartsAt:     w.StartsAt,
		DurationDays: w.DurationDays,
	}
	switch {
	case w.ExpiresAt.Set:
		r.ExpiresAt = w.ExpiresAt
	case w.DurationDays != nil && *w.DurationDays > 0:
		base := now
		if w.StartsAt != nil {
			base = *w.StartsAt
		}
		r.ExpiresAt = Some(base.AddDate(0, 0, *w.DurationDays))
	}
	return r
}

// Validity holds the window and active flag shared by agent and group
// assignments.
type Validity struct {
	StartsAt     time.Time  `json:"startsAt" db:"starts_at"`
	ExpiresAt    *time.Time `json:"expiresAt" db:"expires_at"`
	DurationDays *int       `json:"durationDays" db:"duration_days"`
	IsActive     bool       `json:"isActive" db:"is_active"`
}

// NewValidity builds the validity of a freshly created assignment. StartsAt
// defaults to now, expiry to none and IsActive to true.
func NewValidity(r ResolvedWindow, isActive *bool, now time.Time) Validity {
	v := Validity{StartsAt: now, IsActive: true}
	if r.StartsAt != nil {
		v.StartsAt = *r.StartsAt
	}
	v.ExpiresAt = r.ExpiresAt.Ptr()
	v.DurationDays = r.DurationDays
	if isActive != nil {
		v.IsActive = *isActive
	}
	return v
}

// Patch overwrites only the fields the resolved window actually supplies.
func (v *Validity) Patch(r ResolvedWindow, isActive *bool) {
	if r.StartsAt != nil {
		v.StartsAt = *r.StartsAt
	}
	if r.ExpiresAt.Set {
		v.ExpiresAt = r.ExpiresAt.Ptr()
	}
	if r.DurationDays != nil {
		v.DurationDays = r.DurationDays
	}
	if isActive != nil {
		v.IsActive = *isActive
	}
}

// ExpiredAt reports whether the window has an expiry at or before t.
func (v Validity) ExpiredAt(t time.Time) bool {
	return v.ExpiresAt != nil && !v.ExpiresAt.After(t)
}

// SelectedAt reports whether the assignment grants access at t: active and
// not expired. Expiry is evaluated at read time; it never flips IsActive.
func (v Validity) SelectedAt(t time.Time) bool {
	return v.IsActive && !v.ExpiredAt(t)
}
