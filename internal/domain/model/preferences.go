//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
	"strings"
	"time"
)

// AccountStatus is the soft status flag stored in preferences. Users are never
// hard-deleted.
type AccountStatus string

const (
	AccountStatusActive    AccountStatus = "active"
	AccountStatusSuspended AccountStatus = "suspended"
)

// Preference document keys. The stored document uses camelCase keys.
const (
	prefOnboardingCompleted   = "onboardingCompleted"
	prefOnboardingCompletedAt = "onboardingCompletedAt"
	prefOnboardingSteps       = "onboardingSteps"
	prefSkipTeamSetup         = "skipTeamSetup"
	prefLastVisitedPath       = "lastVisitedPath"
	prefLastVisitedAt         = "lastVisitedAt"
	prefDefaultDashboard      = "defaultDashboard"
	prefTheme                 = "theme"
	prefAccountStatus         = "accountStatus"
	prefNotifications         = "notifications"
)

// Preferences is the typed view of a user's stored preference document.
// Keys the application does not know about are kept and written back unchanged.
type Preferences struct {
	OnboardingCompleted   bool
	OnboardingCompletedAt *time.Time
	OnboardingSteps       map[OnboardingStep]bool
	SkipTeamSetup         bool
	LastVisitedPath       string
	LastVisitedAt         *time.Time
	DefaultDashboard      string
	Theme                 string
	AccountStatus         AccountStatus
	Notifications         map[string]bool

	extra map[string]json.RawMessage
}

// DefaultPreferences returns preferences with every default filled in.
func DefaultPreferences() Preferences {
	p := Preferences{}
	p.fillDefaults()
	return p
}

func (p *Preferences) fillDefaults() {
	if p.OnboardingSteps == nil {
		p.OnboardingSteps = map[OnboardingStep]bool{}
	}
	if p.Notifications == nil {
		p.Notifications = map[string]bool{}
	}
	if p.AccountStatus == "" {
		p.AccountStatus = AccountStatusActive
	}
}

// StepCompleted reports whether the step flag is set.
func (p Preferences) StepCompleted(step OnboardingStep) bool {
	return p.OnboardingSteps[step]
}

// AllStepsCompleted reports whether every canonical step flag is set.
func (p Preferences) AllStepsCompleted() bool {
	for _, step := range canonicalSteps {
		if !p.OnboardingSteps[step] {
			return false
		}
	}
	return true
}

// Clone returns a deep copy.
func (p Preferences) Clone() Preferences {
	out := p
	out.OnboardingSteps = maps.Clone(p.OnboardingSteps)
	out.Notifications = maps.Clone(p.Notifications)
	out.extra = maps.Clone(p.extra)
	if p.OnboardingCompletedAt != nil {
		t := *p.OnboardingCompletedAt
		out.OnboardingCompletedAt = &t
	}
	if p.LastVisitedAt != nil {
		t := *p.LastVisitedAt
		out.LastVisitedAt = &t
	}
	out.fillDefaults()
	return out
}

// DecodePreferences reads a stored preference document and fills defaults.
// Legacy shapes are migrated on read:
//   - onboardingSteps as an array of step names
//   - boolean flags stored as "true"/"false" strings
//   - timestamps stored as epoch milliseconds
//
// Values that cannot be interpreted are dropped in favor of defaults. Only a
// document that is not a JSON object is an error.
func DecodePreferences(raw []byte) (Preferences, error) {
	p := Preferences{}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		p.fillDefaults()
		return p, nil
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return DefaultPreferences(), fmt.Errorf("decode preferences: %w", err)
	}

	for key, value := range doc {
		switch key {
		case prefOnboardingCompleted:
			p.OnboardingCompleted, _ = decodeFlag(value)
		case prefOnboardingCompletedAt:
			p.OnboardingCompletedAt = decodeTime(value)
		case prefOnboardingSteps:
			p.OnboardingSteps = decodeSteps(value)
		case prefSkipTeamSetup:
			p.SkipTeamSetup, _ = decodeFlag(value)
		case prefLastVisitedPath:
			p.LastVisitedPath = decodeString(value)
		case prefLastVisitedAt:
			p.LastVisitedAt = decodeTime(value)
		case prefDefaultDashboard:
			p.DefaultDashboard = decodeString(value)
		case prefTheme:
			p.Theme = decodeString(value)
		case prefAccountStatus:
			p.AccountStatus = AccountStatus(strings.ToLower(decodeString(value)))
		case prefNotifications:
			p.Notifications = decodeFlagMap(value)
		default:
			if p.extra == nil {
				p.extra = map[string]json.RawMessage{}
			}
			p.extra[key] = value
		}
	}

	p.fillDefaults()
	return p, nil
}

// UnmarshalJSON implements json.Unmarshaler using DecodePreferences.
func (p *Preferences) UnmarshalJSON(data []byte) error {
	decoded, err := DecodePreferences(data)
	if err != nil {
		return err
	}
	*p = decoded
	return nil
}

// MarshalJSON writes the stored document shape, including unknown keys.
func (p Preferences) MarshalJSON() ([]byte, error) {
	doc := make(map[string]any, len(p.extra)+10)
	for k, v := range p.extra {
		doc[k] = v
	}

	doc[prefOnboardingCompleted] = p.OnboardingCompleted
	if p.OnboardingCompletedAt != nil {
		doc[prefOnboardingCompletedAt] = p.OnboardingCompletedAt.UTC().Format(time.RFC3339Nano)
	}
	if len(p.OnboardingSteps) > 0 {
		doc[prefOnboardingSteps] = p.OnboardingSteps
	}
	if p.SkipTeamSetup {
		doc[prefSkipTeamSetup] = true
	}
	if p.LastVisitedPath != "" {
		doc[prefLastVisitedPath] = p.LastVisitedPath
	}
	if p.LastVisitedAt != nil {
		doc[prefLastVisitedAt] = p.LastVisitedAt.UTC().Format(time.RFC3339Nano)
	}
	if p.DefaultDashboard != "" {
		doc[prefDefaultDashboard] = p.DefaultDashboard
	}
	if p.Theme != "" {
		doc[prefTheme] = p.Theme
	}
	if p.AccountStatus != "" {
		doc[prefAccountStatus] = p.AccountStatus
	}
	if len(p.Notifications) > 0 {
		doc[prefNotifications] = p.Notifications
	}
	return json.Marshal(doc)
}

// PreferencesPatch is a partial preferences update. Nil fields are left
// untouched. OnboardingSteps and Notifications are merged key by key.
type PreferencesPatch struct {
	OnboardingCompleted        *bool
	OnboardingCompletedAt      *time.Time
	ClearOnboardingCompletedAt bool
	OnboardingSteps            map[OnboardingStep]bool
	SkipTeamSetup              *bool
	LastVisitedPath            *string
	LastVisitedAt              *time.Time
	DefaultDashboard           *string
	Theme                      *string
	AccountStatus              *AccountStatus
	Notifications              map[string]bool
}

// IsEmpty reports whether applying the patch would change nothing.
func (pp PreferencesPatch) IsEmpty() bool {
	return pp.OnboardingCompleted == nil &&
		pp.OnboardingCompletedAt == nil &&
		!pp.ClearOnboardingCompletedAt &&
		len(pp.OnboardingSteps) == 0 &&
		pp.SkipTeamSetup == nil &&
		pp.LastVisitedPath == nil &&
		pp.LastVisitedAt == nil &&
		pp.DefaultDashboard == nil &&
		pp.Theme == nil &&
		pp.AccountStatus == nil &&
		len(pp.Notifications) == 0
}

// Apply returns a copy of p with the patch merged in. p is not modified.
func (p Preferences) Apply(patch PreferencesPatch) Preferences {
	out := p.Clone()

	if patch.OnboardingCompleted != nil {
		out.OnboardingCompleted = *patch.OnboardingCompleted
	}
	if patch.ClearOnboardingCompletedAt {
		out.OnboardingCompletedAt = nil
	}
	if patch.OnboardingCompletedAt != nil {
		t := *patch.OnboardingCompletedAt
		out.OnboardingCompletedAt = &t
	}
	for step, done := range patch.OnboardingSteps {
		out.OnboardingSteps[step] = done
	}
	if patch.SkipTeamSetup != nil {
		out.SkipTeamSetup = *patch.SkipTeamSetup
	}
	if patch.LastVisitedPath != nil {
		out.LastVisitedPath = *patch.LastVisitedPath
	}
	if patch.LastVisitedAt != nil {
		t := *patch.LastVisitedAt
		out.LastVisitedAt = &t
	}
	if patch.DefaultDashboard != nil {
		out.DefaultDashboard = *patch.DefaultDashboard
	}
	if patch.Theme != nil {
		out.Theme = *patch.Theme
	}
	if patch.AccountStatus != nil {
		out.AccountStatus = *patch.AccountStatus
	}
	for k, v := range patch.Notifications {
		out.Notifications[k] = v
	}
	return out
}

func decodeFlag(raw json.RawMessage) (bool, bool) {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, parseErr := strconv.ParseBool(strings.TrimSpace(s)); parseErr == nil {
			return v, true
		}
	}
	return false, false
}

func decodeString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func decodeTime(raw json.RawMessage) *time.Time {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		t, parseErr := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
		if parseErr != nil {
			return nil
		}
		t = t.UTC()
		return &t
	}
	var ms float64
	if err := json.Unmarshal(raw, &ms); err == nil && ms > 0 {
		t := time.UnixMilli(int64(ms)).UTC()
		return &t
	}
	return nil
}

func decodeSteps(raw json.RawMessage) map[OnboardingStep]bool {
	out := map[OnboardingStep]bool{}

	var names []string
	if err := json.Unmarshal(raw, &names); err == nil {
		for _, name := range names {
			if step, ok := ParseOnboardingStep(name); ok {
				out[step] = true
			}
		}
		return out
	}

	for name, done := range decodeFlagMap(raw) {
		if step, ok := ParseOnboardingStep(name); ok {
			out[step] = done
		}
	}
	return out
}

func decodeFlagMap(raw json.RawMessage) map[string]bool {
	out := map[string]bool{}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return out
	}
	for k, v := range obj {
		if b, ok := decodeFlag(v); ok {
			out[k] = b
		}
	}
	return out
}
