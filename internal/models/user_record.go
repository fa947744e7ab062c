package models

import (
	"strings"
	"time"
)

// UserRecord is the canonical account document, keyed by the auth provider UID.
type UserRecord struct {
	UserID  string            `json:"userId" bson:"user_id"`
	Email   string            `json:"email" bson:"email"`
	Name    string            `json:"name" bson:"name"`
	Profile map[string]string `json:"profile,omitempty" bson:"profile,omitempty"`

	IsSuspended         bool       `json:"isSuspended" bson:"is_suspended"`
	SuspendedAt         *time.Time `json:"suspendedAt,omitempty" bson:"suspended_at,omitempty"`
	SuspensionExpiresAt *time.Time `json:"suspensionExpiresAt,omitempty" bson:"suspension_expires_at,omitempty"`
	SuspensionReason    string     `json:"suspensionReason,omitempty" bson:"suspension_reason,omitempty"`

	MissingFields   []string        `json:"missingFields" bson:"missing_fields"`
	Inconsistencies []Inconsistency `json:"inconsistencies" bson:"inconsistencies"`

	// AcknowledgedFingerprint is the anomaly set an admin accepted when restoring the account.
	AcknowledgedFingerprint string         `json:"acknowledgedFingerprint,omitempty" bson:"acknowledged_fingerprint,omitempty"`
	RestoreHistory          []RestoreEntry `json:"restoreHistory,omitempty" bson:"restore_history,omitempty"`

	// DeletionPending marks a record the expiry sweep has claimed. It is never cleared; the
	// record only goes away.
	DeletionPending bool `json:"deletionPending,omitempty" bson:"deletion_pending,omitempty"`

	// Outbox holds logs written together with a suspension, until they reach the logs collection.
	Outbox []InconsistencyLog `json:"outbox,omitempty" bson:"outbox,omitempty"`

	Version   int64     `json:"version" bson:"version"`
	CreatedAt time.Time `json:"createdAt" bson:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updated_at"`
}

// Inconsistency is a field whose value differs between the auth record and the profile.
type Inconsistency struct {
	Field    string `json:"field" bson:"field"`
	Expected string `json:"expected,omitempty" bson:"expected,omitempty"`
	Actual   string `json:"actual,omitempty" bson:"actual,omitempty"`
}

// RestoreEntry records who lifted a suspension and why.
type RestoreEntry struct {
	Actor  string    `json:"actor" bson:"actor"`
	Reason string    `json:"reason" bson:"reason"`
	Source string    `json:"source" bson:"source"`
	At     time.Time `json:"at" bson:"at"`
}

const (
	RestoreSourceAdmin   = "admin"
	RestoreSourceProfile = "profile_completion"
	RestoreSourceChecker = "checker"
)

// FieldValue returns the trimmed value of a top-level or profile field.
func (u *UserRecord) FieldValue(field string) string {
	switch field {
	case "name":
		return strings.TrimSpace(u.Name)
	case "email":
		return strings.TrimSpace(u.Email)
	}
	if u.Profile == nil {
		return ""
	}
	return strings.TrimSpace(u.Profile[field])
}

// Suspend sets all suspension fields at once so they can never be partially set.
func (u *UserRecord) Suspend(now time.Time, grace time.Duration, reason string) {
	at := now.UTC()
	exp := at.Add(grace)
	u.IsSuspended = true
	u.SuspendedAt = &at
	u.SuspensionExpiresAt = &exp
	u.SuspensionReason = reason
}

// ClearSuspension resets every suspension field.
func (u *UserRecord) ClearSuspension() {
	u.IsSuspended = false
	u.SuspendedAt = nil
	u.SuspensionExpiresAt = nil
	u.SuspensionReason = ""
}

// SuspensionValid reports whether the suspension fields agree with IsSuspended.
func (u *UserRecord) SuspensionValid() bool {
	if !u.IsSuspended {
		return true
	}
	return u.SuspendedAt != nil && u.SuspensionExpiresAt != nil && u.SuspensionExpiresAt.After(*u.SuspendedAt)
}

// Expired reports whether a suspended record is past its grace period.
func (u *UserRecord) Expired(now time.Time) bool {
	return u.IsSuspended && u.SuspensionExpiresAt != nil && u.SuspensionExpiresAt.Before(now)
}

// DaysRemaining rounds the remaining grace period up to whole days.
func (u *UserRecord) DaysRemaining(now time.Time) int {
	if !u.IsSuspended || u.SuspensionExpiresAt == nil {
		return 0
	}
	left := u.SuspensionExpiresAt.Sub(now)
	if left <= 0 {
		return 0
	}
	days := int(left / (24 * time.Hour))
	if left%(24*time.Hour) != 0 {
		days++
	}
	return days
}

// Clone returns a deep copy, so stores never hand out shared slices or maps.
func (u *UserRecord) Clone() *UserRecord {
	out := *u
	if u.Profile != nil {
		out.Profile = make(map[string]string, len(u.Profile))
		for k, v := range u.Profile {
			out.Profile[k] = v
		}
	}
	out.MissingFields = append([]string(nil), u.MissingFields...)
	out.Inconsistencies = append([]Inconsistency(nil), u.Inconsistencies...)
	out.RestoreHistory = append([]RestoreEntry(nil), u.RestoreHistory...)
	out.Outbox = append([]InconsistencyLog(nil), u.Outbox...)
	if u.SuspendedAt != nil {
		t := *u.SuspendedAt
		out.SuspendedAt = &t
	}
	if u.SuspensionExpiresAt != nil {
		t := *u.SuspensionExpiresAt
		out.SuspensionExpiresAt = &t
	}
	return &out
}

// AuthRecord is the identity provider's view of a user.
type AuthRecord struct {
	UID         string
	Email       string
	DisplayName string
	Disabled    bool
}

// CompleteProfileRequest is submitted by a suspended user to fix their record.
type CompleteProfileRequest struct {
	Name    *string           `json:"name"`
	Email   *string           `json:"email"`
	Profile map[string]string `json:"profile"`
}

func (r *CompleteProfileRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.Name != nil && strings.TrimSpace(*r.Name) == "" {
		errors["name"] = "Name cannot be blank"
	} else if r.Name != nil && len(*r.Name) > 120 {
		errors["name"] = "Name is too long"
	}
	if r.Email != nil && strings.TrimSpace(*r.Email) == "" {
		errors["email"] = "Email cannot be blank"
	} else if r.Email != nil && len(*r.Email) > 254 {
		errors["email"] = "Email is too long"
	}
	for k, v := range r.Profile {
		if k == "name" || k == "email" {
			errors["profile."+k] = "Use the top-level field"
		} else if len(v) > 1000 {
			errors["profile."+k] = "Value is too long"
		}
	}

	return errors
}

// ProfileStatus is the end-user projection of their own record.
type ProfileStatus struct {
	IsSuspended         bool            `json:"isSuspended"`
	MissingFields       []string        `json:"missingFields"`
	Inconsistencies     []Inconsistency `json:"inconsistencies"`
	SuspendedAt         *time.Time      `json:"suspendedAt"`
	SuspensionExpiresAt *time.Time      `json:"suspensionExpiresAt"`
	SuspensionReason    string          `json:"suspensionReason"`
	DaysRemaining       int             `json:"daysRemaining"`
	UserData            *UserRecord     `json:"userData"`
}
