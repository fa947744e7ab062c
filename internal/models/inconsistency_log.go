package models

import "time"

type LogType string

const (
	LogDataMismatch      LogType = "data_mismatch"
	LogMissingFields     LogType = "missing_fields"
	LogMissingAuthRecord LogType = "missing_auth_record"
	LogAccountDeleted    LogType = "account_deleted"
)

// LogTypes lists every log type in display order.
var LogTypes = []LogType{LogDataMismatch, LogMissingFields, LogMissingAuthRecord, LogAccountDeleted}

func (t LogType) Valid() bool {
	for _, v := range LogTypes {
		if v == t {
			return true
		}
	}
	return false
}

// InconsistencyLog is one detected anomaly for one user.
type InconsistencyLog struct {
	ID        string     `json:"id" bson:"_id"`
	UserID    string     `json:"userId" bson:"user_id"`
	UserEmail string     `json:"userEmail" bson:"user_email"`
	UserName  string     `json:"userName" bson:"user_name"`
	Type      LogType    `json:"type" bson:"type"`
	Details   LogDetails `json:"details" bson:"details"`
	Timestamp time.Time  `json:"timestamp" bson:"timestamp"`

	Resolved        bool       `json:"resolved" bson:"resolved"`
	ResolvedAt      *time.Time `json:"resolvedAt,omitempty" bson:"resolved_at,omitempty"`
	ResolutionNotes string     `json:"resolutionNotes,omitempty" bson:"resolution_notes,omitempty"`
	ResolvedBy      string     `json:"resolvedBy,omitempty" bson:"resolved_by,omitempty"`
}

// LogDetails carries the type-specific payload; only the field matching Type is set.
type LogDetails struct {
	MissingFields   []string        `json:"missingFields,omitempty" bson:"missing_fields,omitempty"`
	Inconsistencies []Inconsistency `json:"inconsistencies,omitempty" bson:"inconsistencies,omitempty"`
	Reason          string          `json:"reason,omitempty" bson:"reason,omitempty"`
}

// Resolve marks the log resolved. Already-resolved logs keep their original resolution.
func (l *InconsistencyLog) Resolve(now time.Time, notes, actor string) {
	if l.Resolved {
		return
	}
	at := now.UTC()
	l.Resolved = true
	l.ResolvedAt = &at
	l.ResolutionNotes = notes
	l.ResolvedBy = actor
}

// LogStatusFilter selects logs by resolution state.
type LogStatusFilter string

const (
	LogStatusAll        LogStatusFilter = "all"
	LogStatusResolved   LogStatusFilter = "resolved"
	LogStatusUnresolved LogStatusFilter = "unresolved"
)

// LogFilter is the admin list query. An empty Type means all types.
type LogFilter struct {
	Status LogStatusFilter
	Type   LogType
	UserID string
}

func (f LogFilter) Matches(l *InconsistencyLog) bool {
	switch f.Status {
	case LogStatusResolved:
		if !l.Resolved {
			return false
		}
	case LogStatusUnresolved:
		if l.Resolved {
			return false
		}
	}
	if f.Type != "" && l.Type != f.Type {
		return false
	}
	if f.UserID != "" && l.UserID != f.UserID {
		return false
	}
	return true
}

type InconsistencyStats struct {
	TotalLogs      int64             `json:"totalLogs"`
	UnresolvedLogs int64             `json:"unresolvedLogs"`
	SuspendedUsers int64             `json:"suspendedUsers"`
	ByType         map[LogType]int64 `json:"byType"`
}

type LogPage struct {
	Logs     []InconsistencyLog `json:"logs"`
	Total    int                `json:"total"`
	Page     int                `json:"page,omitempty"`
	PageSize int                `json:"pageSize,omitempty"`
}

type UserLogs struct {
	UserID      string             `json:"userId"`
	UserEmail   string             `json:"userEmail"`
	UserName    string             `json:"userName"`
	Logs        []InconsistencyLog `json:"logs"`
	IsSuspended bool               `json:"isSuspended"`
}

type ResolveLogRequest struct {
	Notes string `json:"notes"`
}

type RestoreUserRequest struct {
	Reason string `json:"reason"`
}
