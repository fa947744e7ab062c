package models

import "time"

// DeletedAccountRecord is the append-only audit snapshot left behind by an expired account.
type DeletedAccountRecord struct {
	UserID     string     `json:"userId" bson:"_id"`
	UserData   UserRecord `json:"userData" bson:"user_data"`
	Reason     string     `json:"reason" bson:"reason"`
	DeletedAt  time.Time  `json:"deletedAt" bson:"deleted_at"`
	ArchiveURI string     `json:"archiveUri,omitempty" bson:"archive_uri,omitempty"`
}

// CheckSummary is returned by a full Checker pass.
type CheckSummary struct {
	Scanned   int       `json:"scanned"`
	Suspended int       `json:"suspended"`
	Lifted    int       `json:"lifted"`
	Unchanged int       `json:"unchanged"`
	Failed    int       `json:"failed"`
	Logs      int       `json:"logs"`
	StartedAt time.Time `json:"startedAt"`
	Duration  string    `json:"duration"`
}

// SweepSummary is returned by an expiry sweep.
type SweepSummary struct {
	Expired int `json:"expired"`
	Deleted int `json:"deleted"`
	Failed  int `json:"failed"`
}
