package models

import (
	"fmt"
	"time"
)

// ExternalKeyLookup ties one local record to one remote record for a
// provider, environment and remote object type.
type ExternalKeyLookup struct {
	ID          int64     `json:"id"`
	LocalType   string    `json:"local_type"`
	LocalID     string    `json:"local_id"`
	Provider    string    `json:"provider"`
	Environment string    `json:"environment"`
	RemoteType  string    `json:"remote_type"`
	RemoteID    string    `json:"remote_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// LookupKey is the unique tuple of an ExternalKeyLookup row.
type LookupKey struct {
	LocalType   string `json:"local_type"`
	LocalID     string `json:"local_id"`
	Provider    string `json:"provider"`
	Environment string `json:"environment"`
	RemoteType  string `json:"remote_type"`
}

// Key returns the unique tuple of the row.
func (l *ExternalKeyLookup) Key() LookupKey {
	return LookupKey{
		LocalType:   l.LocalType,
		LocalID:     l.LocalID,
		Provider:    l.Provider,
		Environment: l.Environment,
		RemoteType:  l.RemoteType,
	}
}

// NewLookup builds an unsaved row for key pointing at remoteID.
func NewLookup(key LookupKey, remoteID string) *ExternalKeyLookup {
	return &ExternalKeyLookup{
		LocalType:   key.LocalType,
		LocalID:     key.LocalID,
		Provider:    key.Provider,
		Environment: key.Environment,
		RemoteType:  key.RemoteType,
		RemoteID:    remoteID,
	}
}

// String renders the key in a stable, colon separated form. It doubles as
// the lock name for the tuple.
func (k LookupKey) String() string {
	return fmt.Sprintf("%s:%s:%s:%s:%s", k.LocalType, k.LocalID, k.Provider, k.Environment, k.RemoteType)
}
