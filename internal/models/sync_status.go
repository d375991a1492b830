package models

import "time"

// SyncStatus is the last known outcome of syncing one local record to one
// provider environment.
type SyncStatus struct {
	LocalType   string    `json:"local_type"`
	LocalID     string    `json:"local_id"`
	Provider    string    `json:"provider"`
	Environment string    `json:"environment"`
	RemoteType  string    `json:"remote_type"`
	RemoteID    string    `json:"remote_id,omitempty"`
	State       string    `json:"state"`
	Error       string    `json:"error,omitempty"`
	SyncedAt    time.Time `json:"synced_at"`
}
