// Package crm defines the contract between the sync engine and CRM provider
// adapters, plus the pieces shared by every adapter: the error taxonomy,
// the provider registry and the association reconciler.
package crm

import (
	"context"
	"errors"
	"time"

	"github.com/prudhvinik1/crmsync/internal/logging"
	"github.com/prudhvinik1/crmsync/internal/models"
)

// ErrRemoteNotFound is returned by Load when a remote id does not exist.
var ErrRemoteNotFound = errors.New("remote object not found")

// Item is one remote record.
type Item struct {
	ID         string         `json:"id"`
	Properties map[string]any `json:"properties,omitempty"`
	CreatedAt  time.Time      `json:"createdAt,omitempty"`
	UpdatedAt  time.Time      `json:"updatedAt,omitempty"`
	Archived   bool           `json:"archived,omitempty"`
}

// Paging points at the next page of a collection.
type Paging struct {
	NextAfter string `json:"after"`
}

// AssociatedObject is one remote object linked to the loaded item, with
// the association specs it carries.
type AssociatedObject struct {
	ID    string
	Specs []models.AssociationSpec
}

// Provider drives one CRM. An instance serves a single unit of work: it
// holds the live connection and the last loaded snapshot, so it is not
// safe for concurrent use.
//
// Call order is Connect, Setup, Load, then any mutation, then Disconnect.
type Provider interface {
	Name() string
	SupportsObjectType(remoteType string) bool

	// Connect resolves credentials for environment. log carries the
	// caller's scope and correlation id.
	Connect(ctx context.Context, environment string, log *logging.Logger) error
	// Disconnect releases the client. It is safe to call more than once.
	Disconnect()

	// Setup builds the outbound property bag for record from fields and
	// captures its delete and active rules.
	Setup(record models.Record, remoteType string, fields models.FieldMap) error

	// Load flushes the snapshot, then fetches remoteID if set or searches
	// by filters (remote property name to value) otherwise.
	Load(ctx context.Context, remoteID string, filters map[string]any) error
	Create(ctx context.Context) error
	Update(ctx context.Context) error
	// Restore updates the loaded item with the active rules merged in.
	Restore(ctx context.Context) error
	Delete(ctx context.Context, soft bool) error
	// Associate makes the links from the loaded item to targetID match
	// specs exactly.
	Associate(ctx context.Context, targetType, targetID string, specs []models.AssociationSpec) error

	ObjectLoaded() bool
	ObjectItemLoaded() bool
	Total() int
	Results() []Item
	FirstItem() *Item
	Paging() *Paging
}
