// ABOUTME: Store interface and sentinel errors for eventbot persistence
// ABOUTME: Defines the queries the lifecycle pipeline and flows need from storage

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist.
// Callers treat it as plain absence (re-ask, skip), never as a fatal fault.
var ErrNotFound = errors.New("not found")

// Settings holds per-guild bot configuration.
type Settings struct {
	GuildID               string
	Admins                []string
	NotificationChannelID string
	UpdatedAt             time.Time
}

// IsAdmin reports whether the given user id is in the guild's admin list.
// An empty admin list means the guild has not restricted commands yet.
func (s *Settings) IsAdmin(userID string) bool {
	if len(s.Admins) == 0 {
		return true
	}
	for _, a := range s.Admins {
		if a == userID {
			return true
		}
	}
	return false
}

// Store defines the interface for event and settings persistence.
type Store interface {
	// Events
	GetEvent(ctx context.Context, id string) (*Event, error)
	GetCreatorEvent(ctx context.Context, id, guildID string) (*Event, error)
	ListGuildEvents(ctx context.Context, guildID string) ([]*Event, error)
	ListInvitedEvents(ctx context.Context, guildID string) ([]*Event, error)
	ListEventsBetween(ctx context.Context, start, end time.Time) ([]*Event, error)
	ListRunningEvents(ctx context.Context, now time.Time) ([]*Event, error)

	// UpsertEvent persists the event, assigning an id on first save.
	// The returned event always carries its id.
	UpsertEvent(ctx context.Context, event *Event) (*Event, error)

	// DeleteEvent removes the event. Deleting a missing event is not an error.
	DeleteEvent(ctx context.Context, id string) error

	// Settings
	GetSettings(ctx context.Context, guildID string) (*Settings, error)
	SaveSettings(ctx context.Context, settings *Settings) error

	// Close releases any resources held by the store
	Close() error
}
