// ABOUTME: Tests for the SQLite store implementation
// ABOUTME: Verifies event upsert/query round-trips, guild links, and settings

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testEvent() *Event {
	return &Event{
		Name:     "Skill Week",
		StartsAt: time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC),
		EndsAt:   time.Date(2026, 3, 8, 18, 0, 0, 0, time.UTC),
		Tracker:  Tracker{Category: CategorySkills, Selection: []string{"magic"}},
		Teams: []Team{{
			Name: "Reds",
			Participants: []Participant{{
				UserID:   "@alice:example.org",
				Accounts: []Account{{Name: "alice_rs"}},
			}},
		}},
		CreatorGuild: Guild{GuildID: "!guild:example.org"},
	}
}

func TestUpsertEvent_AssignsID(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	saved, err := s.UpsertEvent(ctx, testEvent())
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	assert.False(t, saved.CreatedAt.IsZero())

	// Second save keeps the id stable
	saved.Name = "Skill Week 2"
	again, err := s.UpsertEvent(ctx, saved)
	require.NoError(t, err)
	assert.Equal(t, saved.ID, again.ID)
	assert.Equal(t, "Skill Week 2", again.Name)
}

func TestUpsertEvent_RejectsInvalid(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	e := testEvent()
	e.EndsAt = e.StartsAt
	_, err := s.UpsertEvent(ctx, e)
	assert.Error(t, err)

	e = testEvent()
	e.CreatorGuild.GuildID = ""
	_, err = s.UpsertEvent(ctx, e)
	assert.Error(t, err)
}

func TestGetEvent_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	e := testEvent()
	e.InvitedGuilds = []Guild{{GuildID: "!other:example.org"}}
	e.Teams[0].Participants[0].Accounts[0].Starting = &Snapshot{
		Skills:  map[string]SkillStat{"magic": {Rank: 100, Level: 99, XP: 13034431}},
		TakenAt: time.Date(2026, 3, 1, 18, 0, 5, 0, time.UTC),
	}
	saved, err := s.UpsertEvent(ctx, e)
	require.NoError(t, err)

	got, err := s.GetEvent(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, saved.Name, got.Name)
	assert.True(t, got.StartsAt.Equal(e.StartsAt))
	assert.Equal(t, CategorySkills, got.Tracker.Category)
	assert.Equal(t, []string{"magic"}, got.Tracker.Selection)
	require.Len(t, got.Teams, 1)
	require.Len(t, got.InvitedGuilds, 1)
	acct := got.Teams[0].Participants[0].Accounts[0]
	require.NotNil(t, acct.Starting)
	assert.Equal(t, int64(13034431), acct.Starting.Skills["magic"].XP)
}

func TestGetEvent_NotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.GetEvent(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteEvent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	e := testEvent()
	e.InvitedGuilds = []Guild{{GuildID: "!other:example.org"}}
	saved, err := s.UpsertEvent(ctx, e)
	require.NoError(t, err)

	require.NoError(t, s.DeleteEvent(ctx, saved.ID))

	_, err = s.GetEvent(ctx, saved.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	invited, err := s.ListInvitedEvents(ctx, "!other:example.org")
	require.NoError(t, err)
	assert.Empty(t, invited)

	// Missing ids are a no-op
	assert.NoError(t, s.DeleteEvent(ctx, "missing"))
}

func TestGetCreatorEvent_RestrictedToCreator(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	e := testEvent()
	e.InvitedGuilds = []Guild{{GuildID: "!other:example.org"}}
	saved, err := s.UpsertEvent(ctx, e)
	require.NoError(t, err)

	got, err := s.GetCreatorEvent(ctx, saved.ID, "!guild:example.org")
	require.NoError(t, err)
	assert.Equal(t, saved.ID, got.ID)

	// Invited guild is not the creator
	_, err = s.GetCreatorEvent(ctx, saved.ID, "!other:example.org")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListGuildAndInvitedEvents(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	e := testEvent()
	e.InvitedGuilds = []Guild{{GuildID: "!other:example.org"}}
	_, err := s.UpsertEvent(ctx, e)
	require.NoError(t, err)

	created, err := s.ListGuildEvents(ctx, "!guild:example.org")
	require.NoError(t, err)
	assert.Len(t, created, 1)

	invited, err := s.ListInvitedEvents(ctx, "!other:example.org")
	require.NoError(t, err)
	assert.Len(t, invited, 1)

	none, err := s.ListInvitedEvents(ctx, "!guild:example.org")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestListEventsBetween(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	e := testEvent()
	_, err := s.UpsertEvent(ctx, e)
	require.NoError(t, err)

	// Window covering the start
	hits, err := s.ListEventsBetween(ctx,
		e.StartsAt.Add(-time.Hour), e.StartsAt.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	// Window missing both boundaries
	misses, err := s.ListEventsBetween(ctx,
		e.EndsAt.Add(time.Hour), e.EndsAt.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, misses)
}

func TestListRunningEvents(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	e := testEvent()
	_, err := s.UpsertEvent(ctx, e)
	require.NoError(t, err)

	running, err := s.ListRunningEvents(ctx, e.StartsAt.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, running, 1)

	before, err := s.ListRunningEvents(ctx, e.StartsAt.Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, before)

	after, err := s.ListRunningEvents(ctx, e.EndsAt)
	require.NoError(t, err)
	assert.Empty(t, after)
}

func TestOpenEndedEventRoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	e := testEvent()
	e.EndsAt = FarFuture
	saved, err := s.UpsertEvent(ctx, e)
	require.NoError(t, err)

	got, err := s.GetEvent(ctx, saved.ID)
	require.NoError(t, err)
	assert.True(t, got.OpenEnded())

	// Open-ended events stay running forever
	running, err := s.ListRunningEvents(ctx, time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Len(t, running, 1)
}

func TestSettingsRoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.GetSettings(ctx, "!guild:example.org")
	assert.ErrorIs(t, err, ErrNotFound)

	cfg := &Settings{
		GuildID:               "!guild:example.org",
		Admins:                []string{"@alice:example.org"},
		NotificationChannelID: "!scores:example.org",
	}
	require.NoError(t, s.SaveSettings(ctx, cfg))

	got, err := s.GetSettings(ctx, "!guild:example.org")
	require.NoError(t, err)
	assert.Equal(t, cfg.NotificationChannelID, got.NotificationChannelID)
	assert.True(t, got.IsAdmin("@alice:example.org"))
	assert.False(t, got.IsAdmin("@bob:example.org"))
}
