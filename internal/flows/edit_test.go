// ABOUTME: Tests for the edit-event conversation
// ABOUTME: Covers creator-guild lookup, skip handling, and the confirm rollback

package flows

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runeclock/eventbot/internal/bus"
	"github.com/runeclock/eventbot/internal/conversation"
	"github.com/runeclock/eventbot/internal/store"
)

func seedEvent(t *testing.T, st *fakeStore, guildID string) *store.Event {
	t.Helper()
	saved, err := st.UpsertEvent(context.Background(), &store.Event{
		Name:         "Slayer sprint",
		StartsAt:     time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC),
		EndsAt:       time.Date(2026, 3, 9, 18, 0, 0, 0, time.UTC),
		Tracker:      store.Tracker{Category: store.CategorySkills, Selection: []string{"slayer"}},
		Teams:        []store.Team{},
		CreatorGuild: store.Guild{GuildID: guildID},
	})
	require.NoError(t, err)
	return saved
}

func TestEditFlow_SkipKeepsValues(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	st := newFakeStore()
	pub := &fakePublisher{}
	event := seedEvent(t, st, "!guild:example.org")
	flow := NewEditFlow(testDeps(st, pub, now), "!guild:example.org")

	state := drive(t, flow, event.ID, "skip", "skip", "skip", "yes")
	assert.Equal(t, conversation.Done, state)

	saved := st.events[event.ID]
	assert.Equal(t, event.Name, saved.Name)
	assert.True(t, saved.StartsAt.Equal(event.StartsAt))
	assert.True(t, saved.EndsAt.Equal(event.EndsAt))

	signals := pub.byTopic(bus.WillEditEvent)
	require.Len(t, signals, 1)
	assert.Equal(t, event.ID, signals[0].Event.ID)
}

func TestEditFlow_ChangesNameAndWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	st := newFakeStore()
	event := seedEvent(t, st, "!guild:example.org")
	flow := NewEditFlow(testDeps(st, &fakePublisher{}, now), "!guild:example.org")

	state := drive(t, flow, event.ID, "Slayer marathon", "2026-03-03", "tbd", "yes")
	assert.Equal(t, conversation.Done, state)

	saved := st.events[event.ID]
	assert.Equal(t, "Slayer marathon", saved.Name)
	assert.Equal(t, time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC), saved.StartsAt)
	assert.True(t, saved.OpenEnded())
}

func TestEditFlow_LookupRestrictedToCreator(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	st := newFakeStore()
	event := seedEvent(t, st, "!guild:example.org")
	flow := NewEditFlow(testDeps(st, &fakePublisher{}, now), "!other:example.org")

	state := drive(t, flow, event.ID)
	assert.Equal(t, editBadID, state)
}

func TestEditFlow_ConfirmNoRestartsFieldEdits(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	st := newFakeStore()
	pub := &fakePublisher{}
	event := seedEvent(t, st, "!guild:example.org")
	flow := NewEditFlow(testDeps(st, pub, now), "!guild:example.org")

	state := drive(t, flow, event.ID, "Renamed", "skip", "skip", "no")
	assert.Equal(t, editAskName, state)
	// The rejected name was discarded
	assert.Contains(t, flow.Render(editConfirmAll), event.Name)
	assert.Empty(t, pub.signals)
	assert.Equal(t, event.Name, st.events[event.ID].Name)
}
