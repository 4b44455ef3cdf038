// ABOUTME: Tests for the create-event conversation
// ABOUTME: Covers the full happy path, re-ask loops, and confirmation rollback

package flows

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runeclock/eventbot/internal/bus"
	"github.com/runeclock/eventbot/internal/conversation"
	"github.com/runeclock/eventbot/internal/store"
)

func TestCreateFlow_FullSequence(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	st := newFakeStore()
	pub := &fakePublisher{}
	flow := NewCreateFlow(testDeps(st, pub, now), "!guild:example.org")

	state := drive(t, flow,
		"Test#1",
		"now", "yes",
		"tbd", "yes",
		"skills magic", "yes",
		"no",
		"yes",
	)
	assert.Equal(t, conversation.Done, state)
	assert.Contains(t, flow.CloseMessage(), "Test#1")

	require.Len(t, st.events, 1)
	var saved *store.Event
	for _, e := range st.events {
		saved = e
	}
	assert.Equal(t, "Test#1", saved.Name)
	assert.True(t, saved.StartsAt.Equal(now))
	assert.True(t, saved.OpenEnded())
	assert.Equal(t, store.CategorySkills, saved.Tracker.Category)
	assert.Equal(t, []string{"magic"}, saved.Tracker.Selection)
	assert.False(t, saved.Global)
	require.NotNil(t, saved.Teams)
	assert.Empty(t, saved.Teams)

	signals := pub.byTopic(bus.WillAddEvent)
	require.Len(t, signals, 1)
	assert.Equal(t, saved.ID, signals[0].Event.ID)
}

func TestCreateFlow_EndConfirmNoReturnsToEndQuestion(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	flow := NewCreateFlow(testDeps(newFakeStore(), &fakePublisher{}, now), "!guild:example.org")

	state := drive(t, flow,
		"Skill week",
		"now", "yes",
		"2026-03-08", "no",
	)
	// Rejecting the end date re-asks the end date only
	assert.Equal(t, createAskEnd, state)
	assert.Contains(t, flow.Render(state), "end")
}

func TestCreateFlow_RejectsEndBeforeStart(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	flow := NewCreateFlow(testDeps(newFakeStore(), &fakePublisher{}, now), "!guild:example.org")

	state := drive(t, flow,
		"Backwards",
		"2026-03-10", "yes",
		"2026-03-05",
	)
	assert.Equal(t, createBadEnd, state)
}

func TestCreateFlow_BadInputsReAsk(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	flow := NewCreateFlow(testDeps(newFakeStore(), &fakePublisher{}, now), "!guild:example.org")

	state := drive(t, flow, "   ")
	assert.Equal(t, createBadName, state)

	flow = NewCreateFlow(testDeps(newFakeStore(), &fakePublisher{}, now), "!guild:example.org")
	state = drive(t, flow, "Skill week", "soonish")
	assert.Equal(t, createBadStart, state)
}

func TestCreateFlow_FinalNoSavesNothing(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	st := newFakeStore()
	pub := &fakePublisher{}
	flow := NewCreateFlow(testDeps(st, pub, now), "!guild:example.org")

	state := drive(t, flow,
		"Scrapped",
		"now", "yes",
		"tbd", "yes",
		"none", "yes",
		"yes",
		"no",
	)
	assert.Equal(t, conversation.Done, state)
	assert.Empty(t, st.events)
	assert.Empty(t, pub.signals)
	assert.Equal(t, "Okay, nothing was saved.", flow.CloseMessage())
}
